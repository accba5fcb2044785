package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/iyhunko/products-crud/internal/model"
)

var (
	// ErrNotFound is returned when no row matches the requested ID.
	ErrNotFound = errors.New("resource not found")
)

// ProductRepository defines persistence operations for products.
type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) (*model.Product, error)
	List(ctx context.Context) ([]*model.Product, error)
	FindByID(ctx context.Context, id int64) (*model.Product, error)
	Update(ctx context.Context, product *model.Product) (*model.Product, error)
	DeleteByID(ctx context.Context, id int64) error
}

// EventRepository defines persistence operations for outbox events.
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) (*model.Event, error)
	List(ctx context.Context, query Query) ([]*model.Event, error)
	UpdateStatus(ctx context.Context, eventID uuid.UUID, status model.EventStatus) error
}

// Transactor runs fn with repositories bound to a single database transaction.
// The transaction is committed when fn returns nil and rolled back otherwise.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(products ProductRepository, events EventRepository) error) error
}

// UniqueConstraintError represents a database unique constraint violation error.
type UniqueConstraintError struct {
	Detail string
}

func (u *UniqueConstraintError) Error() string {
	return "resource must be unique: " + u.Detail
}
