package service_test

import (
	"context"

	"github.com/google/uuid"
	"github.com/iyhunko/products-crud/internal/model"
	"github.com/iyhunko/products-crud/internal/repository"
	"github.com/iyhunko/products-crud/internal/sqs"
	"github.com/stretchr/testify/mock"
)

// MockProductRepository is a mock implementation of repository.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) Create(ctx context.Context, product *model.Product) (*model.Product, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductRepository) List(ctx context.Context) ([]*model.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Product), args.Error(1)
}

func (m *MockProductRepository) FindByID(ctx context.Context, id int64) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductRepository) Update(ctx context.Context, product *model.Product) (*model.Product, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductRepository) DeleteByID(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockEventRepository is a mock implementation of repository.EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Create(ctx context.Context, event *model.Event) (*model.Event, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Event), args.Error(1)
}

func (m *MockEventRepository) List(ctx context.Context, query repository.Query) ([]*model.Event, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Event), args.Error(1)
}

func (m *MockEventRepository) UpdateStatus(ctx context.Context, eventID uuid.UUID, status model.EventStatus) error {
	args := m.Called(ctx, eventID, status)
	return args.Error(0)
}

// fakeTransactor runs the callback against the given repositories and
// returns whatever it returns, counting the transactions opened.
type fakeTransactor struct {
	products repository.ProductRepository
	events   repository.EventRepository
	opened   int
}

func (f *fakeTransactor) WithinTransaction(_ context.Context, fn func(products repository.ProductRepository, events repository.EventRepository) error) error {
	f.opened++
	return fn(f.products, f.events)
}

// MockPublisher is a mock implementation of service.MessagePublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishProductMessage(ctx context.Context, msg sqs.ProductMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
