package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iyhunko/products-crud/internal/metrics"
	"github.com/iyhunko/products-crud/internal/model"
	"github.com/iyhunko/products-crud/internal/repository"
	"github.com/iyhunko/products-crud/internal/sqs"
)

// ProductService implements the product resource on top of the repositories.
type ProductService struct {
	products  repository.ProductRepository
	tx        repository.Transactor
	validator *payloadValidator
}

// NewProductService creates a new ProductService.
func NewProductService(products repository.ProductRepository, tx repository.Transactor) *ProductService {
	return &ProductService{
		products:  products,
		tx:        tx,
		validator: newPayloadValidator(),
	}
}

// ListProducts returns every product in insertion order.
func (ps *ProductService) ListProducts(ctx context.Context) ([]*model.Product, error) {
	return ps.products.List(ctx)
}

// GetProduct returns the product with the given id or repository.ErrNotFound.
func (ps *ProductService) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return ps.products.FindByID(ctx, id)
}

// CreateProduct validates the payload, stores a new product together with its
// change event and returns the stored representation.
func (ps *ProductService) CreateProduct(ctx context.Context, payload Payload) (*model.Product, error) {
	changes, err := ps.checkPayload(payload, false)
	if err != nil {
		return nil, err
	}

	product := &model.Product{}
	changes.apply(product)

	var created *model.Product
	err = ps.tx.WithinTransaction(ctx, func(products repository.ProductRepository, events repository.EventRepository) error {
		var err error
		created, err = products.Create(ctx, product)
		if err != nil {
			return err
		}
		return recordEvent(ctx, events, model.EventTypeProductCreated, sqs.ActionCreated, created)
	})
	if err != nil {
		return nil, err
	}

	metrics.ProductsCreated.Inc()
	slog.Info("Product created", slog.Int64("product_id", created.ID))

	return created, nil
}

// UpdateProduct replaces (partial == false) or patches (partial == true) the
// product with the given id. Fields absent from a partial payload keep their
// stored values; content absent from a full payload falls back to the default.
// An unknown id is reported as repository.ErrNotFound before the payload is checked.
func (ps *ProductService) UpdateProduct(ctx context.Context, id int64, payload Payload, partial bool) (*model.Product, error) {
	if _, err := ps.products.FindByID(ctx, id); err != nil {
		return nil, err
	}

	changes, err := ps.checkPayload(payload, partial)
	if err != nil {
		return nil, err
	}
	if !partial && changes.content == nil {
		cleared := ""
		changes.content = &cleared
	}

	var updated *model.Product
	err = ps.tx.WithinTransaction(ctx, func(products repository.ProductRepository, events repository.EventRepository) error {
		current, err := products.FindByID(ctx, id)
		if err != nil {
			return err
		}

		changes.apply(current)

		updated, err = products.Update(ctx, current)
		if err != nil {
			return err
		}
		return recordEvent(ctx, events, model.EventTypeProductUpdated, sqs.ActionUpdated, updated)
	})
	if err != nil {
		return nil, err
	}

	metrics.ProductsUpdated.Inc()
	slog.Info("Product updated", slog.Int64("product_id", updated.ID), slog.Bool("partial", partial))

	return updated, nil
}

// DeleteProduct removes the product with the given id permanently.
func (ps *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	err := ps.tx.WithinTransaction(ctx, func(products repository.ProductRepository, events repository.EventRepository) error {
		// Find the product first to get its details for the message
		product, err := products.FindByID(ctx, id)
		if err != nil {
			return err
		}

		if err := products.DeleteByID(ctx, id); err != nil {
			return err
		}
		return recordEvent(ctx, events, model.EventTypeProductDeleted, sqs.ActionDeleted, product)
	})
	if err != nil {
		return err
	}

	metrics.ProductsDeleted.Inc()
	slog.Info("Product deleted", slog.Int64("product_id", id))

	return nil
}

func (ps *ProductService) checkPayload(payload Payload, partial bool) (productChanges, error) {
	changes, err := ps.validator.check(payload, partial)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			metrics.ValidationFailures.Inc()
		}
		return productChanges{}, err
	}
	return changes, nil
}

func recordEvent(ctx context.Context, events repository.EventRepository, eventType, action string, product *model.Product) error {
	event, err := model.NewEvent(eventType, sqs.ProductMessage{
		Action:    action,
		ProductID: product.ID,
		Title:     product.Title,
		Price:     product.Price,
		SalePrice: product.SalePrice,
	})
	if err != nil {
		return err
	}

	if _, err := events.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to record %s event: %w", eventType, err)
	}
	return nil
}
