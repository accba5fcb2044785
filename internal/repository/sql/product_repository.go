package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iyhunko/products-crud/internal/model"
	"github.com/iyhunko/products-crud/internal/repository"
	"github.com/jackc/pgx/v5/pgconn"
)

const productColumns = "id, title, content, price, sale_price"

// ProductRepository implements repository.ProductRepository on PostgreSQL.
type ProductRepository struct {
	db  *sql.DB
	txn *sql.Tx
}

// NewProductRepository creates a new ProductRepository instance.
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// getExecutor returns the active executor (transaction if exists, otherwise db)
func (r *ProductRepository) getExecutor() dbExecutor {
	if r.txn != nil {
		return r.txn
	}
	return r.db
}

func scanProduct(row rowScanner) (*model.Product, error) {
	var p model.Product
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Price, &p.SalePrice); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new product and returns the row as stored, including the generated ID.
func (r *ProductRepository) Create(ctx context.Context, product *model.Product) (*model.Product, error) {
	query := `INSERT INTO products (title, content, price, sale_price)
	          VALUES ($1, $2, $3, $4)
	          RETURNING ` + productColumns

	stmt, err := r.getExecutor().PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	created, err := scanProduct(stmt.QueryRowContext(ctx, product.Title, product.Content, product.Price, product.SalePrice))
	if err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == pqUniqueViolationErrCode {
			return nil, &repository.UniqueConstraintError{Detail: pgError.Detail}
		}
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}

	slog.Debug("product inserted", slog.Int64("product_id", created.ID))
	return created, nil
}

// List retrieves all products in insertion order.
func (r *ProductRepository) List(ctx context.Context) ([]*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY id`

	stmt, err := r.getExecutor().PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]*model.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}

// FindByID retrieves a single product by ID. Inside a transaction the row is locked
// until the transaction ends.
func (r *ProductRepository) FindByID(ctx context.Context, id int64) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if r.txn != nil {
		query += ` FOR UPDATE`
	}

	stmt, err := r.getExecutor().PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare select statement: %w", err)
	}
	defer stmt.Close()

	product, err := scanProduct(stmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return product, nil
}

// Update overwrites every mutable column of the product and returns the stored row.
func (r *ProductRepository) Update(ctx context.Context, product *model.Product) (*model.Product, error) {
	query := `UPDATE products SET title = $1, content = $2, price = $3, sale_price = $4
	          WHERE id = $5
	          RETURNING ` + productColumns

	stmt, err := r.getExecutor().PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare update statement: %w", err)
	}
	defer stmt.Close()

	updated, err := scanProduct(stmt.QueryRowContext(ctx, product.Title, product.Content, product.Price, product.SalePrice, product.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", product.ID, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	return updated, nil
}

// DeleteByID deletes a product by ID.
func (r *ProductRepository) DeleteByID(ctx context.Context, id int64) error {
	query := `DELETE FROM products WHERE id = $1`

	stmt, err := r.getExecutor().PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("product %d: %w", id, repository.ErrNotFound)
	}

	return nil
}
