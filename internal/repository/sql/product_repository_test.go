package sql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/iyhunko/products-crud/internal/model"
	"github.com/iyhunko/products-crud/internal/repository"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var productRowColumns = []string{"id", "title", "content", "price", "sale_price"}

func TestProductRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewProductRepository(db)
	ctx := context.Background()

	t.Run("successful creation returns stored row", func(t *testing.T) {
		product := &model.Product{
			Title:   "Book",
			Content: model.DefaultContent,
			Price:   decimal.RequireFromString("32.5"),
		}

		mock.ExpectPrepare("INSERT INTO products \\(title, content, price, sale_price\\)").
			ExpectQuery().
			WithArgs("Book", model.DefaultContent, product.Price, nil).
			WillReturnRows(sqlmock.NewRows(productRowColumns).
				AddRow(int64(1), "Book", model.DefaultContent, "32.50", nil))

		created, err := repo.Create(ctx, product)
		require.NoError(t, err)

		assert.Equal(t, int64(1), created.ID)
		assert.Equal(t, "Book", created.Title)
		assert.Equal(t, model.DefaultContent, created.Content)
		assert.True(t, created.Price.Equal(decimal.RequireFromString("32.5")))
		assert.False(t, created.SalePrice.Valid)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sale price is passed through", func(t *testing.T) {
		product := &model.Product{
			Title:     "Lamp",
			Content:   "desk lamp",
			Price:     decimal.RequireFromString("19.99"),
			SalePrice: decimal.NewNullDecimal(decimal.RequireFromString("14.99")),
		}

		mock.ExpectPrepare("INSERT INTO products").
			ExpectQuery().
			WithArgs("Lamp", "desk lamp", product.Price, "14.99").
			WillReturnRows(sqlmock.NewRows(productRowColumns).
				AddRow(int64(2), "Lamp", "desk lamp", "19.99", "14.99"))

		created, err := repo.Create(ctx, product)
		require.NoError(t, err)

		require.True(t, created.SalePrice.Valid)
		assert.Equal(t, "14.99", created.SalePrice.Decimal.String())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation is mapped", func(t *testing.T) {
		mock.ExpectPrepare("INSERT INTO products").
			ExpectQuery().
			WillReturnError(&pgconn.PgError{Code: pqUniqueViolationErrCode, Detail: "Key (id)=(1) already exists."})

		_, err := repo.Create(ctx, &model.Product{Title: "Dup", Content: "x", Price: decimal.NewFromInt(1)})
		require.Error(t, err)

		var uniqueErr *repository.UniqueConstraintError
		require.True(t, errors.As(err, &uniqueErr))
		assert.Contains(t, uniqueErr.Error(), "already exists")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProductRepository_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewProductRepository(db)
	ctx := context.Background()

	t.Run("successful find", func(t *testing.T) {
		rows := sqlmock.NewRows(productRowColumns).
			AddRow(int64(7), "Book", "paperback", "32.50", "30.00")

		mock.ExpectPrepare("SELECT id, title, content, price, sale_price FROM products WHERE id = \\$1$").
			ExpectQuery().
			WithArgs(int64(7)).
			WillReturnRows(rows)

		found, err := repo.FindByID(ctx, 7)
		require.NoError(t, err)

		assert.Equal(t, int64(7), found.ID)
		assert.Equal(t, "Book", found.Title)
		assert.Equal(t, "paperback", found.Content)
		assert.Equal(t, "32.5", found.Price.String())
		assert.Equal(t, "30", found.SalePrice.Decimal.String())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("product not found", func(t *testing.T) {
		mock.ExpectPrepare("SELECT (.+) FROM products WHERE id = \\$1").
			ExpectQuery().
			WithArgs(int64(404)).
			WillReturnError(sql.ErrNoRows)

		found, err := repo.FindByID(ctx, 404)
		require.Error(t, err)
		assert.Nil(t, found)
		assert.True(t, errors.Is(err, repository.ErrNotFound))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure is wrapped", func(t *testing.T) {
		mock.ExpectPrepare("SELECT (.+) FROM products WHERE id = \\$1").
			ExpectQuery().
			WithArgs(int64(1)).
			WillReturnError(sql.ErrConnDone)

		_, err := repo.FindByID(ctx, 1)
		require.Error(t, err)
		assert.False(t, errors.Is(err, repository.ErrNotFound))
		assert.Contains(t, err.Error(), "failed to query product")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProductRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewProductRepository(db)
	ctx := context.Background()

	t.Run("lists in insertion order", func(t *testing.T) {
		rows := sqlmock.NewRows(productRowColumns).
			AddRow(int64(1), "Product 1", "no content", "10.00", nil).
			AddRow(int64(2), "Product 2", "Description 2", "149.99", "99.99")

		mock.ExpectPrepare("SELECT (.+) FROM products ORDER BY id").
			ExpectQuery().
			WillReturnRows(rows)

		result, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, result, 2)
		assert.Equal(t, int64(1), result[0].ID)
		assert.Equal(t, int64(2), result[1].ID)
		assert.True(t, result[1].SalePrice.Valid)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty store yields empty slice", func(t *testing.T) {
		mock.ExpectPrepare("SELECT (.+) FROM products ORDER BY id").
			ExpectQuery().
			WillReturnRows(sqlmock.NewRows(productRowColumns))

		result, err := repo.List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, result)
		assert.Empty(t, result)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProductRepository_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewProductRepository(db)
	ctx := context.Background()

	t.Run("successful update", func(t *testing.T) {
		product := &model.Product{
			ID:      3,
			Title:   "Renamed",
			Content: "updated",
			Price:   decimal.RequireFromString("5.25"),
		}

		mock.ExpectPrepare("UPDATE products SET title = \\$1, content = \\$2, price = \\$3, sale_price = \\$4").
			ExpectQuery().
			WithArgs("Renamed", "updated", product.Price, nil, int64(3)).
			WillReturnRows(sqlmock.NewRows(productRowColumns).
				AddRow(int64(3), "Renamed", "updated", "5.25", nil))

		updated, err := repo.Update(ctx, product)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Title)
		assert.Equal(t, "5.25", updated.Price.String())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row is not found", func(t *testing.T) {
		mock.ExpectPrepare("UPDATE products").
			ExpectQuery().
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Update(ctx, &model.Product{ID: 9, Title: "x", Content: "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, repository.ErrNotFound))

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProductRepository_DeleteByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewProductRepository(db)
	ctx := context.Background()

	t.Run("successful delete", func(t *testing.T) {
		mock.ExpectPrepare("DELETE FROM products WHERE id").
			ExpectExec().
			WithArgs(int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.DeleteByID(ctx, 5)
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("product not found", func(t *testing.T) {
		mock.ExpectPrepare("DELETE FROM products WHERE id").
			ExpectExec().
			WithArgs(int64(6)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.DeleteByID(ctx, 6)
		require.Error(t, err)
		assert.True(t, errors.Is(err, repository.ErrNotFound))

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
