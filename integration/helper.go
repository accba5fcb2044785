//go:build integration

package integration

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iyhunko/products-crud/internal/config"
	httpAPI "github.com/iyhunko/products-crud/internal/http"
	"github.com/iyhunko/products-crud/internal/http/controller"
	reposql "github.com/iyhunko/products-crud/internal/repository/sql"
	"github.com/iyhunko/products-crud/internal/service"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

// TestDB holds the test database connection and cleanup function
type TestDB struct {
	DB       *sql.DB
	Pool     *dockertest.Pool
	Resource *dockertest.Resource
}

// SetupTestDB sets up a PostgreSQL container using dockertest and runs migrations
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	// Create dockertest pool
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("Could not connect to docker: %s", err)
	}

	// Set max wait time for Docker operations
	pool.MaxWait = 120 * time.Second

	// Pull and run PostgreSQL container
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16",
		Env: []string{
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_USER=testuser",
			"POSTGRES_DB=testdb",
			"listen_addresses='*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("Could not start resource: %s", err)
	}

	// Set container to expire after 2 minutes to avoid orphaned containers
	if err := resource.Expire(120); err != nil {
		t.Fatalf("Could not set expiration: %s", err)
	}

	hostAndPort := resource.GetHostPort("5432/tcp")
	databaseURL := fmt.Sprintf("postgres://testuser:secret@%s/testdb?sslmode=disable", hostAndPort)

	log.Println("Connecting to database on url: ", databaseURL)

	// Wait for database to be ready
	var db *sql.DB
	if err = pool.Retry(func() error {
		var err error
		db, err = sql.Open("postgres", databaseURL)
		if err != nil {
			return err
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("Could not connect to docker: %s", err)
	}

	// Get the migrations path - go up from integration folder to root
	migrationsPath := "../migrations"
	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		t.Fatalf("Migrations directory not found: %s", migrationsPath)
	}

	if err := reposql.RunMigrations(db, migrationsPath); err != nil {
		t.Fatalf("Could not run migrations: %s", err)
	}

	return &TestDB{
		DB:       db,
		Pool:     pool,
		Resource: resource,
	}
}

// Cleanup closes the database connection and purges the Docker container
func (tdb *TestDB) Cleanup(t *testing.T) {
	t.Helper()

	if tdb.DB != nil {
		if err := tdb.DB.Close(); err != nil {
			t.Errorf("Could not close database: %s", err)
		}
	}

	if tdb.Pool != nil && tdb.Resource != nil {
		if err := tdb.Pool.Purge(tdb.Resource); err != nil {
			t.Errorf("Could not purge resource: %s", err)
		}
	}
}

// TruncateTables empties every table and restarts product ids at 1.
func (tdb *TestDB) TruncateTables(t *testing.T) {
	t.Helper()

	ctx := context.Background()
	if _, err := tdb.DB.ExecContext(ctx, "TRUNCATE TABLE events, products RESTART IDENTITY CASCADE"); err != nil {
		t.Fatalf("Could not truncate tables: %s", err)
	}
}

// CountEvents returns the number of outbox events of the given type.
func (tdb *TestDB) CountEvents(t *testing.T, eventType string) int {
	t.Helper()

	var n int
	err := tdb.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM events WHERE event_type = $1", eventType).Scan(&n)
	if err != nil {
		t.Fatalf("Could not count events: %s", err)
	}
	return n
}

// NewRouter wires the product API on top of the test database.
func NewRouter(tdb *TestDB) *gin.Engine {
	gin.SetMode(gin.TestMode)

	productRepo := reposql.NewProductRepository(tdb.DB)
	txRepo := reposql.NewTransactionalRepository(tdb.DB)
	productService := service.NewProductService(productRepo, txRepo)

	router := gin.New()
	ctr := controller.New(&config.Config{}, tdb.DB)
	productCtr := controller.NewProductController(productService)
	return httpAPI.InitRouter(router, ctr, productCtr)
}

// Do sends a JSON request through the router.
func Do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
