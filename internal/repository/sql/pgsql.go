package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/iyhunko/products-crud/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pqUniqueViolationErrCode = "23505" // PostgreSQL unique violation error code. See https://www.postgresql.org/docs/14/errcodes-appendix.html
)

// StartDB opens the database connection and applies pending migrations.
func StartDB(ctx context.Context, dbConf config.DB) (*sql.DB, error) {
	dbCon, err := startDBConnection(ctx, dbConf)
	if err != nil {
		slog.Error("failed to initialize DB connection", slog.Any("err", err))
		return nil, fmt.Errorf("failed to initialize DB connection: %w", err)
	}
	slog.Info("DB connection done")
	if err = RunMigrations(dbCon, dbConf.MigrationsDir); err != nil {
		slog.Error("failed to run migrations", slog.Any("err", err))
		dbCon.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("DB migration done", slog.String("dir", dbConf.MigrationsDir))
	return dbCon, nil
}

// DSN renders the key/value connection string understood by pgx.
func DSN(conf config.DB) string {
	dsnTmp := "host=%s user=%s password=%s dbname=%s port=%s sslmode=disable"
	return fmt.Sprintf(dsnTmp, conf.Host, conf.User, conf.Password, conf.Name, conf.Port)
}

func startDBConnection(ctx context.Context, conf config.DB) (*sql.DB, error) {
	db, err := sql.Open("pgx", DSN(conf))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// RunMigrations applies all up migrations found in dir.
func RunMigrations(db *sql.DB, dir string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+dir,
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
