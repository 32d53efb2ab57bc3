package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/vigil/internal/config"
	"github.com/BradenHooton/vigil/migrations"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Migrate applies the embedded goose migrations through a short-lived database/sql handle.
func Migrate(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) error {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("unable to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	return MigrateDB(ctx, sqlDB, logger)
}

// MigrateDB applies the embedded migrations to an open handle.
func MigrateDB(ctx context.Context, sqlDB *sql.DB, logger *slog.Logger) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("unable to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("unable to read migration version: %w", err)
	}
	logger.Info("database migrations applied", slog.Int64("version", version))

	return nil
}
