//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/vigil/internal/database"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/BradenHooton/vigil/internal/repositories"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("vigil"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Goose needs a database/sql handle; reuse the pool's config through the pgx stdlib adapter
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	err = database.MigrateDB(ctx, sqlDB, quietLogger())
	sqlDB.Close()
	if err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         database.NewFromPool(pool, quietLogger()),
	}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates data tables and resets the admin settings row
func (db *TestDB) CleanupTables(ctx context.Context) error {
	for _, table := range []string{"visitors", "sessions", "alerts", "daily_digests"} {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	_, err := db.Pool.Exec(ctx, `
		UPDATE admin_settings SET
			password_hash = NULL,
			password_history = '{}',
			last_password_change = NULL,
			two_factor_secret = NULL,
			two_factor_secret_nonce = NULL,
			two_factor_enabled = FALSE,
			backup_codes = '[]'::jsonb
	`)
	if err != nil {
		return fmt.Errorf("failed to reset admin settings: %w", err)
	}
	return nil
}

// Repositories bundles every repository over one database wrapper
type Repositories struct {
	Visitors *repositories.VisitorRepository
	Sessions *repositories.SessionRepository
	Alerts   *repositories.AlertRepository
	Digests  *repositories.DigestRepository
	Settings *repositories.AdminSettingsRepository
}

func InitializeRepositories(db *database.DB) Repositories {
	return Repositories{
		Visitors: repositories.NewVisitorRepository(db),
		Sessions: repositories.NewSessionRepository(db),
		Alerts:   repositories.NewAlertRepository(db),
		Digests:  repositories.NewDigestRepository(db),
		Settings: repositories.NewAdminSettingsRepository(db),
	}
}

// SeedVisitor inserts a visitor row at the given time
func SeedVisitor(ctx context.Context, repo *repositories.VisitorRepository, sessionID, ipHash, path string, at time.Time, isBot bool) (*models.Visitor, error) {
	v := &models.Visitor{
		SessionID: sessionID,
		IPHash:    ipHash,
		UAHash:    "ua-" + sessionID,
		Path:      path,
		Method:    "GET",
		Device:    "desktop",
		IsBot:     isBot,
		CreatedAt: at,
	}
	if err := repo.Insert(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to seed visitor: %w", err)
	}
	return v, nil
}
