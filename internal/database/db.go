package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/vigil/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories care about.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeStringTruncation    = "22001"
)

// MapPostgresError converts driver errors into model sentinels. Anything it
// does not recognise is returned unchanged.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		return models.ErrConflict
	case codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation, codeStringTruncation:
		// oversized paths or user agents from the edge land here
		return fmt.Errorf("%w: %s", models.ErrBadRequest, pgErr.ConstraintName)
	}
	return err
}

// WithTransaction runs fn in a transaction, committing when it returns nil.
// A panic inside fn rolls back and is re-raised.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
