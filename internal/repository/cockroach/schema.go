// Package cockroach stores groups, direct conversations and users in CockroachDB.
package cockroach

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/metrics"
)

const backend = "cockroach"

//go:embed schema.sql
var schema string

// Migrate creates the tables when they do not exist
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// isRetryable reports a serialization conflict the transaction may be replayed after
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

// observe records one store call and classifies its error
func observe(m *metrics.Metrics, op string, start time.Time, err error) error {
	m.RecordStoreOp(backend, op, time.Since(start), err)
	if err == nil || apperrors.IsAppError(err) {
		return err
	}
	return apperrors.TransientError(op, err)
}
