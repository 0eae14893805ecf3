package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

func newBackoff() retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= len(retryDelays) {
			return 0, true
		}
		d := retryDelays[attempt]
		attempt++
		return d, false
	})
}

// withRetry повторяет fn с задержками 1с, 3с, 5с, пока isRetryable признаёт ошибку временной.
func withRetry(ctx context.Context, isRetryable func(error) bool, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, newBackoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return withRetry(ctx, isRetryablePgError, fn)
}

func isRetryablePgError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.ConnectionException,
			pgerrcode.ConnectionDoesNotExist,
			pgerrcode.ConnectionFailure:
			return true
		}
		return false
	}

	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

func isRetryableSQLiteError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
