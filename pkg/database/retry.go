package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// withRetry runs fn up to MaxAttempts times while it fails with a transient
// error, sleeping RetryDelay*n between attempts. Permanent errors and
// exhausted attempts are returned as a StorageError. Once ctx is done its
// error is returned as is: cancellation says nothing about the store.
func (db *DB) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= db.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			db.logger.Warn("retrying database operation",
				"op", op, "attempt", attempt, "max_attempts", db.opts.MaxAttempts, "error", lastErr)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(db.opts.RetryDelay * time.Duration(attempt-1)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !isRetryable(err) {
			return storageError(op, err)
		}
		lastErr = err
	}

	return storageError(op, fmt.Errorf("failed after %d attempts: %w", db.opts.MaxAttempts, lastErr))
}

// acquire takes a connection from the pool, giving up after AcquireTimeout.
func (db *DB) acquire(ctx context.Context, op string) (*sql.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, db.opts.AcquireTimeout)
	defer cancel()

	conn, err := db.conn.Conn(acquireCtx)
	if err != nil {
		if ctx.Err() == nil && acquireCtx.Err() == context.DeadlineExceeded {
			return nil, &PoolTimeoutError{Op: op, Timeout: db.opts.AcquireTimeout}
		}
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	return conn, nil
}

// withConn runs fn on a dedicated pooled connection, retrying transient
// failures.
func (db *DB) withConn(ctx context.Context, op string, fn func(conn *sql.Conn) error) error {
	return db.withRetry(ctx, op, func() error {
		conn, err := db.acquire(ctx, op)
		if err != nil {
			return err
		}
		defer conn.Close()

		return fn(conn)
	})
}
