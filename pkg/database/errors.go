package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("not found")

// StorageError means the destination store cannot safely accept further
// writes. Callers should stop ingesting when they see one.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PoolTimeoutError is returned when no pooled connection became available
// within the acquire timeout. It is retried internally and only surfaces
// wrapped in a StorageError once the attempts are exhausted.
type PoolTimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *PoolTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for a pooled connection (%s)", e.Timeout, e.Op)
}

// isRetryable reports whether err is transient: pool exhaustion, SQLite
// lock contention, or a PostgreSQL serialization/lock/capacity failure.
func isRetryable(err error) bool {
	var poolErr *PoolTimeoutError
	if errors.As(err, &poolErr) {
		return true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"53300": // too_many_connections
			return true
		}
	}

	return false
}

func storageError(op string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
