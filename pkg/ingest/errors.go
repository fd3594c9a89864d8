package ingest

import (
	"context"
	"errors"

	"github.com/mslinn/gitlogdb/pkg/database"
	"github.com/mslinn/gitlogdb/pkg/git"
)

// Error kinds reported in summaries and metrics
const (
	KindRepositoryOpen = "repository-open"
	KindExtraction     = "extraction"
	KindStorage        = "storage"
	KindPoolTimeout    = "pool-timeout"
	KindCanceled       = "canceled"
	KindUnknown        = "unknown"
)

// Kind maps err to its error kind. A storage error caused by pool
// exhaustion reports KindPoolTimeout. Anything caused by the run's context
// ending reports KindCanceled, whatever wraps it.
func Kind(err error) string {
	var (
		openErr    *git.RepositoryOpenError
		extractErr *git.ExtractionError
		poolErr    *database.PoolTimeoutError
		storageErr *database.StorageError
	)

	switch {
	case err == nil:
		return ""
	case isContextErr(err):
		return KindCanceled
	case errors.As(err, &poolErr):
		return KindPoolTimeout
	case errors.As(err, &storageErr):
		return KindStorage
	case errors.As(err, &openErr):
		return KindRepositoryOpen
	case errors.As(err, &extractErr):
		return KindExtraction
	default:
		return KindUnknown
	}
}

// IsFatal reports whether err means the destination store can no longer
// accept writes. An interrupted write is not a store failure.
func IsFatal(err error) bool {
	var storageErr *database.StorageError
	return errors.As(err, &storageErr) && !isContextErr(err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// RepoError is one repository that could not be ingested
type RepoError struct {
	Path string
	Kind string
	Err  error
}

func (e RepoError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e RepoError) Unwrap() error {
	return e.Err
}
