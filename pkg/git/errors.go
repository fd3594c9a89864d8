package git

import "fmt"

// RepositoryOpenError means the path is not a readable git repository.
// The repository should be skipped; the run continues.
type RepositoryOpenError struct {
	Path string
	Err  error
}

func (e *RepositoryOpenError) Error() string {
	return fmt.Sprintf("failed to open repository %s: %v", e.Path, e.Err)
}

func (e *RepositoryOpenError) Unwrap() error {
	return e.Err
}

// ExtractionError means history could not be read past some point, for
// example a corrupt object or an unreadable tree. Commits already handed
// to the caller remain valid.
type ExtractionError struct {
	Path   string
	Commit string // empty when the failure is not tied to one commit
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Commit == "" {
		return fmt.Sprintf("failed to read history of %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to read commit %s in %s: %v", e.Commit, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
