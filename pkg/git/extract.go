package git

import "context"

// Extractor reads commit history out of repositories on disk. The zero
// value walks HEAD with no author normalization.
type Extractor struct {
	Options Options
}

// NewExtractor returns an Extractor that normalizes author names with
// authors
func NewExtractor(authors map[string]string, firstParent bool) *Extractor {
	return &Extractor{Options: Options{
		AuthorMap:   NewAuthorMap(authors),
		FirstParent: firstParent,
	}}
}

// Extract opens the repository at path and streams its commits to fn.
// It returns a *RepositoryOpenError when path cannot be opened and an
// *ExtractionError when history cannot be read.
func (e *Extractor) Extract(ctx context.Context, path string, fn func(*Commit) error) error {
	repo, err := Open(path)
	if err != nil {
		return err
	}
	defer repo.Free()

	return repo.Walk(ctx, e.Options, fn)
}

// Extract returns every non-merge commit of the repository at path
func Extract(ctx context.Context, path string, authors AuthorMap) ([]*Commit, error) {
	e := &Extractor{Options: Options{AuthorMap: authors}}

	var commits []*Commit
	err := e.Extract(ctx, path, func(c *Commit) error {
		commits = append(commits, c)
		return nil
	})
	return commits, err
}
