package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
)

// Repository is an open git repository
type Repository struct {
	repo *git2go.Repository
	path string
}

// Open opens the repository at path. The path must be the repository
// itself (a working tree or a bare directory); parent directories are not
// searched.
func Open(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, &RepositoryOpenError{Path: path, Err: err}
	}

	return &Repository{repo: repo, path: path}, nil
}

// Path returns the path the repository was opened from
func (r *Repository) Path() string {
	return r.path
}

// Name returns the repository's identity
func (r *Repository) Name() string {
	return RepositoryName(r.path)
}

// Free releases the repository resources
func (r *Repository) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// RepositoryName derives a repository's identity from its directory: the
// base name, without the .git suffix bare repositories usually carry.
func RepositoryName(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	name := filepath.Base(filepath.Clean(path))
	if trimmed := strings.TrimSuffix(name, ".git"); trimmed != "" {
		name = trimmed
	}
	return name
}

// Options controls which commits a walk visits
type Options struct {
	AuthorMap   AuthorMap
	FirstParent bool // follow first parents only
}

// Walk calls fn for every non-merge commit reachable from HEAD, newest
// first. Each commit is visited once. Other branches are not walked. A
// repository whose HEAD is unborn has no commits. Walk stops at the first
// error returned by fn and returns it unchanged.
func (r *Repository) Walk(ctx context.Context, opts Options, fn func(*Commit) error) error {
	walk, err := r.repo.Walk()
	if err != nil {
		return &ExtractionError{Path: r.path, Err: fmt.Errorf("create revwalk: %w", err)}
	}
	defer walk.Free()

	walk.Sorting(git2go.SortTopological | git2go.SortTime)
	if opts.FirstParent {
		walk.SimplifyFirstParent()
	}

	// Only a missing HEAD target means "no commits yet". A HEAD naming an
	// object that is not in the store is corruption.
	unborn, err := r.repo.IsHeadUnborn()
	if err != nil {
		return &ExtractionError{Path: r.path, Err: fmt.Errorf("resolve HEAD: %w", err)}
	}
	if unborn {
		return nil
	}
	if err := walk.PushHead(); err != nil {
		return &ExtractionError{Path: r.path, Err: fmt.Errorf("push revwalk start: %w", err)}
	}

	seen := make(map[string]struct{})
	oid := new(git2go.Oid)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := walk.Next(oid); err != nil {
			if git2go.IsErrorCode(err, git2go.ErrorCodeIterOver) {
				return nil
			}
			return &ExtractionError{Path: r.path, Err: fmt.Errorf("revwalk next: %w", err)}
		}

		hash := oid.String()
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}

		commit, err := r.readCommit(oid, opts.AuthorMap)
		if err != nil {
			return &ExtractionError{Path: r.path, Commit: hash, Err: err}
		}
		if commit == nil {
			continue
		}

		if err := fn(commit); err != nil {
			return err
		}
	}
}

// readCommit loads one commit and diffs it against its first parent. It
// returns nil for merge commits.
func (r *Repository) readCommit(oid *git2go.Oid, authors AuthorMap) (*Commit, error) {
	native, err := r.repo.LookupCommit(oid)
	if err != nil {
		return nil, fmt.Errorf("lookup commit: %w", err)
	}
	defer native.Free()

	if native.ParentCount() > 1 {
		return nil, nil
	}

	tree, err := native.Tree()
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}
	defer tree.Free()

	var (
		parentTree *git2go.Tree
		parentHash string
	)
	if native.ParentCount() == 1 {
		parent := native.Parent(0)
		if parent == nil {
			return nil, errors.New("parent commit is missing")
		}
		defer parent.Free()

		parentHash = parent.Id().String()
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("get parent tree: %w", err)
		}
		defer parentTree.Free()
	}

	stats, err := r.diff(parentTree, tree)
	if err != nil {
		return nil, err
	}

	author := native.Author()
	message := strings.TrimRight(native.Message(), "\n")

	return &Commit{
		Hash:         oid.String(),
		ParentHash:   parentHash,
		AuthorName:   authors.Resolve(author.Email, author.Name),
		AuthorEmail:  author.Email,
		Message:      message,
		Summary:      firstLine(message),
		When:         author.When,
		Insertions:   stats.insertions,
		Deletions:    stats.deletions,
		ChangedFiles: stats.paths,
	}, nil
}

func firstLine(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return strings.TrimRight(message[:i], "\r")
	}
	return message
}
