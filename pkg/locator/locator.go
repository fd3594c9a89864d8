package locator

import (
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options controls how far the locator looks for repositories
type Options struct {
	Recursive bool     // walk below the direct children of the root
	MaxDepth  int      // levels below the root to visit when Recursive; values < 1 mean 1
	Ignored   []string // directory base names to skip along with their subtrees
	Logger    *slog.Logger
}

// Result is the outcome of one full walk
type Result struct {
	Repositories []string
	Ignored      []string // base names matched by the ignore list
	Unreadable   []string // directories that could not be listed
}

// Locator finds git repositories under a root directory
type Locator struct {
	root      string
	recursive bool
	maxDepth  int
	ignored  map[string]struct{}
	logger   *slog.Logger
}

// New creates a Locator for root
func New(root string, opts Options) *Locator {
	maxDepth := opts.MaxDepth
	if !opts.Recursive || maxDepth < 1 {
		maxDepth = 1
	}

	ignored := make(map[string]struct{}, len(opts.Ignored))
	for _, name := range opts.Ignored {
		ignored[name] = struct{}{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Locator{
		root:      filepath.Clean(root),
		recursive: opts.Recursive,
		maxDepth:  maxDepth,
		ignored:   ignored,
		logger:    logger,
	}
}

// Repositories yields repository paths in lexical depth-first order. With
// Recursive a root that is a repository comes first. The filesystem is
// walked again on every iteration.
func (l *Locator) Repositories() iter.Seq[string] {
	return func(yield func(string) bool) {
		l.walk(nil, yield)
	}
}

// Locate walks the whole tree and returns what it found. It fails only when
// the root itself cannot be read.
func (l *Locator) Locate() (*Result, error) {
	info, err := os.Stat(l.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", l.root)
	}

	result := &Result{}
	err = l.walk(result, func(path string) bool {
		result.Repositories = append(result.Repositories, path)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", l.root, err)
	}

	return result, nil
}

func (l *Locator) walk(result *Result, yield func(string) bool) error {
	return filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == l.root {
				return err
			}
			l.logger.Warn("skipping unreadable directory", "path", path, "error", err)
			if result != nil {
				result.Unreadable = append(result.Unreadable, path)
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		// Without Recursive only the direct children are candidates, even
		// when the root is a repository itself
		if path == l.root {
			if !IsRepository(path) {
				return nil
			}
			if l.recursive && !yield(path) {
				return filepath.SkipAll
			}
			if !hasGitEntry(path) {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if name == ".git" {
			return filepath.SkipDir
		}
		if _, ok := l.ignored[name]; ok {
			l.logger.Debug("ignoring directory", "path", path)
			if result != nil {
				result.Ignored = append(result.Ignored, name)
			}
			return filepath.SkipDir
		}

		if hasGitEntry(path) {
			if !yield(path) {
				return filepath.SkipAll
			}
		} else if isBare(path) {
			if !yield(path) {
				return filepath.SkipAll
			}
			// The object store of a bare repository holds no repositories
			return filepath.SkipDir
		}

		if l.depth(path) >= l.maxDepth {
			return filepath.SkipDir
		}
		return nil
	})
}

func (l *Locator) depth(path string) int {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return l.maxDepth
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// IsRepository reports whether dir is the top of a git repository: a
// working tree with a .git entry or a bare repository.
func IsRepository(dir string) bool {
	return hasGitEntry(dir) || isBare(dir)
}

// hasGitEntry accepts both a .git directory and a gitdir file, as used by
// worktrees and submodules
func hasGitEntry(dir string) bool {
	_, err := os.Lstat(filepath.Join(dir, ".git"))
	return err == nil
}

func isBare(dir string) bool {
	head, err := os.Stat(filepath.Join(dir, "HEAD"))
	if err != nil || !head.Mode().IsRegular() {
		return false
	}
	for _, sub := range []string{"objects", "refs"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}
