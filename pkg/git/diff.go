package git

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

type diffStats struct {
	insertions int
	deletions  int
	paths      []string
}

// diff compares two trees. A nil oldTree diffs against the empty tree.
// Submodules are ignored, type changes are reported, and renames and
// copies are detected on exact content matches only.
func (r *Repository) diff(oldTree, newTree *git2go.Tree) (*diffStats, error) {
	opts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return nil, fmt.Errorf("get diff options: %w", err)
	}
	opts.Flags |= git2go.DiffIncludeTypeChange | git2go.DiffDisablePathspecMatch
	opts.IgnoreSubmodules = git2go.SubmoduleIgnoreAll

	diff, err := r.repo.DiffTreeToTree(oldTree, newTree, &opts)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}
	defer diff.Free()

	findOpts, err := git2go.DefaultDiffFindOptions()
	if err != nil {
		return nil, fmt.Errorf("get find options: %w", err)
	}
	findOpts.Flags = git2go.DiffFindRenames | git2go.DiffFindCopies | git2go.DiffFindExactMatchOnly

	if err := diff.FindSimilar(&findOpts); err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}

	stats, err := diff.Stats()
	if err != nil {
		return nil, fmt.Errorf("get diff stats: %w", err)
	}
	defer stats.Free()

	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return nil, fmt.Errorf("get num deltas: %w", err)
	}

	result := &diffStats{
		insertions: stats.Insertions(),
		deletions:  stats.Deletions(),
		paths:      make([]string, 0, numDeltas),
	}

	seen := make(map[string]struct{}, numDeltas)
	for i := range numDeltas {
		delta, err := diff.Delta(i)
		if err != nil {
			return nil, fmt.Errorf("get delta: %w", err)
		}

		// Deleted files keep their path on the new side too
		path := delta.NewFile.Path
		if path == "" {
			path = delta.OldFile.Path
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		result.paths = append(result.paths, path)
	}

	return result, nil
}
