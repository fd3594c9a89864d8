package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRepo is a scratch repository for building histories
type testRepo struct {
	t      *testing.T
	path   string
	native *git2go.Repository
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()

	dir := t.TempDir()
	repo, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)
	t.Cleanup(repo.Free)

	return &testRepo{t: t, path: dir, native: repo}
}

func (tr *testRepo) writeFile(name, content string) {
	tr.t.Helper()

	path := filepath.Join(tr.path, name)
	require.NoError(tr.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tr.t, os.WriteFile(path, []byte(content), 0o644))
}

func (tr *testRepo) removeFile(name string) {
	tr.t.Helper()

	require.NoError(tr.t, os.Remove(filepath.Join(tr.path, name)))
}

func signature(name, email string, when time.Time) *git2go.Signature {
	return &git2go.Signature{Name: name, Email: email, When: when}
}

func defaultSig() *git2go.Signature {
	return signature("Test User", "test@example.com", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
}

// commit stages the working tree and commits it on HEAD
func (tr *testRepo) commit(message string, sig *git2go.Signature) *git2go.Oid {
	tr.t.Helper()

	var parents []*git2go.Oid
	if head, err := tr.native.Head(); err == nil {
		parents = append(parents, head.Target())
		head.Free()
	}

	return tr.commitWithParents("HEAD", message, sig, parents...)
}

// commitWithParents stages the working tree and creates a commit with the
// given parents. An empty ref leaves every reference untouched.
func (tr *testRepo) commitWithParents(ref, message string, sig *git2go.Signature, parents ...*git2go.Oid) *git2go.Oid {
	tr.t.Helper()

	index, err := tr.native.Index()
	require.NoError(tr.t, err)
	defer index.Free()

	require.NoError(tr.t, index.AddAll([]string{"*"}, git2go.IndexAddDefault, nil))
	require.NoError(tr.t, index.UpdateAll([]string{"*"}, nil))
	require.NoError(tr.t, index.Write())

	treeID, err := index.WriteTree()
	require.NoError(tr.t, err)

	tree, err := tr.native.LookupTree(treeID)
	require.NoError(tr.t, err)
	defer tree.Free()

	var commits []*git2go.Commit
	for _, p := range parents {
		c, err := tr.native.LookupCommit(p)
		require.NoError(tr.t, err)
		commits = append(commits, c)
	}
	defer func() {
		for _, c := range commits {
			c.Free()
		}
	}()

	oid, err := tr.native.CreateCommit(ref, sig, sig, message, tree, commits...)
	require.NoError(tr.t, err)

	return oid
}

func (tr *testRepo) createBranch(name string, target *git2go.Oid) {
	tr.t.Helper()

	ref, err := tr.native.References.Create("refs/heads/"+name, target, true, "")
	require.NoError(tr.t, err)
	ref.Free()
}

func extractAll(t *testing.T, path string, opts Options) []*Commit {
	t.Helper()

	e := &Extractor{Options: opts}
	var commits []*Commit
	err := e.Extract(context.Background(), path, func(c *Commit) error {
		commits = append(commits, c)
		return nil
	})
	require.NoError(t, err)

	return commits
}

func hashes(commits []*Commit) []string {
	out := make([]string, len(commits))
	for i, c := range commits {
		out[i] = c.Hash
	}
	return out
}

func TestExtractLinearHistory(t *testing.T) {
	tr := newTestRepo(t)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tr.writeFile("a.txt", "one\ntwo\n")
	first := tr.commit("add a\n", signature("Test User", "test@example.com", base))

	tr.writeFile("a.txt", "one\nTWO\nthree\n")
	second := tr.commit("edit a\n\nlonger body\n", signature("Test User", "test@example.com", base.Add(time.Hour)))

	tr.removeFile("a.txt")
	third := tr.commit("remove a", signature("Test User", "test@example.com", base.Add(2*time.Hour)))

	commits := extractAll(t, tr.path, Options{})
	require.Len(t, commits, 3)
	assert.Equal(t, []string{third.String(), second.String(), first.String()}, hashes(commits))

	root := commits[2]
	assert.True(t, root.IsRoot())
	assert.Equal(t, "", root.ParentHash)
	assert.Equal(t, 2, root.Insertions)
	assert.Equal(t, 0, root.Deletions)
	assert.Equal(t, []string{"a.txt"}, root.ChangedFiles)
	assert.Equal(t, "add a", root.Message)

	edit := commits[1]
	assert.Equal(t, first.String(), edit.ParentHash)
	assert.Equal(t, 2, edit.Insertions)
	assert.Equal(t, 1, edit.Deletions)
	assert.Equal(t, "edit a\n\nlonger body", edit.Message)
	assert.Equal(t, "edit a", edit.Summary)

	removal := commits[0]
	assert.Equal(t, 0, removal.Insertions)
	assert.Equal(t, 3, removal.Deletions)
	assert.Equal(t, []string{"a.txt"}, removal.ChangedFiles)
}

func TestExtractSkipsMergeCommits(t *testing.T) {
	tr := newTestRepo(t)

	tr.writeFile("a.txt", "a\n")
	base := tr.commit("base", defaultSig())

	tr.writeFile("side.txt", "side\n")
	side := tr.commitWithParents("", "side work", defaultSig(), base)

	tr.writeFile("main.txt", "main\n")
	mainline := tr.commitWithParents("HEAD", "main work", defaultSig(), base)

	merge := tr.commitWithParents("HEAD", "merge side", defaultSig(), mainline, side)

	commits := extractAll(t, tr.path, Options{})
	got := hashes(commits)
	assert.Len(t, got, 3)
	assert.NotContains(t, got, merge.String())
	assert.Contains(t, got, side.String())
	assert.Contains(t, got, mainline.String())
	assert.Contains(t, got, base.String())

	for _, c := range commits {
		if c.Hash == side.String() {
			assert.Equal(t, base.String(), c.ParentHash)
			assert.Equal(t, []string{"side.txt"}, c.ChangedFiles)
		}
	}

	firstParent := extractAll(t, tr.path, Options{FirstParent: true})
	assert.ElementsMatch(t, []string{mainline.String(), base.String()}, hashes(firstParent))
}

func TestExtractWalksHeadOnly(t *testing.T) {
	tr := newTestRepo(t)

	tr.writeFile("a.txt", "a\n")
	base := tr.commit("base", defaultSig())

	tr.writeFile("b.txt", "b\n")
	branchOnly := tr.commitWithParents("", "unmerged", defaultSig(), base)
	tr.createBranch("feature", branchOnly)

	commits := extractAll(t, tr.path, Options{})
	assert.Equal(t, []string{base.String()}, hashes(commits))
}

func TestExtractExactRename(t *testing.T) {
	tr := newTestRepo(t)

	tr.writeFile("old.txt", "content\n")
	tr.commit("add", defaultSig())

	tr.removeFile("old.txt")
	tr.writeFile("new.txt", "content\n")
	tr.commit("rename", defaultSig())

	commits := extractAll(t, tr.path, Options{})
	require.Len(t, commits, 2)

	rename := commits[0]
	assert.Equal(t, []string{"new.txt"}, rename.ChangedFiles)
	assert.Equal(t, 0, rename.Insertions)
	assert.Equal(t, 0, rename.Deletions)
}

func TestExtractAuthorMapAndTimezone(t *testing.T) {
	tr := newTestRepo(t)

	when := time.Date(2023, 7, 14, 9, 30, 0, 0, time.FixedZone("", -5*3600))
	tr.writeFile("a.txt", "a\n")
	tr.commit("mapped", signature("asmith", "Alice@Example.com", when))

	tr.writeFile("b.txt", "b\n")
	tr.commit("unmapped", signature("Bob", "bob@example.com", when))

	authors := NewAuthorMap(map[string]string{"alice@example.com": "Alice Smith"})
	commits, err := Extract(context.Background(), tr.path, authors)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	assert.Equal(t, "Bob", commits[0].AuthorName)
	assert.Equal(t, "Alice Smith", commits[1].AuthorName)
	assert.Equal(t, "Alice@Example.com", commits[1].AuthorEmail)

	assert.True(t, when.Equal(commits[1].When))
	_, offset := commits[1].When.Zone()
	assert.Equal(t, -5*3600, offset)
}

func TestExtractEmptyRepository(t *testing.T) {
	tr := newTestRepo(t)

	assert.Empty(t, extractAll(t, tr.path, Options{}))
	assert.Empty(t, extractAll(t, tr.path, Options{FirstParent: true}))
}

// corruptHead points the branch HEAD refers to at an object that does not
// exist
func (tr *testRepo) corruptHead() {
	tr.t.Helper()

	head, err := os.ReadFile(filepath.Join(tr.path, ".git", "HEAD"))
	require.NoError(tr.t, err)
	ref := strings.TrimSpace(strings.TrimPrefix(string(head), "ref:"))
	require.True(tr.t, strings.HasPrefix(ref, "refs/heads/"), "HEAD is %q", head)

	path := filepath.Join(tr.path, ".git", filepath.FromSlash(ref))
	require.NoError(tr.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tr.t, os.WriteFile(path, []byte(strings.Repeat("ab", 20)+"\n"), 0o644))
}

func TestExtractMissingHeadObjectIsExtractionError(t *testing.T) {
	tr := newTestRepo(t)
	tr.corruptHead()

	calls := 0
	err := (&Extractor{}).Extract(context.Background(), tr.path, func(*Commit) error {
		calls++
		return nil
	})
	require.Error(t, err)

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, tr.path, extractErr.Path)
	assert.Zero(t, calls)
}

func TestExtractStopsOnCallbackError(t *testing.T) {
	tr := newTestRepo(t)
	for _, name := range []string{"a", "b", "c"} {
		tr.writeFile(name, name)
		tr.commit(name, defaultSig())
	}

	stop := errors.New("stop")
	calls := 0
	err := (&Extractor{}).Extract(context.Background(), tr.path, func(*Commit) error {
		calls++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestExtractHonorsCancellation(t *testing.T) {
	tr := newTestRepo(t)
	tr.writeFile("a", "a")
	tr.commit("a", defaultSig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := (&Extractor{}).Extract(ctx, tr.path, func(*Commit) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenNotARepository(t *testing.T) {
	_, err := Open(t.TempDir())
	require.Error(t, err)

	var openErr *RepositoryOpenError
	assert.ErrorAs(t, err, &openErr)

	err = (&Extractor{}).Extract(context.Background(), t.TempDir(), func(*Commit) error { return nil })
	assert.ErrorAs(t, err, &openErr)
}

func TestOpenBareRepository(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "service.git")
	native, err := git2go.InitRepository(dir, true)
	require.NoError(t, err)
	native.Free()

	repo, err := Open(dir)
	require.NoError(t, err)
	defer repo.Free()

	assert.Equal(t, "service", repo.Name())
}

func TestRepositoryName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/src/project", "project"},
		{"/src/project/", "project"},
		{"/src/project.git", "project"},
		{"/src/.git", ".git"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, RepositoryName(tt.path))
		})
	}
}

func TestAuthorMapResolve(t *testing.T) {
	m := NewAuthorMap(map[string]string{" Dev@Corp.com ": "Dev Name", "blank@corp.com": ""})

	assert.Equal(t, "Dev Name", m.Resolve("dev@corp.com", "dev"))
	assert.Equal(t, "Dev Name", m.Resolve("DEV@CORP.COM", "dev"))
	assert.Equal(t, "blank", m.Resolve("blank@corp.com", "blank"))
	assert.Equal(t, "other", m.Resolve("other@corp.com", "other"))

	var empty AuthorMap
	assert.Equal(t, "x", empty.Resolve("x@y", "x"))
}
