package branch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelabs/probe-sub004/internal/types"
)

type fakeWorkspaceStore struct {
	ws *types.Workspace
}

func (f *fakeWorkspaceStore) EnsureWorkspace(ws *types.Workspace) error {
	f.ws = ws
	return nil
}

type fakeInvalidator struct {
	calls [][]string
}

func (f *fakeInvalidator) InvalidatePaths(workspaceID string, paths []string) int {
	f.calls = append(f.calls, paths)
	return len(paths)
}

func commitFile(t *testing.T, wt *git.Worktree, dir, name, content string) plumbing.Hash {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	_, err := wt.Add(name)
	require.NoError(t, err)
	hash, err := wt.Commit("update "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash
}

func setupRepo(t *testing.T) (string, *git.Repository, *git.Worktree) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	commitFile(t, wt, dir, "base.txt", "base\n")
	return dir, repo, wt
}

func TestSwitch_RejectsDirtyWorkingTree(t *testing.T) {
	dir, _, _ := setupRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dirty.txt"), []byte("uncommitted"), 0o644))

	mgr := New(&fakeWorkspaceStore{})
	_, err := mgr.Switch("ws1", dir, "feature")
	assert.Error(t, err)
}

func TestSwitch_RejectsUnknownTarget(t *testing.T) {
	dir, _, _ := setupRepo(t)
	mgr := New(&fakeWorkspaceStore{})
	_, err := mgr.Switch("ws1", dir, "does-not-exist")
	assert.Error(t, err)
}

func TestSwitch_ComputesDiffAndUpdatesWorkspace(t *testing.T) {
	dir, repo, wt := setupRepo(t)

	headRef, err := repo.Head()
	require.NoError(t, err)

	featureRef := plumbing.NewBranchReferenceName("feature")
	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(featureRef, headRef.Hash())))
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{Branch: featureRef}))

	commitFile(t, wt, dir, "changed.txt", "new content\n")

	mainRef := plumbing.NewBranchReferenceName("master")
	if _, err := repo.Reference(mainRef, true); err != nil {
		mainRef = plumbing.NewBranchReferenceName("main")
	}
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{Branch: mainRef}))

	store := &fakeWorkspaceStore{}
	inv := &fakeInvalidator{}
	mgr := New(store, inv)

	summary, err := mgr.Switch("ws1", dir, "feature")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FilesChanged)
	assert.True(t, summary.IndexingRequired)
	assert.Equal(t, 1, summary.CacheInvalidations)
	assert.Equal(t, "feature", store.ws.BranchHint)
	assert.Len(t, inv.calls, 1)
}

func TestList_MarksCurrentBranch(t *testing.T) {
	dir, repo, _ := setupRepo(t)
	headRef, err := repo.Head()
	require.NoError(t, err)
	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("other"), headRef.Hash())))

	mgr := New(&fakeWorkspaceStore{})
	infos, err := mgr.List("ws1", dir)
	require.NoError(t, err)
	require.NotEmpty(t, infos)

	var sawCurrent bool
	for _, info := range infos {
		if info.IsCurrent {
			sawCurrent = true
			assert.Equal(t, headRef.Name().Short(), info.Name)
		}
	}
	assert.True(t, sawCurrent)
}
