// Package branch implements C15, the Branch Manager: switch_branch and
// branch listing against a workspace's git repository, grounded on
// go-git/go-git/v5 rather than shelling out so each step of spec.md
// §4.13 maps onto a typed call instead of parsed CLI output.
package branch

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/probelabs/probe-sub004/internal/lcierrors"
	"github.com/probelabs/probe-sub004/internal/types"
)

// WorkspaceStore is the subset of C9/C10 the branch manager needs to
// read and update a workspace's branch-hint and commit-hash record.
type WorkspaceStore interface {
	EnsureWorkspace(ws *types.Workspace) error
}

// CacheInvalidator is implemented by anything holding per-workspace,
// per-path cached state derived from file content (the file-version
// lookup cache, an LSP response cache slice). InvalidatePaths returns
// the number of entries it dropped, which the manager sums into
// cache_invalidations.
type CacheInvalidator interface {
	InvalidatePaths(workspaceID string, paths []string) int
}

// Manager switches and lists branches for one workspace's checkout.
type Manager struct {
	store       WorkspaceStore
	invalidators []CacheInvalidator
}

// New constructs a Manager. During Switch, invalidators are called in
// order before the checkout, and only when HEAD and the target differ in
// at least one file; each returns a count and has no failure path.
func New(store WorkspaceStore, invalidators ...CacheInvalidator) *Manager {
	return &Manager{store: store, invalidators: invalidators}
}

// SwitchSummary is the result of a successful switch_branch call
// (spec.md §4.13 step 7).
type SwitchSummary struct {
	FilesChanged      int
	ReusedVersions    int
	CacheInvalidations int
	IndexingRequired  bool
}

// Switch implements switch_branch(workspace, target): validates the
// tree is clean, resolves target, computes the changed-file set
// between HEAD and target, invalidates caches for those files, checks
// out target, and updates the workspace's branch-hint/commit-hash.
func (m *Manager) Switch(workspaceID, repoRoot, target string) (*SwitchSummary, error) {
	repo, err := git.PlainOpen(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", repoRoot, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("read worktree status: %w", err)
	}
	if !status.IsClean() {
		return nil, lcierrors.UncommittedChanges()
	}

	targetRef, err := resolveBranch(repo, target)
	if err != nil {
		return nil, lcierrors.BranchNotFound(target)
	}

	headRef, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	changedPaths, err := diffPaths(repo, headRef.Hash(), targetRef.Hash())
	if err != nil {
		return nil, fmt.Errorf("diff HEAD against %s: %w", target, err)
	}

	invalidations := 0
	if len(changedPaths) > 0 {
		for _, inv := range m.invalidators {
			invalidations += inv.InvalidatePaths(workspaceID, changedPaths)
		}
	}

	checkoutOpts := &git.CheckoutOptions{Branch: targetRef.Name()}
	if err := wt.Checkout(checkoutOpts); err != nil {
		return nil, lcierrors.BranchConflicts(err.Error())
	}

	newHead, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD after checkout: %w", err)
	}

	if err := m.store.EnsureWorkspace(&types.Workspace{
		ID:         workspaceID,
		Root:       repoRoot,
		BranchHint: targetRef.Name().Short(),
		CommitHash: newHead.Hash().String(),
	}); err != nil {
		return nil, fmt.Errorf("update workspace branch record: %w", err)
	}

	return &SwitchSummary{
		FilesChanged:       len(changedPaths),
		ReusedVersions:     0,
		CacheInvalidations: invalidations,
		IndexingRequired:   len(changedPaths) > 0,
	}, nil
}

func resolveBranch(repo *git.Repository, name string) (*plumbing.Reference, error) {
	refName := plumbing.NewBranchReferenceName(name)
	ref, err := repo.Reference(refName, true)
	if err == nil {
		return ref, nil
	}
	// allow callers to pass a fully-qualified ref or a remote-tracking
	// branch name (e.g. "origin/feature/x") as a fallback.
	if ref, err2 := repo.Reference(plumbing.ReferenceName(name), true); err2 == nil {
		return ref, nil
	}
	return nil, err
}

// diffPaths returns the set of file paths whose blob differs between
// the two commits, via object.DiffTree on their resolved trees.
func diffPaths(repo *git.Repository, from, to plumbing.Hash) ([]string, error) {
	fromCommit, err := repo.CommitObject(from)
	if err != nil {
		return nil, err
	}
	toCommit, err := repo.CommitObject(to)
	if err != nil {
		return nil, err
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, err
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		if c.From.Name != "" {
			paths = append(paths, c.From.Name)
		}
		if c.To.Name != "" && c.To.Name != c.From.Name {
			paths = append(paths, c.To.Name)
		}
	}
	return paths, nil
}

// BranchInfo is one entry in a branch listing, marking the current one.
type BranchInfo struct {
	Name      string
	CommitHash string
	IsCurrent bool
}

// List enumerates git's local branches and marks as current the one
// HEAD points to. The workspace's stored branch-hint is not consulted;
// workspaceID is unused.
func (m *Manager) List(workspaceID, repoRoot string) ([]BranchInfo, error) {
	repo, err := git.PlainOpen(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", repoRoot, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	iter, err := repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("enumerate branches: %w", err)
	}
	defer iter.Close()

	var infos []BranchInfo
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		infos = append(infos, BranchInfo{
			Name:       ref.Name().Short(),
			CommitHash: ref.Hash().String(),
			IsCurrent:  ref.Name() == head.Name(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	return infos, nil
}
