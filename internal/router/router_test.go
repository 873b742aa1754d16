package router

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelabs/probe-sub004/internal/config"
)

func TestSanitizeOrigin(t *testing.T) {
	assert.Equal(t, "github_com_acme_widgets", sanitizeOrigin("https://github.com/acme/widgets.git"))
	assert.Equal(t, "git_host_team_repo", sanitizeOrigin("git@host:team/repo.git"))
}

func TestPathHashID_Deterministic(t *testing.T) {
	a := pathHashID("/home/user/project")
	b := pathHashID("/home/user/project")
	assert.Equal(t, a, b)
	assert.LessOrEqual(t, len(a), 32)
}

func TestWorkspaceID_FallsBackWithoutGitOrigin(t *testing.T) {
	dir := t.TempDir()
	r := New(config.Router{LookupDepth: 4})
	id := r.WorkspaceID(context.Background(), dir)
	assert.NotEmpty(t, id)
}

func TestFindNearestWorkspace_LocatesGoModParent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	r := New(config.Router{LookupDepth: 12})
	found, ok := r.FindNearestWorkspace(nested)
	require.True(t, ok)
	assert.Equal(t, root, found)
}

func TestFindNearestWorkspace_CachesNegativeResult(t *testing.T) {
	dir := t.TempDir()
	r := New(config.Router{LookupDepth: 2})
	_, ok := r.FindNearestWorkspace(dir)
	assert.False(t, ok)
	_, ok = r.FindNearestWorkspace(dir)
	assert.False(t, ok)
}

func TestOpen_ReusesSameHandleForSameID(t *testing.T) {
	dir := t.TempDir()
	r := New(config.Router{BaseCacheDir: dir})
	d1, err := r.Open("ws1")
	require.NoError(t, err)
	d2, err := r.Open("ws1")
	require.NoError(t, err)
	assert.Same(t, d1, d2)
	r.CloseAll()
}
