package detector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelabs/probe-sub004/internal/config"
	"github.com/probelabs/probe-sub004/internal/types"
)

type fakeLookup struct {
	fingerprints map[string][3]interface{}
}

func (f *fakeLookup) ActiveFingerprint(workspaceID, path string) (string, int64, int64, bool) {
	v, ok := f.fingerprints[path]
	if !ok {
		return "", 0, 0, false
	}
	return v[0].(string), v[1].(int64), v[2].(int64), true
}

func (f *fakeLookup) ActivePaths(workspaceID string) ([]string, error) {
	paths := make([]string, 0, len(f.fingerprints))
	for p := range f.fingerprints {
		paths = append(paths, p)
	}
	return paths, nil
}

func TestScan_SkipsExcludedDirectoriesEntirely(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "pkg", "x.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))

	d := New(config.Detector{Exclude: []string{"node_modules/**"}}, nil)
	tasks, err := d.Scan(context.Background(), "ws1", root)
	require.NoError(t, err)

	require.Len(t, tasks, 1)
	assert.Equal(t, filepath.Join(root, "main.go"), tasks[0].Path)
	assert.Equal(t, types.ChangeCreate, tasks[0].Kind)
}

func TestScan_SkipsFileWhenFingerprintUnchanged(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(p, []byte("package a\n"), 0o644))
	info, err := os.Stat(p)
	require.NoError(t, err)

	lookup := &fakeLookup{fingerprints: map[string][3]interface{}{
		p: {digestFile(p), info.Size(), info.ModTime().UnixNano()},
	}}

	d := New(config.Detector{}, lookup)
	tasks, err := d.Scan(context.Background(), "ws1", root)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestScan_ReportsDeletedActivePath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.go"), []byte("package a\n"), 0o644))
	gone := filepath.Join(root, "gone.go")

	lookup := &fakeLookup{fingerprints: map[string][3]interface{}{
		gone: {"stale-digest", int64(1), int64(1)},
	}}

	d := New(config.Detector{}, lookup)
	tasks, err := d.Scan(context.Background(), "ws1", root)
	require.NoError(t, err)

	var deletes []types.IndexingTask
	for _, task := range tasks {
		if task.Kind == types.ChangeDelete {
			deletes = append(deletes, task)
		}
	}
	require.Len(t, deletes, 1)
	assert.Equal(t, gone, deletes[0].Path)
}

func TestClassifyGitStatus(t *testing.T) {
	assert.Equal(t, GitAdded, classifyGitStatus("??"))
	assert.Equal(t, GitAdded, classifyGitStatus("A "))
	assert.Equal(t, GitDeleted, classifyGitStatus(" D"))
	assert.Equal(t, GitModified, classifyGitStatus(" M"))
}
