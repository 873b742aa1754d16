package indexmgr

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/probelabs/probe-sub004/internal/config"
	"github.com/probelabs/probe-sub004/internal/detector"
	"github.com/probelabs/probe-sub004/internal/queue"
	"github.com/probelabs/probe-sub004/internal/types"
	"github.com/probelabs/probe-sub004/internal/workerpool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type noopLookup struct{}

func (noopLookup) ActiveFingerprint(workspaceID, path string) (string, int64, int64, bool) {
	return "", 0, 0, false
}

func (noopLookup) ActivePaths(workspaceID string) ([]string, error) {
	return nil, nil
}

type fakeProcessor struct{ processed int32 }

func (f *fakeProcessor) ProcessFile(ctx context.Context, task types.IndexingTask) workerpool.FileResult {
	atomic.AddInt32(&f.processed, 1)
	return workerpool.FileResult{Path: task.Path, Symbols: 2, Bytes: 10}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func newTestManager(t *testing.T, languages []string) (*Manager, *fakeProcessor, string) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":   "package main\n",
		"script.py": "print('hi')\n",
	})

	det := detector.New(config.Detector{}, noopLookup{})
	q := queue.New(0, false)
	proc := &fakeProcessor{}
	pool := workerpool.New(q, proc, nil, 2, nil)

	perf := config.Performance{MaxMemoryMB: 512, MemoryPressureFactor: 0.85, MaxWorkers: 2}
	mgr := New(perf, det, pool, q, languages)
	pool2 := workerpool.New(q, proc, mgr, 2, mgr.OnFileResult)
	mgr.pool = pool2

	return mgr, proc, root
}

func TestStartIndexing_DiscoversAndProcessesAllFiles(t *testing.T) {
	mgr, proc, root := newTestManager(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, mgr.StartIndexing(ctx, "ws1", root))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&proc.processed) == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, mgr.Stop(context.Background()))
	assert.Equal(t, StateIdle, mgr.State())
}

func TestStartIndexing_LanguageFilterExcludesOtherLanguages(t *testing.T) {
	mgr, proc, root := newTestManager(t, []string{"go"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, mgr.StartIndexing(ctx, "ws1", root))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&proc.processed) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, mgr.Stop(context.Background()))
	assert.Equal(t, int64(1), mgr.Progress().Total)
}

func TestStartIndexing_RejectsConcurrentStart(t *testing.T) {
	mgr, _, root := newTestManager(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, mgr.StartIndexing(ctx, "ws1", root))
	err := mgr.StartIndexing(ctx, "ws1", root)
	assert.Error(t, err)

	require.NoError(t, mgr.Stop(context.Background()))
}

func TestPauseResume_FlipsState(t *testing.T) {
	mgr, _, root := newTestManager(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, mgr.StartIndexing(ctx, "ws1", root))
	mgr.Pause()
	assert.True(t, mgr.Paused())
	mgr.Resume()
	assert.False(t, mgr.Paused())

	require.NoError(t, mgr.Stop(context.Background()))
}

func TestUnderPressure_FalseWhenBudgetUnset(t *testing.T) {
	mgr, _, _ := newTestManager(t, nil)
	mgr.memBudgetBytes = 0
	assert.False(t, mgr.UnderPressure())
}

func TestProgress_IsCompleteWhenAllSettled(t *testing.T) {
	p := Progress{Total: 3, Processed: 2, Failed: 1}
	assert.True(t, p.IsComplete())

	p.Failed = 0
	assert.False(t, p.IsComplete())
}
