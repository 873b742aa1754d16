package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/probelabs/probe-sub004/internal/queue"
	"github.com/probelabs/probe-sub004/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	panicOn   string
}

func (f *fakeProcessor) ProcessFile(ctx context.Context, task types.IndexingTask) FileResult {
	if task.Path == f.panicOn {
		panic("boom")
	}
	f.mu.Lock()
	f.processed = append(f.processed, task.Path)
	f.mu.Unlock()
	return FileResult{Path: task.Path, Symbols: 1}
}

func mkTask(path string) queue.IndexingTask {
	return queue.IndexingTask{types.IndexingTask{Path: path, Kind: types.ChangeCreate}}
}

func TestPool_ProcessesAllQueuedFiles(t *testing.T) {
	q := queue.New(0, false)
	proc := &fakeProcessor{}
	var resultCount int32
	pool := New(q, proc, nil, 2, func(r FileResult) { atomic.AddInt32(&resultCount, 1) })

	q.Enqueue(mkTask("a.go"))
	q.Enqueue(mkTask("b.go"))
	q.Enqueue(mkTask("c.go"))
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pool.Run(ctx))

	assert.Equal(t, int32(3), atomic.LoadInt32(&resultCount))
	assert.Len(t, proc.processed, 3)
}

func TestPool_RecoversFromPanicAndContinues(t *testing.T) {
	q := queue.New(0, false)
	proc := &fakeProcessor{panicOn: "bad.go"}
	results := make(map[string]FileResult)
	var mu sync.Mutex
	pool := New(q, proc, nil, 1, func(r FileResult) {
		mu.Lock()
		results[r.Path] = r
		mu.Unlock()
	})

	q.Enqueue(mkTask("good.go"))
	q.Enqueue(mkTask("bad.go"))
	q.Enqueue(mkTask("good2.go"))
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pool.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, results, "bad.go")
	assert.Error(t, results["bad.go"].Err)
	assert.NoError(t, results["good.go"].Err)
	assert.NoError(t, results["good2.go"].Err)
}

type pressureFlag struct{ v int32 }

func (p *pressureFlag) UnderPressure() bool { return atomic.LoadInt32(&p.v) == 1 }

func TestPool_YieldsUnderMemoryPressure(t *testing.T) {
	q := queue.New(0, false)
	proc := &fakeProcessor{}
	pressure := &pressureFlag{}
	atomic.StoreInt32(&pressure.v, 1)

	pool := New(q, proc, pressure, 1, nil)
	q.Enqueue(mkTask("a.go"))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, proc.processed, "worker should be yielding while pressure is asserted")

	atomic.StoreInt32(&pressure.v, 0)
	<-done
}
