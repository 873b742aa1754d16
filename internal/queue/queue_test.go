package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelabs/probe-sub004/internal/types"
)

func task(path string, priority int) IndexingTask {
	return IndexingTask{types.IndexingTask{Path: path, Kind: types.ChangeCreate, Priority: priority}}
}

func TestEnqueueDequeue_HigherPriorityFirst(t *testing.T) {
	q := New(0, false)
	require.True(t, q.Enqueue(task("low.go", 1)))
	require.True(t, q.Enqueue(task("high.go", 5)))

	got, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "high.go", got.(IndexingTask).Path)

	got, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "low.go", got.(IndexingTask).Path)
}

func TestEnqueue_DedupsByPathKeepsLatest(t *testing.T) {
	q := New(0, false)
	require.True(t, q.Enqueue(task("a.go", 1)))
	require.True(t, q.Enqueue(task("a.go", 9)))

	snap := q.Snapshot()
	assert.Equal(t, 1, snap.Total)

	got, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 9, got.(IndexingTask).IndexingTask.Priority)
}

func TestEnqueue_DropsOnFullWhenConfigured(t *testing.T) {
	q := New(1, true)
	require.True(t, q.Enqueue(task("a.go", 1)))
	ok := q.Enqueue(task("b.go", 1))
	assert.False(t, ok)

	snap := q.Snapshot()
	assert.Equal(t, int64(1), snap.Dropped)
}

func TestClose_DrainsPendingThenStopsDequeue(t *testing.T) {
	q := New(0, false)
	require.True(t, q.Enqueue(task("a.go", 1)))
	q.Close()

	_, ok := q.Dequeue()
	assert.True(t, ok)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestDequeue_BlocksUntilEnqueue(t *testing.T) {
	q := New(0, false)
	done := make(chan Task, 1)
	go func() {
		got, _ := q.Dequeue()
		done <- got
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(task("late.go", 1))

	select {
	case got := <-done:
		assert.Equal(t, "late.go", got.(IndexingTask).Path)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock")
	}
}
