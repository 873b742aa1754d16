// Package queue implements C12, the Indexing Queue: a bounded,
// priority-ordered deque keyed by path so a path enqueued twice before
// being dequeued collapses to its latest task (spec.md §4.11, the
// teacher's Priority field on its own IndexingTask-equivalent
// generalized into an actual ordering rather than a sort hint).
package queue

import (
	"container/heap"
	"sync"
)

// item is one heap entry: a task plus the insertion sequence used to
// break priority ties in FIFO order.
type item struct {
	task     Task
	sequence int64
	index    int
}

// Task is the minimal shape the queue needs: a dedup key and a
// priority. internal/workerpool wraps this with the full
// types.IndexingTask payload.
type Task interface {
	DedupKey() string
	Priority() int
}

type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].task.Priority() != h[j].task.Priority() {
		return h[i].task.Priority() > h[j].task.Priority() // higher priority first
	}
	return h[i].sequence < h[j].sequence // FIFO among equal priority
}
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is a bounded, priority-ordered, path-deduplicating deque.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	closed   bool

	heap     itemHeap
	byKey    map[string]*item
	capacity int
	sequence int64

	dropOnFull bool // configurable backpressure policy (spec.md §4.11)
	dropped    int64
}

// New constructs a Queue with the given capacity (<=0 means unbounded)
// and backpressure policy: dropOnFull=true drops the newest task
// instead of blocking the enqueuer when the queue is at capacity.
func New(capacity int, dropOnFull bool) *Queue {
	q := &Queue{
		heap:       make(itemHeap, 0, 64),
		byKey:      make(map[string]*item),
		capacity:   capacity,
		dropOnFull: dropOnFull,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds or replaces (by dedup key) a task. If the queue is at
// capacity and dropOnFull is set, the task is dropped and Enqueue
// returns false; otherwise it blocks until space frees up or the queue
// is closed.
func (q *Queue) Enqueue(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	key := t.DedupKey()
	if existing, ok := q.byKey[key]; ok {
		existing.task = t
		heap.Fix(&q.heap, existing.index)
		q.notEmpty.Signal()
		return true
	}

	for q.capacity > 0 && len(q.heap) >= q.capacity {
		if q.dropOnFull {
			q.dropped++
			return false
		}
		q.notFull.Wait()
		if q.closed {
			return false
		}
	}

	q.sequence++
	it := &item{task: t, sequence: q.sequence}
	heap.Push(&q.heap, it)
	q.byKey[key] = it
	q.notEmpty.Signal()
	return true
}

// Dequeue blocks until a task is available or the queue is closed and
// drained, returning (nil, false) in the latter case.
func (q *Queue) Dequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) == 0 {
		if q.closed {
			return nil, false
		}
		q.notEmpty.Wait()
	}

	it := heap.Pop(&q.heap).(*item)
	delete(q.byKey, it.task.DedupKey())
	q.notFull.Signal()
	return it.task, true
}

// Close unblocks all waiters; Dequeue continues returning queued tasks
// until the queue is empty, after which it returns false.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Snapshot reports current queue occupancy, broken down by priority.
type Snapshot struct {
	Total      int
	ByPriority map[int]int
	Dropped    int64
}

// Snapshot returns the current queue occupancy.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	byPriority := make(map[int]int)
	for _, it := range q.heap {
		byPriority[it.task.Priority()]++
	}
	return Snapshot{Total: len(q.heap), ByPriority: byPriority, Dropped: q.dropped}
}
