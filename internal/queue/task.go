package queue

import "github.com/probelabs/probe-sub004/internal/types"

// IndexingTask adapts types.IndexingTask to the Task interface Queue
// requires, keyed by its target path so re-enqueuing the same file
// before it's dequeued collapses to the latest change.
type IndexingTask struct {
	types.IndexingTask
}

func (t IndexingTask) DedupKey() string { return t.Path }
func (t IndexingTask) Priority() int    { return t.IndexingTask.Priority }
