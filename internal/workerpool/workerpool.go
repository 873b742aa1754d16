// Package workerpool implements C13, the fixed-size worker pool that
// drains the indexing queue: dequeue, parse (C1), extract (C2/C3),
// persist (C9), update the file link, and optionally hand off to the
// LSP enhancer (C8).
package workerpool

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/probelabs/probe-sub004/internal/logging"
	"github.com/probelabs/probe-sub004/internal/queue"
	"github.com/probelabs/probe-sub004/internal/types"
	"go.uber.org/zap"
)

// PressureSource reports whether the indexing manager (C14) currently
// asserts memory pressure; workers cooperate by yielding between
// tasks when it does (spec.md §4.11 worker loop step 2).
type PressureSource interface {
	UnderPressure() bool
}

// FileResult is per-file completion stats reported back to C14.
type FileResult struct {
	Path            string
	Bytes           int64
	Symbols         int
	Edges           int
	Duration        time.Duration
	Err             error
	EnhancementTask *types.IndexingTask // non-nil if an LSP enhancement should be queued
}

// Processor performs the actual per-file work; workerpool is
// deliberately ignorant of parsing/extraction/persistence so it can be
// tested independently of C1/C2/C3/C9.
type Processor interface {
	ProcessFile(ctx context.Context, task types.IndexingTask) FileResult
}

// Pool runs N workers pulling from q, recovering from per-task panics
// so one bad file cannot take down the whole pool (spec.md §4.11
// "worker panics are logged and restart their loop").
type Pool struct {
	q         *queue.Queue
	processor Processor
	pressure  PressureSource
	workers   int

	onResult func(FileResult)

	running int32
	log     *zap.Logger
}

// New constructs a Pool. workers<=0 falls back to a single worker
// (spec.md's config.Performance.MaxWorkers 0 == auto-detect is resolved
// by the caller before calling New).
func New(q *queue.Queue, processor Processor, pressure PressureSource, workers int, onResult func(FileResult)) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		q:         q,
		processor: processor,
		pressure:  pressure,
		workers:   workers,
		onResult:  onResult,
		log:       logging.Named("workerpool"),
	}
}

// Run blocks until ctx is cancelled or the queue is closed and
// drained, running p.workers goroutines via errgroup so a worker's
// unrecovered error (not a panic — those are recovered per-task)
// still surfaces to the caller.
func (p *Pool) Run(ctx context.Context) error {
	atomic.StoreInt32(&p.running, 1)
	defer atomic.StoreInt32(&p.running, 0)

	g, ctx := errgroup.WithContext(ctx)

	// Queue.Dequeue has no native cancellation, so ctx cancellation is
	// translated into a queue Close: every blocked worker wakes up,
	// drains whatever remains, then exits when Dequeue reports closed.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			p.q.Close()
		case <-stopWatch:
		}
	}()

	for i := 0; i < p.workers; i++ {
		workerID := i
		g.Go(func() error {
			p.workerLoop(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) workerLoop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			return
		}

		if p.pressure != nil {
			for p.pressure.UnderPressure() {
				select {
				case <-ctx.Done():
					return
				case <-time.After(50 * time.Millisecond):
				}
			}
		}

		raw, ok := p.q.Dequeue()
		if !ok {
			return // queue closed and drained
		}
		qt, ok := raw.(queue.IndexingTask)
		if !ok {
			continue
		}

		result := p.runTaskRecovered(ctx, qt.IndexingTask)
		if p.onResult != nil {
			p.onResult(result)
		}
	}
}

// runTaskRecovered isolates a single task's panic so it cannot take
// down the worker's goroutine; the failure is folded into FileResult.Err
// instead, matching C5/C9's "per-file failure, batch continues" policy.
func (p *Pool) runTaskRecovered(ctx context.Context, task types.IndexingTask) (result FileResult) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task panicked, loop restarting", zap.String("path", task.Path), zap.Any("recovered", r))
			result = FileResult{Path: task.Path, Err: panicError(r)}
		}
	}()
	return p.processor.ProcessFile(ctx, task)
}

func panicError(r any) error {
	return &panicErr{recovered: r}
}

type panicErr struct{ recovered any }

func (e *panicErr) Error() string { return "worker panic: " + toString(e.recovered) }

func toString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic value"
}

// IsRunning reports whether Run is currently executing, used by C14
// for its state machine transitions.
func (p *Pool) IsRunning() bool { return atomic.LoadInt32(&p.running) == 1 }
