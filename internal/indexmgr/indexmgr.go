// Package indexmgr implements C14, the Indexing Manager: the state
// machine that drives C11 (detector) into C12 (queue), spawns C13
// (worker pool), and tracks overall progress, including the memory
// governor that asserts backpressure on the pool.
package indexmgr

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/probelabs/probe-sub004/internal/config"
	"github.com/probelabs/probe-sub004/internal/detector"
	"github.com/probelabs/probe-sub004/internal/logging"
	"github.com/probelabs/probe-sub004/internal/queue"
	"github.com/probelabs/probe-sub004/internal/types"
	"github.com/probelabs/probe-sub004/internal/workerpool"
)

// State is one of the manager's lifecycle states (spec.md §4.11).
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateIndexing    State = "indexing"
	StatePaused      State = "paused"
	StateError       State = "error"
)

// Progress is the live counter set exposed to callers (e.g. lsp-status
// style RPCs) while indexing runs.
type Progress struct {
	Total             int64
	Processed         int64
	Failed            int64
	Skipped           int64
	BytesProcessed    int64
	SymbolsExtracted  int64
	StartedAtUnixNano int64
}

// IsComplete reports whether processed + failed + skipped has reached
// Total. It compares these counters only; the queue's length is not
// consulted.
func (p Progress) IsComplete() bool {
	return p.Processed+p.Failed+p.Skipped >= p.Total
}

// Manager drives one workspace's indexing lifecycle end to end.
type Manager struct {
	cfg      config.Performance
	detector *detector.Detector
	pool     *workerpool.Pool
	q        *queue.Queue

	mu      sync.Mutex
	state   State
	paused  int32
	started time.Time

	progress atomicProgress

	memBudgetBytes     uint64
	pressureFactor     float64
	languageFilter     map[string]struct{}
	incremental        bool
	cancelCurrent      context.CancelFunc
	runDone            chan struct{}
	log                *zap.Logger
}

type atomicProgress struct {
	total, processed, failed, skipped int64
	bytes, symbols                    int64
	startedAt                         int64
}

// New constructs a Manager bound to one workspace's detector and pool.
func New(cfg config.Performance, det *detector.Detector, pool *workerpool.Pool, q *queue.Queue, languages []string) *Manager {
	langFilter := make(map[string]struct{}, len(languages))
	for _, l := range languages {
		langFilter[l] = struct{}{}
	}
	pressureFactor := cfg.MemoryPressureFactor
	if pressureFactor <= 0 {
		pressureFactor = 0.85
	}
	return &Manager{
		cfg:            cfg,
		detector:       det,
		pool:           pool,
		q:              q,
		state:          StateIdle,
		memBudgetBytes: uint64(cfg.MaxMemoryMB) * 1024 * 1024,
		pressureFactor: pressureFactor,
		languageFilter: langFilter,
		incremental:    true,
		log:            logging.Named("indexmgr"),
	}
}

// SetPool binds the worker pool this manager drives. It exists because
// the pool's constructor needs the manager as its PressureSource and
// result sink, so callers build the Manager first (with a nil pool),
// construct the Pool against it, then wire it back with SetPool before
// the first StartIndexing call.
func (m *Manager) SetPool(p *workerpool.Pool) {
	m.mu.Lock()
	m.pool = p
	m.mu.Unlock()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// UnderPressure implements workerpool.PressureSource: asserted when
// estimated process memory exceeds pressureFactor × memory budget
// (spec.md §4.11 memory governor).
func (m *Manager) UnderPressure() bool {
	if m.memBudgetBytes == 0 {
		return false
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	threshold := uint64(float64(m.memBudgetBytes) * m.pressureFactor)
	return stats.HeapAlloc > threshold
}

// Progress returns a snapshot of the live counters.
func (m *Manager) Progress() Progress {
	return Progress{
		Total:             atomic.LoadInt64(&m.progress.total),
		Processed:         atomic.LoadInt64(&m.progress.processed),
		Failed:            atomic.LoadInt64(&m.progress.failed),
		Skipped:           atomic.LoadInt64(&m.progress.skipped),
		BytesProcessed:    atomic.LoadInt64(&m.progress.bytes),
		SymbolsExtracted:  atomic.LoadInt64(&m.progress.symbols),
		StartedAtUnixNano: atomic.LoadInt64(&m.progress.startedAt),
	}
}

// StartIndexing transitions Idle→Discovering→Indexing: it scans root
// via C11, enqueues tasks into C12 (filtered by language if
// configured, skipped if incremental mode says unchanged), then spawns
// C13 in the background. Returns once discovery completes and workers
// have been started; does not block until indexing finishes.
func (m *Manager) StartIndexing(ctx context.Context, workspaceID, root string) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return errAlreadyRunning
	}
	m.state = StateDiscovering
	m.mu.Unlock()

	atomic.StoreInt64(&m.progress.startedAt, time.Now().UnixNano())

	tasks, err := m.detector.Scan(ctx, workspaceID, root)
	if err != nil {
		m.setState(StateError)
		return err
	}

	filtered := m.filterTasks(tasks)
	atomic.StoreInt64(&m.progress.total, int64(len(filtered)))

	for _, t := range filtered {
		m.q.Enqueue(queue.IndexingTask{IndexingTask: t})
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancelCurrent = cancel
	m.state = StateIndexing
	m.runDone = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.runDone)
		if err := m.pool.Run(runCtx); err != nil {
			m.log.Error("worker pool exited with error", zap.Error(err))
			m.setState(StateError)
			return
		}
		m.mu.Lock()
		if m.state != StatePaused {
			m.state = StateIdle
		}
		m.mu.Unlock()
	}()

	return nil
}

func (m *Manager) filterTasks(tasks []types.IndexingTask) []types.IndexingTask {
	if len(m.languageFilter) == 0 {
		return tasks
	}
	filtered := make([]types.IndexingTask, 0, len(tasks))
	for _, t := range tasks {
		lang, ok := languageFromPath(t.Path)
		if !ok {
			continue
		}
		if _, enabled := m.languageFilter[lang]; enabled {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// OnFileResult folds one worker's FileResult into the live progress
// counters; wired as the Pool's onResult callback.
func (m *Manager) OnFileResult(r workerpool.FileResult) {
	if r.Err != nil {
		atomic.AddInt64(&m.progress.failed, 1)
		return
	}
	atomic.AddInt64(&m.progress.processed, 1)
	atomic.AddInt64(&m.progress.bytes, r.Bytes)
	atomic.AddInt64(&m.progress.symbols, int64(r.Symbols))
}

// MarkSkipped increments the skipped counter, used by the caller when
// incremental mode determines a file needs no reprocessing (spec.md
// §4.11 "skip files whose current (mtime, digest) matches").
func (m *Manager) MarkSkipped() {
	atomic.AddInt64(&m.progress.skipped, 1)
}

// Pause flips the shared pause flag; workers cooperate at task
// boundaries rather than being forcibly suspended mid-file.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIndexing {
		atomic.StoreInt32(&m.paused, 1)
		m.state = StatePaused
	}
}

// Resume clears the pause flag.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StatePaused {
		atomic.StoreInt32(&m.paused, 0)
		m.state = StateIndexing
	}
}

// Paused reports the cooperative pause flag; workers may consult this
// directly in addition to UnderPressure when deciding whether to yield.
func (m *Manager) Paused() bool { return atomic.LoadInt32(&m.paused) == 1 }

// Stop drains and joins the worker pool (by closing the queue and
// cancelling the run context) and returns to Idle, within the bounded
// grace interval the caller's context enforces.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.cancelCurrent
	done := m.runDone
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	m.q.Close()
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.setState(StateIdle)
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func languageFromPath(path string) (string, bool) {
	ext := extOf(path)
	lang, ok := extensionLanguages[ext]
	return lang, ok
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' {
			break
		}
	}
	return ""
}

// extensionLanguages mirrors astpool.ExtensionLanguage's key set as
// plain strings, so indexmgr's language filter doesn't need to import
// astpool just for its Language type.
var extensionLanguages = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "javascript",
	".mjs": "javascript", ".ts": "typescript", ".tsx": "typescript",
	".rs": "rust", ".java": "java", ".c": "cpp", ".h": "cpp", ".cc": "cpp",
	".cpp": "cpp", ".hpp": "cpp", ".cs": "csharp", ".php": "php", ".zig": "zig",
}

var errAlreadyRunning = indexError("indexing already in progress")

type indexError string

func (e indexError) Error() string { return string(e) }
