package daemon

import (
	"context"
	"runtime"
	"time"

	"github.com/probelabs/probe-sub004/internal/astpool"
	"github.com/probelabs/probe-sub004/internal/db"
	"github.com/probelabs/probe-sub004/internal/detector"
	"github.com/probelabs/probe-sub004/internal/extract"
	"github.com/probelabs/probe-sub004/internal/filestore"
	"github.com/probelabs/probe-sub004/internal/graph"
	"github.com/probelabs/probe-sub004/internal/indexmgr"
	"github.com/probelabs/probe-sub004/internal/lsp"
	"github.com/probelabs/probe-sub004/internal/queue"
	"github.com/probelabs/probe-sub004/internal/types"
	"github.com/probelabs/probe-sub004/internal/workerpool"
)

// workspaceRuntime bundles one workspace's lazily-constructed pipeline:
// its database handle plus everything C11-C14 need to index it, and
// the C16 graph engine reading the same handle back out.
type workspaceRuntime struct {
	id   string
	root string

	database *db.DB
	graph    *graph.Engine
	mgr      *indexmgr.Manager
}

// workspaceFor resolves (or lazily constructs) the runtime for
// workspaceID, rooted at root. root is only consulted the first time a
// given workspaceID is seen; later calls reuse the existing runtime
// even if a different root string is passed (the workspace identity,
// not the caller's path, is authoritative).
func (s *Server) workspaceFor(workspaceID, root string) (*workspaceRuntime, error) {
	s.workspacesMu.Lock()
	defer s.workspacesMu.Unlock()

	if rt, ok := s.workspaces[workspaceID]; ok {
		return rt, nil
	}

	database, err := s.router.Open(workspaceID)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureWorkspace(&types.Workspace{ID: workspaceID, Root: root}); err != nil {
		return nil, err
	}

	parsers := astpool.NewPool(s.parserPoolSize(), s.parseTimeout())
	store := filestore.New(database, 64, s.cfg.Index.MaxFileSize)

	var enhancer extract.Enhancer
	if s.cfg.LSP.Enabled {
		enhancer = lsp.NewEnhancer(s.lspClient, s.log)
	}
	processor := extract.NewProcessor(workspaceID, database, store, parsers, enhancer, s.log)

	det := detector.New(s.cfg.Detector, database)
	q := queue.New(4096, false)

	workers := s.cfg.Performance.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	mgr := indexmgr.New(s.cfg.Performance, det, nil, q, s.cfg.Index.EnabledLanguages)
	pool := workerpool.New(q, processor, mgr, workers, mgr.OnFileResult)
	mgr.SetPool(pool)

	rt := &workspaceRuntime{
		id:       workspaceID,
		root:     root,
		database: database,
		graph:    graph.New(database.Raw()),
		mgr:      mgr,
	}
	s.workspaces[workspaceID] = rt
	return rt, nil
}

func (s *Server) parserPoolSize() int {
	if s.cfg.Performance.ParserPoolSizePerLang > 0 {
		return s.cfg.Performance.ParserPoolSizePerLang
	}
	return 4
}

func (s *Server) parseTimeout() time.Duration {
	if s.cfg.Performance.ParseTimeout > 0 {
		return s.cfg.Performance.ParseTimeout
	}
	return 5 * time.Second
}

// stopAllWorkspaces halts every workspace's indexing manager at
// shutdown, bounded by ctx.
func (s *Server) stopAllWorkspaces(ctx context.Context) {
	s.workspacesMu.Lock()
	runtimes := make([]*workspaceRuntime, 0, len(s.workspaces))
	for _, rt := range s.workspaces {
		runtimes = append(runtimes, rt)
	}
	s.workspacesMu.Unlock()

	for _, rt := range runtimes {
		_ = rt.mgr.Stop(ctx)
	}
}
