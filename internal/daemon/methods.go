package daemon

import (
	"context"
	"encoding/json"
	"runtime"

	"github.com/probelabs/probe-sub004/internal/graph"
	"github.com/probelabs/probe-sub004/internal/wire"
)

// JSON-RPC error codes this daemon returns, following the LSP/JSON-RPC
// convention of reserving -32601 for an unrecognized method and using
// a server-defined range for domain errors.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32000
)

func rpcError(code int, message string) *wire.Error {
	return &wire.Error{Code: code, Message: message}
}

func errorFrom(err error) *wire.Error {
	return rpcError(codeInternalError, err.Error())
}

// handler processes one request's params and returns a JSON-encodable
// result, or an error to place on the response envelope.
type handler func(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error)

// methodTable is the daemon's method router: spec.md §6's surface,
// plus four graph.Engine operations (graph/*) that the spec's data
// flow names ("C14 for index or C16/C7 for query") but does not give
// explicit wire method names to — named here so C16 is reachable over
// the same socket rather than dead code only exercised by tests.
var methodTable = map[string]handler{
	"references":     handleReferences,
	"definition":     handleDefinition,
	"call_hierarchy": handleCallHierarchy,

	"lsp/status": handleLSPStatus,
	"lsp/logs":   handleLSPLogs,

	"workspace/list":  handleWorkspaceList,
	"workspace/clear": handleWorkspaceClear,

	"branch/switch": handleBranchSwitch,
	"branch/list":   handleBranchList,

	"index/start":  handleIndexStart,
	"index/status": handleIndexStatus,
	"index/stop":   handleIndexStop,

	"graph/call_paths":   handleGraphCallPaths,
	"graph/impact":       handleGraphImpact,
	"graph/dependencies": handleGraphDependencies,
	"graph/hotspots":     handleGraphHotspots,

	"search":  handleOutOfScope,
	"extract": handleOutOfScope,
	"query":   handleOutOfScope,
}

// handleOutOfScope answers the CLI front-end's free-text search/
// extract/query methods: their ranking and rendering logic is
// deliberately out of this build's core scope (spec.md §1 Non-goals),
// so the daemon reports them as unimplemented rather than silently
// returning an empty result a caller might mistake for "no matches".
func handleOutOfScope(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	return nil, rpcError(codeMethodNotFound, "method not implemented by this daemon build: free-text search/extract ranking is a front-end concern outside the indexing and query engine's core scope")
}

type pathPositionParams struct {
	Path               string `json:"path"`
	Line               int    `json:"line"`
	Col                int    `json:"col"`
	IncludeDeclaration bool   `json:"include_declaration"`
}

func decodeParams(raw json.RawMessage, out any) *wire.Error {
	if len(raw) == 0 {
		return rpcError(codeInvalidParams, "missing params")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return rpcError(codeInvalidParams, "invalid params: "+err.Error())
	}
	return nil
}

func handleReferences(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p pathPositionParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	res := s.lspClient.References(ctx, p.Path, p.Line, p.Col, p.IncludeDeclaration)
	if res.Err != nil && !res.Fallback {
		return nil, errorFrom(res.Err)
	}
	return res, nil
}

func handleDefinition(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p pathPositionParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	res := s.lspClient.Definition(ctx, p.Path, p.Line, p.Col)
	if res.Err != nil && !res.Fallback {
		return nil, errorFrom(res.Err)
	}
	return res, nil
}

func handleCallHierarchy(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p pathPositionParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	res := s.lspClient.CallHierarchy(ctx, p.Path, p.Line, p.Col)
	if res.Err != nil && !res.Fallback {
		return nil, errorFrom(res.Err)
	}
	return res, nil
}

func handleLSPStatus(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	return map[string]any{
		"servers": s.lspClient.Status(),
		"uptime":  s.Uptime().String(),
		"memory":  memorySummary(s.MemoryStats()),
	}, nil
}

func memorySummary(m runtime.MemStats) map[string]uint64 {
	return map[string]uint64{
		"alloc_bytes":       m.Alloc,
		"sys_bytes":         m.Sys,
		"heap_in_use_bytes": m.HeapInuse,
	}
}

type lspLogsParams struct {
	WorkspaceID string `json:"workspace_id"`
	Language    string `json:"language"`
}

func handleLSPLogs(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p lspLogsParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	return map[string]any{"lines": s.lspClient.Logs(p.WorkspaceID, p.Language)}, nil
}

func handleWorkspaceList(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	return map[string]any{"workspaces": s.router.Workspaces()}, nil
}

type workspaceIDParams struct {
	WorkspaceID string `json:"workspace_id"`
}

func handleWorkspaceClear(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p workspaceIDParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	s.workspacesMu.Lock()
	delete(s.workspaces, p.WorkspaceID)
	s.workspacesMu.Unlock()

	if err := s.router.Clear(p.WorkspaceID); err != nil {
		return nil, errorFrom(err)
	}
	return map[string]any{"cleared": p.WorkspaceID}, nil
}

type branchSwitchParams struct {
	WorkspaceID string `json:"workspace_id"`
	RepoRoot    string `json:"repo_root"`
	Target      string `json:"target"`
}

func handleBranchSwitch(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p branchSwitchParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	summary, err := s.branchMgr.Switch(p.WorkspaceID, p.RepoRoot, p.Target)
	if err != nil {
		return nil, errorFrom(err)
	}
	return summary, nil
}

type branchListParams struct {
	WorkspaceID string `json:"workspace_id"`
	RepoRoot    string `json:"repo_root"`
}

func handleBranchList(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p branchListParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	branches, err := s.branchMgr.List(p.WorkspaceID, p.RepoRoot)
	if err != nil {
		return nil, errorFrom(err)
	}
	return map[string]any{"branches": branches}, nil
}

type indexRootParams struct {
	Root        string `json:"root"`
	WorkspaceID string `json:"workspace_id"`
}

func (p indexRootParams) resolve(s *Server, ctx context.Context) string {
	if p.WorkspaceID != "" {
		return p.WorkspaceID
	}
	return s.router.WorkspaceID(ctx, p.Root)
}

func handleIndexStart(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p indexRootParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	if p.Root == "" {
		return nil, rpcError(codeInvalidParams, "root is required")
	}
	id := p.resolve(s, ctx)
	rt, err := s.workspaceFor(id, p.Root)
	if err != nil {
		return nil, errorFrom(err)
	}
	if err := rt.mgr.StartIndexing(ctx, id, p.Root); err != nil {
		return nil, errorFrom(err)
	}
	return map[string]any{"workspace_id": id, "state": string(rt.mgr.State())}, nil
}

func (s *Server) lookupWorkspace(id string) (*workspaceRuntime, bool) {
	s.workspacesMu.Lock()
	defer s.workspacesMu.Unlock()
	rt, ok := s.workspaces[id]
	return rt, ok
}

func handleIndexStatus(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p indexRootParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	id := p.resolve(s, ctx)
	rt, ok := s.lookupWorkspace(id)
	if !ok {
		return nil, rpcError(codeInvalidParams, "unknown workspace: "+id)
	}
	progress := rt.mgr.Progress()
	return map[string]any{
		"workspace_id": id,
		"state":        string(rt.mgr.State()),
		"total":        progress.Total,
		"processed":    progress.Processed,
		"failed":       progress.Failed,
		"skipped":      progress.Skipped,
		"is_complete":  progress.IsComplete(),
	}, nil
}

func handleIndexStop(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p indexRootParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	id := p.resolve(s, ctx)
	rt, ok := s.lookupWorkspace(id)
	if !ok {
		return nil, rpcError(codeInvalidParams, "unknown workspace: "+id)
	}
	if err := rt.mgr.Stop(ctx); err != nil {
		return nil, errorFrom(err)
	}
	return map[string]any{"workspace_id": id, "state": string(rt.mgr.State())}, nil
}

type graphQueryParams struct {
	WorkspaceID string `json:"workspace_id"`
	FromUID     string `json:"from_uid"`
	ToUID       string `json:"to_uid"`
	UID         string `json:"uid"`
	Limit       int    `json:"limit"`
	MaxDepth    int    `json:"max_depth"`
}

func (p graphQueryParams) options() graph.TraversalOptions {
	opts := graph.DefaultOptions()
	if p.Limit > 0 {
		opts.ResultLimit = p.Limit
	}
	if p.MaxDepth > 0 {
		opts.MaxDepth = p.MaxDepth
	}
	return opts
}

func (s *Server) graphEngineFor(id string) (*graph.Engine, bool) {
	rt, ok := s.lookupWorkspace(id)
	if !ok {
		return nil, false
	}
	return rt.graph, true
}

func handleGraphCallPaths(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p graphQueryParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	eng, ok := s.graphEngineFor(p.WorkspaceID)
	if !ok {
		return nil, rpcError(codeInvalidParams, "unknown workspace: "+p.WorkspaceID)
	}
	paths, err := eng.FindCallPaths(p.WorkspaceID, p.FromUID, p.ToUID, p.options())
	if err != nil {
		return nil, errorFrom(err)
	}
	return map[string]any{"paths": paths}, nil
}

func handleGraphImpact(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p graphQueryParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	eng, ok := s.graphEngineFor(p.WorkspaceID)
	if !ok {
		return nil, rpcError(codeInvalidParams, "unknown workspace: "+p.WorkspaceID)
	}
	affected, err := eng.FindAffectedSymbols(p.WorkspaceID, p.UID, p.options())
	if err != nil {
		return nil, errorFrom(err)
	}
	return map[string]any{"affected": affected}, nil
}

func handleGraphDependencies(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p graphQueryParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	eng, ok := s.graphEngineFor(p.WorkspaceID)
	if !ok {
		return nil, rpcError(codeInvalidParams, "unknown workspace: "+p.WorkspaceID)
	}
	deps, err := eng.GetSymbolDependencies(p.WorkspaceID, p.UID, p.options())
	if err != nil {
		return nil, errorFrom(err)
	}
	return map[string]any{"dependencies": deps}, nil
}

func handleGraphHotspots(ctx context.Context, s *Server, params json.RawMessage) (any, *wire.Error) {
	var p graphQueryParams
	if rerr := decodeParams(params, &p); rerr != nil {
		return nil, rerr
	}
	eng, ok := s.graphEngineFor(p.WorkspaceID)
	if !ok {
		return nil, rpcError(codeInvalidParams, "unknown workspace: "+p.WorkspaceID)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	hotspots, err := eng.AnalyzeSymbolHotspots(p.WorkspaceID, limit)
	if err != nil {
		return nil, errorFrom(err)
	}
	return map[string]any{"hotspots": hotspots}, nil
}
