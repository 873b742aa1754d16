package lsp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/probelabs/probe-sub004/internal/config"
	"github.com/probelabs/probe-sub004/internal/lcierrors"
	"github.com/probelabs/probe-sub004/internal/router"
)

// extensionLanguages maps a file extension to the language id used to
// key per-server configuration, mirroring astpool's registered
// grammar set.
var extensionLanguages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".java": "java",
	".cpp":  "cpp",
	".cc":   "cpp",
	".h":    "cpp",
	".hpp":  "cpp",
	".cs":   "csharp",
	".php":  "php",
	".zig":  "zig",
}

func languageFromPath(path string) (string, bool) {
	lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// cacheKey identifies one cached LSP answer (spec.md §4.7 step 3):
// operation, file content digest, position, and any extra flags (e.g.
// includeDeclaration).
type cacheKey struct {
	op     string
	digest string
	line   int
	col    int
	flags  string
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// Result wraps any C7 operation's payload with a Fallback flag set
// when the server timed out or errored and the caller should proceed
// on structural (C3) information alone (spec.md §4.7 step 5).
type Result struct {
	Fallback bool
	Err      error
}

// ReferencesResult is the payload of the references operation.
type ReferencesResult struct {
	Result
	Locations []Location
}

// DefinitionResult is the payload of the definition operation.
type DefinitionResult struct {
	Result
	Locations []Location
}

// HoverResult is the payload of the hover operation.
type HoverResult struct {
	Result
	Contents string
}

// CallHierarchyResult is the payload of the call_hierarchy operation.
type CallHierarchyResult struct {
	Result
	Incoming []CallHierarchyIncomingCall
	Outgoing []CallHierarchyOutgoingCall
}

// ImplementationResult is the payload of the implementation operation.
type ImplementationResult struct {
	Result
	Locations []Location
}

// managerKey identifies one running Manager by workspace and language.
type managerKey struct {
	workspaceID string
	language    string
}

// Client is the high-level façade spec.md §4.7 describes: it resolves
// a file path to a workspace and language server, lazily spawns and
// initializes that server, serves cached answers within TTL, and
// degrades to an empty-but-successful result on timeout or error.
type Client struct {
	cfg    config.LSP
	router *router.Router
	log    *zap.Logger

	mu       sync.Mutex
	managers map[managerKey]*Manager

	cacheMu sync.Mutex
	cache   map[cacheKey]cacheEntry
}

// New constructs a Client bound to the given router (C10) and LSP
// configuration (per-server commands, timeouts, cache sizing).
func New(cfg config.LSP, r *router.Router, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:      cfg,
		router:   r,
		log:      log,
		managers: make(map[managerKey]*Manager),
		cache:    make(map[cacheKey]cacheEntry),
	}
}

// resolve implements steps 1-2: find the workspace, the language, and
// the (lazily started) Manager for that pair.
func (c *Client) resolve(ctx context.Context, path string) (string, *Manager, error) {
	if !c.cfg.Enabled {
		return "", nil, lcierrors.New(lcierrors.KindConfig, "resolve", fmt.Errorf("lsp disabled"))
	}

	root, ok := c.router.FindNearestWorkspace(path)
	if !ok {
		return "", nil, lcierrors.WorkspaceNotFound(path)
	}
	workspaceID := c.router.WorkspaceID(ctx, root)

	language, ok := languageFromPath(path)
	if !ok {
		return "", nil, lcierrors.New(lcierrors.KindConfig, "resolve", fmt.Errorf("no language server registered for %q", path))
	}

	serverCfg, ok := c.cfg.Servers[language]
	if !ok {
		return "", nil, lcierrors.New(lcierrors.KindConfig, "resolve", fmt.Errorf("no server configured for language %q", language)).WithLanguage(language)
	}

	mgr, err := c.ensureManager(ctx, workspaceID, root, language, serverCfg)
	if err != nil {
		return workspaceID, nil, err
	}
	return workspaceID, mgr, nil
}

func (c *Client) ensureManager(ctx context.Context, workspaceID, root, language string, serverCfg config.ServerConfig) (*Manager, error) {
	key := managerKey{workspaceID: workspaceID, language: language}

	c.mu.Lock()
	if mgr, ok := c.managers[key]; ok {
		c.mu.Unlock()
		return mgr, nil
	}
	mgr := New(language, serverCfg, c.cfg, c.log)
	c.managers[key] = mgr
	c.mu.Unlock()

	if err := mgr.Spawn(ctx, root); err != nil {
		return nil, err
	}
	if err := mgr.Initialize(ctx); err != nil {
		return nil, err
	}
	if err := mgr.WaitUntilReady(ctx); err != nil {
		c.log.Warn("lsp readiness degraded", zap.String("language", language), zap.Error(err))
	}
	return mgr, nil
}

// CloseAll shuts down every spawned server, used at daemon shutdown.
func (c *Client) CloseAll(ctx context.Context) {
	c.mu.Lock()
	managers := make([]*Manager, 0, len(c.managers))
	for _, mgr := range c.managers {
		managers = append(managers, mgr)
	}
	c.managers = make(map[managerKey]*Manager)
	c.mu.Unlock()

	for _, mgr := range managers {
		_ = mgr.Shutdown(ctx)
	}
}

// StatusEntry summarizes one spawned (workspace, language) server, for
// the daemon's `lsp/status` method.
type StatusEntry struct {
	WorkspaceID string
	Language    string
	State       string
}

// Status reports every spawned manager's lifecycle state.
func (c *Client) Status() []StatusEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StatusEntry, 0, len(c.managers))
	for key, mgr := range c.managers {
		out = append(out, StatusEntry{WorkspaceID: key.workspaceID, Language: key.language, State: mgr.State().String()})
	}
	return out
}

// Logs returns the recent stderr lines for one spawned server, or nil
// if no server is running for that (workspace, language) pair (the
// daemon's `lsp/logs` method).
func (c *Client) Logs(workspaceID, language string) []string {
	c.mu.Lock()
	mgr, ok := c.managers[managerKey{workspaceID: workspaceID, language: language}]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return mgr.RecentLogs()
}

func contentDigest(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), string(data), nil
}

func (c *Client) cacheGet(key cacheKey) (any, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (c *Client) cachePut(key cacheKey, value any) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if c.cfg.ResponseCacheSize > 0 && len(c.cache) >= c.cfg.ResponseCacheSize {
		for k := range c.cache {
			delete(c.cache, k)
			break
		}
	}
	c.cache[key] = cacheEntry{value: value, expiresAt: time.Now().Add(c.cfg.ResponseCacheTTL)}
}

func (c *Client) requestDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// References implements the references operation (spec.md §4.7).
func (c *Client) References(ctx context.Context, path string, line, col int, includeDeclaration bool) *ReferencesResult {
	flags := strconv.FormatBool(includeDeclaration)
	digest, text, err := contentDigest(path)
	if err != nil {
		return &ReferencesResult{Result: Result{Fallback: true, Err: err}}
	}
	key := cacheKey{op: "references", digest: digest, line: line, col: col, flags: flags}
	if cached, ok := c.cacheGet(key); ok {
		return cached.(*ReferencesResult)
	}

	_, mgr, err := c.resolve(ctx, path)
	if err != nil {
		return &ReferencesResult{Result: Result{Fallback: true, Err: err}}
	}
	if err := mgr.EnsureOpen(path, text); err != nil {
		return &ReferencesResult{Result: Result{Fallback: true, Err: err}}
	}

	reqCtx, cancel := c.requestDeadline(ctx)
	defer cancel()

	var locations []Location
	params := ReferenceParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: pathToURI(path)},
			Position:     Position{Line: line, Character: col},
		},
		Context: ReferenceContext{IncludeDeclaration: includeDeclaration},
	}
	if err := mgr.Request(reqCtx, "textDocument/references", params, &locations); err != nil {
		return &ReferencesResult{Result: Result{Fallback: true, Err: err}}
	}

	res := &ReferencesResult{Locations: locations}
	c.cachePut(key, res)
	return res
}

// Definition implements the definition operation.
func (c *Client) Definition(ctx context.Context, path string, line, col int) *DefinitionResult {
	digest, text, err := contentDigest(path)
	if err != nil {
		return &DefinitionResult{Result: Result{Fallback: true, Err: err}}
	}
	key := cacheKey{op: "definition", digest: digest, line: line, col: col}
	if cached, ok := c.cacheGet(key); ok {
		return cached.(*DefinitionResult)
	}

	_, mgr, err := c.resolve(ctx, path)
	if err != nil {
		return &DefinitionResult{Result: Result{Fallback: true, Err: err}}
	}
	if err := mgr.EnsureOpen(path, text); err != nil {
		return &DefinitionResult{Result: Result{Fallback: true, Err: err}}
	}

	reqCtx, cancel := c.requestDeadline(ctx)
	defer cancel()

	var locations []Location
	params := TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: pathToURI(path)},
		Position:     Position{Line: line, Character: col},
	}
	if err := mgr.Request(reqCtx, "textDocument/definition", params, &locations); err != nil {
		return &DefinitionResult{Result: Result{Fallback: true, Err: err}}
	}

	res := &DefinitionResult{Locations: locations}
	c.cachePut(key, res)
	return res
}

// Hover implements the hover operation.
func (c *Client) Hover(ctx context.Context, path string, line, col int) *HoverResult {
	digest, text, err := contentDigest(path)
	if err != nil {
		return &HoverResult{Result: Result{Fallback: true, Err: err}}
	}
	key := cacheKey{op: "hover", digest: digest, line: line, col: col}
	if cached, ok := c.cacheGet(key); ok {
		return cached.(*HoverResult)
	}

	_, mgr, err := c.resolve(ctx, path)
	if err != nil {
		return &HoverResult{Result: Result{Fallback: true, Err: err}}
	}
	if err := mgr.EnsureOpen(path, text); err != nil {
		return &HoverResult{Result: Result{Fallback: true, Err: err}}
	}

	reqCtx, cancel := c.requestDeadline(ctx)
	defer cancel()

	var raw struct {
		Contents any `json:"contents"`
	}
	params := TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: pathToURI(path)},
		Position:     Position{Line: line, Character: col},
	}
	if err := mgr.Request(reqCtx, "textDocument/hover", params, &raw); err != nil {
		return &HoverResult{Result: Result{Fallback: true, Err: err}}
	}

	res := &HoverResult{Contents: flattenHoverContents(raw.Contents)}
	c.cachePut(key, res)
	return res
}

func flattenHoverContents(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["value"].(string); ok {
			return s
		}
	case []any:
		var sb strings.Builder
		for _, item := range t {
			sb.WriteString(flattenHoverContents(item))
			sb.WriteByte('\n')
		}
		return sb.String()
	}
	return ""
}

// Implementation implements the implementation operation.
func (c *Client) Implementation(ctx context.Context, path string, line, col int) *ImplementationResult {
	digest, text, err := contentDigest(path)
	if err != nil {
		return &ImplementationResult{Result: Result{Fallback: true, Err: err}}
	}
	key := cacheKey{op: "implementation", digest: digest, line: line, col: col}
	if cached, ok := c.cacheGet(key); ok {
		return cached.(*ImplementationResult)
	}

	_, mgr, err := c.resolve(ctx, path)
	if err != nil {
		return &ImplementationResult{Result: Result{Fallback: true, Err: err}}
	}
	if err := mgr.EnsureOpen(path, text); err != nil {
		return &ImplementationResult{Result: Result{Fallback: true, Err: err}}
	}

	reqCtx, cancel := c.requestDeadline(ctx)
	defer cancel()

	var locations []Location
	params := TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: pathToURI(path)},
		Position:     Position{Line: line, Character: col},
	}
	if err := mgr.Request(reqCtx, "textDocument/implementation", params, &locations); err != nil {
		return &ImplementationResult{Result: Result{Fallback: true, Err: err}}
	}

	res := &ImplementationResult{Locations: locations}
	c.cachePut(key, res)
	return res
}

// CallHierarchy implements the call_hierarchy operation: prepare, take
// the first item (or return empty on null/empty), then fetch
// incoming/outgoing calls — an outgoing-side error degrades to an
// empty outgoing list rather than failing the whole operation
// (spec.md §4.7).
func (c *Client) CallHierarchy(ctx context.Context, path string, line, col int) *CallHierarchyResult {
	digest, text, err := contentDigest(path)
	if err != nil {
		return &CallHierarchyResult{Result: Result{Fallback: true, Err: err}}
	}
	key := cacheKey{op: "call_hierarchy", digest: digest, line: line, col: col}
	if cached, ok := c.cacheGet(key); ok {
		return cached.(*CallHierarchyResult)
	}

	_, mgr, err := c.resolve(ctx, path)
	if err != nil {
		return &CallHierarchyResult{Result: Result{Fallback: true, Err: err}}
	}
	if err := mgr.EnsureOpen(path, text); err != nil {
		return &CallHierarchyResult{Result: Result{Fallback: true, Err: err}}
	}

	reqCtx, cancel := c.requestDeadline(ctx)
	defer cancel()

	var items []CallHierarchyItem
	prepareParams := CallHierarchyPrepareParams{
		TextDocument: TextDocumentIdentifier{URI: pathToURI(path)},
		Position:     Position{Line: line, Character: col},
	}
	if err := mgr.Request(reqCtx, "textDocument/prepareCallHierarchy", prepareParams, &items); err != nil {
		return &CallHierarchyResult{Result: Result{Fallback: true, Err: err}}
	}
	if len(items) == 0 {
		res := &CallHierarchyResult{}
		c.cachePut(key, res)
		return res
	}
	item := items[0]

	var incoming []CallHierarchyIncomingCall
	if err := mgr.Request(reqCtx, "callHierarchy/incomingCalls", map[string]any{"item": item}, &incoming); err != nil {
		return &CallHierarchyResult{Result: Result{Fallback: true, Err: err}}
	}

	var outgoing []CallHierarchyOutgoingCall
	if err := mgr.Request(reqCtx, "callHierarchy/outgoingCalls", map[string]any{"item": item}, &outgoing); err != nil {
		outgoing = nil // outgoing-side errors degrade to an empty list only
	}

	res := &CallHierarchyResult{Incoming: incoming, Outgoing: outgoing}
	c.cachePut(key, res)
	return res
}
