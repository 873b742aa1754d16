package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/probelabs/probe-sub004/internal/config"
	"github.com/probelabs/probe-sub004/internal/lcierrors"
	"github.com/probelabs/probe-sub004/internal/wire"
)

// State is one node of the per-(workspace, language) process state
// machine spec.md §4.6 defines.
type State int

const (
	StateAbsent State = iota
	StateSpawning
	StateInitializing
	StateReady
	StateDraining
	StateExited
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateSpawning:
		return "spawning"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateExited:
		return "exited"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// readinessSilenceWindow is how long the manager waits without seeing
// further progress after an end-of-progress notification before
// declaring the server ready (spec.md §4.6 "bounded silence period").
const readinessSilenceWindow = 300 * time.Millisecond

// readyStatusMethod is the language-server-specific status
// notification some servers send in place of (or ahead of) progress
// silence; gopls and several others emit it under this name.
const readyStatusMethod = "language/status"

// Manager owns one LSP subprocess for one (workspace, language) pair:
// spawn, initialize, wait_until_ready, request/response correlation,
// and shutdown (spec.md §4.6).
type Manager struct {
	language      string
	workspaceRoot string
	serverCfg     config.ServerConfig
	lspCfg        config.LSP
	log           *zap.Logger

	cmd    *exec.Cmd
	writer *wire.Writer

	mu    sync.Mutex
	state State

	nextID    int64
	pendingMu sync.Mutex
	pending   map[int64]chan *wire.Message

	notifications chan *wire.Message

	shuttingDown atomic.Bool
	readLoopDone chan struct{}
	stderrDone   chan struct{}

	docsMu sync.Mutex
	docs   map[string]int // open document path -> LSP document version

	logMu    sync.Mutex
	logLines []string // recent stderr lines, capped at maxLogLines
}

// maxLogLines bounds the in-memory stderr ring buffer each Manager
// keeps for the daemon's lsp/logs method.
const maxLogLines = 200

// New constructs a Manager in the absent state; callers drive it
// through Spawn/Initialize/WaitUntilReady before issuing requests.
func New(language string, serverCfg config.ServerConfig, lspCfg config.LSP, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		language:      language,
		serverCfg:     serverCfg,
		lspCfg:        lspCfg,
		log:           log,
		state:         StateAbsent,
		pending:       make(map[int64]chan *wire.Message),
		notifications: make(chan *wire.Message, 64),
		docs:          make(map[string]int),
	}
}

// State reports the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Spawn starts the configured subprocess with workspaceRoot as its
// working directory, wires stdin/stdout through internal/wire, and
// starts the stderr drain and read-loop goroutines (spec.md §4.6
// "spawn").
func (m *Manager) Spawn(ctx context.Context, workspaceRoot string) error {
	m.setState(StateSpawning)
	m.workspaceRoot = workspaceRoot

	cmd := exec.Command(m.serverCfg.Command, m.serverCfg.Args...)
	if workspaceRoot != "" {
		cmd.Dir = workspaceRoot
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		m.setState(StateErrored)
		return fmt.Errorf("lsp spawn: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.setState(StateErrored)
		return fmt.Errorf("lsp spawn: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.setState(StateErrored)
		return fmt.Errorf("lsp spawn: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		m.setState(StateErrored)
		return lcierrors.LSPProtocolError("spawn", err).WithLanguage(m.language)
	}

	m.cmd = cmd
	m.writer = wire.NewWriter(stdin)
	reader := wire.NewReader(stdout)

	m.readLoopDone = make(chan struct{})
	m.stderrDone = make(chan struct{})

	go m.drainStderr(stderr)
	go m.readLoop(reader)

	m.setState(StateInitializing)
	return nil
}

// drainStderr copies the subprocess's stderr into the structured
// logger line by line until the pipe closes or shutdown begins.
func (m *Manager) drainStderr(stderr io.ReadCloser) {
	defer close(m.stderrDone)
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if m.shuttingDown.Load() {
			return
		}
		line := scanner.Text()
		m.log.Debug("lsp stderr", zap.String("language", m.language), zap.String("line", line))
		m.appendLogLine(line)
	}
}

func (m *Manager) appendLogLine(line string) {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	m.logLines = append(m.logLines, line)
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}
}

// RecentLogs returns a copy of the server's most recent stderr lines,
// oldest first (spec.md §6 `lsp/logs`).
func (m *Manager) RecentLogs() []string {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	out := make([]string, len(m.logLines))
	copy(out, m.logLines)
	return out
}

// readLoop dispatches frames to pending response channels (responses
// have an id and no method), to the notifications channel (no id), or
// answers server-initiated requests in place (id and method).
func (m *Manager) readLoop(r *wire.Reader) {
	defer close(m.readLoopDone)
	for {
		msg, err := r.ReadMessage()
		if err != nil {
			if !m.shuttingDown.Load() {
				m.setState(StateErrored)
			}
			return
		}

		switch {
		case msg.IsResponse():
			m.dispatchResponse(msg)
		case msg.IsRequest():
			m.handleServerRequest(msg)
		default:
			select {
			case m.notifications <- msg:
			default: // drop if nobody is listening; readiness wait is optional
			}
		}
	}
}

func (m *Manager) dispatchResponse(msg *wire.Message) {
	var id int64
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		return
	}
	m.pendingMu.Lock()
	ch, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.pendingMu.Unlock()
	if ok {
		ch <- msg
	}
}

// handleServerRequest answers server-initiated requests the manager
// knows how to satisfy; spec.md §4.6 names window/workDoneProgress/create
// as the one every server expects a null reply to.
func (m *Manager) handleServerRequest(msg *wire.Message) {
	if msg.Method == "window/workDoneProgress/create" {
		var id int64
		_ = json.Unmarshal(msg.ID, &id)
		_ = m.writer.WriteMessage(&wire.Response{JSONRPC: "2.0", ID: id, Result: json.RawMessage("null")})
	}
}

// call sends a request and blocks for its matching response or ctx
// cancellation, whichever comes first.
func (m *Manager) call(ctx context.Context, method string, params any) (*wire.Message, error) {
	id := atomic.AddInt64(&m.nextID, 1)
	ch := make(chan *wire.Message, 1)
	m.pendingMu.Lock()
	m.pending[id] = ch
	m.pendingMu.Unlock()

	if err := m.writer.WriteMessage(wire.NewRequest(id, method, params)); err != nil {
		m.pendingMu.Lock()
		delete(m.pending, id)
		m.pendingMu.Unlock()
		return nil, lcierrors.LSPProtocolError(method, err).WithLanguage(m.language)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, lcierrors.LSPProtocolError(method, msg.Error).WithLanguage(m.language)
		}
		return msg, nil
	case <-ctx.Done():
		m.pendingMu.Lock()
		delete(m.pending, id)
		m.pendingMu.Unlock()
		return nil, lcierrors.LSPTimeout(method)
	}
}

func (m *Manager) notify(method string, params any) error {
	return m.writer.WriteMessage(wire.NewNotification(method, params))
}

// Initialize performs the initialize/initialized handshake under the
// configured deadline (spec.md §4.6).
func (m *Manager) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.lspCfg.InitializeTimeout)
	defer cancel()

	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   pathToURI(m.workspaceRoot),
		"workspaceFolders": []map[string]any{
			{"uri": pathToURI(m.workspaceRoot), "name": m.workspaceRoot},
		},
		"capabilities": standardCapabilities(),
	}

	if _, err := m.call(ctx, "initialize", params); err != nil {
		m.setState(StateErrored)
		return err
	}
	if err := m.notify("initialized", map[string]any{}); err != nil {
		m.setState(StateErrored)
		return lcierrors.LSPProtocolError("initialized", err).WithLanguage(m.language)
	}
	m.setState(StateReady)
	return nil
}

// progressValue is the subset of a $/progress notification's value
// object this manager inspects.
type progressValue struct {
	Kind       string `json:"kind"` // "begin" | "report" | "end"
	Percentage int    `json:"percentage"`
}

type progressParams struct {
	Value json.RawMessage `json:"value"`
}

// WaitUntilReady consumes progress notifications until the server
// reports readiness by a status notification, by a bounded silence
// period after its last progress-end, or — past budget at or above
// config.LSP.ReadyThresholdPercent completion (80 when unset) — by
// proceeding with partial readiness (spec.md §4.6,
// REDESIGN FLAGS' "explicit state machine" request: the loop below is
// that state machine, with Progress/StatusReady/Silence/Tick as the
// four event inputs).
func (m *Manager) WaitUntilReady(ctx context.Context) error {
	deadline := time.Now().Add(m.lspCfg.InitializeTimeout)
	threshold := m.lspCfg.ReadyThresholdPercent
	if threshold <= 0 {
		threshold = 80
	}
	lastPct := -1
	cooling := false
	var coolingSince time.Time

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			if lastPct >= threshold {
				return nil // partial readiness
			}
			return lcierrors.IndexingStalled(m.language)
		}

		tick := readinessSilenceWindow
		if tick > remaining {
			tick = remaining
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case note, ok := <-m.notifications:
			if !ok {
				return lcierrors.LSPProtocolError("wait_until_ready", fmt.Errorf("notification stream closed")).WithLanguage(m.language)
			}
			switch note.Method {
			case readyStatusMethod:
				return nil
			case "$/progress":
				var p progressParams
				if err := json.Unmarshal(note.Params, &p); err == nil {
					var v progressValue
					if err := json.Unmarshal(p.Value, &v); err == nil {
						if v.Percentage > 0 {
							lastPct = v.Percentage
						}
						if v.Kind == "end" {
							cooling = true
							coolingSince = time.Now()
						} else {
							cooling = false
						}
					}
				}
			}
		case <-time.After(tick):
			if cooling && time.Since(coolingSince) >= readinessSilenceWindow {
				return nil
			}
		}
	}
}

// EnsureOpen sends textDocument/didOpen the first time path is seen by
// this server connection; subsequent calls are no-ops (spec.md §4.7
// step 4).
func (m *Manager) EnsureOpen(path, text string) error {
	m.docsMu.Lock()
	_, open := m.docs[path]
	if open {
		m.docsMu.Unlock()
		return nil
	}
	m.docs[path] = 1
	m.docsMu.Unlock()

	return m.notify("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        pathToURI(path),
			LanguageID: m.language,
			Version:    1,
			Text:       text,
		},
	})
}

// Close sends textDocument/didClose and forgets the document, so a
// subsequent EnsureOpen reopens it cleanly (spec.md §4.7's R3: closing
// a document leaves no residual lock on it).
func (m *Manager) Close(path string) error {
	m.docsMu.Lock()
	_, open := m.docs[path]
	delete(m.docs, path)
	m.docsMu.Unlock()
	if !open {
		return nil
	}
	return m.notify("textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: pathToURI(path)},
	})
}

// Request issues an arbitrary LSP request under the client wrapper's
// per-operation deadline and decodes its result into out.
func (m *Manager) Request(ctx context.Context, method string, params, out any) error {
	msg, err := m.call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(msg.Result) == 0 || string(msg.Result) == "null" {
		return nil
	}
	return json.Unmarshal(msg.Result, out)
}

// Shutdown sends shutdown/exit, waits briefly for a graceful process
// exit, then force-terminates; always signals the stderr drainer and
// reaps it bounded (spec.md §4.6 "shutdown"). Reentrant-safe: a second
// call observes shuttingDown already set and just waits.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.setState(StateDraining)
	alreadyShuttingDown := m.shuttingDown.Swap(true)

	if !alreadyShuttingDown {
		shutdownCtx, cancel := context.WithTimeout(ctx, m.lspCfg.ShutdownTimeout)
		_, _ = m.call(shutdownCtx, "shutdown", nil)
		cancel()
		_ = m.notify("exit", nil)
	}

	exited := make(chan error, 1)
	go func() { exited <- m.cmd.Wait() }()

	select {
	case <-exited:
	case <-time.After(m.lspCfg.ShutdownTimeout):
		if m.cmd.Process != nil {
			_ = m.cmd.Process.Kill()
		}
		select {
		case <-exited:
		case <-time.After(m.lspCfg.ShutdownTimeout):
			m.setState(StateErrored)
			return lcierrors.ShutdownTimeout(m.language)
		}
	}

	<-m.readLoopDone
	<-m.stderrDone
	m.setState(StateExited)
	return nil
}
