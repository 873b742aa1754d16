package lsp

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/probelabs/probe-sub004/internal/config"
	"github.com/probelabs/probe-sub004/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// wiredManager builds a Manager whose writer/reader are connected to
// in-memory pipes instead of a real subprocess, so tests can drive the
// wire protocol directly without spawning a binary.
func wiredManager(t *testing.T) (*Manager, *wire.Reader, *wire.Writer) {
	t.Helper()
	serverIn, clientOut := io.Pipe() // manager writes here; test reads as "server"
	clientIn, serverOut := io.Pipe() // test writes here as "server"; manager reads

	m := New("go", config.ServerConfig{}, config.LSP{
		InitializeTimeout: time.Second,
		RequestTimeout:    time.Second,
		ShutdownTimeout:   time.Second,
	}, nil)
	m.writer = wire.NewWriter(clientOut)
	m.readLoopDone = make(chan struct{})
	m.stderrDone = make(chan struct{})
	close(m.stderrDone)

	go m.readLoop(wire.NewReader(clientIn))

	t.Cleanup(func() {
		serverIn.Close()
		serverOut.Close()
		clientIn.Close()
		clientOut.Close()
	})

	return m, wire.NewReader(serverIn), wire.NewWriter(serverOut)
}

func TestManager_InitializeHandshake(t *testing.T) {
	m, serverReader, serverWriter := wiredManager(t)

	go func() {
		req, err := serverReader.ReadMessage()
		if err != nil {
			return
		}
		var id int64
		_ = json.Unmarshal(req.ID, &id)
		_ = serverWriter.WriteMessage(&wire.Response{JSONRPC: "2.0", ID: id, Result: map[string]any{"capabilities": map[string]any{}}})

		note, err := serverReader.ReadMessage()
		if err == nil {
			assert.Equal(t, "initialized", note.Method)
		}
	}()

	m.workspaceRoot = t.TempDir()
	err := m.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateReady, m.State())
}

func TestManager_ServerRequestRespondedToWithNull(t *testing.T) {
	m, serverReader, serverWriter := wiredManager(t)

	require.NoError(t, serverWriter.WriteMessage(wire.NewRequest(99, "window/workDoneProgress/create", map[string]any{"token": "t1"})))

	resp, err := serverReader.ReadMessage()
	require.NoError(t, err)
	assert.True(t, resp.IsResponse())

	var id int64
	require.NoError(t, json.Unmarshal(resp.ID, &id))
	assert.Equal(t, int64(99), id)
	assert.Equal(t, "null", string(resp.Result))
}

func TestManager_WaitUntilReady_SilenceAfterProgressEnd(t *testing.T) {
	m, _, serverWriter := wiredManager(t)

	go func() {
		require.NoError(t, serverWriter.WriteMessage(wire.NewNotification("$/progress", map[string]any{
			"value": map[string]any{"kind": "begin", "percentage": 10},
		})))
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, serverWriter.WriteMessage(wire.NewNotification("$/progress", map[string]any{
			"value": map[string]any{"kind": "end", "percentage": 100},
		})))
	}()

	start := time.Now()
	err := m.WaitUntilReady(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), readinessSilenceWindow)
}

func TestManager_WaitUntilReady_StatusNotificationShortCircuits(t *testing.T) {
	m, _, serverWriter := wiredManager(t)

	go func() {
		require.NoError(t, serverWriter.WriteMessage(wire.NewNotification(readyStatusMethod, map[string]any{"status": "ready"})))
	}()

	err := m.WaitUntilReady(context.Background())
	require.NoError(t, err)
}

func TestManager_CallTimesOutUnderDeadline(t *testing.T) {
	m, _, _ := wiredManager(t)
	// no fake server response is ever sent

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := m.call(ctx, "textDocument/hover", map[string]any{})
	require.Error(t, err)
}

func TestManager_EnsureOpenIsIdempotentPerPath(t *testing.T) {
	m, serverReader, _ := wiredManager(t)

	done := make(chan struct{})
	var count int
	go func() {
		defer close(done)
		for i := 0; i < 1; i++ {
			if _, err := serverReader.ReadMessage(); err == nil {
				count++
			}
		}
	}()

	require.NoError(t, m.EnsureOpen("/tmp/a.go", "package main"))
	require.NoError(t, m.EnsureOpen("/tmp/a.go", "package main")) // second call is a no-op, no second didOpen

	<-done
	assert.Equal(t, 1, count)
}
