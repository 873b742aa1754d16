package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelabs/probe-sub004/internal/config"
	"github.com/probelabs/probe-sub004/internal/probeclient"
)

func testSocketPath(t *testing.T) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("probed-test-%s.sock", t.Name()))
}

func newTestServer(t *testing.T) (*Server, *probeclient.Client) {
	t.Helper()
	socketPath := testSocketPath(t)
	t.Cleanup(func() { os.Remove(socketPath) })

	cfg := config.Default()
	cfg.Router.BaseCacheDir = t.TempDir()
	cfg.Project.Root = t.TempDir()

	srv := New(cfg, socketPath)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return srv, probeclient.New(socketPath)
}

func TestServer_BasicLifecycle(t *testing.T) {
	_, client := newTestServer(t)
	assert.True(t, client.Running())
}

func TestServer_UnknownMethod(t *testing.T) {
	_, client := newTestServer(t)

	err := client.Call("not_a_method", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown method")
}

func TestServer_WorkspaceListEmpty(t *testing.T) {
	_, client := newTestServer(t)

	var result struct {
		Workspaces []string `json:"workspaces"`
	}
	require.NoError(t, client.Call("workspace/list", nil, &result))
	assert.Empty(t, result.Workspaces)
}

func TestServer_OutOfScopeMethodsRejected(t *testing.T) {
	_, client := newTestServer(t)

	for _, method := range []string{"search", "extract", "query"} {
		err := client.Call(method, nil, nil)
		require.Error(t, err, "method %s should be rejected", method)
		assert.Contains(t, err.Error(), "not implemented by this daemon build")
	}
}

func TestServer_IndexStatusUnknownWorkspace(t *testing.T) {
	_, client := newTestServer(t)

	err := client.Call("index/status", map[string]any{"workspace_id": "nonexistent"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown workspace")
}

func TestServer_ShutdownStopsAcceptingConnections(t *testing.T) {
	socketPath := testSocketPath(t)
	defer os.Remove(socketPath)

	cfg := config.Default()
	cfg.Router.BaseCacheDir = t.TempDir()
	cfg.Project.Root = t.TempDir()

	srv := New(cfg, socketPath)
	require.NoError(t, srv.Start())

	client := probeclient.New(socketPath)
	require.True(t, client.Running())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	assert.False(t, client.Running())
}

func TestSocketPathForRoot_DeterministicPerRoot(t *testing.T) {
	a := SocketPathForRoot("/tmp/workspace-a")
	b := SocketPathForRoot("/tmp/workspace-a")
	c := SocketPathForRoot("/tmp/workspace-b")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
