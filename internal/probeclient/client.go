// Package probeclient is the thin RPC client cmd/probe dials the daemon
// (C17) with: one request per connection, framed the same way as the
// daemon's own socket transport, mirroring the shape of the teacher's
// internal/server.Client but speaking wire's JSON-RPC envelope over a
// raw Unix socket instead of HTTP-over-socket.
package probeclient

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/probelabs/probe-sub004/internal/wire"
)

// Client dials a daemon's Unix socket for one-shot request/response
// calls. It is not a persistent connection: each Call opens, sends,
// reads the reply, and closes, since cmd/probe is a short-lived CLI
// process rather than a long-running client.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// New constructs a Client bound to socketPath.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 30 * time.Second}
}

// Running reports whether a daemon is listening on the socket.
func (c *Client) Running() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// WaitReady polls until the daemon accepts connections or timeout
// elapses, used after spawning a daemon in the background.
func (c *Client) WaitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Running() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not become ready within %s", timeout)
}

// Call sends one JSON-RPC request and decodes its result into out (a
// pointer), or returns the daemon's reported error.
func (c *Client) Call(method string, params any, out any) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	writer := wire.NewWriter(conn)
	if err := writer.WriteMessage(wire.NewRequest(1, method, params)); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	reader := wire.NewReader(conn)
	msg, err := reader.ReadMessage()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if msg.Error != nil {
		return msg.Error
	}
	if out == nil || len(msg.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
