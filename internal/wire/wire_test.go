package wire

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReader_RoundTripsRequest(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteMessage(NewRequest(1, "initialize", map[string]string{"foo": "bar"})))

	r := NewReader(&buf)
	msg, err := r.ReadMessage()
	require.NoError(t, err)

	assert.True(t, msg.IsRequest())
	assert.Equal(t, "initialize", msg.Method)

	var id int64
	require.NoError(t, json.Unmarshal(msg.ID, &id))
	assert.Equal(t, int64(1), id)
}

func TestWriterReader_RoundTripsNotification(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteMessage(NewNotification("textDocument/didOpen", nil)))

	r := NewReader(&buf)
	msg, err := r.ReadMessage()
	require.NoError(t, err)

	assert.True(t, msg.IsNotification())
	assert.False(t, msg.IsRequest())
	assert.Equal(t, "textDocument/didOpen", msg.Method)
}

func TestWriterReader_RoundTripsResponseWithError(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteMessage(&Response{JSONRPC: "2.0", ID: 2, Error: &Error{Code: -32601, Message: "method not found"}}))

	r := NewReader(&buf)
	msg, err := r.ReadMessage()
	require.NoError(t, err)

	assert.True(t, msg.IsResponse())
	require.NotNil(t, msg.Error)
	assert.Equal(t, -32601, msg.Error.Code)
}

func TestReadMessage_MultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteMessage(NewRequest(1, "a", nil)))
	require.NoError(t, w.WriteMessage(NewRequest(2, "b", nil)))

	r := NewReader(&buf)
	first, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "a", first.Method)

	second, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "b", second.Method)
}

func TestReadMessage_MissingContentLengthIsProtocolError(t *testing.T) {
	buf := bytes.NewBufferString("Content-Type: application/json\r\n\r\n")
	r := NewReader(buf)
	_, err := r.ReadMessage()
	assert.Error(t, err)
}

func TestReadMessage_CaseInsensitiveHeaderName(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":5,"method":"ping"}`)
	buf := bytes.NewBufferString("content-length: " + itoa(len(body)) + "\r\n\r\n" + string(body))
	r := NewReader(buf)
	msg, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ping", msg.Method)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
