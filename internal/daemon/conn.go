package daemon

import (
	"encoding/json"
	"net"

	"go.uber.org/zap"

	"github.com/probelabs/probe-sub004/internal/wire"
)

// serveConn drains one client connection until it closes or sends a
// frame this codec can't parse, dispatching each request frame to the
// method table and writing back a framed Response. Per spec.md §6 the
// connection speaks the same Content-Length-framed JSON-RPC envelope
// as the daemon-to-language-server hop, so it reuses internal/wire
// directly rather than a second bespoke codec.
func (s *Server) serveConn(connID string, conn net.Conn) {
	defer conn.Close()

	log := s.log.With(zap.String("conn", connID))
	reader := wire.NewReader(conn)
	writer := wire.NewWriter(conn)

	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			return // client closed, or a malformed frame ends the connection
		}

		if !msg.IsRequest() {
			continue // notifications carry no reply obligation
		}

		var id int64
		if err := json.Unmarshal(msg.ID, &id); err != nil {
			_ = writer.WriteMessage(&wire.Response{JSONRPC: "2.0", Error: rpcError(codeInvalidParams, "request id must be a number")})
			continue
		}

		h, ok := methodTable[msg.Method]
		if !ok {
			_ = writer.WriteMessage(&wire.Response{JSONRPC: "2.0", ID: id, Error: rpcError(codeMethodNotFound, "unknown method: "+msg.Method)})
			continue
		}

		result, rerr := h(s.ctx, s, msg.Params)
		resp := &wire.Response{JSONRPC: "2.0", ID: id}
		if rerr != nil {
			resp.Error = rerr
			log.Debug("request failed", zap.String("method", msg.Method), zap.Int("code", rerr.Code))
		} else {
			resp.Result = result
		}
		if err := writer.WriteMessage(resp); err != nil {
			return
		}
	}
}
