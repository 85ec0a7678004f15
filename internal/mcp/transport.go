package mcp

import (
	"context"
	"encoding/json"
)

// Transport is the wire layer a client session runs over. Implementations
// exist for stdio subprocesses, HTTP(+SSE), and websockets; all of them
// speak JSON-RPC 2.0 framed per their transport.
//
// Events carries server notifications; Requests carries server-initiated
// requests (sampling), answered via Respond.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error

	// Call sends a request and blocks for its response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	// Notify sends a fire-and-forget notification.
	Notify(ctx context.Context, method string, params any) error

	Events() <-chan *JSONRPCNotification
	Requests() <-chan *JSONRPCRequest
	Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error

	Connected() bool
}

// NewTransport picks the transport for cfg; stdio is the default.
func NewTransport(cfg *ServerConfig) Transport {
	switch cfg.Transport {
	case TransportHTTP:
		return NewHTTPTransport(cfg)
	case TransportWebSocket:
		return NewWebSocketTransport(cfg)
	default:
		return NewStdioTransport(cfg)
	}
}
