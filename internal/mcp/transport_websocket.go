package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = wsPingPeriod + 10*time.Second
)

// WebSocketTransport implements the MCP WebSocket transport: a single
// full-duplex connection carrying framed JSON-RPC messages, with a
// client-driven ping/pong heartbeat keeping the connection alive.
type WebSocketTransport struct {
	config *ServerConfig
	logger *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	pending   map[int64]chan *JSONRPCResponse
	pendingMu sync.Mutex
	events    chan *JSONRPCNotification
	requests  chan *JSONRPCRequest
	nextID    atomic.Int64

	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewWebSocketTransport creates a new WebSocket transport.
func NewWebSocketTransport(cfg *ServerConfig) *WebSocketTransport {
	return &WebSocketTransport{
		config:   cfg,
		logger:   slog.Default().With("mcp_server", cfg.ID, "transport", "websocket"),
		pending:  make(map[int64]chan *JSONRPCResponse),
		events:   make(chan *JSONRPCNotification, 100),
		requests: make(chan *JSONRPCRequest, 100),
		stopChan: make(chan struct{}),
	}
}

// Connect dials the WebSocket endpoint and starts the read and heartbeat
// loops.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for websocket transport")
	}

	header := make(map[string][]string, len(t.config.Headers))
	for k, v := range t.config.Headers {
		header[k] = []string{v}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.config.URL, header)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	t.conn = conn
	t.connected.Store(true)
	t.logger.Info("websocket transport connected", "url", t.config.URL)

	t.wg.Add(2)
	go t.readLoop()
	go t.heartbeatLoop()

	return nil
}

// Close closes the WebSocket connection.
func (t *WebSocketTransport) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(t.stopChan)

	t.connMu.Lock()
	if t.conn != nil {
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait))
		t.conn.Close()
	}
	t.connMu.Unlock()

	t.wg.Wait()
	return nil
}

func (t *WebSocketTransport) writeJSON(v any) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return t.conn.WriteJSON(v)
}

// Call sends a request and waits for a response.
func (t *WebSocketTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	id := t.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = paramsJSON
	}

	respChan := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = respChan
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.writeJSON(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	timeout := t.config.Timeout
	if timeout == 0 {
		timeout = DefaultMCPRequestTimeout
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		t.notifyCancelled(id)
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("request timeout after %v", timeout)
	case <-t.stopChan:
		return nil, fmt.Errorf("transport closed")
	}
}

// notifyCancelled tells the server the in-flight request id was abandoned
// client-side via a notifications/cancelled frame. Best-effort:
// the write uses a short deadline of its own via writeJSON and any error is
// swallowed, since the caller is already unwinding on ctx cancellation.
func (t *WebSocketTransport) notifyCancelled(id int64) {
	params, _ := json.Marshal(map[string]any{"requestId": id})
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: "notifications/cancelled", Params: params}
	_ = t.writeJSON(notif)
}

// Notify sends a notification (no response expected).
func (t *WebSocketTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}

	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = paramsJSON
	}
	return t.writeJSON(notif)
}

// Events returns the notification channel.
func (t *WebSocketTransport) Events() <-chan *JSONRPCNotification {
	return t.events
}

// Requests returns the server-initiated request channel.
func (t *WebSocketTransport) Requests() <-chan *JSONRPCRequest {
	return t.requests
}

// Respond sends a response to a server-initiated request.
func (t *WebSocketTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}

	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil && result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resp.Result = data
	}
	return t.writeJSON(resp)
}

// Connected returns whether the transport is connected.
func (t *WebSocketTransport) Connected() bool {
	return t.connected.Load()
}

// heartbeatLoop sends periodic pings; the pong handler refreshes the read
// deadline, so a lost connection surfaces as a read timeout in readLoop.
func (t *WebSocketTransport) heartbeatLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.connMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			t.connMu.Unlock()
			if err != nil {
				t.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// readLoop reads frames off the socket and routes them by shape: responses
// (id present, no method) complete a pending call; server-initiated
// requests (id and method present) go to requests; everything else with a
// method and no id is a notification.
func (t *WebSocketTransport) readLoop() {
	defer t.wg.Done()
	defer t.connected.Store(false)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.stopChan:
			default:
				t.logger.Debug("websocket read error", "error", err)
			}
			return
		}
		t.processFrame(data)
	}
}

func (t *WebSocketTransport) processFrame(data []byte) {
	var maybeReq JSONRPCRequest
	if err := json.Unmarshal(data, &maybeReq); err == nil && maybeReq.ID != nil && maybeReq.Method != "" {
		select {
		case t.requests <- &maybeReq:
		default:
			t.logger.Warn("request channel full, dropping")
		}
		return
	}

	var resp JSONRPCResponse
	if err := json.Unmarshal(data, &resp); err == nil && resp.ID != nil {
		var id int64
		switch v := resp.ID.(type) {
		case float64:
			id = int64(v)
		case int64:
			id = v
		case int:
			id = int64(v)
		default:
			t.logger.Warn("unexpected response ID type", "id", resp.ID)
			return
		}

		t.pendingMu.Lock()
		if ch, ok := t.pending[id]; ok {
			select {
			case ch <- &resp:
			default:
			}
			delete(t.pending, id)
		}
		t.pendingMu.Unlock()
		return
	}

	var notif JSONRPCNotification
	if err := json.Unmarshal(data, &notif); err == nil && notif.Method != "" {
		select {
		case t.events <- &notif:
		default:
			t.logger.Warn("notification channel full, dropping")
		}
	}
}
