package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	execsafety "github.com/sagerun/sage/internal/exec"
)

// StdioTransport speaks newline-delimited JSON-RPC with a child process:
// requests on its stdin, frames back on its stdout, stderr piped to the
// debug log.
type StdioTransport struct {
	config *ServerConfig
	logger *slog.Logger

	process *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	stderr  io.ReadCloser

	pending   map[int64]chan *JSONRPCResponse
	pendingMu sync.Mutex
	events    chan *JSONRPCNotification
	requests  chan *JSONRPCRequest
	nextID    atomic.Int64

	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewStdioTransport creates a stdio transport for cfg.
func NewStdioTransport(cfg *ServerConfig) *StdioTransport {
	return &StdioTransport{
		config:   cfg,
		logger:   slog.Default().With("mcp_server", cfg.ID, "transport", "stdio"),
		pending:  make(map[int64]chan *JSONRPCResponse),
		events:   make(chan *JSONRPCNotification, 100),
		requests: make(chan *JSONRPCRequest, 100),
		stopChan: make(chan struct{}),
	}
}

// Connect spawns the server process and starts the stdout/stderr readers.
func (t *StdioTransport) Connect(ctx context.Context) error {
	if t.config.Command == "" {
		return fmt.Errorf("command is required for stdio transport")
	}

	// The configured command line comes from user config; refuse anything
	// that smells like shell injection before it reaches the OS.
	command, err := execsafety.SanitizeExecutableValue(t.config.Command)
	if err != nil {
		return fmt.Errorf("stdio command %q: %w", t.config.Command, err)
	}
	args, err := execsafety.SanitizeArguments(t.config.Args)
	if err != nil {
		return fmt.Errorf("stdio args for %q: %w", command, err)
	}

	if err := t.spawn(ctx, command, args); err != nil {
		return err
	}

	t.connected.Store(true)
	t.logger.Info("started MCP server process",
		"command", t.config.Command,
		"pid", t.process.Process.Pid)

	t.wg.Add(1)
	go t.readLoop()
	if t.stderr != nil {
		t.wg.Add(1)
		go t.drainStderr()
	}
	return nil
}

// spawn builds and starts the child with its pipes wired up.
func (t *StdioTransport) spawn(ctx context.Context, command string, args []string) error {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = os.Environ()
	for k, v := range t.config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if t.config.WorkDir != "" {
		cmd.Dir = t.config.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, _ := cmd.StderrPipe()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	t.process = cmd
	t.stdin = stdin
	t.stdout = scanner
	t.stderr = stderr
	return nil
}

// Close kills the child and waits for the readers to drain.
func (t *StdioTransport) Close() error {
	t.connected.Store(false)
	close(t.stopChan)

	if t.stdin != nil {
		t.stdin.Close()
	}
	if t.process != nil && t.process.Process != nil {
		t.process.Process.Kill()
	}
	t.wg.Wait()
	return nil
}

// Call sends a request frame and blocks for its response, the context,
// the per-server timeout, or transport shutdown, whichever lands first.
func (t *StdioTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	id := t.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = encoded
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

	if err := t.writeFrame(req); err != nil {
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
// client-side via a notifications/cancelled frame. Any response that
// arrives afterward is dropped when no pending entry remains for id.
func (t *StdioTransport) notifyCancelled(id int64) {
	params, _ := json.Marshal(map[string]any{"requestId": id})
	_ = t.writeFrame(JSONRPCNotification{JSONRPC: "2.0", Method: "notifications/cancelled", Params: params})
}

// writeFrame marshals one message as a newline-delimited frame on the
// child's stdin.
func (t *StdioTransport) writeFrame(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	_, err = t.stdin.Write(append(data, '\n'))
	return err
}

// Notify sends a notification frame; no response is expected.
func (t *StdioTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}

	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = encoded
	}
	if err := t.writeFrame(notif); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

func (t *StdioTransport) Events() <-chan *JSONRPCNotification {
	return t.events
}

func (t *StdioTransport) Requests() <-chan *JSONRPCRequest {
	return t.requests
}

// Respond answers a server-initiated request over stdin.
func (t *StdioTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
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
	if err := t.writeFrame(resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func (t *StdioTransport) Connected() bool {
	return t.connected.Load()
}

// readLoop scans stdout frames until the child exits or the transport
// stops.
func (t *StdioTransport) readLoop() {
	defer t.wg.Done()
	defer t.connected.Store(false)

	for t.stdout.Scan() {
		select {
		case <-t.stopChan:
			return
		default:
		}
		if line := t.stdout.Text(); line != "" {
			t.dispatchLine(line)
		}
	}
	if err := t.stdout.Err(); err != nil {
		t.logger.Error("stdout scanner error", "error", err)
	}
}

// dispatchLine classifies one frame: id+method is a server-initiated
// request, bare id is a response to one of ours, bare method is a
// notification. Anything else is dropped.
func (t *StdioTransport) dispatchLine(line string) {
	var req JSONRPCRequest
	if err := json.Unmarshal([]byte(line), &req); err == nil && req.ID != nil && req.Method != "" {
		select {
		case t.requests <- &req:
		default:
			t.logger.Warn("request channel full, dropping")
		}
		return
	}

	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(line), &resp); err == nil && resp.ID != nil {
		t.resolvePending(&resp)
		return
	}

	var notif JSONRPCNotification
	if err := json.Unmarshal([]byte(line), &notif); err == nil && notif.Method != "" {
		select {
		case t.events <- &notif:
		default:
			t.logger.Warn("notification channel full, dropping")
		}
	}
}

// resolvePending hands resp to whichever Call is waiting on its id.
func (t *StdioTransport) resolvePending(resp *JSONRPCResponse) {
	id, ok := numericID(resp.ID)
	if !ok {
		t.logger.Warn("unexpected response ID type", "id", resp.ID)
		return
	}

	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	if ch, waiting := t.pending[id]; waiting {
		select {
		case ch <- resp:
		default:
		}
		delete(t.pending, id)
	}
}

// numericID normalizes a decoded JSON-RPC id to int64; JSON numbers
// arrive as float64.
func numericID(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// drainStderr forwards the child's stderr lines into the debug log.
func (t *StdioTransport) drainStderr() {
	defer t.wg.Done()

	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		select {
		case <-t.stopChan:
			return
		default:
		}
		if line := scanner.Text(); line != "" {
			t.logger.Debug("server stderr", "message", line)
		}
	}
}
