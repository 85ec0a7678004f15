package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sagerun/sage/internal/sageerr"
)

// protocolVersion is the MCP protocol revision this client speaks.
const protocolVersion = "2024-11-05"

// Client talks to one MCP server over a Transport. Every request method
// is gated on the initialize handshake having completed; the transport
// owns request/response correlation and timeouts.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	initialized atomic.Bool
	serverInfo  ServerInfo

	mu        sync.RWMutex
	tools     []*MCPTool
	resources []*MCPResource
	prompts   []*MCPPrompt
}

// NewClient creates a client for cfg with its transport chosen by
// cfg.Transport.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: NewTransport(cfg),
		logger:    logger.With("mcp_server", cfg.ID),
	}
}

// errNotInitialized gates every request issued before the handshake.
func errNotInitialized() error {
	return sageerr.MCP(sageerr.McpNotInitialized, "client not initialized: call Connect first", nil)
}

// errAlreadyInitialized rejects a second Connect on a live client.
func errAlreadyInitialized() error {
	return sageerr.MCP(sageerr.McpAlreadyInitialized, "client already initialized", nil)
}

// call issues one request and unmarshals its result into out (skipped when
// out is nil). This is the initialized-gated path every typed method rides.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	if !c.initialized.Load() {
		return errNotInitialized()
	}
	result, err := c.transport.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("parse %s result: %w", method, err)
	}
	return nil
}

// Connect dials the transport and runs the initialize ->
// notifications/initialized handshake. A second Connect on the same client
// returns AlreadyInitialized rather than re-running the handshake.
func (c *Client) Connect(ctx context.Context) error {
	if c.initialized.Load() {
		return errAlreadyInitialized()
	}

	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	// initialize must be the first request on the wire; its result is the
	// only place the server identifies itself.
	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"roots": map[string]any{"listChanged": true},
		},
		"clientInfo": map[string]any{"name": "sage", "version": "1.0.0"},
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.serverInfo = initResult.ServerInfo
	c.logger.Info("connected to MCP server",
		"name", c.serverInfo.Name,
		"version", c.serverInfo.Version,
		"protocol", initResult.ProtocolVersion)

	// The initialized notification unlocks the server's request handling;
	// a failure here is logged but not fatal, matching servers that don't
	// require it.
	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}
	c.initialized.Store(true)

	if err := c.RefreshCapabilities(ctx); err != nil {
		c.logger.Warn("failed to refresh capabilities", "error", err)
	}
	return nil
}

// Close tears the connection down; the client may be re-Connected after.
func (c *Client) Close() error {
	c.initialized.Store(false)
	return c.transport.Close()
}

// Ping is the liveness round-trip the manager's health checks ride on.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

// Config returns the server configuration.
func (c *Client) Config() *ServerConfig {
	return c.config
}

// ServerInfo returns the identity the server reported at initialize.
func (c *Client) ServerInfo() ServerInfo {
	return c.serverInfo
}

// Connected reports whether the transport is up.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// RefreshCapabilities re-lists tools, resources, and prompts into the
// client's cache. A kind whose listing fails keeps its previous snapshot.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	if !c.initialized.Load() {
		return errNotInitialized()
	}

	var toolList ListToolsResult
	var resourceList ListResourcesResult
	var promptList ListPromptsResult

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call(ctx, "tools/list", nil, &toolList); err == nil {
		c.tools = toolList.Tools
	}
	if err := c.call(ctx, "resources/list", nil, &resourceList); err == nil {
		c.resources = resourceList.Resources
	}
	if err := c.call(ctx, "prompts/list", nil, &promptList); err == nil {
		c.prompts = promptList.Prompts
	}
	c.logger.Debug("refreshed capabilities",
		"tools", len(c.tools), "resources", len(c.resources), "prompts", len(c.prompts))
	return nil
}

// Tools returns the cached tool list.
func (c *Client) Tools() []*MCPTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// Resources returns the cached resource list.
func (c *Client) Resources() []*MCPResource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resources
}

// Prompts returns the cached prompt list.
func (c *Client) Prompts() []*MCPPrompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompts
}

// CallTool invokes a named tool.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	params := CallToolParams{Name: name}
	if arguments != nil {
		raw, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		params.Arguments = raw
	}

	var out ToolCallResult
	if err := c.call(ctx, "tools/call", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadResource fetches a resource's contents by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]*ResourceContent, error) {
	var out ReadResourceResult
	if err := c.call(ctx, "resources/read", map[string]any{"uri": uri}, &out); err != nil {
		return nil, err
	}
	return out.Contents, nil
}

// GetPrompt fetches a prompt template with its arguments filled in.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error) {
	var out GetPromptResult
	err := c.call(ctx, "prompts/get", map[string]any{"name": name, "arguments": arguments}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Events returns the transport's notification channel.
func (c *Client) Events() <-chan *JSONRPCNotification {
	return c.transport.Events()
}

// SamplingHandler answers a server-initiated sampling/createMessage
// request, typically by running the request through the local LLM client.
type SamplingHandler func(ctx context.Context, req *SamplingRequest) (*SamplingResponse, error)

// HandleSampling starts a reader that answers sampling requests with
// handler. Each request runs in its own goroutine under the server's
// request timeout.
func (c *Client) HandleSampling(handler SamplingHandler) {
	if handler == nil {
		return
	}
	go func() {
		for req := range c.transport.Requests() {
			if req == nil || req.Method != "sampling/createMessage" {
				continue
			}
			go c.answerSampling(req, handler)
		}
	}()
}

func (c *Client) answerSampling(req *JSONRPCRequest, handler SamplingHandler) {
	timeout := c.config.Timeout
	if timeout == 0 {
		timeout = DefaultMCPRequestTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fail := func(code int, message string) {
		_ = c.transport.Respond(ctx, req.ID, nil, &JSONRPCError{Code: code, Message: message})
	}

	var params SamplingRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			fail(ErrCodeInvalidParams, "invalid sampling params")
			return
		}
	}

	response, err := handler(ctx, &params)
	switch {
	case err != nil:
		fail(ErrCodeInternalError, err.Error())
	case response == nil:
		fail(ErrCodeInternalError, "sampling handler returned nil response")
	default:
		if err := c.transport.Respond(ctx, req.ID, response, nil); err != nil {
			c.logger.Warn("failed to respond to sampling request", "error", err)
		}
	}
}
