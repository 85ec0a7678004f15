package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sagerun/sage/internal/observability"
)

// readManifestFile reads a discovery source's manifest bytes from disk.
// Factored out so tests can stub discovery without touching the
// filesystem.
var readManifestFile = os.ReadFile

// ConnStatus discriminates a server connection's lifecycle state.
type ConnStatus string

const (
	ConnConnecting   ConnStatus = "connecting"
	ConnConnected    ConnStatus = "connected"
	ConnDisconnected ConnStatus = "disconnected"
	ConnFailed       ConnStatus = "failed"
)

// health tracks the per-server liveness bookkeeping the manager keeps
// alongside each client: status, last successful ping, consecutive
// failures, and request counters.
type health struct {
	status              ConnStatus
	reason              string
	lastPing            *time.Time
	consecutiveFailures int
	successfulRequests  int64
	failedRequests      int64
}

// Manager manages multiple MCP server connections.
type Manager struct {
	config  *Config
	logger  *slog.Logger
	clients map[string]*Client
	health  map[string]*health
	cache   *Cache
	mu      sync.RWMutex

	samplingHandler SamplingHandler
}

// Config holds the MCP manager configuration.
type Config struct {
	Enabled bool            `yaml:"enabled"`
	Servers []*ServerConfig `yaml:"servers"`
	Cache   CacheConfig     `yaml:"cache"`
}

// NewManager creates a new MCP manager.
func NewManager(cfg *Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	var cacheCfg CacheConfig
	if cfg != nil {
		cacheCfg = cfg.Cache
	}

	return &Manager{
		config:  cfg,
		logger:  logger.With("component", "mcp"),
		clients: make(map[string]*Client),
		health:  make(map[string]*health),
		cache:   NewCache(cacheCfg),
	}
}

// serverConfig looks up serverID in the manager's configured server list.
func (m *Manager) serverConfig(serverID string) *ServerConfig {
	if m.config == nil {
		return nil
	}
	for _, cfg := range m.config.Servers {
		if cfg.ID == serverID {
			return cfg
		}
	}
	return nil
}

// healthFor returns (creating if necessary) the health record for serverID.
// Caller must hold m.mu.
func (m *Manager) healthFor(serverID string) *health {
	h, ok := m.health[serverID]
	if !ok {
		h = &health{status: ConnDisconnected}
		m.health[serverID] = h
	}
	return h
}

// Start connects to all configured MCP servers with auto_start enabled.
func (m *Manager) Start(ctx context.Context) error {
	if m.config == nil || !m.config.Enabled {
		m.logger.Debug("MCP disabled")
		return nil
	}

	for _, serverCfg := range m.config.Servers {
		if !serverCfg.AutoStart {
			continue
		}

		if err := m.Connect(ctx, serverCfg.ID); err != nil {
			m.logger.Error("failed to connect to MCP server",
				"server", serverCfg.ID,
				"error", err)
			// Continue with other servers
		}
	}

	return nil
}

// Stop disconnects from all MCP servers.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, client := range m.clients {
		if err := client.Close(); err != nil {
			m.logger.Error("failed to close MCP client",
				"server", id,
				"error", err)
		}
		delete(m.clients, id)
		m.healthFor(id).status = ConnDisconnected
	}

	return nil
}

// Connect connects to a specific MCP server by ID. The server's config is
// kept on the Manager's Config.Servers list, so a later Reconnect(serverID)
// can redrive the same connection without the caller re-supplying it.
func (m *Manager) Connect(ctx context.Context, serverID string) error {
	serverCfg := m.serverConfig(serverID)
	if serverCfg == nil {
		return fmt.Errorf("server %q not found in config", serverID)
	}

	// Check if already connected
	m.mu.RLock()
	if _, exists := m.clients[serverID]; exists {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	m.healthFor(serverID).status = ConnConnecting
	m.mu.Unlock()

	// Create and connect client
	client := NewClient(serverCfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		m.mu.Lock()
		h := m.healthFor(serverID)
		h.status = ConnFailed
		h.reason = err.Error()
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.clients[serverID] = client
	h := m.healthFor(serverID)
	h.status = ConnConnected
	h.reason = ""
	h.consecutiveFailures = 0
	if m.samplingHandler != nil {
		client.HandleSampling(m.samplingHandler)
	}
	m.mu.Unlock()

	m.logger.Info("connected to MCP server",
		"server", serverID,
		"name", client.ServerInfo().Name)

	return nil
}

// Disconnect disconnects from a specific MCP server.
func (m *Manager) Disconnect(serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, exists := m.clients[serverID]
	if !exists {
		return nil
	}

	if err := client.Close(); err != nil {
		return err
	}

	delete(m.clients, serverID)
	m.cache.InvalidateServer(serverID)
	m.healthFor(serverID).status = ConnDisconnected
	m.logger.Info("disconnected from MCP server", "server", serverID)

	return nil
}

// Reconnect tears down any existing client for serverID (if present) and
// reconnects from the stored server config, re-running initialize and
// repopulating the resource cache. serverID alone drives the whole
// operation.
func (m *Manager) Reconnect(ctx context.Context, serverID string) error {
	if m.serverConfig(serverID) == nil {
		return fmt.Errorf("server %q not found in config", serverID)
	}

	m.mu.Lock()
	if client, exists := m.clients[serverID]; exists {
		_ = client.Close()
		delete(m.clients, serverID)
	}
	m.cache.InvalidateServer(serverID)
	m.mu.Unlock()

	return m.Connect(ctx, serverID)
}

// CheckHealth pings serverID's client and updates its health record:
// success resets consecutive_failures and stamps last_ping; failure
// increments consecutive_failures and records the failure reason.
func (m *Manager) CheckHealth(ctx context.Context, serverID string) error {
	client, exists := m.Client(serverID)
	if !exists {
		return fmt.Errorf("server %q not connected", serverID)
	}

	err := client.Ping(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.healthFor(serverID)
	if err != nil {
		h.consecutiveFailures++
		h.status = ConnFailed
		h.reason = err.Error()
		return err
	}
	now := time.Now()
	h.lastPing = &now
	h.consecutiveFailures = 0
	h.status = ConnConnected
	h.reason = ""
	return nil
}

// HealthStatus returns a snapshot of per-server health for every configured
// server: status, last ping, consecutive failures, and request counters.
func (m *Manager) HealthStatus() map[string]ServerHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ServerHealth, len(m.health))
	for id, h := range m.health {
		out[id] = ServerHealth{
			Status:              h.status,
			Reason:              h.reason,
			LastPing:            h.lastPing,
			ConsecutiveFailures: h.consecutiveFailures,
			SuccessfulRequests:  h.successfulRequests,
			FailedRequests:      h.failedRequests,
		}
	}
	return out
}

// ServerHealth is the exported snapshot returned by HealthStatus.
type ServerHealth struct {
	Status              ConnStatus `json:"status"`
	Reason              string     `json:"reason,omitempty"`
	LastPing            *time.Time `json:"last_ping,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	SuccessfulRequests  int64      `json:"successful_requests"`
	FailedRequests      int64      `json:"failed_requests"`
}

// CloseAll disconnects every connected server. It's an alias for Stop.
func (m *Manager) CloseAll() error {
	return m.Stop()
}

// Discover reads each source as a manifest file holding one JSON
// ServerConfig array and merges any servers not already present (by ID)
// into the manager's config. It returns the IDs of newly discovered
// servers. A server whose AutoStart is false is still registered but is
// skipped by Start.
func (m *Manager) Discover(sources []string) ([]string, error) {
	var discovered []string

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil {
		m.config = &Config{Enabled: true}
	}

	existing := make(map[string]bool, len(m.config.Servers))
	for _, cfg := range m.config.Servers {
		existing[cfg.ID] = true
	}

	for _, src := range sources {
		data, err := readManifestFile(src)
		if err != nil {
			m.logger.Warn("failed to read MCP discovery source", "source", src, "error", err)
			continue
		}
		var servers []*ServerConfig
		if err := json.Unmarshal(data, &servers); err != nil {
			m.logger.Warn("failed to parse MCP discovery manifest", "source", src, "error", err)
			continue
		}
		for _, cfg := range servers {
			if cfg.ID == "" || existing[cfg.ID] {
				continue
			}
			m.config.Servers = append(m.config.Servers, cfg)
			existing[cfg.ID] = true
			discovered = append(discovered, cfg.ID)
		}
	}

	return discovered, nil
}

// SetSamplingHandler registers the handler used to answer server-initiated
// sampling/createMessage requests. It's wired into every client already
// connected and into every client Connect establishes afterward.
func (m *Manager) SetSamplingHandler(handler SamplingHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samplingHandler = handler
	if handler == nil {
		return
	}
	for _, client := range m.clients {
		client.HandleSampling(handler)
	}
}

// Client returns a client for a specific server.
func (m *Manager) Client(serverID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, exists := m.clients[serverID]
	return client, exists
}

// Clients returns all connected clients.
func (m *Manager) Clients() map[string]*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*Client, len(m.clients))
	for id, client := range m.clients {
		result[id] = client
	}
	return result
}

// AllTools returns all tools from all connected servers.
func (m *Manager) AllTools() map[string][]*MCPTool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]*MCPTool)
	for id, client := range m.clients {
		if tools := client.Tools(); len(tools) > 0 {
			result[id] = tools
		}
	}
	return result
}

// AllResources returns all resources from all connected servers.
func (m *Manager) AllResources() map[string][]*MCPResource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]*MCPResource)
	for id, client := range m.clients {
		if resources := client.Resources(); len(resources) > 0 {
			result[id] = resources
		}
	}
	return result
}

// AllPrompts returns all prompts from all connected servers.
func (m *Manager) AllPrompts() map[string][]*MCPPrompt {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]*MCPPrompt)
	for id, client := range m.clients {
		if prompts := client.Prompts(); len(prompts) > 0 {
			result[id] = prompts
		}
	}
	return result
}

// CallTool calls a tool on a specific server.
func (m *Manager) CallTool(ctx context.Context, serverID string, toolName string, arguments map[string]any) (*ToolCallResult, error) {
	client, exists := m.Client(serverID)
	if !exists {
		return nil, fmt.Errorf("server %q not connected", serverID)
	}

	result, err := client.CallTool(ctx, toolName, arguments)
	m.recordRequest(serverID, err)
	return result, err
}

// recordRequest updates serverID's successful/failed request counters and,
// on failure, its consecutive-failure count - the same bookkeeping
// CheckHealth performs for pings, so a run of tool-call failures surfaces
// the same way a run of failed pings does.
func (m *Manager) recordRequest(serverID string, err error) {
	observability.RecordMCPRequest(serverID, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.healthFor(serverID)
	if err != nil {
		h.failedRequests++
		h.consecutiveFailures++
		return
	}
	h.successfulRequests++
	h.consecutiveFailures = 0
}

// FindTool finds a tool by name across all servers.
// Returns the server ID and tool definition, or empty string if not found.
func (m *Manager) FindTool(name string) (serverID string, tool *MCPTool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, client := range m.clients {
		for _, t := range client.Tools() {
			if t.Name == name {
				return id, t
			}
		}
	}
	return "", nil
}

// ReadResource reads a resource from a specific server.
func (m *Manager) ReadResource(ctx context.Context, serverID string, uri string) ([]*ResourceContent, error) {
	client, exists := m.Client(serverID)
	if !exists {
		return nil, fmt.Errorf("server %q not connected", serverID)
	}

	result, err := client.ReadResource(ctx, uri)
	m.recordRequest(serverID, err)
	return result, err
}

// GetPrompt gets a prompt from a specific server.
func (m *Manager) GetPrompt(ctx context.Context, serverID string, name string, arguments map[string]string) (*GetPromptResult, error) {
	client, exists := m.Client(serverID)
	if !exists {
		return nil, fmt.Errorf("server %q not connected", serverID)
	}

	result, err := client.GetPrompt(ctx, name, arguments)
	m.recordRequest(serverID, err)
	return result, err
}

// ToolSchema represents the JSON schema for a tool, used by LLMs.
type ToolSchema struct {
	ServerID    string          `json:"server_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolSchemas returns tool schemas suitable for LLM tool definitions.
func (m *Manager) ToolSchemas() []ToolSchema {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var schemas []ToolSchema
	for id, client := range m.clients {
		for _, tool := range client.Tools() {
			schemas = append(schemas, ToolSchema{
				ServerID:    id,
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}
	}
	return schemas
}

// ServerStatus represents the status of an MCP server.
type ServerStatus struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Connected bool       `json:"connected"`
	Server    ServerInfo `json:"server"`
	Tools     int        `json:"tools"`
	Resources int        `json:"resources"`
	Prompts   int        `json:"prompts"`
}

// Status returns the status of all configured servers.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var statuses []ServerStatus
	for _, cfg := range m.config.Servers {
		status := ServerStatus{
			ID:   cfg.ID,
			Name: cfg.Name,
		}

		if client, exists := m.clients[cfg.ID]; exists {
			status.Connected = client.Connected()
			status.Server = client.ServerInfo()
			status.Tools = len(client.Tools())
			status.Resources = len(client.Resources())
			status.Prompts = len(client.Prompts())
		}

		statuses = append(statuses, status)
	}

	return statuses
}
