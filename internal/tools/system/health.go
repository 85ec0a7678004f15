package system

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sagerun/sage/internal/agent"
	"github.com/sagerun/sage/internal/commands"
)

// HealthProvider runs the runtime health check.
type HealthProvider interface {
	Check(ctx context.Context, opts *commands.HealthCheckOptions) (*commands.HealthSummary, error)
}

// HealthTool lets the agent inspect its own runtime: MCP servers,
// sub-agents, sessions.
type HealthTool struct {
	provider HealthProvider
}

func NewHealthTool(provider HealthProvider) *HealthTool {
	return &HealthTool{provider: provider}
}

func (t *HealthTool) Name() string { return "system_health" }

func (t *HealthTool) Description() string {
	return "Check system health status including MCP servers, sub-agents, and sessions."
}

func (t *HealthTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"probe_servers": {
				"type": "boolean",
				"description": "Whether to actively ping MCP servers (may be slower).",
				"default": false
			},
			"timeout_ms": {
				"type": "integer",
				"description": "Timeout in milliseconds for health checks.",
				"default": 10000
			}
		},
		"required": []
	}`)
}

func (t *HealthTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.provider == nil {
		return toolError("health provider unavailable"), nil
	}

	var input struct {
		ProbeServers bool  `json:"probe_servers"`
		TimeoutMs    int64 `json:"timeout_ms"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	summary, err := t.provider.Check(ctx, &commands.HealthCheckOptions{
		TimeoutMs:    input.TimeoutMs,
		ProbeServers: &input.ProbeServers,
	})
	if err != nil {
		return toolError(fmt.Sprintf("health check failed: %v", err)), nil
	}
	return &agent.ToolResult{Content: commands.FormatHealthSummary(summary)}, nil
}

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
