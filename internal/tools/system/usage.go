// Package system gives the agent introspection tools: runtime health
// and provider usage.
package system

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sagerun/sage/internal/agent"
	"github.com/sagerun/sage/internal/usage"
)

// UsageProvider serves token/cost accounting per provider.
type UsageProvider interface {
	Get(ctx context.Context, provider string) (*usage.ProviderUsage, error)
	GetAll(ctx context.Context) []*usage.ProviderUsage
}

// UsageTool reports provider usage back into the conversation.
type UsageTool struct {
	provider UsageProvider
}

func NewUsageTool(provider UsageProvider) *UsageTool {
	return &UsageTool{provider: provider}
}

func (t *UsageTool) Name() string { return "provider_usage" }

func (t *UsageTool) Description() string {
	return "Get LLM provider usage statistics including tokens and costs."
}

func (t *UsageTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"provider": {
				"type": "string",
				"description": "Specific provider to get usage for (anthropic, openai, gemini). If not specified, returns all."
			}
		},
		"required": []
	}`)
}

func (t *UsageTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.provider == nil {
		return toolError("usage provider unavailable"), nil
	}

	var input struct {
		Provider string `json:"provider"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	if name := strings.TrimSpace(strings.ToLower(input.Provider)); name != "" {
		u, err := t.provider.Get(ctx, name)
		if err != nil {
			return toolError(fmt.Sprintf("get usage failed: %v", err)), nil
		}
		return &agent.ToolResult{Content: usage.FormatProviderUsage(u)}, nil
	}

	usages := t.provider.GetAll(ctx)
	if len(usages) == 0 {
		return &agent.ToolResult{Content: "No provider usage data available."}, nil
	}
	blocks := make([]string, 0, len(usages))
	for _, u := range usages {
		blocks = append(blocks, usage.FormatProviderUsage(u))
	}
	return &agent.ToolResult{Content: strings.Join(blocks, "\n---\n\n")}, nil
}
