// Package models exposes the model catalog to the agent as a tool.
package models

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sagerun/sage/internal/agent"
	"github.com/sagerun/sage/internal/models"
)

// Tool lists catalog entries and drives bedrock discovery refresh.
type Tool struct {
	catalog *models.Catalog
	bedrock *models.BedrockDiscovery
}

func NewTool(catalog *models.Catalog, bedrock *models.BedrockDiscovery) *Tool {
	return &Tool{catalog: catalog, bedrock: bedrock}
}

func (t *Tool) Name() string { return "models" }

func (t *Tool) Description() string {
	return "List available LLM models and refresh discovery (bedrock)."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "description": "Action: list, providers, refresh."},
			"provider": {"type": "string", "description": "Filter by provider (list)."},
			"capability": {"type": "string", "description": "Filter by capability (list)."},
			"tier": {"type": "string", "description": "Filter by tier (list)."},
			"include_deprecated": {"type": "boolean", "description": "Include deprecated models."}
		},
		"required": ["action"]
	}`)
}

type modelsArgs struct {
	Action            string `json:"action"`
	Provider          string `json:"provider"`
	Capability        string `json:"capability"`
	Tier              string `json:"tier"`
	IncludeDeprecated bool   `json:"include_deprecated"`
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.catalog == nil {
		return toolError("model catalog unavailable"), nil
	}
	var args modelsArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}

	switch strings.ToLower(strings.TrimSpace(args.Action)) {
	case "":
		return toolError("action is required"), nil
	case "list":
		return t.list(args), nil
	case "providers":
		return t.providers(), nil
	case "refresh":
		return t.refresh(ctx), nil
	default:
		return toolError("unsupported action"), nil
	}
}

func (t *Tool) list(args modelsArgs) *agent.ToolResult {
	filter := models.Filter{}
	if provider := normalize(args.Provider); provider != "" {
		filter.Providers = []models.Provider{models.Provider(provider)}
	}
	if capability := normalize(args.Capability); capability != "" {
		filter.RequiredCapabilities = []models.Capability{models.Capability(capability)}
	}
	if tier := normalize(args.Tier); tier != "" {
		filter.Tiers = []models.Tier{models.Tier(tier)}
	}

	items := make([]*models.Model, 0)
	for _, entry := range t.catalog.List(&filter) {
		if entry == nil || (entry.Deprecated && !args.IncludeDeprecated) {
			continue
		}
		items = append(items, entry)
	}
	return jsonResult(map[string]any{"models": items})
}

func (t *Tool) providers() *agent.ToolResult {
	seen := map[string]bool{}
	for _, entry := range t.catalog.List(nil) {
		if entry != nil {
			seen[string(entry.Provider)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for provider := range seen {
		out = append(out, provider)
	}
	sort.Strings(out)
	return jsonResult(map[string]any{"providers": out})
}

func (t *Tool) refresh(ctx context.Context) *agent.ToolResult {
	if t.bedrock == nil {
		return toolError("bedrock discovery not configured (set llm.bedrock.enabled)")
	}
	if err := t.bedrock.RegisterWithCatalog(ctx, t.catalog); err != nil {
		return toolError(fmt.Sprintf("refresh: %v", err))
	}
	return jsonResult(map[string]any{"status": "refreshed"})
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func jsonResult(payload any) *agent.ToolResult {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err))
	}
	return &agent.ToolResult{Content: string(encoded)}
}

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
