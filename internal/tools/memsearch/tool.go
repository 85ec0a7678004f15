// Package memsearch exposes the vector memory manager to the model as a
// semantic search tool.
package memsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sagerun/sage/internal/agent"
	"github.com/sagerun/sage/internal/memory"
	"github.com/sagerun/sage/pkg/models"
)

// Tool searches indexed memories by semantic similarity.
type Tool struct {
	manager       *memory.Manager
	maxResults    int
	maxSnippetLen int
}

// New creates a memory_search tool over manager. maxResults/maxSnippetLen
// fall back to 5/200 when non-positive.
func New(manager *memory.Manager, maxResults, maxSnippetLen int) *Tool {
	if maxResults <= 0 {
		maxResults = 5
	}
	if maxSnippetLen <= 0 {
		maxSnippetLen = 200
	}
	return &Tool{manager: manager, maxResults: maxResults, maxSnippetLen: maxSnippetLen}
}

func (t *Tool) Name() string { return "memory_search" }

func (t *Tool) Description() string {
	return "Search stored memories by semantic similarity. Returns the closest matching entries with scores."
}

func (t *Tool) SupportsParallelExecution() bool { return true }

func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Text to search for.",
			},
			"scope": map[string]interface{}{
				"type":        "string",
				"description": "Search scope: session, workspace, agent, global, or all (default: all).",
			},
			"scope_id": map[string]interface{}{
				"type":        "string",
				"description": "Identifier for the scope (session id, workspace id, agent id).",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Max results to return.",
				"minimum":     1,
			},
		},
		"required": []string{"query"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.manager == nil {
		return toolError("memory manager unavailable"), nil
	}
	var input struct {
		Query   string `json:"query"`
		Scope   string `json:"scope"`
		ScopeID string `json:"scope_id"`
		Limit   int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return toolError("query is required"), nil
	}

	limit := input.Limit
	if limit <= 0 || limit > t.maxResults {
		limit = t.maxResults
	}
	scope := models.MemoryScope(strings.ToLower(strings.TrimSpace(input.Scope)))
	if scope == "" {
		scope = models.ScopeAll
	}

	resp, err := t.manager.Search(ctx, &models.SearchRequest{
		Query:   input.Query,
		Scope:   scope,
		ScopeID: input.ScopeID,
		Limit:   limit,
	})
	if err != nil {
		return toolError(fmt.Sprintf("search memories: %v", err)), nil
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r == nil || r.Entry == nil {
			continue
		}
		snippet := r.Entry.Content
		if len(snippet) > t.maxSnippetLen {
			snippet = snippet[:t.maxSnippetLen] + "…"
		}
		results = append(results, map[string]interface{}{
			"id":      r.Entry.ID,
			"content": snippet,
			"score":   r.Score,
			"source":  r.Entry.Metadata.Source,
			"tags":    r.Entry.Metadata.Tags,
		})
	}

	payload, err := json.MarshalIndent(map[string]interface{}{
		"results":     results,
		"total_count": resp.TotalCount,
	}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
