// Package sessions exposes the recorded session log to the model as
// read-only tools: list recent sessions, fetch a session's transcript, and
// report a session's status.
package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sagerun/sage/internal/agent"
	sessionstore "github.com/sagerun/sage/internal/sessions"
	"github.com/sagerun/sage/pkg/models"
)

// Store is the slice of the session file store these tools read from.
type Store interface {
	List() ([]sessionstore.SessionSummary, error)
	Load(id string) (models.SessionFile, error)
}

// ListTool lists recorded sessions, newest first.
type ListTool struct {
	store Store
}

// NewListTool creates a sessions_list tool.
func NewListTool(store Store) *ListTool {
	return &ListTool{store: store}
}

func (t *ListTool) Name() string { return "sessions_list" }

func (t *ListTool) Description() string {
	return "List recorded sessions, newest first, with optional state and recency filters."
}

func (t *ListTool) SupportsParallelExecution() bool { return true }

func (t *ListTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"state": map[string]interface{}{
				"type":        "string",
				"description": "Filter by session state (active, completed, failed).",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Max sessions to return (default: 25).",
				"minimum":     1,
			},
			"active_minutes": map[string]interface{}{
				"type":        "integer",
				"description": "Only sessions updated within N minutes.",
				"minimum":     1,
			},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return toolError("session store unavailable"), nil
	}
	var input struct {
		State         string `json:"state"`
		Limit         int    `json:"limit"`
		ActiveMinutes int    `json:"active_minutes"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
		}
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 25
	}
	if limit > 500 {
		limit = 500
	}
	state := strings.ToLower(strings.TrimSpace(input.State))

	summaries, err := t.store.List()
	if err != nil {
		return toolError(fmt.Sprintf("list sessions: %v", err)), nil
	}

	var cutoff time.Time
	if input.ActiveMinutes > 0 {
		cutoff = time.Now().Add(-time.Duration(input.ActiveMinutes) * time.Minute)
	}

	out := make([]map[string]interface{}, 0, limit)
	for _, s := range summaries {
		if state != "" && string(s.State) != state {
			continue
		}
		if !cutoff.IsZero() && s.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, map[string]interface{}{
			"id":            s.ID,
			"state":         s.State,
			"name":          s.Name,
			"message_count": s.MessageCount,
			"updated_at":    s.UpdatedAt,
		})
		if len(out) == limit {
			break
		}
	}

	payload, err := json.MarshalIndent(map[string]interface{}{
		"sessions": out,
		"count":    len(out),
	}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

// HistoryTool returns a session's transcript.
type HistoryTool struct {
	store Store
}

// NewHistoryTool creates a sessions_history tool.
func NewHistoryTool(store Store) *HistoryTool {
	return &HistoryTool{store: store}
}

func (t *HistoryTool) Name() string { return "sessions_history" }

func (t *HistoryTool) Description() string {
	return "Fetch recent messages from a recorded session by id."
}

func (t *HistoryTool) SupportsParallelExecution() bool { return true }

func (t *HistoryTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Session ID.",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Max messages to return (default: 50).",
				"minimum":     1,
			},
			"include_tools": map[string]interface{}{
				"type":        "boolean",
				"description": "Include tool-result messages (default: false).",
			},
			"include_sidechains": map[string]interface{}{
				"type":        "boolean",
				"description": "Include sidechain messages (default: false).",
			},
		},
		"required": []string{"session_id"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *HistoryTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return toolError("session store unavailable"), nil
	}
	var input struct {
		SessionID         string `json:"session_id"`
		Limit             int    `json:"limit"`
		IncludeTools      bool   `json:"include_tools"`
		IncludeSidechains bool   `json:"include_sidechains"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.SessionID) == "" {
		return toolError("session_id is required"), nil
	}
	sf, err := t.store.Load(strings.TrimSpace(input.SessionID))
	if err != nil {
		return toolError("session not found"), nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	filtered := make([]*models.Message, 0, len(sf.Messages))
	for _, msg := range sf.Messages {
		if msg == nil {
			continue
		}
		if !input.IncludeTools && msg.Role == models.RoleTool {
			continue
		}
		if !input.IncludeSidechains && msg.IsSidechain {
			continue
		}
		filtered = append(filtered, msg)
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}

	messages := make([]map[string]interface{}, 0, len(filtered))
	for _, msg := range filtered {
		entry := map[string]interface{}{
			"uuid":      msg.UUID,
			"role":      msg.Role,
			"content":   msg.Content,
			"timestamp": msg.Timestamp,
		}
		if len(msg.ToolCalls) > 0 {
			entry["tool_calls"] = msg.ToolCalls
		}
		if len(msg.ToolResults) > 0 {
			entry["tool_results"] = msg.ToolResults
		}
		if msg.IsSidechain {
			entry["branch_id"] = msg.BranchID
		}
		messages = append(messages, entry)
	}

	payload, err := json.MarshalIndent(map[string]interface{}{
		"session_id": sf.ID,
		"messages":   messages,
	}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

// StatusTool reports session metadata.
type StatusTool struct {
	store Store
}

// NewStatusTool creates a session_status tool.
func NewStatusTool(store Store) *StatusTool {
	return &StatusTool{store: store}
}

func (t *StatusTool) Name() string { return "session_status" }

func (t *StatusTool) Description() string {
	return "Return status metadata for a recorded session by id, including its sidechains."
}

func (t *StatusTool) SupportsParallelExecution() bool { return true }

func (t *StatusTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Session ID.",
			},
		},
		"required": []string{"session_id"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *StatusTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return toolError("session store unavailable"), nil
	}
	var input struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.SessionID) == "" {
		return toolError("session_id is required"), nil
	}
	sf, err := t.store.Load(strings.TrimSpace(input.SessionID))
	if err != nil {
		return toolError("session not found"), nil
	}

	payload, err := json.MarshalIndent(map[string]interface{}{
		"id":                sf.ID,
		"state":             sf.State,
		"name":              sf.Name,
		"model":             sf.Model,
		"working_directory": sf.WorkingDirectory,
		"git_branch":        sf.GitBranch,
		"message_count":     sf.MessageCount,
		"sidechains":        models.SidechainSummaries(sf.Messages),
		"created_at":        sf.CreatedAt,
		"updated_at":        sf.UpdatedAt,
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
