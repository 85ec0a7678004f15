package agent

import (
	"testing"

	"github.com/sagerun/sage/pkg/models"
)

func TestHistoryMessagesConvertsRoles(t *testing.T) {
	history := []*models.Message{
		{Role: models.RoleUser, Content: "list files"},
		{Role: models.RoleAssistant, Content: "", ToolCalls: []models.ToolCall{{ID: "c1", Name: "ls"}}},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{{CallID: "c1", ToolName: "ls", Success: true, Output: "a.txt"}}},
		{Role: models.RoleAssistant, Content: "Found 1 file."},
		{Role: models.RoleSystem, Content: "internal note"},
	}

	out := HistoryMessages(history)
	if len(out) != 4 {
		t.Fatalf("got %d messages, want 4 (system note skipped)", len(out))
	}
	if out[0].Role != "user" || out[0].Content != "list files" {
		t.Errorf("out[0] = %+v", out[0])
	}
	if out[1].Role != "assistant" || len(out[1].ToolCalls) != 1 || out[1].ToolCalls[0].ID != "c1" {
		t.Errorf("out[1] = %+v", out[1])
	}
	if out[2].Role != "tool" || len(out[2].ToolResults) != 1 {
		t.Fatalf("out[2] = %+v", out[2])
	}
	if res := out[2].ToolResults[0]; res.ToolCallID != "c1" || res.IsError || res.Content != "a.txt" {
		t.Errorf("tool result = %+v", res)
	}
	if out[3].Role != "assistant" || out[3].Content != "Found 1 file." {
		t.Errorf("out[3] = %+v", out[3])
	}
}

func TestHistoryMessagesDropsOrphanedToolResults(t *testing.T) {
	history := []*models.Message{
		{Role: models.RoleUser, Content: "hi"},
		// No assistant tool call precedes this result.
		{Role: models.RoleTool, ToolResults: []models.ToolResult{{CallID: "ghost", ToolName: "ls", Success: true, Output: "x"}}},
		{Role: models.RoleAssistant, Content: "hello"},
	}

	out := HistoryMessages(history)
	if len(out) != 2 {
		t.Fatalf("got %d messages, want 2 (orphaned tool result dropped)", len(out))
	}
	if out[0].Role != "user" || out[1].Role != "assistant" {
		t.Errorf("roles = [%s %s]", out[0].Role, out[1].Role)
	}
}

func TestHistoryMessagesMatchesIDLessResult(t *testing.T) {
	history := []*models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "c1", Name: "read"}}},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{{ToolName: "read", Success: false, Error: "not found"}}},
	}

	out := HistoryMessages(history)
	if len(out) != 2 {
		t.Fatalf("got %d messages, want 2", len(out))
	}
	res := out[1].ToolResults
	if len(res) != 1 || res[0].ToolCallID != "c1" || !res[0].IsError {
		t.Errorf("repaired result = %+v", res)
	}
}

func TestHistoryMessagesEmpty(t *testing.T) {
	if out := HistoryMessages(nil); len(out) != 0 {
		t.Errorf("nil history produced %d messages", len(out))
	}
}
