package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	sessionstore "github.com/sagerun/sage/internal/sessions"
	"github.com/sagerun/sage/pkg/models"
)

// fakeStore serves canned sessions to the tools under test.
type fakeStore struct {
	summaries []sessionstore.SessionSummary
	files     map[string]models.SessionFile
}

func (f *fakeStore) List() ([]sessionstore.SessionSummary, error) {
	return f.summaries, nil
}

func (f *fakeStore) Load(id string) (models.SessionFile, error) {
	sf, ok := f.files[id]
	if !ok {
		return models.SessionFile{}, errors.New("not found")
	}
	return sf, nil
}

func newFakeStore() *fakeStore {
	now := time.Now()
	active := models.Session{
		ID:               "sess-active",
		WorkingDirectory: "/tmp/work",
		Model:            "claude-sonnet-4.5",
		State:            models.SessionActive,
		MessageCount:     3,
		CreatedAt:        now.Add(-time.Hour),
		UpdatedAt:        now,
	}
	done := models.Session{
		ID:        "sess-done",
		State:     models.SessionCompleted,
		CreatedAt: now.Add(-48 * time.Hour),
		UpdatedAt: now.Add(-47 * time.Hour),
	}
	messages := []*models.Message{
		{UUID: "m1", Role: models.RoleUser, Content: "list files", Timestamp: now.Add(-time.Hour)},
		{UUID: "m2", ParentUUID: "m1", Role: models.RoleAssistant, Content: "", ToolCalls: []models.ToolCall{{ID: "c1", Name: "ls"}}, Timestamp: now.Add(-59 * time.Minute)},
		{UUID: "m3", ParentUUID: "m2", Role: models.RoleTool, ToolResults: []models.ToolResult{models.NewToolSuccess("c1", "ls", "a.txt")}, Timestamp: now.Add(-58 * time.Minute)},
		{UUID: "m4", BranchID: "side-1", BranchParentUUID: "m2", IsSidechain: true, Role: models.RoleAssistant, Content: "what-if", Timestamp: now.Add(-50 * time.Minute)},
		{UUID: "m5", ParentUUID: "m3", Role: models.RoleAssistant, Content: "Found 1 file.", Timestamp: now.Add(-57 * time.Minute)},
	}
	return &fakeStore{
		summaries: []sessionstore.SessionSummary{{Session: active}, {Session: done}},
		files: map[string]models.SessionFile{
			"sess-active": {Session: active, Messages: messages},
			"sess-done":   {Session: done},
		},
	}
}

func TestListToolReturnsSessions(t *testing.T) {
	tool := NewListTool(newFakeStore())

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", res.Content)
	}

	var out struct {
		Sessions []map[string]any `json:"sessions"`
		Count    int              `json:"count"`
	}
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if out.Count != 2 {
		t.Fatalf("count = %d, want 2", out.Count)
	}
	if out.Sessions[0]["id"] != "sess-active" {
		t.Errorf("expected newest session first, got %v", out.Sessions[0]["id"])
	}
}

func TestListToolStateFilter(t *testing.T) {
	tool := NewListTool(newFakeStore())

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"state":"completed"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var out struct {
		Sessions []map[string]any `json:"sessions"`
	}
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(out.Sessions) != 1 || out.Sessions[0]["id"] != "sess-done" {
		t.Errorf("unexpected sessions: %v", out.Sessions)
	}
}

func TestListToolActiveMinutes(t *testing.T) {
	tool := NewListTool(newFakeStore())

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"active_minutes":60}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var out struct {
		Sessions []map[string]any `json:"sessions"`
	}
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(out.Sessions) != 1 || out.Sessions[0]["id"] != "sess-active" {
		t.Errorf("expected only the recently updated session, got %v", out.Sessions)
	}
}

func TestHistoryToolFiltersToolAndSidechainMessages(t *testing.T) {
	tool := NewHistoryTool(newFakeStore())

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"session_id":"sess-active"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", res.Content)
	}

	var out struct {
		Messages []map[string]any `json:"messages"`
	}
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	// m3 (tool result) and m4 (sidechain) are filtered by default.
	if len(out.Messages) != 3 {
		t.Fatalf("got %d messages, want 3: %v", len(out.Messages), out.Messages)
	}
	for _, msg := range out.Messages {
		if msg["uuid"] == "m3" || msg["uuid"] == "m4" {
			t.Errorf("message %v should have been filtered", msg["uuid"])
		}
	}
}

func TestHistoryToolIncludesEverythingWhenAsked(t *testing.T) {
	tool := NewHistoryTool(newFakeStore())

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"session_id":"sess-active","include_tools":true,"include_sidechains":true}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var out struct {
		Messages []map[string]any `json:"messages"`
	}
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(out.Messages) != 5 {
		t.Fatalf("got %d messages, want 5", len(out.Messages))
	}
}

func TestHistoryToolUnknownSession(t *testing.T) {
	tool := NewHistoryTool(newFakeStore())

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"session_id":"missing"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Fatal("expected a tool error for an unknown session")
	}
	if !strings.Contains(res.Content, "not found") {
		t.Errorf("unexpected error content: %s", res.Content)
	}
}

func TestHistoryToolRequiresSessionID(t *testing.T) {
	tool := NewHistoryTool(newFakeStore())

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Fatal("expected a tool error when session_id is missing")
	}
}

func TestStatusToolReportsSidechains(t *testing.T) {
	tool := NewStatusTool(newFakeStore())

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"session_id":"sess-active"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", res.Content)
	}

	var out struct {
		ID         string             `json:"id"`
		State      string             `json:"state"`
		Sidechains []models.Sidechain `json:"sidechains"`
	}
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if out.ID != "sess-active" || out.State != "active" {
		t.Errorf("unexpected status: %+v", out)
	}
	if len(out.Sidechains) != 1 {
		t.Fatalf("got %d sidechains, want 1", len(out.Sidechains))
	}
	if out.Sidechains[0].BranchID != "side-1" || out.Sidechains[0].RootParentUUID != "m2" {
		t.Errorf("unexpected sidechain summary: %+v", out.Sidechains[0])
	}
	if out.Sidechains[0].MessageCount != 1 {
		t.Errorf("sidechain message count = %d, want 1", out.Sidechains[0].MessageCount)
	}
}

func TestToolsDeclareParallelSafety(t *testing.T) {
	store := newFakeStore()
	for _, safe := range []interface{ SupportsParallelExecution() bool }{
		NewListTool(store), NewHistoryTool(store), NewStatusTool(store),
	} {
		if !safe.SupportsParallelExecution() {
			t.Errorf("%T should be parallel-safe", safe)
		}
	}
}
