package memsearch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestToolMetadata(t *testing.T) {
	tool := New(nil, 0, 0)
	if tool.Name() != "memory_search" {
		t.Errorf("name = %q", tool.Name())
	}
	if tool.maxResults != 5 || tool.maxSnippetLen != 200 {
		t.Errorf("defaults = %d/%d, want 5/200", tool.maxResults, tool.maxSnippetLen)
	}
	if !tool.SupportsParallelExecution() {
		t.Error("memory_search should be parallel-safe")
	}

	var schema map[string]any
	if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("schema type = %v", schema["type"])
	}
}

func TestExecuteWithoutManager(t *testing.T) {
	tool := New(nil, 5, 200)
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"deploy steps"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "unavailable") {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestExecuteRequiresQuery(t *testing.T) {
	tool := New(nil, 5, 200)
	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Error("expected a tool error for a missing query")
	}
}
