package exec

import (
	"encoding/json"
	"testing"

	"github.com/sagerun/sage/internal/sandbox"
	"github.com/sagerun/sage/pkg/models"
)

func TestExecToolValidateBlocksDangerousCommand(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewExecTool("exec", mgr).WithSandbox(sandbox.NewValidator(nil), t.TempDir(), true)

	params, _ := json.Marshal(map[string]string{"command": "rm -rf /"})
	err := tool.Validate(models.ToolCall{ID: "1", Name: "exec", Input: params})
	if err == nil {
		t.Fatal("expected rm -rf / to be blocked")
	}
}

func TestExecToolValidateAllowsQuotedSemicolon(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewExecTool("exec", mgr).WithSandbox(sandbox.NewValidator(nil), t.TempDir(), true)

	params, _ := json.Marshal(map[string]string{"command": "echo 'a; b'"})
	if err := tool.Validate(models.ToolCall{ID: "1", Name: "exec", Input: params}); err != nil {
		t.Fatalf("quoted semicolon should be allowed: %v", err)
	}
}

func TestExecToolValidateBlocksUnquotedChaining(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewExecTool("exec", mgr).WithSandbox(sandbox.NewValidator(nil), t.TempDir(), true)

	params, _ := json.Marshal(map[string]string{"command": "echo a; echo b"})
	if err := tool.Validate(models.ToolCall{ID: "1", Name: "exec", Input: params}); err == nil {
		t.Fatal("expected unquoted chaining to be blocked in strict mode")
	}
}

func TestExecToolValidateNoopWithoutSandbox(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewExecTool("exec", mgr)

	params, _ := json.Marshal(map[string]string{"command": "rm -rf /"})
	if err := tool.Validate(models.ToolCall{ID: "1", Name: "exec", Input: params}); err != nil {
		t.Fatalf("without an attached sandbox, validate should be a no-op: %v", err)
	}
}
