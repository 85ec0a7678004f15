package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sagerun/sage/internal/agent"
)

// EditTool applies find/replace edits in place. Each edit must match; a
// miss aborts the whole call before anything is written back.
type EditTool struct {
	cfg Config
}

// NewEditTool creates an edit tool scoped to the workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{cfg: cfg}
}

func (t *EditTool) Name() string { return "edit" }

func (t *EditTool) Description() string {
	return "Apply one or more find/replace edits to a file in the workspace."
}

func (t *EditTool) Schema() json.RawMessage {
	return objSchema([]string{"path", "edits"},
		prop{name: "path", typ: "string", desc: "Path to edit (relative to workspace)."},
		prop{name: "edits", typ: "array", desc: "Find/replace operations, applied in order.", items: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"old_text":    map[string]any{"type": "string", "description": "Text to replace."},
				"new_text":    map[string]any{"type": "string", "description": "Replacement text."},
				"replace_all": map[string]any{"type": "boolean", "description": "Replace all occurrences (default: false)."},
			},
			"required": []string{"old_text", "new_text"},
		}},
	)
}

type editOp struct {
	OldText    string `json:"old_text"`
	NewText    string `json:"new_text"`
	ReplaceAll bool   `json:"replace_all"`
}

func (t *EditTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path  string   `json:"path"`
		Edits []editOp `json:"edits"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return failOut(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if len(input.Edits) == 0 {
		return failOut("edits are required"), nil
	}

	resolved, err := t.cfg.Resolve(input.Path)
	if err != nil {
		return failOut(err.Error()), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return failOut(fmt.Sprintf("read file: %v", err)), nil
	}

	content := string(data)
	replacements := 0
	for _, edit := range input.Edits {
		switch {
		case edit.OldText == "":
			return failOut("old_text is required"), nil
		case !strings.Contains(content, edit.OldText):
			return failOut("old_text not found"), nil
		case edit.ReplaceAll:
			replacements += strings.Count(content, edit.OldText)
			content = strings.ReplaceAll(content, edit.OldText, edit.NewText)
		default:
			content = strings.Replace(content, edit.OldText, edit.NewText, 1)
			replacements++
		}
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return failOut(fmt.Sprintf("write file: %v", err)), nil
	}

	return jsonOut(map[string]any{
		"path":         input.Path,
		"replacements": replacements,
	}), nil
}
