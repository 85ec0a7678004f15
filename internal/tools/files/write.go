package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sagerun/sage/internal/agent"
)

// WriteTool writes or appends workspace files, creating parent
// directories as needed.
type WriteTool struct {
	cfg Config
}

// NewWriteTool creates a write tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{cfg: cfg}
}

func (t *WriteTool) Name() string { return "write" }

func (t *WriteTool) Description() string {
	return "Write content to a file in the workspace (overwrites by default)."
}

func (t *WriteTool) Schema() json.RawMessage {
	return objSchema([]string{"path", "content"},
		prop{name: "path", typ: "string", desc: "Path to write (relative to workspace)."},
		prop{name: "content", typ: "string", desc: "File contents to write."},
		prop{name: "append", typ: "boolean", desc: "Append instead of overwrite (default: false)."},
	)
}

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Append  bool   `json:"append"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return failOut(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}

	resolved, err := t.cfg.Resolve(input.Path)
	if err != nil {
		return failOut(err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return failOut(fmt.Sprintf("create directory: %v", err)), nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if input.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return failOut(fmt.Sprintf("open file: %v", err)), nil
	}
	defer file.Close()

	n, err := file.WriteString(input.Content)
	if err != nil {
		return failOut(fmt.Sprintf("write file: %v", err)), nil
	}

	return jsonOut(map[string]any{
		"path":          input.Path,
		"bytes_written": n,
		"append":        input.Append,
	}), nil
}
