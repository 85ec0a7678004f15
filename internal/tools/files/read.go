package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sagerun/sage/internal/agent"
)

const defaultMaxRead = 200000

// ReadTool reads workspace files with an offset and a byte cap.
type ReadTool struct {
	cfg Config
}

// NewReadTool creates a read tool scoped to the workspace.
func NewReadTool(cfg Config) *ReadTool {
	if cfg.MaxReadBytes <= 0 {
		cfg.MaxReadBytes = defaultMaxRead
	}
	return &ReadTool{cfg: cfg}
}

func (t *ReadTool) Name() string { return "read" }

func (t *ReadTool) Description() string {
	return "Read a file from the workspace with optional offset and byte limit."
}

func (t *ReadTool) SupportsParallelExecution() bool { return true }

func (t *ReadTool) Schema() json.RawMessage {
	return objSchema([]string{"path"},
		prop{name: "path", typ: "string", desc: "Path to the file (relative to workspace)."},
		prop{name: "offset", typ: "integer", desc: "Byte offset to start reading from (default: 0)."},
		prop{name: "max_bytes", typ: "integer", desc: "Maximum bytes to read (capped by tool default)."},
	)
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path     string `json:"path"`
		Offset   int64  `json:"offset"`
		MaxBytes int    `json:"max_bytes"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return failOut(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if input.Offset < 0 {
		return failOut("offset must be >= 0"), nil
	}

	resolved, err := t.cfg.Resolve(input.Path)
	if err != nil {
		return failOut(err.Error()), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		return failOut(fmt.Sprintf("open file: %v", err)), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return failOut(fmt.Sprintf("stat file: %v", err)), nil
	}
	if input.Offset > 0 {
		if _, err := file.Seek(input.Offset, io.SeekStart); err != nil {
			return failOut(fmt.Sprintf("seek file: %v", err)), nil
		}
	}

	limit := t.cfg.MaxReadBytes
	if input.MaxBytes > 0 && input.MaxBytes < limit {
		limit = input.MaxBytes
	}
	buf, err := io.ReadAll(io.LimitReader(file, int64(limit)))
	if err != nil {
		return failOut(fmt.Sprintf("read file: %v", err)), nil
	}

	return jsonOut(map[string]any{
		"path":      input.Path,
		"content":   string(buf),
		"offset":    input.Offset,
		"bytes":     len(buf),
		"truncated": input.Offset+int64(len(buf)) < info.Size(),
	}), nil
}
