// Package files implements the workspace filesystem tools: read, write,
// find/replace edits, and unified-diff patching. Every path is resolved
// against the workspace root and refused when it escapes it.
package files

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sagerun/sage/internal/agent"
)

// Config controls filesystem tool defaults.
type Config struct {
	Workspace    string
	MaxReadBytes int
}

// Resolve turns a workspace-relative (or absolute) path into a cleaned
// absolute path, refusing anything outside the workspace root.
func (c Config) Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}

	root := strings.TrimSpace(c.Workspace)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(rootAbs, target)
	}
	targetAbs, err := filepath.Abs(filepath.Clean(target))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace")
	}
	return targetAbs, nil
}

// prop describes one schema property for objSchema.
type prop struct {
	name, typ, desc string
	items           map[string]any
}

// objSchema assembles the object JSON-Schema the tools above declare,
// keeping each tool's Schema method to a property list.
func objSchema(required []string, props ...prop) json.RawMessage {
	properties := make(map[string]any, len(props))
	for _, p := range props {
		entry := map[string]any{"type": p.typ, "description": p.desc}
		if p.items != nil {
			entry["items"] = p.items
		}
		properties[p.name] = entry
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// jsonOut wraps a successful result payload.
func jsonOut(payload any) *agent.ToolResult {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return failOut(fmt.Sprintf("encode result: %v", err))
	}
	return &agent.ToolResult{Content: string(encoded)}
}

// failOut wraps a tool-level failure.
func failOut(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
