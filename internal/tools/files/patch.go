package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sagerun/sage/internal/agent"
)

// ApplyPatchTool applies unified diffs against workspace files. Hunks are
// verified against their context lines before anything is written back.
type ApplyPatchTool struct {
	cfg Config
}

// NewApplyPatchTool creates an apply_patch tool scoped to the workspace.
func NewApplyPatchTool(cfg Config) *ApplyPatchTool {
	return &ApplyPatchTool{cfg: cfg}
}

func (t *ApplyPatchTool) Name() string { return "apply_patch" }

func (t *ApplyPatchTool) Description() string {
	return "Apply a unified diff patch to one or more files in the workspace."
}

func (t *ApplyPatchTool) Schema() json.RawMessage {
	return objSchema([]string{"patch"},
		prop{name: "patch", typ: "string", desc: "Unified diff patch (---/+++ headers required)."},
	)
}

func (t *ApplyPatchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Patch string `json:"patch"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return failOut(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Patch) == "" {
		return failOut("patch is required"), nil
	}

	patches, err := parseDiff(input.Patch)
	if err != nil {
		return failOut(err.Error()), nil
	}

	applied := make([]map[string]any, 0, len(patches))
	for _, fp := range patches {
		resolved, err := t.cfg.Resolve(fp.path)
		if err != nil {
			return failOut(err.Error()), nil
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return failOut(fmt.Sprintf("read file: %v", err)), nil
		}
		updated, added, removed, err := fp.apply(string(data))
		if err != nil {
			return failOut(fmt.Sprintf("apply patch to %s: %v", fp.path, err)), nil
		}
		if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
			return failOut(fmt.Sprintf("write file: %v", err)), nil
		}
		applied = append(applied, map[string]any{
			"path":          fp.path,
			"hunks":         len(fp.hunks),
			"lines_added":   added,
			"lines_removed": removed,
		})
	}

	return jsonOut(map[string]any{"applied": applied}), nil
}

type fileDiff struct {
	path  string
	hunks []diffHunk
}

type diffHunk struct {
	oldStart int
	lines    []string
}

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,\d+)? \+\d+(?:,\d+)? @@`)

// parseDiff splits a unified diff into per-file hunk lists. Only the old
// start offset matters for application; the rest of the header is
// validated and discarded.
func parseDiff(patch string) ([]fileDiff, error) {
	var diffs []fileDiff

	lines := strings.Split(patch, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "--- "):
			if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+++ ") {
				return nil, fmt.Errorf("invalid patch: missing +++ header")
			}
			path := strings.TrimSpace(strings.TrimPrefix(lines[i+1], "+++ "))
			path = strings.TrimPrefix(strings.TrimPrefix(path, "b/"), "a/")
			diffs = append(diffs, fileDiff{path: path})
			i++

		case strings.HasPrefix(line, "@@ "):
			if len(diffs) == 0 {
				return nil, fmt.Errorf("invalid patch: hunk without file header")
			}
			match := hunkHeaderRe.FindStringSubmatch(line)
			if match == nil {
				return nil, fmt.Errorf("invalid patch: malformed hunk header")
			}
			oldStart, err := strconv.Atoi(match[1])
			if err != nil {
				return nil, fmt.Errorf("invalid patch: malformed hunk header")
			}
			current := &diffs[len(diffs)-1]
			current.hunks = append(current.hunks, diffHunk{oldStart: oldStart})

		case strings.HasPrefix(line, "diff "), strings.HasPrefix(line, "index "),
			line == `\ No newline at end of file`, line == "":
			// Header noise and terminators carry no hunk content.

		default:
			if len(diffs) == 0 || len(diffs[len(diffs)-1].hunks) == 0 {
				continue
			}
			switch line[0] {
			case ' ', '+', '-':
				current := &diffs[len(diffs)-1]
				h := &current.hunks[len(current.hunks)-1]
				h.lines = append(h.lines, line)
			default:
				return nil, fmt.Errorf("invalid patch line: %s", line)
			}
		}
	}

	if len(diffs) == 0 {
		return nil, fmt.Errorf("invalid patch: no file headers found")
	}
	return diffs, nil
}

// apply walks each hunk against content with a line cursor, verifying
// context and deletions before splicing.
func (fp fileDiff) apply(content string) (string, int, int, error) {
	trailingNewline := strings.HasSuffix(content, "\n")
	var fileLines []string
	if trimmed := strings.TrimSuffix(content, "\n"); trimmed != "" {
		fileLines = strings.Split(trimmed, "\n")
	}

	added, removed := 0, 0
	for _, h := range fp.hunks {
		cursor := h.oldStart - 1
		if cursor < 0 {
			cursor = 0
		}
		for _, raw := range h.lines {
			text := raw[1:]
			switch raw[0] {
			case ' ':
				if cursor >= len(fileLines) || fileLines[cursor] != text {
					return "", 0, 0, fmt.Errorf("context mismatch at line %d", cursor+1)
				}
				cursor++
			case '-':
				if cursor >= len(fileLines) || fileLines[cursor] != text {
					return "", 0, 0, fmt.Errorf("delete mismatch at line %d", cursor+1)
				}
				fileLines = append(fileLines[:cursor], fileLines[cursor+1:]...)
				removed++
			case '+':
				fileLines = append(fileLines[:cursor], append([]string{text}, fileLines[cursor:]...)...)
				cursor++
				added++
			}
		}
	}

	out := strings.Join(fileLines, "\n")
	if trailingNewline {
		out += "\n"
	}
	return out, added, removed, nil
}
