package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sagerun/sage/internal/agent"
)

func run(t *testing.T, execute func(context.Context, json.RawMessage) (*agent.ToolResult, error), params any) *agent.ToolResult {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	out, err := execute(context.Background(), raw)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	return out
}

func TestResolveRejectsEscape(t *testing.T) {
	cfg := Config{Workspace: t.TempDir()}
	if _, err := cfg.Resolve("../outside.txt"); err == nil {
		t.Fatal("expected escape to be rejected")
	}
	if _, err := cfg.Resolve("   "); err == nil {
		t.Fatal("expected empty path to be rejected")
	}
	if _, err := cfg.Resolve("nested/inside.txt"); err != nil {
		t.Fatalf("nested path should resolve: %v", err)
	}
}

func TestWriteReadEditRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Workspace: root}

	write := run(t, NewWriteTool(cfg).Execute, map[string]any{
		"path": "notes.txt", "content": "hello world",
	})
	if write.IsError {
		t.Fatalf("write failed: %s", write.Content)
	}

	read := run(t, NewReadTool(cfg).Execute, map[string]any{"path": "notes.txt"})
	if read.IsError || !strings.Contains(read.Content, "hello world") {
		t.Fatalf("read = %+v", read)
	}

	edit := run(t, NewEditTool(cfg).Execute, map[string]any{
		"path":  "notes.txt",
		"edits": []map[string]any{{"old_text": "world", "new_text": "sage"}},
	})
	if edit.IsError {
		t.Fatalf("edit failed: %s", edit.Content)
	}

	data, err := os.ReadFile(filepath.Join(root, "notes.txt"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "hello sage" {
		t.Fatalf("content = %q", data)
	}
}

func TestWriteAppendAndCreateDirs(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Workspace: root}

	run(t, NewWriteTool(cfg).Execute, map[string]any{"path": "sub/dir/a.txt", "content": "one"})
	out := run(t, NewWriteTool(cfg).Execute, map[string]any{"path": "sub/dir/a.txt", "content": "+two", "append": true})
	if out.IsError {
		t.Fatalf("append failed: %s", out.Content)
	}

	data, _ := os.ReadFile(filepath.Join(root, "sub", "dir", "a.txt"))
	if string(data) != "one+two" {
		t.Fatalf("content = %q", data)
	}
}

func TestReadHonorsOffsetAndCap(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "big.txt"), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Config{Workspace: root, MaxReadBytes: 4}

	out := run(t, NewReadTool(cfg).Execute, map[string]any{"path": "big.txt", "offset": 2})
	var decoded struct {
		Content   string `json:"content"`
		Truncated bool   `json:"truncated"`
	}
	if err := json.Unmarshal([]byte(out.Content), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Content != "2345" || !decoded.Truncated {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestEditMissingTextAborts(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "f.txt"), []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Config{Workspace: root}

	out := run(t, NewEditTool(cfg).Execute, map[string]any{
		"path":  "f.txt",
		"edits": []map[string]any{{"old_text": "zzz", "new_text": "y"}},
	})
	if !out.IsError {
		t.Fatal("expected error for unmatched old_text")
	}
	// File untouched.
	data, _ := os.ReadFile(filepath.Join(root, "f.txt"))
	if string(data) != "abc" {
		t.Fatalf("file mutated: %q", data)
	}
}

func TestApplyPatchReplacesLine(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "file.txt")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	patch := strings.Join([]string{
		"--- a/file.txt",
		"+++ b/file.txt",
		"@@ -1,3 +1,3 @@",
		" a",
		"-b",
		"+bb",
		" c",
		"",
	}, "\n")

	out := run(t, NewApplyPatchTool(Config{Workspace: root}).Execute, map[string]any{"patch": patch})
	if out.IsError {
		t.Fatalf("apply failed: %s", out.Content)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "a\nbb\nc\n" {
		t.Fatalf("content = %q", data)
	}
}

func TestApplyPatchContextMismatch(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "file.txt")
	if err := os.WriteFile(path, []byte("x\ny\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	patch := strings.Join([]string{
		"--- a/file.txt",
		"+++ b/file.txt",
		"@@ -1,2 +1,2 @@",
		" a",
		"-y",
		"+z",
		"",
	}, "\n")

	out := run(t, NewApplyPatchTool(Config{Workspace: root}).Execute, map[string]any{"patch": patch})
	if !out.IsError {
		t.Fatal("expected context mismatch error")
	}
}

func TestApplyPatchRejectsGarbage(t *testing.T) {
	out := run(t, NewApplyPatchTool(Config{Workspace: t.TempDir()}).Execute, map[string]any{"patch": "not a diff"})
	if !out.IsError {
		t.Fatal("expected parse error")
	}
}
