package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadRawMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "llm:\n  default_provider: anthropic\nmax_steps: 10\n")
	path := writeFile(t, dir, "main.yaml", "$include: base.yaml\nmax_steps: 20\n")

	raw, err := LoadRaw(path)
	if err != nil {
		t.Fatalf("LoadRaw: %v", err)
	}
	if raw["max_steps"] != 20 {
		t.Fatalf("including file should win: got %v", raw["max_steps"])
	}
	llm, ok := raw["llm"].(map[string]any)
	if !ok || llm["default_provider"] != "anthropic" {
		t.Fatalf("included keys missing: %v", raw["llm"])
	}
}

func TestLoadRawDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "$include: b.yaml\n")
	path := filepath.Join(dir, "a.yaml")
	writeFile(t, dir, "b.yaml", "$include: a.yaml\n")

	_, err := LoadRaw(path)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestLoadRawParsesJSON5(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json5", "{\n  // comment\n  max_steps: 3,\n}\n")

	raw, err := LoadRaw(path)
	if err != nil {
		t.Fatalf("LoadRaw: %v", err)
	}
	if raw["max_steps"] == nil {
		t.Fatalf("expected max_steps, got %v", raw)
	}
}

func TestLoadRawRejectsBadInclude(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.yaml", "include: 42\n")

	if _, err := LoadRaw(path); err == nil {
		t.Fatal("expected error for non-string include")
	}
}
