package exec

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeExecutableValue(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
		err   error
	}{
		{"bare name", "node", "node", nil},
		{"trims whitespace", "  npx  ", "npx", nil},
		{"relative path", "./bin/server", "./bin/server", nil},
		{"absolute path", "/usr/local/bin/mcp", "/usr/local/bin/mcp", nil},
		{"empty", "   ", "", ErrEmptyValue},
		{"null byte", "node\x00", "", ErrNullByte},
		{"newline", "node\nrm -rf /", "", ErrControlChar},
		{"semicolon", "node;rm", "", ErrShellMetachar},
		{"subshell", "$(whoami)", "", ErrShellMetachar},
		{"quotes", `"node"`, "", ErrQuoteChar},
		{"option injection", "--version", "", ErrOptionInjection},
		{"bad bare chars", "no de", "", ErrBareNameChars},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeExecutableValue(tt.value)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Fatalf("value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeArgumentsAllowsRoutineFlags(t *testing.T) {
	args, err := SanitizeArguments([]string{"-y", "--config", "config.yaml", "path/to/file"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 4 {
		t.Fatalf("got %d args", len(args))
	}
}

func TestSanitizeArgumentsNamesFailingIndex(t *testing.T) {
	_, err := SanitizeArguments([]string{"ok", "bad;rm"})
	if err == nil || !errors.Is(err, ErrShellMetachar) {
		t.Fatalf("err = %v", err)
	}
	if got := err.Error(); got == "" || !strings.Contains(got, "argument 1") {
		t.Fatalf("error should name the index: %q", got)
	}
}

func TestSanitizeArgumentsNilPassthrough(t *testing.T) {
	out, err := SanitizeArguments(nil)
	if out != nil || err != nil {
		t.Fatalf("nil args = (%v, %v)", out, err)
	}
}

func TestIsLikelyPath(t *testing.T) {
	for value, want := range map[string]bool{
		"./x":      true,
		"~/bin/x":  true,
		"a/b":      true,
		`C:\bin\x`: true,
		"node":     false,
		"":         false,
	} {
		if got := IsLikelyPath(value); got != want {
			t.Errorf("IsLikelyPath(%q) = %v, want %v", value, got, want)
		}
	}
}
