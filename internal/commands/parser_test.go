package commands

import (
	"context"
	"testing"
)

func testRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	for _, name := range names {
		err := r.Register(&Command{
			Name:    name,
			Handler: func(_ context.Context, _ *Invocation) (*Result, error) { return &Result{}, nil },
		})
		if err != nil {
			t.Fatalf("register %q: %v", name, err)
		}
	}
	return r
}

func TestParserParse(t *testing.T) {
	registry := testRegistry(t, "help", "health")
	parser := NewParser(registry, "")

	tests := []struct {
		name         string
		input        string
		hasCommand   bool
		isRegistered bool
		cmdName      string
		args         string
	}{
		{name: "plain text", input: "list files in cwd", hasCommand: false},
		{name: "registered no args", input: "/help", hasCommand: true, isRegistered: true, cmdName: "help"},
		{name: "registered with args", input: "/health  probe", hasCommand: true, isRegistered: true, cmdName: "health", args: "probe"},
		{name: "unregistered", input: "/frobnicate", hasCommand: true, isRegistered: false, cmdName: "frobnicate"},
		{name: "case insensitive", input: "/HELP", hasCommand: true, isRegistered: true, cmdName: "help"},
		{name: "leading whitespace", input: "   /help", hasCommand: true, isRegistered: true, cmdName: "help"},
		{name: "slash mid-sentence", input: "run a/b", hasCommand: false},
		{name: "bare slash", input: "/", hasCommand: false},
		{name: "empty", input: "", hasCommand: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := parser.Parse(tt.input)
			if d.HasCommand != tt.hasCommand {
				t.Fatalf("HasCommand = %v, want %v", d.HasCommand, tt.hasCommand)
			}
			if !tt.hasCommand {
				return
			}
			if d.IsRegistered != tt.isRegistered {
				t.Errorf("IsRegistered = %v, want %v", d.IsRegistered, tt.isRegistered)
			}
			if d.Primary == nil {
				t.Fatal("Primary is nil")
			}
			if d.Primary.Name != tt.cmdName {
				t.Errorf("Name = %q, want %q", d.Primary.Name, tt.cmdName)
			}
			if d.Primary.Args != tt.args {
				t.Errorf("Args = %q, want %q", d.Primary.Args, tt.args)
			}
		})
	}
}
