package commands

import (
	"context"
	"fmt"
	"strings"
)

// BuiltinDeps carries the handles the builtin commands report on. Any nil
// field disables the commands that need it.
type BuiltinDeps struct {
	Health *HealthChecker
	// Usage returns the formatted usage report shown by /usage.
	Usage func(ctx context.Context, provider string) (string, error)
}

// RegisterBuiltins installs the standard REPL commands into registry.
func RegisterBuiltins(registry *Registry, deps BuiltinDeps) error {
	cmds := []*Command{
		{
			Name:        "help",
			Aliases:     []string{"h"},
			Description: "List available commands",
			Category:    "general",
			Handler: func(_ context.Context, _ *Invocation) (*Result, error) {
				var b strings.Builder
				b.WriteString("Commands:\n")
				for _, cmd := range registry.List() {
					fmt.Fprintf(&b, "  /%s", cmd.Name)
					if len(cmd.Aliases) > 0 {
						fmt.Fprintf(&b, " (/%s)", strings.Join(cmd.Aliases, ", /"))
					}
					if cmd.Description != "" {
						fmt.Fprintf(&b, " - %s", cmd.Description)
					}
					b.WriteString("\n")
				}
				return &Result{Text: b.String()}, nil
			},
		},
		{
			Name:        "exit",
			Aliases:     []string{"quit", "q"},
			Description: "Exit the REPL",
			Category:    "general",
			Handler: func(_ context.Context, _ *Invocation) (*Result, error) {
				return &Result{Text: "bye", Quit: true}, nil
			},
		},
	}

	if deps.Health != nil {
		probe := true
		cmds = append(cmds, &Command{
			Name:        "health",
			Description: "Check MCP server, sub-agent, and session store health",
			Category:    "diagnostics",
			Handler: func(ctx context.Context, _ *Invocation) (*Result, error) {
				summary, err := deps.Health.Check(ctx, &HealthCheckOptions{ProbeServers: &probe})
				if err != nil {
					return nil, err
				}
				return &Result{Text: FormatHealthSummary(summary)}, nil
			},
		})
	}

	if deps.Usage != nil {
		cmds = append(cmds, &Command{
			Name:        "usage",
			Description: "Show LLM provider token usage",
			Usage:       "/usage [provider]",
			AcceptsArgs: true,
			Category:    "diagnostics",
			Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
				text, err := deps.Usage(ctx, strings.TrimSpace(inv.Args))
				if err != nil {
					return nil, err
				}
				return &Result{Text: text}, nil
			},
		})
	}

	for _, cmd := range cmds {
		if err := registry.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}
