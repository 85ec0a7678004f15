package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry manages command registrations and execution.
type Registry struct {
	commands map[string]*Command // name -> command
	aliases  map[string]string   // alias -> name
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewRegistry creates a new command registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
		logger:   logger.With("component", "commands"),
	}
}

// Register adds a command to the registry. A name already registered as a
// command or alias is an error; an alias that conflicts with an existing
// command or alias is skipped with a logged warning.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("command is nil")
	}
	if cmd.Name == "" {
		return fmt.Errorf("command name is required")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command handler is required")
	}

	name := strings.ToLower(strings.TrimSpace(cmd.Name))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	if existingName, exists := r.aliases[name]; exists {
		return fmt.Errorf("command name %q conflicts with alias for %q", name, existingName)
	}

	r.commands[name] = cmd

	for _, alias := range cmd.Aliases {
		aliasLower := strings.ToLower(strings.TrimSpace(alias))
		if aliasLower == "" || aliasLower == name {
			continue
		}
		if _, exists := r.commands[aliasLower]; exists {
			r.logger.Warn("alias conflicts with command", "alias", aliasLower, "command", name)
			continue
		}
		if _, exists := r.aliases[aliasLower]; exists {
			r.logger.Warn("alias already registered", "alias", aliasLower, "command", name)
			continue
		}
		r.aliases[aliasLower] = name
	}

	return nil
}

// Get looks up a command by name or alias.
func (r *Registry) Get(name string) (*Command, bool) {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if cmd, ok := r.commands[name]; ok {
		return cmd, true
	}
	if canonical, ok := r.aliases[name]; ok {
		cmd, found := r.commands[canonical]
		return cmd, found
	}
	return nil, false
}

// List returns all non-hidden commands sorted by name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		if cmd.Hidden {
			continue
		}
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs the command named in parsed against its handler. An unknown
// command is an error the caller can surface verbatim.
func (r *Registry) Execute(ctx context.Context, parsed *ParsedCommand, sessionID, rawText string) (*Result, error) {
	cmd, ok := r.Get(parsed.Name)
	if !ok {
		return nil, fmt.Errorf("unknown command %q", parsed.Name)
	}
	inv := &Invocation{
		Command:   cmd,
		Name:      parsed.Name,
		Args:      parsed.Args,
		RawText:   rawText,
		SessionID: sessionID,
	}
	return cmd.Handler(ctx, inv)
}
