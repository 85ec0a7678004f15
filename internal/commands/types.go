// Package commands provides slash command detection and routing for the
// interactive REPL.
package commands

import (
	"context"
)

// Command represents a registered slash command.
type Command struct {
	// Name is the command name without the leading slash (e.g., "help")
	Name string `json:"name"`

	// Aliases are alternative names for the command
	Aliases []string `json:"aliases,omitempty"`

	// Description is a short description of what the command does
	Description string `json:"description,omitempty"`

	// Usage shows how to use the command
	Usage string `json:"usage,omitempty"`

	// AcceptsArgs indicates if the command accepts arguments
	AcceptsArgs bool `json:"accepts_args"`

	// Hidden hides the command from help listings
	Hidden bool `json:"hidden,omitempty"`

	// Handler is the function that executes the command
	Handler CommandHandler `json:"-"`

	// Category groups commands in help output
	Category string `json:"category,omitempty"`
}

// CommandHandler processes a command invocation.
type CommandHandler func(ctx context.Context, inv *Invocation) (*Result, error)

// Invocation represents a parsed command invocation.
type Invocation struct {
	// Command is the matched command definition
	Command *Command

	// Name is the actual name/alias used to invoke
	Name string

	// Args is the text after the command name
	Args string

	// RawText is the original input line
	RawText string

	// SessionID identifies the session the command was typed into
	SessionID string
}

// Result is what a command handler returns.
type Result struct {
	// Text is the reply shown to the user
	Text string

	// Quit asks the REPL to exit after printing Text
	Quit bool
}

// ParsedCommand is a command occurrence found in input text.
type ParsedCommand struct {
	Name string
	Args string
}

// Detection is the outcome of running the parser over one input line.
type Detection struct {
	// HasCommand is true when the line starts with a command prefix
	// followed by a command name
	HasCommand bool

	// IsRegistered is true when the named command exists in the registry
	IsRegistered bool

	// Primary is the parsed command, set when HasCommand is true
	Primary *ParsedCommand
}
