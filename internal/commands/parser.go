package commands

import (
	"regexp"
	"strings"
)

// DefaultPrefix is the command prefix the REPL recognizes.
const DefaultPrefix = "/"

// Parser detects and parses commands from input text.
type Parser struct {
	prefix    string
	registry  *Registry
	controlRe *regexp.Regexp
}

// NewParser creates a new command parser bound to registry. An empty prefix
// falls back to DefaultPrefix.
func NewParser(registry *Registry, prefix string) *Parser {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Parser{
		prefix:    prefix,
		registry:  registry,
		controlRe: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `([a-zA-Z][a-zA-Z0-9_-]*)(?:\s+(.*))?$`),
	}
}

// Parse detects a command at the start of text. Input that does not begin
// with the prefix is ordinary conversation and yields an empty Detection.
func (p *Parser) Parse(text string) *Detection {
	text = strings.TrimSpace(text)
	if text == "" || !strings.HasPrefix(text, p.prefix) {
		return &Detection{}
	}

	match := p.controlRe.FindStringSubmatch(text)
	if match == nil {
		return &Detection{}
	}

	name := strings.ToLower(match[1])
	args := ""
	if len(match) > 2 {
		args = strings.TrimSpace(match[2])
	}

	detection := &Detection{
		HasCommand: true,
		Primary:    &ParsedCommand{Name: name, Args: args},
	}
	if p.registry != nil {
		if _, exists := p.registry.Get(name); exists {
			detection.IsRegistered = true
		}
	}
	return detection
}
