// Package policy decides which tools an agent may use: a profile supplies
// a baseline, allow/deny lists refine it, and group references keep the
// lists short. Deny always wins over allow.
package policy

import "strings"

// Profile is a pre-configured tool access level.
type Profile string

const (
	// ProfileMinimal allows only the status tools.
	ProfileMinimal Profile = "minimal"

	// ProfileCoding allows filesystem, runtime, memory, and session tools.
	ProfileCoding Profile = "coding"

	// ProfileMessaging allows only the announce/status surface.
	ProfileMessaging Profile = "messaging"

	// ProfileReadonly allows tools that observe without mutating.
	ProfileReadonly Profile = "readonly"

	// ProfileFull allows everything not explicitly denied.
	ProfileFull Profile = "full"
)

// Policy combines a profile baseline with explicit allow/deny lists.
// Entries may be tool names, group references ("group:fs"), or patterns
// ("mcp:github.*", "*").
type Policy struct {
	Profile Profile  `json:"profile,omitempty" yaml:"profile"`
	Allow   []string `json:"allow,omitempty" yaml:"allow"`
	Deny    []string `json:"deny,omitempty" yaml:"deny"`
}

// defaultGroups names the tool families the built-in registry exposes, so
// policies can grant a concern instead of enumerating tools.
var defaultGroups = map[string][]string{
	"group:fs":       {"read", "write", "edit", "apply_patch"},
	"group:runtime":  {"exec", "process"},
	"group:memory":   {"memory_search"},
	"group:browser":  {"browser"},
	"group:sessions": {"sessions_list", "sessions_history", "session_status"},
	"group:agents":   {"spawn_subagent", "subagent_status", "subagent_cancel"},
	"group:system":   {"system_health", "provider_usage", "models"},
	"group:readonly": {
		"read",
		"memory_search",
		"sessions_list", "sessions_history", "session_status",
		"system_health", "provider_usage", "models",
	},
}

// profileAllow is each profile's baseline allow list. ProfileFull has no
// list: it admits everything the deny list doesn't remove.
var profileAllow = map[Profile][]string{
	ProfileMinimal:   {"group:system"},
	ProfileCoding:    {"group:fs", "group:runtime", "group:memory", "group:sessions", "group:system", "facts_extract"},
	ProfileMessaging: {"group:agents", "group:system"},
	ProfileReadonly:  {"group:readonly"},
}

// toolAliases folds the common alternate spellings onto the registered
// tool names, so "bash" in a config denies the exec tool.
var toolAliases = map[string]string{
	"bash":        "exec",
	"shell":       "exec",
	"apply-patch": "apply_patch",
	"patch":       "apply_patch",
}

// NormalizeTool lowercases a tool name and resolves known aliases.
func NormalizeTool(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := toolAliases[normalized]; ok {
		return canonical
	}
	return normalized
}
