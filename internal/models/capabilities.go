package models

import "strings"

// RuntimeCapabilities are the per-model limits the execution loop consults
// when assembling a request: how much thinking budget a model accepts,
// whether it can emit several tool calls per turn, and how large a turn
// can be.
type RuntimeCapabilities struct {
	ContextWindow             int
	MaxOutputTokens           int
	SupportsThinking          bool
	MaxThinkingBudget         int
	SupportsParallelToolCalls bool
	MaxToolCallsPerTurn       int
}

// runtimeCaps is keyed by model-id prefix; longest prefix wins so a dated
// snapshot id inherits its family's entry.
var runtimeCaps = map[string]RuntimeCapabilities{
	"claude-opus-4": {
		ContextWindow: 200_000, MaxOutputTokens: 32_000,
		SupportsThinking: true, MaxThinkingBudget: 32_000,
		SupportsParallelToolCalls: true, MaxToolCallsPerTurn: 20,
	},
	"claude-sonnet-4": {
		ContextWindow: 200_000, MaxOutputTokens: 64_000,
		SupportsThinking: true, MaxThinkingBudget: 60_000,
		SupportsParallelToolCalls: true, MaxToolCallsPerTurn: 20,
	},
	"claude-3-5-haiku": {
		ContextWindow: 200_000, MaxOutputTokens: 8_192,
		SupportsParallelToolCalls: true, MaxToolCallsPerTurn: 10,
	},
	"gpt-4o": {
		ContextWindow: 128_000, MaxOutputTokens: 16_384,
		SupportsParallelToolCalls: true, MaxToolCallsPerTurn: 20,
	},
	"gpt-4o-mini": {
		ContextWindow: 128_000, MaxOutputTokens: 16_384,
		SupportsParallelToolCalls: true, MaxToolCallsPerTurn: 10,
	},
	"o1": {
		ContextWindow: 200_000, MaxOutputTokens: 100_000,
		SupportsThinking: true, MaxThinkingBudget: 100_000,
	},
	"gemini-2.0-flash": {
		ContextWindow: 1_000_000, MaxOutputTokens: 8_192,
		SupportsParallelToolCalls: true, MaxToolCallsPerTurn: 10,
	},
	"gemini-1.5-pro": {
		ContextWindow: 2_000_000, MaxOutputTokens: 8_192,
		SupportsParallelToolCalls: true, MaxToolCallsPerTurn: 10,
	},
}

// defaultRuntimeCaps is the conservative fallback for unknown models:
// modest limits, no thinking, one tool call at a time.
var defaultRuntimeCaps = RuntimeCapabilities{
	ContextWindow:       32_000,
	MaxOutputTokens:     4_096,
	MaxToolCallsPerTurn: 1,
}

// CapabilitiesFor resolves the runtime capabilities for a model id by
// longest matching prefix. Unknown models get the conservative default.
func CapabilitiesFor(modelID string) RuntimeCapabilities {
	modelID = strings.ToLower(strings.TrimSpace(modelID))

	best := ""
	for prefix := range runtimeCaps {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return defaultRuntimeCaps
	}
	return runtimeCaps[best]
}
