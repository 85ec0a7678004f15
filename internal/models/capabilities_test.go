package models

import "testing"

func TestCapabilitiesForLongestPrefix(t *testing.T) {
	tests := []struct {
		model        string
		wantThinking bool
		wantParallel bool
		wantCtx      int
	}{
		{"claude-sonnet-4-20250514", true, true, 200_000},
		{"claude-3-5-haiku-20241022", false, true, 200_000},
		{"gpt-4o-mini-2024-07-18", false, true, 128_000},
		{"gpt-4o-2024-08-06", false, true, 128_000},
		{"o1-2024-12-17", true, false, 200_000},
		{"GEMINI-2.0-FLASH", false, true, 1_000_000},
		{"totally-unknown-model", false, false, 32_000},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := CapabilitiesFor(tt.model)
			if caps.SupportsThinking != tt.wantThinking {
				t.Errorf("SupportsThinking = %v, want %v", caps.SupportsThinking, tt.wantThinking)
			}
			if caps.SupportsParallelToolCalls != tt.wantParallel {
				t.Errorf("SupportsParallelToolCalls = %v, want %v", caps.SupportsParallelToolCalls, tt.wantParallel)
			}
			if caps.ContextWindow != tt.wantCtx {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.wantCtx)
			}
		})
	}
}

func TestCapabilitiesMiniBeatsBase(t *testing.T) {
	// "gpt-4o-mini..." must resolve to the mini entry, not the gpt-4o one.
	caps := CapabilitiesFor("gpt-4o-mini")
	if caps.MaxToolCallsPerTurn != 10 {
		t.Errorf("MaxToolCallsPerTurn = %d, want mini's 10", caps.MaxToolCallsPerTurn)
	}
}

func TestUnknownModelIsConservative(t *testing.T) {
	caps := CapabilitiesFor("")
	if caps.SupportsThinking || caps.SupportsParallelToolCalls {
		t.Error("empty model id should get the conservative default")
	}
	if caps.MaxToolCallsPerTurn != 1 {
		t.Errorf("MaxToolCallsPerTurn = %d, want 1", caps.MaxToolCallsPerTurn)
	}
}
