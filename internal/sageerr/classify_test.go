package sageerr

import (
	"errors"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"http 502", HTTP(502, "bad gateway", nil), true},
		{"http 503", HTTP(503, "unavailable", nil), true},
		{"http 504", HTTP(504, "gateway timeout", nil), true},
		{"http 429", HTTP(429, "too many requests", nil), true},
		{"http 400", HTTP(400, "bad request", nil), false},
		{"llm overloaded", New(KindLLM, "model overloaded, try again", nil), true},
		{"llm timeout", New(KindLLM, "request timeout", nil), true},
		{"llm connection refused", New(KindLLM, "dial tcp: connection refused", nil), true},
		{"llm unrelated", New(KindLLM, "invalid api key", nil), false},
		{"mcp timeout", MCPTimeout(30, "deadline exceeded"), true},
		{"mcp server", MCPServer(500, "internal server error", nil), true},
		{"mcp connection", MCP(McpConnection, "dial failed", nil), true},
		{"mcp tool not found", MCP(McpToolNotFound, "no such tool", nil), false},
		{"config error", New(KindConfig, "missing field", nil), false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestShouldFallbackProvider(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"http 403", HTTP(403, "forbidden", nil), true},
		{"http 429", HTTP(429, "too many requests", nil), true},
		{"http 500", HTTP(500, "internal error", nil), false},
		{"quota message", New(KindLLM, "monthly quota exceeded", nil), true},
		{"rate limit message", New(KindLLM, "rate limit hit", nil), true},
		{"unrelated llm error", New(KindLLM, "context length exceeded", nil), false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldFallbackProvider(tt.err); got != tt.want {
				t.Errorf("ShouldFallbackProvider(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
