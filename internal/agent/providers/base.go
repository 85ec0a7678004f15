// Package providers adapts the execution loop's provider-agnostic
// CompletionRequest to concrete LLM backends. Four adapters cover the
// wire formats in use: Anthropic's native messages API, the OpenAI chat
// wire (shared by OpenAI, Azure OpenAI, OpenRouter, Venice, Ollama's /v1
// endpoint, and local Copilot proxies), Google's Gemini API, and AWS
// Bedrock's Converse API.
package providers

import (
	"context"
	"time"

	"github.com/sagerun/sage/internal/backoff"
)

const (
	defaultAttempts  = 3
	defaultMaxTokens = 4096
)

// openStream dials a provider's streaming endpoint with the shared retry
// schedule: transient failures (classified by IsRetryable) back off
// exponentially, everything else surfaces immediately.
func openStream[T any](ctx context.Context, attempts int, initial time.Duration, open func() (T, error)) (T, error) {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	if initial <= 0 {
		initial = time.Second
	}

	var stream T
	err := backoff.Retry(ctx, backoff.Exponential(initial, 30*time.Second, 2.0, 0.1), attempts, IsRetryable, func() error {
		var err error
		stream, err = open()
		return err
	})
	return stream, err
}

// orDefault returns value, or fallback when value is empty.
func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// tokensOrDefault bounds a request's max-tokens to a sane floor.
func tokensOrDefault(maxTokens int) int {
	if maxTokens <= 0 {
		return defaultMaxTokens
	}
	return maxTokens
}
