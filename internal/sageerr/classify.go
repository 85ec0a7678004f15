package sageerr

import "strings"

// messageOf returns the most descriptive text available for e: its own
// Message if set, otherwise its wrapped Cause's text.
func messageOf(e *Error) string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return ""
}

// IsRetryable reports whether err looks like a transient failure worth
// retrying: connection/transport errors, HTTP 502/503/504 or any 429, an
// LLM-kind error whose message mentions overload/timeout/connection
// refused, or an MCP Timeout/Server error.
func IsRetryable(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}

	lower := strings.ToLower(messageOf(e))
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") {
		return true
	}

	switch e.Kind {
	case KindHTTP:
		switch e.HTTPStatus {
		case 502, 503, 504, 429:
			return true
		}
		return false
	case KindLLM:
		for _, needle := range []string{"overloaded", "timeout", "connection refused"} {
			if strings.Contains(lower, needle) {
				return true
			}
		}
		return false
	case KindMCP:
		switch e.McpKind {
		case McpTimeout, McpServer, McpConnection, McpTransport:
			return true
		}
		return false
	default:
		return false
	}
}

// ShouldFallbackProvider reports whether err suggests the caller should try
// a different LLM provider rather than retry the same one: HTTP 403/429, or
// any message mentioning quota exhaustion or rate limiting.
func ShouldFallbackProvider(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}

	if e.Kind == KindHTTP && (e.HTTPStatus == 403 || e.HTTPStatus == 429) {
		return true
	}

	lower := strings.ToLower(messageOf(e))
	return strings.Contains(lower, "quota") || strings.Contains(lower, "rate limit")
}
