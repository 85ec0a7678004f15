package providers

import (
	"errors"
	"fmt"
	"strings"
)

// FailoverReason buckets a provider failure for retry and failover
// decisions. Retryable reasons are transient; failover reasons mean this
// provider will keep failing and another one should be tried.
type FailoverReason string

const (
	FailoverBilling          FailoverReason = "billing"
	FailoverRateLimit        FailoverReason = "rate_limit"
	FailoverAuth             FailoverReason = "auth"
	FailoverTimeout          FailoverReason = "timeout"
	FailoverServerError      FailoverReason = "server_error"
	FailoverInvalidRequest   FailoverReason = "invalid_request"
	FailoverModelUnavailable FailoverReason = "model_unavailable"
	FailoverContentFilter    FailoverReason = "content_filter"
	FailoverUnknown          FailoverReason = "unknown"
)

// IsRetryable reports whether another attempt against the same provider is
// worth making.
func (r FailoverReason) IsRetryable() bool {
	return r == FailoverRateLimit || r == FailoverTimeout || r == FailoverServerError
}

// ShouldFailover reports whether the request should move to a different
// provider or model instead of retrying here.
func (r FailoverReason) ShouldFailover() bool {
	return r == FailoverBilling || r == FailoverAuth || r == FailoverModelUnavailable
}

// ProviderError carries the context a failed provider call leaves behind:
// which provider and model, the HTTP status when one exists, and the
// classified reason driving retry/failover.
type ProviderError struct {
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Reason    FailoverReason
	Cause     error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Model != "" {
		fmt.Fprintf(&b, " (%s)", e.Model)
	}
	b.WriteString(": ")
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Cause != nil:
		b.WriteString(e.Cause.Error())
	default:
		b.WriteString("request failed")
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Wrap lifts err into a ProviderError for provider/model, classifying it by
// message. A ProviderError passes through untouched.
func Wrap(provider, model string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    err,
		Reason:   ClassifyMessage(err.Error()),
	}
}

// ClassifyStatus maps an HTTP status code to a FailoverReason.
func ClassifyStatus(status int) FailoverReason {
	switch {
	case status == 402:
		return FailoverBilling
	case status == 429:
		return FailoverRateLimit
	case status == 401 || status == 403:
		return FailoverAuth
	case status == 404:
		return FailoverModelUnavailable
	case status == 408:
		return FailoverTimeout
	case status == 400:
		return FailoverInvalidRequest
	case status >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

// ClassifyMessage buckets an error string when no status code is available.
func ClassifyMessage(msg string) FailoverReason {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "too many requests") || strings.Contains(lower, "429"):
		return FailoverRateLimit
	case strings.Contains(lower, "quota") || strings.Contains(lower, "billing") ||
		strings.Contains(lower, "payment"):
		return FailoverBilling
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "authentication") || strings.Contains(lower, "forbidden"):
		return FailoverAuth
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return FailoverTimeout
	case strings.Contains(lower, "overloaded") || strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "bad gateway") || strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "gateway timeout") ||
		strings.Contains(lower, "connection reset") || strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host"):
		return FailoverServerError
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "content_filter"):
		return FailoverContentFilter
	case strings.Contains(lower, "model not found") || strings.Contains(lower, "model_not_found"):
		return FailoverModelUnavailable
	default:
		return FailoverUnknown
	}
}

// IsRetryable reports whether err is worth retrying against the same
// provider.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason.IsRetryable()
	}
	return ClassifyMessage(err.Error()).IsRetryable()
}

// ShouldFailover reports whether err warrants moving to another provider.
func ShouldFailover(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason.ShouldFailover()
	}
	return false
}

// GetProviderError unwraps err to a *ProviderError when one is present.
func GetProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	ok := errors.As(err, &pe)
	return pe, ok
}
