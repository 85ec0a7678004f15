package usage

import (
	"fmt"
	"strings"
)

// FormatProviderUsage formats one provider's usage for display.
func FormatProviderUsage(pu *ProviderUsage) string {
	if pu == nil {
		return "No usage data"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Provider: %s\n", pu.Provider)
	fmt.Fprintf(&b, "Requests: %d\n", pu.Requests)
	fmt.Fprintf(&b, "Tokens: %s in / %s out", FormatTokens(pu.Usage.InputTokens), FormatTokens(pu.Usage.OutputTokens))
	if pu.Usage.CacheReadTokens > 0 || pu.Usage.CacheWriteTokens > 0 {
		fmt.Fprintf(&b, " (cache: %s read / %s write)", FormatTokens(pu.Usage.CacheReadTokens), FormatTokens(pu.Usage.CacheWriteTokens))
	}
	b.WriteString("\n")
	if pu.EstimatedUSD > 0 {
		fmt.Fprintf(&b, "Estimated cost: $%.4f\n", pu.EstimatedUSD)
	}
	return b.String()
}

// FormatTokens renders a token count compactly (1234 -> "1.2k").
func FormatTokens(n int64) string {
	switch {
	case n < 1_000:
		return fmt.Sprintf("%d", n)
	case n < 1_000_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
}
