package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sagerun/sage/pkg/models"
)

// CompactionStrategy selects how a long session's history is shrunk.
type CompactionStrategy string

const (
	// StrategyLastN keeps the most recent messages.
	StrategyLastN CompactionStrategy = "last_n"

	// StrategySummarize folds older messages into one summary message and
	// keeps the recent tail. Falls back to last-N when no summarizer is
	// attached.
	StrategySummarize CompactionStrategy = "summarize"
)

// CompactionConfig configures when and how a session compacts.
type CompactionConfig struct {
	Enabled  bool               `json:"enabled" yaml:"enabled"`
	Strategy CompactionStrategy `json:"strategy" yaml:"strategy"`

	// Any trigger fires compaction: message count, estimated tokens, or
	// the oldest message's age.
	MaxMessages int `json:"max_messages" yaml:"max_messages"`
	MaxTokens   int `json:"max_tokens" yaml:"max_tokens"`
	MaxAgeHours int `json:"max_age_hours" yaml:"max_age_hours"`

	// KeepLastN is the tail both strategies preserve.
	KeepLastN int `json:"keep_last_n" yaml:"keep_last_n"`

	// PreserveSystemMessages keeps system turns regardless of position
	// under last-N, including the summarize strategy's fallback to last-N.
	// Summarizing does not read it: system turns before the kept tail are
	// summarized like any other message.
	PreserveSystemMessages bool `json:"preserve_system_messages" yaml:"preserve_system_messages"`

	// SummaryPrompt is handed to the summarizer with the older messages.
	SummaryPrompt string `json:"summary_prompt" yaml:"summary_prompt"`
}

// DefaultCompactionConfig returns the default thresholds with compaction
// off; callers opt in.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		Strategy:               StrategySummarize,
		MaxMessages:            100,
		MaxTokens:              50000,
		MaxAgeHours:            24,
		KeepLastN:              20,
		PreserveSystemMessages: true,
		SummaryPrompt:          "Summarize this conversation concisely, preserving decisions, facts, preferences, and open tasks.",
	}
}

// Summarizer condenses a message span into prose.
type Summarizer interface {
	Summarize(ctx context.Context, messages []*models.Message, prompt string) (string, error)
}

// Compactor decides when a session's history has outgrown its budget and
// computes the compacted history. It never mutates the store; the caller
// decides what to do with the result.
type Compactor struct {
	config     CompactionConfig
	store      Store
	summarizer Summarizer
}

// NewCompactor builds a Compactor over store. summarizer may be nil, which
// downgrades StrategySummarize to last-N.
func NewCompactor(config CompactionConfig, store Store, summarizer Summarizer) *Compactor {
	return &Compactor{config: config, store: store, summarizer: summarizer}
}

// ShouldCompact reports whether sessionID has crossed any trigger, with the
// triggering condition as the reason.
func (c *Compactor) ShouldCompact(ctx context.Context, sessionID string) (bool, string) {
	if !c.config.Enabled {
		return false, ""
	}
	history, err := c.store.GetHistory(ctx, sessionID, 0)
	if err != nil || len(history) == 0 {
		return false, ""
	}

	if c.config.MaxMessages > 0 && len(history) > c.config.MaxMessages {
		return true, fmt.Sprintf("message count %d exceeds %d", len(history), c.config.MaxMessages)
	}
	if c.config.MaxTokens > 0 {
		if tokens := estimateTokens(history); tokens > c.config.MaxTokens {
			return true, fmt.Sprintf("estimated tokens %d exceed %d", tokens, c.config.MaxTokens)
		}
	}
	if c.config.MaxAgeHours > 0 {
		cutoff := time.Now().Add(-time.Duration(c.config.MaxAgeHours) * time.Hour)
		if history[0].Timestamp.Before(cutoff) {
			return true, fmt.Sprintf("oldest message from %s exceeds age threshold", history[0].Timestamp.Format(time.RFC3339))
		}
	}
	return false, ""
}

// CompactionResult reports what a compaction pass would change.
type CompactionResult struct {
	SessionID                string             `json:"session_id"`
	Strategy                 CompactionStrategy `json:"strategy"`
	MessagesBeforeCompaction int                `json:"messages_before_compaction"`
	MessagesAfterCompaction  int                `json:"messages_after_compaction"`
	TokensEstimateBefore     int                `json:"tokens_estimate_before"`
	TokensEstimateAfter      int                `json:"tokens_estimate_after"`
	Summary                  string             `json:"summary,omitempty"`
	Messages                 []*models.Message  `json:"-"`
	CompactedAt              time.Time          `json:"compacted_at"`
}

// Compact computes the compacted history for sessionID.
func (c *Compactor) Compact(ctx context.Context, sessionID string) (*CompactionResult, error) {
	history, err := c.store.GetHistory(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("get session history: %w", err)
	}

	result := &CompactionResult{
		SessionID:                sessionID,
		Strategy:                 c.config.Strategy,
		MessagesBeforeCompaction: len(history),
		TokensEstimateBefore:     estimateTokens(history),
		CompactedAt:              time.Now(),
	}

	switch c.config.Strategy {
	case StrategyLastN, "":
		result.Messages = c.keepTail(history)
	case StrategySummarize:
		result.Messages, result.Summary, err = c.summarizeHead(ctx, history)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown compaction strategy: %s", c.config.Strategy)
	}

	result.MessagesAfterCompaction = len(result.Messages)
	result.TokensEstimateAfter = estimateTokens(result.Messages)
	return result, nil
}

// keepTail keeps the last KeepLastN non-system messages, plus all system
// messages when configured.
func (c *Compactor) keepTail(history []*models.Message) []*models.Message {
	keep := c.config.KeepLastN
	if keep <= 0 {
		keep = 20
	}

	var system, tail []*models.Message
	for _, msg := range history {
		if msg.Role == models.RoleSystem && c.config.PreserveSystemMessages {
			system = append(system, msg)
		}
	}
	for i := len(history) - 1; i >= 0 && len(tail) < keep; i-- {
		if history[i].Role == models.RoleSystem && c.config.PreserveSystemMessages {
			continue
		}
		tail = append([]*models.Message{history[i]}, tail...)
	}
	return append(system, tail...)
}

// summarizeHead condenses everything before the kept tail into one system
// summary message.
func (c *Compactor) summarizeHead(ctx context.Context, history []*models.Message) ([]*models.Message, string, error) {
	if c.summarizer == nil {
		return c.keepTail(history), "", nil
	}

	keep := c.config.KeepLastN
	if keep <= 0 {
		keep = 20
	}
	if len(history) <= keep {
		return history, "", nil
	}

	head, tail := history[:len(history)-keep], history[len(history)-keep:]
	summary, err := c.summarizer.Summarize(ctx, head, c.config.SummaryPrompt)
	if err != nil {
		return nil, "", fmt.Errorf("summarize history: %w", err)
	}

	out := make([]*models.Message, 0, len(tail)+1)
	if summary != "" {
		out = append(out, &models.Message{
			Role:    models.RoleSystem,
			Content: "[Conversation Summary]\n" + strings.TrimSpace(summary),
			Metadata: map[string]any{
				"compaction_summary": true,
				"summarized_count":   len(head),
			},
		})
	}
	return append(out, tail...), summary, nil
}

// estimateTokens approximates the token footprint at ~4 chars per token,
// with flat per-message overhead.
func estimateTokens(messages []*models.Message) int {
	chars := 0
	for _, msg := range messages {
		chars += len(msg.Content) + 20
	}
	return chars / 4
}
