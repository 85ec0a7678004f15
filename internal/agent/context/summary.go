package context

import (
	"github.com/sagerun/sage/pkg/models"
)

// SummaryMetadataKey marks a message as a rolling conversation summary;
// the packer pins the newest one to the front of the packed context.
const SummaryMetadataKey = "sage_summary"

// FindLatestSummary returns the most recent summary message in history,
// or nil when none exists.
func FindLatestSummary(history []*models.Message) *models.Message {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m == nil || m.Metadata == nil {
			continue
		}
		if marked, ok := m.Metadata[SummaryMetadataKey].(bool); ok && marked {
			return m
		}
	}
	return nil
}

// MessagesSinceSummary returns the messages after summary's position in
// history; a nil or unknown summary yields the whole history.
func MessagesSinceSummary(history []*models.Message, summary *models.Message) []*models.Message {
	if summary == nil {
		return history
	}
	for i, m := range history {
		if m != nil && m.UUID == summary.UUID {
			if i+1 >= len(history) {
				return nil
			}
			return history[i+1:]
		}
	}
	return history
}

// GetMessagesToSummarize picks the messages a new rolling summary should
// cover: everything after the current summary except prior summary
// messages and the keepRecent most recent ones. Nil when nothing old
// enough remains.
func GetMessagesToSummarize(history []*models.Message, summary *models.Message, keepRecent int) []*models.Message {
	candidates := make([]*models.Message, 0, len(history))
	for _, m := range MessagesSinceSummary(history, summary) {
		if m != nil && m.Metadata != nil {
			if marked, ok := m.Metadata[SummaryMetadataKey].(bool); ok && marked {
				continue
			}
		}
		candidates = append(candidates, m)
	}
	if len(candidates) <= keepRecent {
		return nil
	}
	return candidates[:len(candidates)-keepRecent]
}
