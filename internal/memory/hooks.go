package memory

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sagerun/sage/internal/hooks"
	"github.com/sagerun/sage/pkg/models"
)

// MemoryCategory categorizes captured memories.
type MemoryCategory string

const (
	CategoryPreference MemoryCategory = "preference"
	CategoryFact       MemoryCategory = "fact"
	CategoryDecision   MemoryCategory = "decision"
	CategoryEntity     MemoryCategory = "entity"
	CategoryOther      MemoryCategory = "other"
)

// AutoCaptureConfig configures automatic memory capture.
type AutoCaptureConfig struct {
	// Enabled enables auto-capture of conversation content.
	Enabled bool `yaml:"enabled"`

	// MaxCapturesPerConversation limits captures per agent run (default: 3).
	MaxCapturesPerConversation int `yaml:"max_captures_per_conversation"`

	// MinContentLength / MaxContentLength bound the text considered
	// (defaults: 10 / 500).
	MinContentLength int `yaml:"min_content_length"`
	MaxContentLength int `yaml:"max_content_length"`

	// DuplicateThreshold is the similarity above which content counts as
	// already stored (default: 0.95).
	DuplicateThreshold float32 `yaml:"duplicate_threshold"`

	// DefaultImportance scores auto-captured memories (default: 0.7).
	DefaultImportance float32 `yaml:"default_importance"`
}

// AutoRecallConfig configures automatic memory recall.
type AutoRecallConfig struct {
	// Enabled enables auto-recall of relevant memories.
	Enabled bool `yaml:"enabled"`

	// MaxResults caps the memories injected per prompt (default: 3).
	MaxResults int `yaml:"max_results"`

	// MinScore is the recall similarity floor (default: 0.3).
	MinScore float32 `yaml:"min_score"`

	// MinQueryLength is the shortest prompt that triggers recall
	// (default: 5).
	MinQueryLength int `yaml:"min_query_length"`
}

// MemoryHooks subscribes auto-capture (on completed agent runs) and
// auto-recall (on received messages) to a hook registry.
type MemoryHooks struct {
	manager       *Manager
	captureConfig AutoCaptureConfig
	recallConfig  AutoRecallConfig
	logger        *slog.Logger
}

// NewMemoryHooks builds the hook pair with config defaults applied.
func NewMemoryHooks(manager *Manager, captureConfig AutoCaptureConfig, recallConfig AutoRecallConfig, logger *slog.Logger) *MemoryHooks {
	if logger == nil {
		logger = slog.Default()
	}
	if captureConfig.MaxCapturesPerConversation == 0 {
		captureConfig.MaxCapturesPerConversation = 3
	}
	if captureConfig.MinContentLength == 0 {
		captureConfig.MinContentLength = 10
	}
	if captureConfig.MaxContentLength == 0 {
		captureConfig.MaxContentLength = 500
	}
	if captureConfig.DuplicateThreshold == 0 {
		captureConfig.DuplicateThreshold = 0.95
	}
	if captureConfig.DefaultImportance == 0 {
		captureConfig.DefaultImportance = 0.7
	}
	if recallConfig.MaxResults == 0 {
		recallConfig.MaxResults = 3
	}
	if recallConfig.MinScore == 0 {
		recallConfig.MinScore = 0.3
	}
	if recallConfig.MinQueryLength == 0 {
		recallConfig.MinQueryLength = 5
	}
	return &MemoryHooks{
		manager:       manager,
		captureConfig: captureConfig,
		recallConfig:  recallConfig,
		logger:        logger.With("component", "memory-hooks"),
	}
}

// Register subscribes the enabled handlers to registry. Capture runs at
// low priority (after other completion handlers); recall runs early so the
// injected context is ready before anything reads the event.
func (h *MemoryHooks) Register(registry *hooks.Registry) {
	if h.captureConfig.Enabled {
		registry.Register(string(hooks.EventAgentCompleted), h.captureFromRun,
			hooks.WithName("memory-auto-capture"),
			hooks.WithSource("memory"),
			hooks.WithPriority(hooks.PriorityLow))
		h.logger.Info("registered memory auto-capture hook")
	}
	if h.recallConfig.Enabled {
		registry.Register(string(hooks.EventMessageReceived), h.recallIntoEvent,
			hooks.WithName("memory-auto-recall"),
			hooks.WithSource("memory"),
			hooks.WithPriority(hooks.PriorityHigh))
		h.logger.Info("registered memory auto-recall hook")
	}
}

// captureFromRun mines a completed run's conversation for durable facts
// and indexes the new ones.
func (h *MemoryHooks) captureFromRun(ctx context.Context, event *hooks.Event) error {
	if h.manager == nil {
		return nil
	}
	messages, ok := event.Context["messages"].([]*models.Message)
	if !ok || len(messages) == 0 {
		return nil
	}
	if success, ok := event.Context["success"].(bool); ok && !success {
		return nil
	}

	candidates := h.captureCandidates(messages)
	if len(candidates) > h.captureConfig.MaxCapturesPerConversation {
		candidates = candidates[:h.captureConfig.MaxCapturesPerConversation]
	}

	workspaceID, _ := event.Context["workspace_id"].(string)
	stored := 0
	for _, candidate := range candidates {
		duplicate, err := h.alreadyStored(ctx, candidate.content, event.SessionID)
		if err != nil {
			h.logger.Warn("duplicate check failed", "error", err)
			continue
		}
		if duplicate {
			continue
		}

		entry := &models.MemoryEntry{
			ID:          uuid.NewString(),
			SessionID:   event.SessionID,
			WorkspaceID: workspaceID,
			Content:     candidate.content,
			Metadata: models.MemoryMetadata{
				Source: "auto-capture",
				Role:   candidate.role,
				Tags:   []string{string(candidate.category)},
				Extra: map[string]any{
					"category":   string(candidate.category),
					"importance": h.captureConfig.DefaultImportance,
				},
			},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := h.manager.Index(ctx, []*models.MemoryEntry{entry}); err != nil {
			h.logger.Warn("failed to store memory", "error", err)
			continue
		}
		stored++
	}

	if stored > 0 {
		h.logger.Info("auto-captured memories", "count", stored, "session", event.SessionID)
	}
	return nil
}

// captureCandidates filters the conversation down to capture-worthy turns.
func (h *MemoryHooks) captureCandidates(messages []*models.Message) []captureCandidate {
	var out []captureCandidate
	for _, msg := range messages {
		if msg == nil || msg.Content == "" {
			continue
		}
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		if !shouldCapture(msg.Content, h.captureConfig) {
			continue
		}
		out = append(out, captureCandidate{
			content:  msg.Content,
			category: detectCategory(msg.Content),
			role:     string(msg.Role),
		})
	}
	return out
}

// recallIntoEvent searches memories relevant to the received message and
// stashes a formatted block in the event context for the prompt assembler.
func (h *MemoryHooks) recallIntoEvent(ctx context.Context, event *hooks.Event) error {
	if h.manager == nil || event.Message == nil {
		return nil
	}
	query := event.Message.Content
	if len(query) < h.recallConfig.MinQueryLength {
		return nil
	}

	results, err := h.search(ctx, query, event)
	if err != nil {
		h.logger.Warn("memory recall failed", "error", err)
		return nil
	}
	if results == nil || len(results.Results) == 0 {
		return nil
	}

	var lines []string
	for _, result := range results.Results {
		category := "memory"
		if tags := result.Entry.Metadata.Tags; len(tags) > 0 {
			category = tags[0]
		}
		lines = append(lines, "- ["+category+"] "+result.Entry.Content)
	}
	block := "<relevant-memories>\nThe following memories may be relevant to this conversation:\n" +
		strings.Join(lines, "\n") + "\n</relevant-memories>"

	event.WithContext("memory_context", block)
	event.WithContext("memory_count", len(results.Results))
	h.logger.Debug("injected memories into context", "count", len(results.Results), "session", event.SessionID)
	return nil
}

// search picks hierarchical or flat search per config.
func (h *MemoryHooks) search(ctx context.Context, query string, event *hooks.Event) (*models.SearchResponse, error) {
	if h.manager.config != nil && h.manager.config.Search.Hierarchy.Enabled {
		agentID, _ := event.Context["agent_id"].(string)
		workspaceID, _ := event.Context["workspace_id"].(string)
		return h.manager.SearchHierarchical(ctx, &HierarchyRequest{
			Query:       query,
			Limit:       h.recallConfig.MaxResults,
			Threshold:   h.recallConfig.MinScore,
			SessionID:   event.SessionID,
			WorkspaceID: workspaceID,
			AgentID:     agentID,
		})
	}
	return h.manager.Search(ctx, &models.SearchRequest{
		Query:     query,
		Limit:     h.recallConfig.MaxResults,
		Threshold: h.recallConfig.MinScore,
		Scope:     models.ScopeSession,
		ScopeID:   event.SessionID,
	})
}

// alreadyStored reports whether near-identical content is indexed for the
// session.
func (h *MemoryHooks) alreadyStored(ctx context.Context, content, sessionID string) (bool, error) {
	results, err := h.manager.Search(ctx, &models.SearchRequest{
		Query:     content,
		Limit:     1,
		Threshold: h.captureConfig.DuplicateThreshold,
		Scope:     models.ScopeSession,
		ScopeID:   sessionID,
	})
	if err != nil {
		return false, err
	}
	return results != nil && len(results.Results) > 0, nil
}

// captureCandidate is one capture-worthy turn.
type captureCandidate struct {
	content  string
	category MemoryCategory
	role     string
}

// captureTriggers are the signals that make a turn worth remembering:
// explicit asks, stated preferences and decisions, contact details,
// personal facts, and importance markers.
var captureTriggers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bremember\b`),
	regexp.MustCompile(`(?i)i (like|prefer|hate|love|want|need|always|never)`),
	regexp.MustCompile(`(?i)(we|i) (decided|will use|are going to)`),
	regexp.MustCompile(`\+\d{10,}`),
	regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w{2,}`),
	regexp.MustCompile(`(?i)my\s+\w+\s+is|is\s+my`),
	regexp.MustCompile(`(?i)important|crucial|key point`),
}

// shouldCapture applies the length bounds and skip-filters, then requires
// a trigger hit. Recalled-memory blocks, XML-ish system content, markdown
// summaries, and emoji-heavy agent output are all skipped.
func shouldCapture(text string, cfg AutoCaptureConfig) bool {
	switch {
	case len(text) < cfg.MinContentLength || len(text) > cfg.MaxContentLength:
		return false
	case strings.Contains(text, "<relevant-memories>"):
		return false
	case strings.HasPrefix(text, "<") && strings.Contains(text, "</"):
		return false
	case strings.Contains(text, "**") && strings.Contains(text, "\n-"):
		return false
	case countEmojis(text) > 3:
		return false
	}
	for _, trigger := range captureTriggers {
		if trigger.MatchString(text) {
			return true
		}
	}
	return false
}

var (
	preferencePattern = regexp.MustCompile(`(?i)prefer|like|love|hate|want`)
	decisionPattern   = regexp.MustCompile(`(?i)decided|will use`)
	entityPattern     = regexp.MustCompile(`(?i)\+\d{10,}|@[\w.-]+\.\w+|is called`)
	factPattern       = regexp.MustCompile(`(?i)\b(is|are|has|have)\b`)
)

// detectCategory buckets content by its strongest signal.
func detectCategory(text string) MemoryCategory {
	switch {
	case preferencePattern.MatchString(text):
		return CategoryPreference
	case decisionPattern.MatchString(text):
		return CategoryDecision
	case entityPattern.MatchString(text):
		return CategoryEntity
	case factPattern.MatchString(text):
		return CategoryFact
	default:
		return CategoryOther
	}
}

// countEmojis counts characters in the common emoji ranges.
func countEmojis(text string) int {
	count := 0
	for _, r := range text {
		if (r >= 0x1F300 && r <= 0x1F9FF) ||
			(r >= 0x2600 && r <= 0x26FF) ||
			(r >= 0x2700 && r <= 0x27BF) {
			count++
		}
	}
	return count
}

// truncate shortens s to maxLen with an ellipsis.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
