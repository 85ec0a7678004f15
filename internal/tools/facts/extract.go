// Package facts pulls structured facts out of free text with regex
// heuristics. It is deliberately dumb: no NLP, just patterns with a
// per-kind confidence.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sagerun/sage/internal/agent"
)

// Fact is one extracted item.
type Fact struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

// extractors run in order; earlier kinds win slots under the fact cap.
var extractors = []struct {
	kind       string
	confidence float64
	pattern    *regexp.Regexp
}{
	{"email", 0.9, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{"url", 0.8, regexp.MustCompile(`https?://[^\s]+`)},
	{"phone", 0.6, regexp.MustCompile(`\+?[0-9][0-9()\-\s.]{6,}[0-9]`)},
}

// ExtractTool is the facts_extract tool.
type ExtractTool struct {
	maxFacts int
}

// NewExtractTool creates the tool with a default fact cap.
func NewExtractTool(maxFacts int) *ExtractTool {
	if maxFacts <= 0 {
		maxFacts = 10
	}
	return &ExtractTool{maxFacts: maxFacts}
}

func (t *ExtractTool) Name() string {
	return "facts_extract"
}

func (t *ExtractTool) Description() string {
	return "Extracts structured facts (emails, URLs, phone numbers) from text."
}

func (t *ExtractTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "text": {"type": "string", "description": "Input text to extract facts from"},
    "max_facts": {"type": "integer", "description": "Maximum number of facts to return"}
  },
  "required": ["text"]
}`)
}

func (t *ExtractTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Text     string `json:"text"`
		MaxFacts int    `json:"max_facts"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid params: %v", err), IsError: true}, nil
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return &agent.ToolResult{Content: "text is required", IsError: true}, nil
	}

	limit := t.maxFacts
	if input.MaxFacts > 0 {
		limit = input.MaxFacts
	}

	payload, err := json.MarshalIndent(struct {
		Facts []Fact `json:"facts"`
	}{
		Facts: extractFacts(text, limit),
	}, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to encode results: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

// extractFacts runs every extractor over text, deduplicating on
// kind+value and stopping at limit.
func extractFacts(text string, limit int) []Fact {
	seen := map[string]struct{}{}
	out := make([]Fact, 0, 8)

	for _, ex := range extractors {
		for _, match := range ex.pattern.FindAllString(text, -1) {
			if limit > 0 && len(out) >= limit {
				return out
			}
			value := strings.TrimSpace(match)
			key := ex.kind + ":" + value
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Fact{Type: ex.kind, Value: value, Confidence: ex.confidence, Source: "regex"})
		}
	}
	return out
}
