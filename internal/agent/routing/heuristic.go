package routing

import (
	"regexp"
	"strings"

	"github.com/sagerun/sage/internal/agent"
)

// heuristicTags pairs each tag with the content signal that earns it.
var heuristicTags = []struct {
	tag     string
	pattern *regexp.Regexp
}{
	{"code", regexp.MustCompile("(?i)```|\\b(func|class|def|package|import|SELECT|INSERT|UPDATE|DELETE)\\b")},
	{"reasoning", regexp.MustCompile(`(?i)\b(analyze|reason|think through|derive|prove|why|tradeoff)\b`)},
	{"quick", regexp.MustCompile(`(?i)\b(what is|define|quick|brief|summary)\b`)},
}

// shortPromptLen is the length under which a prompt counts as "quick"
// regardless of wording.
const shortPromptLen = 80

// HeuristicClassifier tags requests from cheap content signals, giving
// tag-based routing rules something to match without an extra model call.
type HeuristicClassifier struct{}

// Classify returns the tags the last user message earns.
func (c *HeuristicClassifier) Classify(req *agent.CompletionRequest) []string {
	content := strings.TrimSpace(lastUserContent(req))
	if content == "" {
		return nil
	}

	var tags []string
	for _, h := range heuristicTags {
		if h.pattern.MatchString(content) {
			tags = append(tags, h.tag)
		}
	}
	if len(content) < shortPromptLen && !containsTagValue(tags, "quick") {
		tags = append(tags, "quick")
	}
	return tags
}

func containsTagValue(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
