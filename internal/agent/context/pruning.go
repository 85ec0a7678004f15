package context

import (
	"strconv"
	"strings"
	"time"

	"github.com/sagerun/sage/pkg/models"
)

// ContextPruningMode controls when pruning runs.
type ContextPruningMode string

const (
	// ContextPruningOff disables pruning.
	ContextPruningOff ContextPruningMode = "off"
	// ContextPruningCacheTTL prunes when cached tool results are stale.
	ContextPruningCacheTTL ContextPruningMode = "cache-ttl"
)

// ContextPruningToolMatch controls which tool results are prunable.
type ContextPruningToolMatch struct {
	Allow []string
	Deny  []string
}

// ContextPruningSoftTrim configures soft trimming.
type ContextPruningSoftTrim struct {
	MaxChars  int
	HeadChars int
	TailChars int
}

// ContextPruningHardClear configures hard clearing.
type ContextPruningHardClear struct {
	Enabled     bool
	Placeholder string
}

// ContextPruningSettings controls in-memory tool result pruning.
type ContextPruningSettings struct {
	Mode                 ContextPruningMode
	TTL                  time.Duration
	KeepLastAssistants   int
	SoftTrimRatio        float64
	HardClearRatio       float64
	MinPrunableToolChars int
	Tools                ContextPruningToolMatch
	SoftTrim             ContextPruningSoftTrim
	HardClear            ContextPruningHardClear
}

// DefaultContextPruningSettings returns the default pruning settings.
func DefaultContextPruningSettings() ContextPruningSettings {
	return ContextPruningSettings{
		Mode:                 ContextPruningCacheTTL,
		TTL:                  5 * time.Minute,
		KeepLastAssistants:   3,
		SoftTrimRatio:        0.3,
		HardClearRatio:       0.5,
		MinPrunableToolChars: 50000,
		SoftTrim: ContextPruningSoftTrim{
			MaxChars:  4000,
			HeadChars: 1500,
			TailChars: 1500,
		},
		HardClear: ContextPruningHardClear{
			Enabled:     true,
			Placeholder: "[Old tool result content cleared]",
		},
	}
}

// pruner carries one pruning pass's state: the original history, a
// copy-on-write shadow, and the running char total against the window.
type pruner struct {
	settings   ContextPruningSettings
	original   []*models.Message
	shadow     []*models.Message
	totalChars int
	window     int
}

// PruneContextMessages trims or clears old tool results from history so a
// long session fits back into the model's context window. Two escalation
// stages: soft-trim keeps a head and tail of each oversized result once
// usage crosses SoftTrimRatio; hard-clear replaces old results outright
// once usage crosses HardClearRatio. The last KeepLastAssistants turns are
// never touched. Returns the original slice when nothing changed.
func PruneContextMessages(messages []*models.Message, settings ContextPruningSettings, charWindow int) []*models.Message {
	if len(messages) == 0 || charWindow <= 0 {
		return messages
	}

	cutoff, ok := keepBoundary(messages, settings.KeepLastAssistants)
	if !ok {
		return messages
	}
	start := firstUserIndex(messages)
	if start < 0 {
		start = len(messages)
	}
	if start >= cutoff {
		return messages
	}

	p := &pruner{
		settings:   settings,
		original:   messages,
		totalChars: contextChars(messages),
		window:     charWindow,
	}
	if p.usage() < settings.SoftTrimRatio {
		return messages
	}

	prunable := p.softTrimPass(start, cutoff)
	p.hardClearPass(prunable)
	return p.result()
}

func (p *pruner) usage() float64 {
	return float64(p.totalChars) / float64(p.window)
}

// at returns the live view of message i (the shadow once one exists).
func (p *pruner) at(i int) *models.Message {
	if p.shadow != nil {
		return p.shadow[i]
	}
	return p.original[i]
}

// replace installs an updated message into the shadow, materializing the
// copy-on-write slice on first use, and adjusts the running char total.
func (p *pruner) replace(i int, updated *models.Message) {
	if p.shadow == nil {
		p.shadow = make([]*models.Message, len(p.original))
		copy(p.shadow, p.original)
	}
	p.totalChars += messageChars(updated) - messageChars(p.shadow[i])
	p.shadow[i] = updated
}

func (p *pruner) result() []*models.Message {
	if p.shadow != nil {
		return p.shadow
	}
	return p.original
}

// resultRef addresses one tool result inside the history.
type resultRef struct {
	msg, result int
}

// softTrimPass trims every prunable oversized result in [start, cutoff)
// and collects the refs the hard-clear stage may escalate on.
func (p *pruner) softTrimPass(start, cutoff int) []resultRef {
	toolNames := toolNamesByID(p.original)
	prunable := p.settings.Tools.predicate()

	var refs []resultRef
	for i := start; i < cutoff; i++ {
		msg := p.at(i)
		if msg == nil || len(msg.ToolResults) == 0 {
			continue
		}
		for j := range msg.ToolResults {
			if !prunable(toolNames[msg.ToolResults[j].CallID]) {
				continue
			}
			refs = append(refs, resultRef{msg: i, result: j})

			trimmed, changed := p.softTrim(msg.ToolResults[j].Output)
			if !changed {
				continue
			}
			updated := cloneWithResults(msg)
			updated.ToolResults[j].Output = trimmed
			p.replace(i, updated)
			msg = updated
		}
	}
	return refs
}

// hardClearPass replaces prunable results with the placeholder until usage
// drops below HardClearRatio, skipped entirely when disabled, below the
// ratio, or when there isn't enough prunable content to matter.
func (p *pruner) hardClearPass(refs []resultRef) {
	if !p.settings.HardClear.Enabled || p.usage() < p.settings.HardClearRatio {
		return
	}

	prunableChars := 0
	for _, ref := range refs {
		if msg := p.at(ref.msg); msg != nil && ref.result < len(msg.ToolResults) {
			prunableChars += len(msg.ToolResults[ref.result].Output)
		}
	}
	if prunableChars < p.settings.MinPrunableToolChars {
		return
	}

	for _, ref := range refs {
		if p.usage() < p.settings.HardClearRatio {
			return
		}
		msg := p.at(ref.msg)
		if msg == nil || ref.result >= len(msg.ToolResults) {
			continue
		}
		updated := cloneWithResults(msg)
		updated.ToolResults[ref.result].Output = p.settings.HardClear.Placeholder
		p.replace(ref.msg, updated)
	}
}

// softTrim keeps an oversized result's head and tail with a note in
// between; short results pass through unchanged.
func (p *pruner) softTrim(content string) (string, bool) {
	raw := len(content)
	if raw <= p.settings.SoftTrim.MaxChars {
		return content, false
	}
	head := clampLow(p.settings.SoftTrim.HeadChars, 0)
	tail := clampLow(p.settings.SoftTrim.TailChars, 0)
	if head+tail >= raw {
		return content, false
	}

	note := "\n\n[Tool result trimmed: kept first " + strconv.Itoa(head) +
		" chars and last " + strconv.Itoa(tail) + " chars of " + strconv.Itoa(raw) + " chars.]"
	return content[:head] + "\n...\n" + content[raw-tail:] + note, true
}

// keepBoundary finds the index of the KeepLastAssistants-th newest
// assistant turn; everything from there on is protected.
func keepBoundary(messages []*models.Message, keep int) (int, bool) {
	if keep <= 0 {
		return len(messages), true
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i] != nil && messages[i].Role == models.RoleAssistant {
			if keep--; keep == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func firstUserIndex(messages []*models.Message) int {
	for i, msg := range messages {
		if msg != nil && msg.Role == models.RoleUser {
			return i
		}
	}
	return -1
}

// predicate builds the allow/deny check for tool names: deny wins, an
// empty allow list admits everything, unknown names are prunable only
// under an empty allow list.
func (m ContextPruningToolMatch) predicate() func(string) bool {
	deny := lowerNonEmpty(m.Deny)
	allow := lowerNonEmpty(m.Allow)
	return func(toolName string) bool {
		name := strings.ToLower(strings.TrimSpace(toolName))
		if name == "" {
			return len(allow) == 0
		}
		if anyGlobMatch(deny, name) {
			return false
		}
		return len(allow) == 0 || anyGlobMatch(allow, name)
	}
}

func lowerNonEmpty(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if v := strings.ToLower(strings.TrimSpace(p)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func anyGlobMatch(patterns []string, name string) bool {
	for _, p := range patterns {
		if globMatch(p, name) {
			return true
		}
	}
	return false
}

// globMatch matches * as "any run of characters", anchored at both ends.
func globMatch(pattern, value string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == value
	}
	parts := strings.Split(pattern, "*")
	if first := parts[0]; first != "" {
		if !strings.HasPrefix(value, first) {
			return false
		}
		value = value[len(first):]
	}
	if last := parts[len(parts)-1]; last != "" {
		if !strings.HasSuffix(value, last) {
			return false
		}
		value = value[:len(value)-len(last)]
	}
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		pos := strings.Index(value, part)
		if pos < 0 {
			return false
		}
		value = value[pos+len(part):]
	}
	return true
}

func toolNamesByID(messages []*models.Message) map[string]string {
	names := make(map[string]string)
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		for _, tc := range msg.ToolCalls {
			if tc.ID != "" && tc.Name != "" {
				names[tc.ID] = tc.Name
			}
		}
	}
	return names
}

func contextChars(messages []*models.Message) int {
	total := 0
	for _, msg := range messages {
		total += messageChars(msg)
	}
	return total
}

func messageChars(msg *models.Message) int {
	if msg == nil {
		return 0
	}
	chars := len(msg.Content)
	for _, tc := range msg.ToolCalls {
		chars += len(tc.Name) + len(tc.Input)
	}
	for _, tr := range msg.ToolResults {
		chars += len(tr.Output)
	}
	return chars
}

func cloneWithResults(msg *models.Message) *models.Message {
	clone := *msg
	if len(msg.ToolResults) > 0 {
		clone.ToolResults = append([]models.ToolResult(nil), msg.ToolResults...)
	}
	return &clone
}

func clampLow(value, floor int) int {
	if value < floor {
		return floor
	}
	return value
}
