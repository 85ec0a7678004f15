// Package routing selects which LLM provider serves each request: rules
// and content heuristics pick a target, unhealthy providers sit out a
// cooldown, and the fallback/default chain absorbs failures. The Router
// itself implements agent.LLMProvider, so the execution loop never knows
// routing happened.
package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sagerun/sage/internal/agent"
)

// Rule maps matching requests to a (provider, model) target. Patterns
// substring-match the last user message; tags come from the classifier.
type Rule struct {
	Name   string
	Match  Match
	Target Target
}

// Match defines rule matching conditions.
type Match struct {
	Patterns []string
	Tags     []string
}

// Target names the destination provider and, optionally, a model.
type Target struct {
	Provider string
	Model    string
}

// Classifier assigns tags to a request for tag-based rules.
type Classifier interface {
	Classify(req *agent.CompletionRequest) []string
}

// Config configures a Router.
type Config struct {
	DefaultProvider string
	PreferLocal     bool
	LocalProviders  []string
	Rules           []Rule
	Classifier      Classifier
	Fallback        Target
	FailureCooldown time.Duration
}

// Router fans one logical provider out over a pool of real ones.
type Router struct {
	defaultProvider string
	providers       map[string]agent.LLMProvider
	rules           []Rule
	preferLocal     bool
	localProviders  map[string]bool
	classifier      Classifier
	fallback        Target
	cooldown        time.Duration

	healthMu  sync.Mutex
	benchedTo map[string]time.Time
}

// NewRouter builds a Router over the named provider pool.
func NewRouter(cfg Config, providers map[string]agent.LLMProvider) *Router {
	local := make(map[string]bool, len(cfg.LocalProviders))
	for _, name := range cfg.LocalProviders {
		if id := normalizeID(name); id != "" {
			local[id] = true
		}
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = &HeuristicClassifier{}
	}
	return &Router{
		defaultProvider: normalizeID(cfg.DefaultProvider),
		providers:       providers,
		rules:           cfg.Rules,
		preferLocal:     cfg.PreferLocal,
		localProviders:  local,
		classifier:      classifier,
		fallback:        cfg.Fallback,
		cooldown:        cfg.FailureCooldown,
		benchedTo:       make(map[string]time.Time),
	}
}

// Complete tries the selected provider, then the fallback, then the
// default, benching each provider that fails for the cooldown period.
func (r *Router) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if req == nil {
		return nil, routingErr("request is nil")
	}

	candidates, err := r.candidates(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, c := range candidates {
		attempt := *req
		if attempt.Model == "" && c.model != "" {
			attempt.Model = c.model
		}
		stream, err := c.provider.Complete(ctx, &attempt)
		if err == nil {
			return stream, nil
		}
		r.bench(c.name)
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, routingErr("no providers configured")
}

// Name identifies the router (with its default provider when set).
func (r *Router) Name() string {
	if r.defaultProvider == "" {
		return "router"
	}
	return "router:" + r.defaultProvider
}

// Models returns the de-duplicated union of every pooled provider's models.
func (r *Router) Models() []agent.Model {
	seen := make(map[string]bool)
	var out []agent.Model
	for _, provider := range r.providers {
		for _, model := range provider.Models() {
			if !seen[model.ID] {
				seen[model.ID] = true
				out = append(out, model)
			}
		}
	}
	return out
}

// SupportsTools reports whether any pooled provider supports tool calling.
func (r *Router) SupportsTools() bool {
	for _, provider := range r.providers {
		if supportsTools(provider) {
			return true
		}
	}
	return false
}

type routeCandidate struct {
	name     string
	model    string
	provider agent.LLMProvider
}

// candidates builds the ordered attempt list: rule/heuristic selection
// first, then the configured fallback, then the default provider. Benched
// and unknown providers are skipped; a request carrying tools drops every
// candidate that can't call them.
func (r *Router) candidates(req *agent.CompletionRequest) ([]routeCandidate, error) {
	selected, model := r.selectTarget(req)

	var out []routeCandidate
	seen := make(map[string]bool)
	add := func(name, model string) {
		id := normalizeID(name)
		if id == "" || seen[id] || r.isBenched(id) {
			return
		}
		provider, ok := r.providers[id]
		if !ok {
			return
		}
		seen[id] = true
		out = append(out, routeCandidate{name: id, model: model, provider: provider})
	}
	add(selected, model)
	add(r.fallback.Provider, r.fallback.Model)
	add(r.defaultProvider, "")

	if len(req.Tools) > 0 {
		kept := out[:0]
		for _, c := range out {
			if supportsTools(c.provider) {
				kept = append(kept, c)
			}
		}
		out = kept
		if len(out) == 0 {
			if p := r.anyToolProvider(); p != nil {
				out = append(out, routeCandidate{name: normalizeID(p.Name()), provider: p})
			}
		}
		if len(out) == 0 {
			return nil, routingErr("no tool-capable providers available")
		}
	}

	if len(out) == 0 {
		return nil, routingErr("no providers configured")
	}
	return out, nil
}

// selectTarget picks the first matching rule's target, a local provider
// when preferred and usable, or the default.
func (r *Router) selectTarget(req *agent.CompletionRequest) (string, string) {
	tags := r.classifier.Classify(req)
	for _, rule := range r.rules {
		if rule.Match.matches(tags, req) {
			return normalizeID(rule.Target.Provider), rule.Target.Model
		}
	}

	// Local models don't reliably call tools, so local preference only
	// applies to tool-free requests.
	if r.preferLocal && len(req.Tools) == 0 {
		for name := range r.localProviders {
			if _, ok := r.providers[name]; ok {
				return name, ""
			}
		}
	}
	return r.defaultProvider, ""
}

// anyToolProvider prefers the default provider, then anything in the pool.
func (r *Router) anyToolProvider() agent.LLMProvider {
	if p, ok := r.providers[r.defaultProvider]; ok && supportsTools(p) {
		return p
	}
	for _, p := range r.providers {
		if supportsTools(p) {
			return p
		}
	}
	return nil
}

// isBenched reports whether name is sitting out a failure cooldown,
// clearing the bench once it expires.
func (r *Router) isBenched(name string) bool {
	if r.cooldown <= 0 {
		return false
	}
	r.healthMu.Lock()
	defer r.healthMu.Unlock()
	until, ok := r.benchedTo[name]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(r.benchedTo, name)
		return false
	}
	return true
}

// bench takes a failing provider out of rotation for the cooldown.
func (r *Router) bench(name string) {
	if r.cooldown <= 0 || name == "" {
		return
	}
	r.healthMu.Lock()
	r.benchedTo[name] = time.Now().Add(r.cooldown)
	r.healthMu.Unlock()
}

// matches reports whether the rule applies: patterns (when present) must
// substring-match the last user message, and tags (when present) must
// intersect the classifier's tags.
func (m Match) matches(tags []string, req *agent.CompletionRequest) bool {
	if len(m.Patterns) == 0 && len(m.Tags) == 0 {
		return false
	}

	if len(m.Patterns) > 0 {
		content := strings.ToLower(lastUserContent(req))
		hit := false
		for _, pattern := range m.Patterns {
			if p := strings.ToLower(strings.TrimSpace(pattern)); p != "" && strings.Contains(content, p) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	if len(m.Tags) > 0 {
		for _, want := range m.Tags {
			for _, have := range tags {
				if strings.EqualFold(strings.TrimSpace(want), have) {
					return true
				}
			}
		}
		return false
	}
	return true
}

// supportsTools asks the provider when it exposes the capability and
// assumes yes otherwise (agent.LLMProvider doesn't require the method).
func supportsTools(p agent.LLMProvider) bool {
	type toolCapable interface{ SupportsTools() bool }
	if tc, ok := p.(toolCapable); ok {
		return tc.SupportsTools()
	}
	return true
}

// lastUserContent returns the newest user message's content, falling back
// to the final message of any role.
func lastUserContent(req *agent.CompletionRequest) string {
	if req == nil {
		return ""
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}

func normalizeID(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func routingErr(msg string) error {
	return fmt.Errorf("routing: %s", msg)
}
