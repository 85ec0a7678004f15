// Package usage provides token usage tracking, cost estimation, and
// formatting for LLM providers.
package usage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Usage represents token usage for a single request.
type Usage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`
}

// Total returns the total token count.
func (u *Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Add adds another usage record to this one.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
}

// Cost represents pricing for a model (per million tokens).
type Cost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cache_read"`
	CacheWrite float64 `json:"cache_write"`
}

// Estimate calculates the estimated cost for the given usage.
func (c *Cost) Estimate(u *Usage) float64 {
	if u == nil {
		return 0
	}
	total := float64(u.InputTokens)*c.Input +
		float64(u.OutputTokens)*c.Output +
		float64(u.CacheReadTokens)*c.CacheRead +
		float64(u.CacheWriteTokens)*c.CacheWrite
	return total / 1_000_000
}

// ProviderUsage is the accumulated usage for one provider since the
// tracker started (or was last reset).
type ProviderUsage struct {
	Provider     string    `json:"provider"`
	Usage        Usage     `json:"usage"`
	Requests     int64     `json:"requests"`
	EstimatedUSD float64   `json:"estimated_usd,omitempty"`
	Since        time.Time `json:"since"`
	LastRequest  time.Time `json:"last_request"`
}

// Tracker accumulates usage per provider. It is fed by the execution loop
// after each completed run and read by the provider_usage tool and the
// /usage REPL command.
type Tracker struct {
	mu     sync.RWMutex
	totals map[string]*ProviderUsage
	costs  map[string]Cost // keyed by provider
	now    func() time.Time
}

// NewTracker creates an empty tracker. costs maps provider name to its
// per-million-token pricing and may be nil when cost estimation is not
// wanted.
func NewTracker(costs map[string]Cost) *Tracker {
	return &Tracker{
		totals: make(map[string]*ProviderUsage),
		costs:  costs,
		now:    time.Now,
	}
}

// Record folds one request's usage into the provider's running total.
func (t *Tracker) Record(provider string, u Usage) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pu, ok := t.totals[provider]
	if !ok {
		pu = &ProviderUsage{Provider: provider, Since: t.now()}
		t.totals[provider] = pu
	}
	pu.Usage.Add(&u)
	pu.Requests++
	pu.LastRequest = t.now()
	if cost, ok := t.costs[provider]; ok {
		pu.EstimatedUSD = cost.Estimate(&pu.Usage)
	}
}

// Get returns the usage for one provider.
func (t *Tracker) Get(_ context.Context, provider string) (*ProviderUsage, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))

	t.mu.RLock()
	defer t.mu.RUnlock()

	pu, ok := t.totals[provider]
	if !ok {
		return nil, fmt.Errorf("no usage recorded for provider %q", provider)
	}
	cp := *pu
	return &cp, nil
}

// GetAll returns every provider's usage sorted by provider name.
func (t *Tracker) GetAll(_ context.Context) []*ProviderUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*ProviderUsage, 0, len(t.totals))
	for _, pu := range t.totals {
		cp := *pu
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Reset clears all accumulated totals.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals = make(map[string]*ProviderUsage)
}
