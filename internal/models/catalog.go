// Package models describes the LLM models the runtime can talk to: a
// catalog of known models with capabilities and pricing, a per-family
// runtime limits table, and Bedrock discovery that feeds the catalog.
package models

import (
	"sort"
	"strings"
	"sync"
)

// Provider identifies an LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderOllama    Provider = "ollama"
	ProviderAzure     Provider = "azure"
	ProviderBedrock   Provider = "bedrock"
)

// Capability identifies something a model can do.
type Capability string

const (
	CapVision      Capability = "vision"
	CapTools       Capability = "tools"
	CapStreaming   Capability = "streaming"
	CapJSON        Capability = "json"
	CapCode        Capability = "code"
	CapReasoning   Capability = "reasoning"
	CapAudio       Capability = "audio"
	CapVideo       Capability = "video"
	CapLongContext Capability = "long_context"
	CapCaching     Capability = "caching"
	CapPDFInput    Capability = "pdf_input"
)

// Tier buckets models by quality and cost.
type Tier string

const (
	TierFlagship Tier = "flagship"
	TierStandard Tier = "standard"
	TierFast     Tier = "fast"
	TierMini     Tier = "mini"
)

var tierOrder = map[Tier]int{TierFlagship: 0, TierStandard: 1, TierFast: 2, TierMini: 3}

// Model is one catalog entry.
type Model struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Provider        Provider     `json:"provider"`
	Tier            Tier         `json:"tier"`
	ContextWindow   int          `json:"context_window"`
	MaxOutputTokens int          `json:"max_output_tokens,omitempty"`
	Capabilities    []Capability `json:"capabilities"`
	Aliases         []string     `json:"aliases,omitempty"`
	Deprecated      bool         `json:"deprecated,omitempty"`
	ReplacedBy      string       `json:"replaced_by,omitempty"`
	ReleaseDate     string       `json:"release_date,omitempty"`
	Description     string       `json:"description,omitempty"`
	// Prices are USD per million tokens.
	InputPrice  float64 `json:"input_price,omitempty"`
	OutputPrice float64 `json:"output_price,omitempty"`
}

// HasCapability reports whether cap is in the model's capability list.
func (m *Model) HasCapability(cap Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

func (m *Model) SupportsVision() bool    { return m.HasCapability(CapVision) }
func (m *Model) SupportsTools() bool     { return m.HasCapability(CapTools) }
func (m *Model) SupportsStreaming() bool { return m.HasCapability(CapStreaming) }

// Filter selects catalog entries. A nil filter matches everything,
// deprecated models included. Otherwise empty or zero-valued fields do not
// narrow the result, except that deprecated models are left out unless
// IncludeDeprecated is set; RequiredCapabilities must all be present.
type Filter struct {
	Providers            []Provider
	Tiers                []Tier
	RequiredCapabilities []Capability
	MinContextWindow     int
	IncludeDeprecated    bool
}

// Matches reports whether m passes the filter.
func (f *Filter) Matches(m *Model) bool {
	if f == nil {
		return true
	}
	if len(f.Providers) > 0 && !containsValue(f.Providers, m.Provider) {
		return false
	}
	if len(f.Tiers) > 0 && !containsValue(f.Tiers, m.Tier) {
		return false
	}
	for _, cap := range f.RequiredCapabilities {
		if !m.HasCapability(cap) {
			return false
		}
	}
	if f.MinContextWindow > 0 && m.ContextWindow < f.MinContextWindow {
		return false
	}
	if m.Deprecated && !f.IncludeDeprecated {
		return false
	}
	return true
}

func containsValue[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Catalog is a threadsafe id/alias-indexed model collection, seeded with
// the built-in table and extensible at runtime (Bedrock discovery
// registers into it).
type Catalog struct {
	mu      sync.RWMutex
	models  map[string]*Model
	aliases map[string]string
}

// NewCatalog builds a catalog seeded with the built-in models.
func NewCatalog() *Catalog {
	c := &Catalog{
		models:  make(map[string]*Model),
		aliases: make(map[string]string),
	}
	for i := range builtinModels {
		c.Register(&builtinModels[i])
	}
	return c
}

// Register adds or replaces a model and indexes its aliases.
func (c *Catalog) Register(model *Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[model.ID] = model
	for _, alias := range model.Aliases {
		c.aliases[strings.ToLower(alias)] = model.ID
	}
}

// Get resolves id directly or through an alias.
func (c *Catalog) Get(id string) (*Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.models[id]; ok {
		return m, true
	}
	if real, ok := c.aliases[strings.ToLower(id)]; ok {
		return c.models[real], true
	}
	return nil, false
}

// List returns matching models sorted by provider, tier, then name.
func (c *Catalog) List(filter *Filter) []*Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*Model
	for _, m := range c.models {
		if filter.Matches(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		if out[i].Tier != out[j].Tier {
			return tierOrder[out[i].Tier] < tierOrder[out[j].Tier]
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ListByProvider returns the provider's models.
func (c *Catalog) ListByProvider(provider Provider) []*Model {
	return c.List(&Filter{Providers: []Provider{provider}})
}

// ListByCapability returns models carrying cap.
func (c *Catalog) ListByCapability(cap Capability) []*Model {
	return c.List(&Filter{RequiredCapabilities: []Capability{cap}})
}

// builtinModels seeds every new catalog. Kept as data so adding a model is
// one table row, not registration code.
var builtinModels = []Model{
	{
		ID: "claude-opus-4", Name: "Claude Opus 4", Provider: ProviderAnthropic,
		Tier: TierFlagship, ContextWindow: 200000, MaxOutputTokens: 32000,
		Capabilities: []Capability{CapVision, CapTools, CapStreaming, CapJSON, CapCode, CapLongContext, CapCaching, CapPDFInput},
		Aliases:      []string{"opus"},
		ReleaseDate:  "2025-05-14", InputPrice: 15.0, OutputPrice: 75.0,
	},
	{
		ID: "claude-3-5-sonnet-latest", Name: "Claude 3.5 Sonnet", Provider: ProviderAnthropic,
		Tier: TierStandard, ContextWindow: 200000, MaxOutputTokens: 8192,
		Capabilities: []Capability{CapVision, CapTools, CapStreaming, CapJSON, CapCode, CapLongContext, CapCaching, CapPDFInput},
		Aliases:      []string{"claude-3-5-sonnet", "sonnet"},
		ReleaseDate:  "2024-10-22", InputPrice: 3.0, OutputPrice: 15.0,
	},
	{
		ID: "claude-3-5-haiku-latest", Name: "Claude 3.5 Haiku", Provider: ProviderAnthropic,
		Tier: TierFast, ContextWindow: 200000, MaxOutputTokens: 8192,
		Capabilities: []Capability{CapVision, CapTools, CapStreaming, CapJSON, CapCode, CapLongContext, CapCaching},
		Aliases:      []string{"claude-3-5-haiku", "haiku"},
		ReleaseDate:  "2024-11-04", InputPrice: 0.8, OutputPrice: 4.0,
	},
	{
		ID: "gpt-4o", Name: "GPT-4o", Provider: ProviderOpenAI,
		Tier: TierStandard, ContextWindow: 128000, MaxOutputTokens: 16384,
		Capabilities: []Capability{CapVision, CapTools, CapStreaming, CapJSON, CapCode, CapLongContext, CapAudio},
		ReleaseDate:  "2024-05-13", InputPrice: 2.5, OutputPrice: 10.0,
	},
	{
		ID: "gpt-4o-mini", Name: "GPT-4o Mini", Provider: ProviderOpenAI,
		Tier: TierMini, ContextWindow: 128000, MaxOutputTokens: 16384,
		Capabilities: []Capability{CapVision, CapTools, CapStreaming, CapJSON, CapCode, CapLongContext},
		ReleaseDate:  "2024-07-18", InputPrice: 0.15, OutputPrice: 0.6,
	},
	{
		ID: "o1", Name: "o1", Provider: ProviderOpenAI,
		Tier: TierFlagship, ContextWindow: 200000, MaxOutputTokens: 100000,
		Capabilities: []Capability{CapVision, CapTools, CapReasoning, CapJSON, CapCode, CapLongContext},
		ReleaseDate:  "2024-12-17", InputPrice: 15.0, OutputPrice: 60.0,
	},
	{
		ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: ProviderGoogle,
		Tier: TierFast, ContextWindow: 1048576, MaxOutputTokens: 8192,
		Capabilities: []Capability{CapVision, CapTools, CapStreaming, CapJSON, CapCode, CapLongContext, CapAudio, CapVideo},
		ReleaseDate:  "2024-12-11",
	},
	{
		ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", Provider: ProviderGoogle,
		Tier: TierStandard, ContextWindow: 2097152, MaxOutputTokens: 8192,
		Capabilities: []Capability{CapVision, CapTools, CapStreaming, CapJSON, CapCode, CapLongContext, CapAudio, CapVideo},
		ReleaseDate:  "2024-05-14", InputPrice: 1.25, OutputPrice: 5.0,
	},
}
