package config

import "time"

// LLMConfig wires the provider fleet: which adapters exist, which one
// answers by default, and how requests route or fail over between them.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain lists provider IDs, e.g. ["openai", "google"]. It is
	// decoded and kept on the config, but no component reads it: provider
	// failover comes from Routing.Fallback and DefaultProvider.
	FallbackChain []string `yaml:"fallback_chain"`

	// Bedrock drives AWS Bedrock model discovery.
	Bedrock BedrockConfig `yaml:"bedrock"`

	// Routing selects a provider/model per request.
	Routing LLMRoutingConfig `yaml:"routing"`

	// AutoDiscover holds settings for locally-running providers. It is
	// decoded and kept on the config; no component reads it, so nothing
	// is probed or registered from it.
	AutoDiscover LLMAutoDiscoverConfig `yaml:"auto_discover"`
}

// LLMProviderConfig is one named provider entry. Profiles overlay
// per-profile credentials and models on the base entry.
type LLMProviderConfig struct {
	APIKey       string                              `yaml:"api_key"`
	DefaultModel string                              `yaml:"default_model"`
	BaseURL      string                              `yaml:"base_url"`
	APIVersion   string                              `yaml:"api_version"`
	Profiles     map[string]LLMProviderProfileConfig `yaml:"profiles"`

	// Request tunables, validated by Validate: temperature in [0,2],
	// top_p in [0,1], max_tokens in (0, 1_000_000], max_retries <= 10.
	// A zero value defers to the provider's own default and skips
	// validation.
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
	MaxRetries  int     `yaml:"max_retries"`
}

type LLMProviderProfileConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	APIVersion   string `yaml:"api_version"`
}

// LLMRoutingConfig turns on rule-based routing: each request is matched
// against Rules in order and lands on the first matching target; when
// nothing matches it goes to a local provider (PreferLocal, tool-free
// requests only) or the default. If that provider fails, Fallback is tried
// next and then the default provider.
type LLMRoutingConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Classifier        string        `yaml:"classifier"`
	PreferLocal       bool          `yaml:"prefer_local"`
	UnhealthyCooldown time.Duration `yaml:"unhealthy_cooldown"`
	Rules             []RoutingRule `yaml:"rules"`
	Fallback          RoutingTarget `yaml:"fallback"`
}

type RoutingRule struct {
	Name   string        `yaml:"name"`
	Match  RoutingMatch  `yaml:"match"`
	Target RoutingTarget `yaml:"target"`
}

// RoutingMatch matches on patterns (case-insensitive substrings of the
// last user message) and classifier tags.
type RoutingMatch struct {
	Patterns []string `yaml:"patterns"`
	Tags     []string `yaml:"tags"`
}

type RoutingTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type LLMAutoDiscoverConfig struct {
	Ollama OllamaDiscoverConfig `yaml:"ollama"`
}

// OllamaDiscoverConfig names locations where a running Ollama daemon
// could be found. No component reads it; nothing is probed or registered.
type OllamaDiscoverConfig struct {
	Enabled        bool     `yaml:"enabled"`
	PreferLocal    bool     `yaml:"prefer_local"`
	ProbeLocations []string `yaml:"probe_locations"`
}

// BedrockConfig controls Bedrock foundation-model discovery.
type BedrockConfig struct {
	Enabled bool `yaml:"enabled"`

	// Region queried for models; defaults to us-east-1.
	Region string `yaml:"region"`

	// RefreshInterval is how long a discovered model list stays cached
	// ("1h", "30m"); "0" disables caching. Defaults to 1h.
	RefreshInterval string `yaml:"refresh_interval"`

	// ProviderFilter limits discovery to the named upstream providers
	// (e.g. ["anthropic", "amazon", "meta"]); empty means all.
	ProviderFilter []string `yaml:"provider_filter"`

	// Defaults used when a discovered model doesn't report its own
	// limits: 32000 context, 4096 max output.
	DefaultContextWindow int `yaml:"default_context_window"`
	DefaultMaxTokens     int `yaml:"default_max_tokens"`
}
