package config

import (
	"fmt"
	"sort"
	"strings"
)

// localProviders never require an API key: they either run against a local
// daemon (ollama) or are only reachable via non-key credentials configured
// elsewhere (bedrock uses AWS credential chains).
var localProviders = map[string]bool{
	"ollama":  true,
	"bedrock": true,
	"copilot": true,
}

// Validate checks cfg against the configured rules: temperature in [0,2],
// top_p in [0,1], max_tokens in (0, 1_000_000], base_url must start with
// http:// or https://, cloud providers require an API key, and
// max_retries <= 10. It returns every violation joined by "; " rather than
// stopping at the first, so `config validate` can report the full list in
// one pass.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	var errs []string

	if cfg.LLM.DefaultProvider == "" {
		errs = append(errs, "llm.default_provider is required")
	} else if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
		errs = append(errs, fmt.Sprintf("llm.default_provider %q has no matching entry under llm.providers", cfg.LLM.DefaultProvider))
	}

	names := make([]string, 0, len(cfg.LLM.Providers))
	for name := range cfg.LLM.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := cfg.LLM.Providers[name]
		prefix := fmt.Sprintf("llm.providers.%s", name)

		if p.Temperature != 0 && (p.Temperature < 0 || p.Temperature > 2) {
			errs = append(errs, fmt.Sprintf("%s.temperature = %v, want [0,2]", prefix, p.Temperature))
		}
		if p.TopP != 0 && (p.TopP < 0 || p.TopP > 1) {
			errs = append(errs, fmt.Sprintf("%s.top_p = %v, want [0,1]", prefix, p.TopP))
		}
		if p.MaxTokens != 0 && (p.MaxTokens <= 0 || p.MaxTokens > 1_000_000) {
			errs = append(errs, fmt.Sprintf("%s.max_tokens = %d, want (0, 1000000]", prefix, p.MaxTokens))
		}
		if p.MaxRetries > 10 {
			errs = append(errs, fmt.Sprintf("%s.max_retries = %d, want <= 10", prefix, p.MaxRetries))
		}
		if p.BaseURL != "" && !strings.HasPrefix(p.BaseURL, "http://") && !strings.HasPrefix(p.BaseURL, "https://") {
			errs = append(errs, fmt.Sprintf("%s.base_url = %q, must start with http:// or https://", prefix, p.BaseURL))
		}
		if p.APIKey == "" && !localProviders[name] {
			errs = append(errs, fmt.Sprintf("%s.api_key is required for cloud provider %q", prefix, name))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
}
