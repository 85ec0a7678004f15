package main

import (
	"fmt"

	"github.com/sagerun/sage/internal/agent"
	"github.com/sagerun/sage/internal/agent/providers"
	"github.com/sagerun/sage/internal/agent/routing"
	"github.com/sagerun/sage/internal/config"
)

// buildProvider resolves cfg into the agent.LLMProvider the loop talks to.
// With llm.routing.enabled, every configured provider is constructed and
// wrapped in the heuristic router; otherwise only the default provider is
// built.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	if !cfg.LLM.Routing.Enabled {
		return buildNamedProvider(cfg, cfg.LLM.DefaultProvider)
	}

	pool := make(map[string]agent.LLMProvider, len(cfg.LLM.Providers))
	for name := range cfg.LLM.Providers {
		p, err := buildNamedProvider(cfg, name)
		if err != nil {
			// A misconfigured secondary provider shouldn't block startup;
			// the router simply never routes to it.
			continue
		}
		pool[name] = p
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("llm.routing.enabled but no provider under llm.providers could be built")
	}

	rc := cfg.LLM.Routing
	rules := make([]routing.Rule, 0, len(rc.Rules))
	for _, r := range rc.Rules {
		rules = append(rules, routing.Rule{
			Name:   r.Name,
			Match:  routing.Match{Patterns: r.Match.Patterns, Tags: r.Match.Tags},
			Target: routing.Target{Provider: r.Target.Provider, Model: r.Target.Model},
		})
	}

	return routing.NewRouter(routing.Config{
		DefaultProvider: cfg.LLM.DefaultProvider,
		PreferLocal:     rc.PreferLocal,
		LocalProviders:  []string{"ollama"},
		Rules:           rules,
		Fallback:        routing.Target{Provider: rc.Fallback.Provider, Model: rc.Fallback.Model},
		FailureCooldown: rc.UnhealthyCooldown,
	}, pool), nil
}

// buildNamedProvider constructs one provider from its llm.providers entry.
// Everything except anthropic, google, and bedrock speaks the OpenAI chat
// wire and goes through the compat adapter's presets.
func buildNamedProvider(cfg *config.Config, name string) (agent.LLMProvider, error) {
	pc, ok := cfg.LLM.Providers[name]
	if !ok {
		return nil, fmt.Errorf("no llm.providers entry for provider %q", name)
	}

	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
			MaxRetries:   pc.MaxRetries,
		})
	case "google":
		return providers.NewGoogleProvider(providers.GoogleConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.DefaultModel,
			MaxRetries:   pc.MaxRetries,
		})
	case "bedrock":
		return providers.NewBedrockProvider(providers.BedrockConfig{
			Region:       cfg.LLM.Bedrock.Region,
			DefaultModel: pc.DefaultModel,
			MaxRetries:   pc.MaxRetries,
		})
	case "openai", "openrouter", "venice", "ollama", "copilot":
		return providers.NewOpenAICompat(providers.CompatConfig{
			Name:         name,
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
			MaxRetries:   pc.MaxRetries,
		})
	case "azure":
		return providers.NewOpenAICompat(providers.CompatConfig{
			Name:         "azure",
			Azure:        true,
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			APIVersion:   pc.APIVersion,
			DefaultModel: pc.DefaultModel,
			MaxRetries:   pc.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", name)
	}
}
