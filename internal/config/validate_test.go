package config

import "testing"

func validConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "anthropic",
			Providers: map[string]LLMProviderConfig{
				"anthropic": {APIKey: "sk-test", DefaultModel: "claude", Temperature: 1, TopP: 0.9, MaxTokens: 4096, MaxRetries: 3},
				"ollama":    {DefaultModel: "llama3"},
			},
		},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsOutOfRangeTemperature(t *testing.T) {
	cfg := validConfig()
	p := cfg.LLM.Providers["anthropic"]
	p.Temperature = 2.5
	cfg.LLM.Providers["anthropic"] = p

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for temperature > 2")
	}
}

func TestValidateRejectsMissingAPIKeyForCloudProvider(t *testing.T) {
	cfg := validConfig()
	p := cfg.LLM.Providers["anthropic"]
	p.APIKey = ""
	cfg.LLM.Providers["anthropic"] = p

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing api_key")
	}
}

func TestValidateAllowsOllamaWithoutAPIKey(t *testing.T) {
	cfg := validConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("ollama without api_key should be valid: %v", err)
	}
}

func TestValidateRejectsBadBaseURL(t *testing.T) {
	cfg := validConfig()
	p := cfg.LLM.Providers["anthropic"]
	p.BaseURL = "ftp://example.com"
	cfg.LLM.Providers["anthropic"] = p

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for non-http(s) base_url")
	}
}

func TestValidateRejectsTooManyRetries(t *testing.T) {
	cfg := validConfig()
	p := cfg.LLM.Providers["anthropic"]
	p.MaxRetries = 11
	cfg.LLM.Providers["anthropic"] = p

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for max_retries > 10")
	}
}

func TestValidateRequiresDefaultProviderEntry(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.DefaultProvider = "missing"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for default_provider with no matching entry")
	}
}
