package models

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"
)

type fakeBedrockClient struct {
	calls     int
	err       error
	summaries []types.FoundationModelSummary
}

func (f *fakeBedrockClient) ListFoundationModels(ctx context.Context, params *bedrock.ListFoundationModelsInput, optFns ...func(*bedrock.Options)) (*bedrock.ListFoundationModelsOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &bedrock.ListFoundationModelsOutput{ModelSummaries: f.summaries}, nil
}

func activeSummary(id, vendor string) types.FoundationModelSummary {
	return types.FoundationModelSummary{
		ModelId:                    aws.String(id),
		ModelName:                  aws.String(id),
		ProviderName:               aws.String(vendor),
		ResponseStreamingSupported: aws.Bool(true),
		OutputModalities:           []types.ModelModality{types.ModelModalityText},
		ModelLifecycle:             &types.FoundationModelLifecycle{Status: types.FoundationModelLifecycleStatusActive},
	}
}

func discoveryWithFake(t *testing.T, fake *fakeBedrockClient, cfg BedrockDiscoveryConfig) *BedrockDiscovery {
	t.Helper()
	cfg.Enabled = true
	d := NewBedrockDiscovery(cfg, nil)
	d.SetClientFactory(func(region string) BedrockClient { return fake })
	return d
}

func TestDiscoverFiltersUnusableModels(t *testing.T) {
	legacy := activeSummary("amazon.legacy", "amazon")
	legacy.ModelLifecycle = &types.FoundationModelLifecycle{Status: types.FoundationModelLifecycleStatusLegacy}
	noStream := activeSummary("amazon.nostream", "amazon")
	noStream.ResponseStreamingSupported = aws.Bool(false)
	imageOnly := activeSummary("amazon.image", "amazon")
	imageOnly.OutputModalities = []types.ModelModality{types.ModelModalityImage}

	fake := &fakeBedrockClient{summaries: []types.FoundationModelSummary{
		activeSummary("anthropic.claude-3-haiku", "anthropic"),
		legacy, noStream, imageOnly,
	}}
	d := discoveryWithFake(t, fake, BedrockDiscoveryConfig{})

	discovered, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(discovered) != 1 || discovered[0].ID != "anthropic.claude-3-haiku" {
		t.Fatalf("discovered = %+v, want only the usable model", discovered)
	}
	if discovered[0].Provider != ProviderBedrock {
		t.Errorf("provider = %q, want bedrock", discovered[0].Provider)
	}
	if discovered[0].Tier != TierFast {
		t.Errorf("haiku tier = %q, want fast", discovered[0].Tier)
	}
}

func TestDiscoverProviderFilter(t *testing.T) {
	fake := &fakeBedrockClient{summaries: []types.FoundationModelSummary{
		activeSummary("anthropic.claude-3-sonnet", "anthropic"),
		activeSummary("meta.llama3-70b", "meta"),
	}}
	d := discoveryWithFake(t, fake, BedrockDiscoveryConfig{ProviderFilter: []string{"Meta"}})

	discovered, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(discovered) != 1 || discovered[0].ID != "meta.llama3-70b" {
		t.Fatalf("discovered = %+v, want only the meta model", discovered)
	}
}

func TestDiscoverCachesUntilExpiry(t *testing.T) {
	fake := &fakeBedrockClient{summaries: []types.FoundationModelSummary{
		activeSummary("anthropic.claude-3-sonnet", "anthropic"),
	}}
	d := discoveryWithFake(t, fake, BedrockDiscoveryConfig{RefreshInterval: time.Hour})

	for i := 0; i < 3; i++ {
		if _, err := d.Discover(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if fake.calls != 1 {
		t.Fatalf("API called %d times, want 1 (cached)", fake.calls)
	}

	d.ClearCache()
	if _, err := d.Discover(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.calls != 2 {
		t.Fatalf("API called %d times after ClearCache, want 2", fake.calls)
	}
}

func TestDiscoverFallsBackToStaleCache(t *testing.T) {
	fake := &fakeBedrockClient{summaries: []types.FoundationModelSummary{
		activeSummary("anthropic.claude-3-sonnet", "anthropic"),
	}}
	// A nanosecond TTL expires the cache immediately, forcing a refresh
	// attempt on the second call.
	d := discoveryWithFake(t, fake, BedrockDiscoveryConfig{RefreshInterval: time.Nanosecond})

	if _, err := d.Discover(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fake.err = errors.New("throttled")
	stale, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("refresh failure should fall back to stale cache, got %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("stale cache = %+v", stale)
	}

	// With no cache at all, the failure surfaces.
	d.ClearCache()
	if _, err := d.Discover(context.Background()); err == nil {
		t.Fatal("expected error with empty cache and failing API")
	}
}

func TestDiscoverDisabledReturnsNothing(t *testing.T) {
	d := NewBedrockDiscovery(BedrockDiscoveryConfig{}, nil)
	discovered, err := d.Discover(context.Background())
	if err != nil || discovered != nil {
		t.Fatalf("disabled discovery = (%v, %v), want (nil, nil)", discovered, err)
	}
}

func TestRegisterWithCatalog(t *testing.T) {
	fake := &fakeBedrockClient{summaries: []types.FoundationModelSummary{
		activeSummary("anthropic.claude-3-sonnet", "anthropic"),
	}}
	d := discoveryWithFake(t, fake, BedrockDiscoveryConfig{})
	c := NewCatalog()

	if err := d.RegisterWithCatalog(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Get("anthropic.claude-3-sonnet"); !ok {
		t.Fatal("discovered model not registered")
	}
}
