package models

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"
)

// BedrockDiscoveryConfig configures Bedrock foundation-model discovery.
type BedrockDiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`

	// RefreshInterval bounds how long a discovered list is served from
	// cache. Zero means the 1h default.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// ProviderFilter keeps only the named upstream providers
	// (e.g. ["anthropic", "meta"]); empty keeps all.
	ProviderFilter []string `yaml:"provider_filter"`

	// DefaultContextWindow / DefaultMaxTokens fill in what the listing
	// API doesn't report.
	DefaultContextWindow int `yaml:"default_context_window"`
	DefaultMaxTokens     int `yaml:"default_max_tokens"`
}

// BedrockClient is the slice of the AWS API discovery needs; tests swap in
// a fake via SetClientFactory.
type BedrockClient interface {
	ListFoundationModels(ctx context.Context, params *bedrock.ListFoundationModelsInput, optFns ...func(*bedrock.Options)) (*bedrock.ListFoundationModelsOutput, error)
}

// BedrockDiscovery lists the account's active, streaming-capable text
// models and converts them to catalog entries, caching the result.
type BedrockDiscovery struct {
	config BedrockDiscoveryConfig
	logger *slog.Logger

	mu        sync.Mutex
	cache     []*Model
	expiresAt time.Time

	clientFactory func(region string) BedrockClient
}

// NewBedrockDiscovery builds a discovery instance with defaults applied.
func NewBedrockDiscovery(cfg BedrockDiscoveryConfig, logger *slog.Logger) *BedrockDiscovery {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.DefaultContextWindow <= 0 {
		cfg.DefaultContextWindow = 32000
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 4096
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &BedrockDiscovery{config: cfg, logger: logger}
}

// Discover returns the model list, refreshing it when the cache has
// expired. A refresh failure falls back to stale cache when one exists.
func (d *BedrockDiscovery) Discover(ctx context.Context) ([]*Model, error) {
	if !d.config.Enabled {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cache != nil && time.Now().Before(d.expiresAt) {
		return d.cache, nil
	}

	fresh, err := d.fetch(ctx)
	if err != nil {
		d.logger.Warn("bedrock discovery failed", "error", err)
		if d.cache != nil {
			return d.cache, nil
		}
		return nil, err
	}

	d.cache = fresh
	d.expiresAt = time.Now().Add(d.config.RefreshInterval)
	return fresh, nil
}

// RegisterWithCatalog discovers models and registers each into catalog.
func (d *BedrockDiscovery) RegisterWithCatalog(ctx context.Context, catalog *Catalog) error {
	discovered, err := d.Discover(ctx)
	if err != nil {
		return err
	}
	for _, m := range discovered {
		catalog.Register(m)
	}
	d.logger.Info("registered bedrock models", "count", len(discovered))
	return nil
}

// ClearCache forces the next Discover to hit the API.
func (d *BedrockDiscovery) ClearCache() {
	d.mu.Lock()
	d.cache = nil
	d.expiresAt = time.Time{}
	d.mu.Unlock()
}

// SetClientFactory swaps the AWS client constructor, for tests.
func (d *BedrockDiscovery) SetClientFactory(factory func(region string) BedrockClient) {
	d.clientFactory = factory
}

func (d *BedrockDiscovery) client(ctx context.Context) (BedrockClient, error) {
	if d.clientFactory != nil {
		return d.clientFactory(d.config.Region), nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(d.config.Region))
	if err != nil {
		return nil, err
	}
	return bedrock.NewFromConfig(awsCfg), nil
}

func (d *BedrockDiscovery) fetch(ctx context.Context) ([]*Model, error) {
	client, err := d.client(ctx)
	if err != nil {
		return nil, fmt.Errorf("create bedrock client: %w", err)
	}

	out, err := client.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return nil, fmt.Errorf("list foundation models: %w", err)
	}

	filter := map[string]bool{}
	for _, p := range d.config.ProviderFilter {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			filter[p] = true
		}
	}

	var discovered []*Model
	for _, summary := range out.ModelSummaries {
		if !usableSummary(summary) {
			continue
		}
		if len(filter) > 0 && !filter[upstreamProvider(summary)] {
			continue
		}
		discovered = append(discovered, d.toModel(summary))
	}

	d.logger.Debug("discovered bedrock models",
		"total", len(out.ModelSummaries), "included", len(discovered))
	return discovered, nil
}

// usableSummary keeps only active models that stream text, which is what
// the execution loop requires of a provider.
func usableSummary(summary types.FoundationModelSummary) bool {
	if summary.ModelId == nil || *summary.ModelId == "" {
		return false
	}
	if summary.ResponseStreamingSupported == nil || !*summary.ResponseStreamingSupported {
		return false
	}
	if summary.ModelLifecycle == nil || summary.ModelLifecycle.Status != types.FoundationModelLifecycleStatusActive {
		return false
	}
	for _, m := range summary.OutputModalities {
		if m == types.ModelModalityText {
			return true
		}
	}
	return false
}

// upstreamProvider names the model's original vendor, from the summary or
// the "vendor.model" id convention.
func upstreamProvider(summary types.FoundationModelSummary) string {
	if summary.ProviderName != nil && *summary.ProviderName != "" {
		return strings.ToLower(*summary.ProviderName)
	}
	if summary.ModelId != nil {
		if vendor, _, ok := strings.Cut(*summary.ModelId, "."); ok {
			return strings.ToLower(vendor)
		}
	}
	return ""
}

func (d *BedrockDiscovery) toModel(summary types.FoundationModelSummary) *Model {
	id := *summary.ModelId
	name := id
	if summary.ModelName != nil && *summary.ModelName != "" {
		name = *summary.ModelName
	}

	caps := []Capability{CapStreaming, CapTools}
	for _, m := range summary.InputModalities {
		if m == types.ModelModalityImage {
			caps = append(caps, CapVision)
			break
		}
	}

	m := &Model{
		ID:              id,
		Name:            name,
		Provider:        ProviderBedrock,
		Tier:            bedrockTier(id, name),
		ContextWindow:   d.config.DefaultContextWindow,
		MaxOutputTokens: d.config.DefaultMaxTokens,
		Capabilities:    caps,
	}
	if vendor := upstreamProvider(summary); vendor != "" {
		m.Description = vendor + " model via AWS Bedrock"
	}
	return m
}

// bedrockTier guesses the cost tier from the model's naming.
func bedrockTier(id, name string) Tier {
	lower := strings.ToLower(id + " " + name)
	switch {
	case strings.Contains(lower, "opus") || strings.Contains(lower, "large"):
		return TierFlagship
	case strings.Contains(lower, "haiku") || strings.Contains(lower, "mini") || strings.Contains(lower, "lite"):
		return TierFast
	case strings.Contains(lower, "instant") || strings.Contains(lower, "nano"):
		return TierMini
	default:
		return TierStandard
	}
}
