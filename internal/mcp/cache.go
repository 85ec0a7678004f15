package mcp

import (
	"sync"
	"time"
)

// CacheConfig configures the resource cache's per-kind TTLs and the global
// entry cap.
type CacheConfig struct {
	ToolTTL     time.Duration
	ResourceTTL time.Duration
	PromptTTL   time.Duration
	MaxEntries  int
}

// DefaultCacheConfig mirrors the defaults the tool cache uses elsewhere in
// the runtime: short TTLs for content that can change server-side, a
// modest entry cap per map.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		ToolTTL:     5 * time.Minute,
		ResourceTTL: time.Minute,
		PromptTTL:   5 * time.Minute,
		MaxEntries:  500,
	}
}

// CacheStats tracks hit/miss/eviction counts across all four maps.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
	insertSeq int64
}

// kindCache is one of the cache's four per-kind maps: a key to entry map
// plus an FIFO insertion order for eviction.
type kindCache struct {
	ttl       time.Duration
	entries   map[string]*cacheEntry
	order     []string
	insertSeq int64
}

func newKindCache(ttl time.Duration) *kindCache {
	return &kindCache{ttl: ttl, entries: make(map[string]*cacheEntry)}
}

// Cache holds cached MCP tool lists, resource lists, prompt lists (all
// per-server) and resource content (per-URI), each with its own TTL drawn
// from config and FIFO eviction when the cap is exceeded.
type Cache struct {
	mu sync.Mutex

	config CacheConfig

	tools     *kindCache // key: server id
	resources *kindCache // key: server id
	prompts   *kindCache // key: server id
	content   *kindCache // key: resource URI

	stats CacheStats
}

// NewCache builds a Cache from config, filling zero-value fields from
// DefaultCacheConfig.
func NewCache(config CacheConfig) *Cache {
	def := DefaultCacheConfig()
	if config.ToolTTL == 0 {
		config.ToolTTL = def.ToolTTL
	}
	if config.ResourceTTL == 0 {
		config.ResourceTTL = def.ResourceTTL
	}
	if config.PromptTTL == 0 {
		config.PromptTTL = def.PromptTTL
	}
	if config.MaxEntries == 0 {
		config.MaxEntries = def.MaxEntries
	}

	return &Cache{
		config:    config,
		tools:     newKindCache(config.ToolTTL),
		resources: newKindCache(config.ResourceTTL),
		prompts:   newKindCache(config.PromptTTL),
		content:   newKindCache(config.ResourceTTL),
	}
}

func (c *Cache) get(kc *kindCache, key string, now time.Time) (any, bool) {
	entry, ok := kc.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if now.After(entry.expiresAt) {
		delete(kc.entries, key)
		c.removeFromOrder(kc, key)
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return entry.value, true
}

func (c *Cache) put(kc *kindCache, key string, value any, now time.Time) {
	if _, exists := kc.entries[key]; !exists {
		kc.order = append(kc.order, key)
	}
	kc.insertSeq++
	kc.entries[key] = &cacheEntry{value: value, expiresAt: now.Add(kc.ttl), insertSeq: kc.insertSeq}

	for len(kc.order) > c.config.MaxEntries {
		oldest := kc.order[0]
		kc.order = kc.order[1:]
		if _, ok := kc.entries[oldest]; ok {
			delete(kc.entries, oldest)
			c.stats.Evictions++
		}
	}
}

func (c *Cache) removeFromOrder(kc *kindCache, key string) {
	for i, k := range kc.order {
		if k == key {
			kc.order = append(kc.order[:i], kc.order[i+1:]...)
			return
		}
	}
}

// GetTools returns the cached tool list for a server, if present and fresh.
func (c *Cache) GetTools(serverID string) ([]*MCPTool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.get(c.tools, serverID, time.Now())
	if !ok {
		return nil, false
	}
	return v.([]*MCPTool), true
}

// PutTools caches a server's tool list.
func (c *Cache) PutTools(serverID string, tools []*MCPTool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(c.tools, serverID, tools, time.Now())
}

// GetResources returns the cached resource list for a server, if present and fresh.
func (c *Cache) GetResources(serverID string) ([]*MCPResource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.get(c.resources, serverID, time.Now())
	if !ok {
		return nil, false
	}
	return v.([]*MCPResource), true
}

// PutResources caches a server's resource list.
func (c *Cache) PutResources(serverID string, resources []*MCPResource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(c.resources, serverID, resources, time.Now())
}

// GetPrompts returns the cached prompt list for a server, if present and fresh.
func (c *Cache) GetPrompts(serverID string) ([]*MCPPrompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.get(c.prompts, serverID, time.Now())
	if !ok {
		return nil, false
	}
	return v.([]*MCPPrompt), true
}

// PutPrompts caches a server's prompt list.
func (c *Cache) PutPrompts(serverID string, prompts []*MCPPrompt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(c.prompts, serverID, prompts, time.Now())
}

// GetContent returns cached resource content by URI, if present and fresh.
func (c *Cache) GetContent(uri string) (*ResourceContent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.get(c.content, uri, time.Now())
	if !ok {
		return nil, false
	}
	return v.(*ResourceContent), true
}

// PutContent caches resource content by URI.
func (c *Cache) PutContent(uri string, content *ResourceContent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(c.content, uri, content, time.Now())
}

// InvalidateServer drops every cached tool/resource/prompt list for a server.
// Resource content is keyed by URI, not server, so it is left alone.
func (c *Cache) InvalidateServer(serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tools.entries, serverID)
	c.removeFromOrder(c.tools, serverID)
	delete(c.resources.entries, serverID)
	c.removeFromOrder(c.resources, serverID)
	delete(c.prompts.entries, serverID)
	c.removeFromOrder(c.prompts, serverID)
}

// Stats returns a snapshot of global hit/miss/eviction counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Clear empties all four maps and resets stats.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = newKindCache(c.config.ToolTTL)
	c.resources = newKindCache(c.config.ResourceTTL)
	c.prompts = newKindCache(c.config.PromptTTL)
	c.content = newKindCache(c.config.ResourceTTL)
	c.stats = CacheStats{}
}
