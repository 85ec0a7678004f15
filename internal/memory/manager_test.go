package memory

import (
	"fmt"
	"testing"
)

func TestNewManagerDisabled(t *testing.T) {
	if mgr, err := NewManager(nil); mgr != nil || err != nil {
		t.Fatalf("nil config = (%v, %v), want (nil, nil)", mgr, err)
	}
	if mgr, err := NewManager(&Config{}); mgr != nil || err != nil {
		t.Fatalf("disabled config = (%v, %v), want (nil, nil)", mgr, err)
	}
}

func TestNewManagerUnknownBackend(t *testing.T) {
	if _, err := NewManager(&Config{Enabled: true, Backend: "etcd"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{Enabled: true}
	cfg.applyDefaults()

	if cfg.Dimension != 1536 {
		t.Errorf("dimension = %d", cfg.Dimension)
	}
	if cfg.Indexing.BatchSize != 100 || cfg.Indexing.MinContentLength != 10 {
		t.Errorf("indexing defaults = %+v", cfg.Indexing)
	}
	if cfg.Search.DefaultLimit != 10 || cfg.Search.DefaultThreshold != 0.7 || cfg.Search.DefaultScope != "session" {
		t.Errorf("search defaults = %+v", cfg.Search)
	}
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	c := newEmbeddingCache(4)

	if _, ok := c.get("missing"); ok {
		t.Fatal("empty cache should miss")
	}
	c.set("q1", []float32{1, 2, 3})
	got, ok := c.get("q1")
	if !ok || len(got) != 3 || got[0] != 1 {
		t.Fatalf("get = (%v, %v)", got, ok)
	}

	// Updating an existing key replaces without growing the order list.
	c.set("q1", []float32{9})
	got, _ = c.get("q1")
	if len(got) != 1 || got[0] != 9 {
		t.Fatalf("updated value = %v", got)
	}
}

func TestEmbeddingCacheEvictsOldestFirst(t *testing.T) {
	c := newEmbeddingCache(3)
	for i := 0; i < 5; i++ {
		c.set(fmt.Sprintf("q%d", i), []float32{float32(i)})
	}

	if _, ok := c.get("q0"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := c.get("q1"); ok {
		t.Fatal("second-oldest entry should have been evicted")
	}
	for i := 2; i < 5; i++ {
		if _, ok := c.get(fmt.Sprintf("q%d", i)); !ok {
			t.Errorf("q%d should still be cached", i)
		}
	}
}
