package cache

import (
	"testing"
	"time"
)

func TestToolCacheHitAndMiss(t *testing.T) {
	c := NewToolCache(ToolCacheOptions{DefaultTTL: time.Minute, MaxEntries: 10})
	now := time.Now()

	if _, ok := c.Get("read_file", map[string]any{"path": "a.go"}, now); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put("read_file", map[string]any{"path": "a.go"}, []byte("contents"), true, now)

	result, ok := c.Get("read_file", map[string]any{"path": "a.go"}, now)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if string(result) != "contents" {
		t.Fatalf("got %q, want contents", result)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Inserts != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestToolCacheExpires(t *testing.T) {
	c := NewToolCache(ToolCacheOptions{DefaultTTL: time.Second, MaxEntries: 10})
	now := time.Now()

	c.Put("glob", map[string]any{"pattern": "*.go"}, []byte("[]"), true, now)
	if _, ok := c.Get("glob", map[string]any{"pattern": "*.go"}, now.Add(2*time.Second)); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestToolCacheExcludesMutatingTools(t *testing.T) {
	opts := DefaultToolCacheOptions()
	c := NewToolCache(opts)
	now := time.Now()

	c.Put("write_file", map[string]any{"path": "a.go"}, []byte("ok"), true, now)
	if _, ok := c.Get("write_file", map[string]any{"path": "a.go"}, now); ok {
		t.Fatal("write_file must never be cached")
	}
}

func TestToolCacheNeverStoresFailure(t *testing.T) {
	c := NewToolCache(ToolCacheOptions{DefaultTTL: time.Minute, MaxEntries: 10})
	now := time.Now()

	c.Put("read_file", map[string]any{"path": "missing.go"}, []byte("error"), false, now)
	if _, ok := c.Get("read_file", map[string]any{"path": "missing.go"}, now); ok {
		t.Fatal("a failed result must never be cached")
	}
}

func TestToolCacheFIFOEvictionOnInsert(t *testing.T) {
	c := NewToolCache(ToolCacheOptions{DefaultTTL: time.Minute, MaxEntries: 2})
	now := time.Now()

	c.Put("read_file", map[string]any{"path": "a"}, []byte("a"), true, now)
	c.Put("read_file", map[string]any{"path": "b"}, []byte("b"), true, now)
	c.Put("read_file", map[string]any{"path": "c"}, []byte("c"), true, now)

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("read_file", map[string]any{"path": "a"}, now); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := c.Get("read_file", map[string]any{"path": "c"}, now); !ok {
		t.Fatal("newest entry should still be present")
	}
}

func TestToolCacheInvalidateTool(t *testing.T) {
	c := NewToolCache(ToolCacheOptions{DefaultTTL: time.Minute, MaxEntries: 10})
	now := time.Now()

	c.Put("read_file", map[string]any{"path": "a"}, []byte("a"), true, now)
	c.Put("list_dir", map[string]any{"path": "."}, []byte("[]"), true, now)

	c.InvalidateTool("read_file")

	if _, ok := c.Get("read_file", map[string]any{"path": "a"}, now); ok {
		t.Fatal("read_file entries should be gone")
	}
	if _, ok := c.Get("list_dir", map[string]any{"path": "."}, now); !ok {
		t.Fatal("list_dir entries should survive")
	}
}

func TestFingerprintStableAcrossKeyOrder(t *testing.T) {
	a := Fingerprint(map[string]any{"path": "x", "recursive": true})
	b := Fingerprint(map[string]any{"recursive": true, "path": "x"})
	if a != b {
		t.Fatalf("fingerprints differ across key order: %s vs %s", a, b)
	}
}
