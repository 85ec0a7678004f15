package sqlitevec

import (
	"context"
	"testing"

	"github.com/sagerun/sage/internal/memory/backend"
	"github.com/sagerun/sage/pkg/models"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{Dimension: 3})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func entry(id, sessionID, workspaceID, content string, vec []float32) *models.MemoryEntry {
	return &models.MemoryEntry{
		ID:          id,
		SessionID:   sessionID,
		WorkspaceID: workspaceID,
		Content:     content,
		Embedding:   vec,
		Metadata:    models.MemoryMetadata{Source: "test"},
	}
}

func TestIndexAssignsIDsAndTimestamps(t *testing.T) {
	b := openTestBackend(t)
	e := entry("", "s1", "", "hello world", []float32{1, 0, 0})

	if err := b.Index(context.Background(), []*models.MemoryEntry{e}); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() || e.UpdatedAt.IsZero() {
		t.Fatalf("entry not stamped: %+v", e)
	}
}

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	entries := []*models.MemoryEntry{
		entry("a", "s1", "", "exact match", []float32{1, 0, 0}),
		entry("b", "s1", "", "orthogonal", []float32{0, 1, 0}),
		entry("c", "s1", "", "close match", []float32{0.9, 0.1, 0}),
	}
	if err := b.Index(ctx, entries); err != nil {
		t.Fatal(err)
	}

	results, err := b.Search(ctx, []float32{1, 0, 0}, &backend.SearchOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Entry.ID != "a" || results[1].Entry.ID != "c" {
		t.Fatalf("order = %s, %s", results[0].Entry.ID, results[1].Entry.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Fatal("scores should be descending")
	}
}

func TestSearchScopeAndThreshold(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	if err := b.Index(ctx, []*models.MemoryEntry{
		entry("a", "s1", "", "session one", []float32{1, 0, 0}),
		entry("b", "s2", "", "session two", []float32{1, 0, 0}),
		entry("c", "s1", "", "unrelated", []float32{0, 1, 0}),
	}); err != nil {
		t.Fatal(err)
	}

	results, err := b.Search(ctx, []float32{1, 0, 0}, &backend.SearchOptions{
		Scope:     models.ScopeSession,
		ScopeID:   "s1",
		Threshold: 0.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Entry.ID != "a" {
		t.Fatalf("results = %+v", results)
	}
}

func TestDeleteRemovesEntries(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	if err := b.Index(ctx, []*models.MemoryEntry{
		entry("a", "s1", "", "one", []float32{1, 0, 0}),
		entry("b", "s1", "", "two", []float32{1, 0, 0}),
	}); err != nil {
		t.Fatal(err)
	}
	if err := b.Delete(ctx, []string{"a"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	count, err := b.Count(ctx, models.ScopeSession, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	// Deleting nothing is a no-op.
	if err := b.Delete(ctx, nil); err != nil {
		t.Fatal(err)
	}
}

func TestCountByScope(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	if err := b.Index(ctx, []*models.MemoryEntry{
		entry("a", "s1", "w1", "one", []float32{1, 0, 0}),
		entry("b", "s2", "w1", "two", []float32{1, 0, 0}),
		entry("c", "s1", "", "three", []float32{1, 0, 0}),
	}); err != nil {
		t.Fatal(err)
	}

	t.Run("count by session", func(t *testing.T) {
		count, err := b.Count(ctx, models.ScopeSession, "s1")
		if err != nil || count != 2 {
			t.Fatalf("count = %d (%v), want 2", count, err)
		}
	})
	t.Run("count by workspace", func(t *testing.T) {
		count, err := b.Count(ctx, models.ScopeWorkspace, "w1")
		if err != nil || count != 2 {
			t.Fatalf("count = %d (%v), want 2", count, err)
		}
	})
	t.Run("count all", func(t *testing.T) {
		count, err := b.Count(ctx, models.ScopeAll, "")
		if err != nil || count != 3 {
			t.Fatalf("count = %d (%v), want 3", count, err)
		}
	})
}

func TestVectorCodecRoundTrip(t *testing.T) {
	original := []float32{0.1, -2.5, 3.75, 0}
	decoded := decodeVector(encodeVector(original))
	if len(decoded) != len(original) {
		t.Fatalf("len = %d, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], original[i])
		}
	}
	if encodeVector(nil) != nil {
		t.Error("nil vector should encode to nil")
	}
	if decodeVector([]byte{1, 2, 3}) != nil {
		t.Error("misaligned blob should decode to nil")
	}
}

func TestCosineSimilarityEdgeCases(t *testing.T) {
	if s := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); s < 0.999 {
		t.Errorf("identical vectors similarity = %v", s)
	}
	if s := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); s != 0 {
		t.Errorf("orthogonal similarity = %v", s)
	}
	if s := cosineSimilarity([]float32{1}, []float32{1, 0}); s != 0 {
		t.Errorf("mismatched lengths similarity = %v", s)
	}
	if s := cosineSimilarity([]float32{0, 0}, []float32{1, 0}); s != 0 {
		t.Errorf("zero vector similarity = %v", s)
	}
}

func TestCompactAndClose(t *testing.T) {
	b := openTestBackend(t)
	if err := b.Compact(context.Background()); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
}
