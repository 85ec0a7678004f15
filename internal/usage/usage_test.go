package usage

import (
	"context"
	"strings"
	"testing"
)

func TestTrackerRecordAndGet(t *testing.T) {
	tr := NewTracker(map[string]Cost{
		"anthropic": {Input: 3, Output: 15},
	})

	tr.Record("anthropic", Usage{InputTokens: 1000, OutputTokens: 500})
	tr.Record("Anthropic", Usage{InputTokens: 2000, OutputTokens: 1000, CacheReadTokens: 100})
	tr.Record("openai", Usage{InputTokens: 50, OutputTokens: 20})
	tr.Record("", Usage{InputTokens: 999}) // ignored

	pu, err := tr.Get(context.Background(), "anthropic")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if pu.Requests != 2 {
		t.Errorf("Requests = %d, want 2", pu.Requests)
	}
	if pu.Usage.InputTokens != 3000 || pu.Usage.OutputTokens != 1500 || pu.Usage.CacheReadTokens != 100 {
		t.Errorf("Usage = %+v", pu.Usage)
	}
	wantUSD := (3000*3.0 + 1500*15.0) / 1_000_000
	if pu.EstimatedUSD != wantUSD {
		t.Errorf("EstimatedUSD = %v, want %v", pu.EstimatedUSD, wantUSD)
	}

	if _, err := tr.Get(context.Background(), "missing"); err == nil {
		t.Error("Get of unknown provider should error")
	}
}

func TestTrackerGetAllSorted(t *testing.T) {
	tr := NewTracker(nil)
	tr.Record("openai", Usage{InputTokens: 1})
	tr.Record("anthropic", Usage{InputTokens: 1})
	tr.Record("google", Usage{InputTokens: 1})

	all := tr.GetAll(context.Background())
	if len(all) != 3 {
		t.Fatalf("GetAll returned %d, want 3", len(all))
	}
	if all[0].Provider != "anthropic" || all[1].Provider != "google" || all[2].Provider != "openai" {
		t.Errorf("order = [%s %s %s]", all[0].Provider, all[1].Provider, all[2].Provider)
	}

	tr.Reset()
	if got := tr.GetAll(context.Background()); len(got) != 0 {
		t.Errorf("after Reset, GetAll returned %d", len(got))
	}
}

func TestGetReturnsCopy(t *testing.T) {
	tr := NewTracker(nil)
	tr.Record("ollama", Usage{InputTokens: 10})

	pu, err := tr.Get(context.Background(), "ollama")
	if err != nil {
		t.Fatal(err)
	}
	pu.Usage.InputTokens = 999999

	again, err := tr.Get(context.Background(), "ollama")
	if err != nil {
		t.Fatal(err)
	}
	if again.Usage.InputTokens != 10 {
		t.Errorf("mutating a returned copy changed the tracker: %d", again.Usage.InputTokens)
	}
}

func TestFormatProviderUsage(t *testing.T) {
	if got := FormatProviderUsage(nil); got != "No usage data" {
		t.Errorf("nil = %q", got)
	}

	pu := &ProviderUsage{
		Provider:     "anthropic",
		Requests:     4,
		Usage:        Usage{InputTokens: 1500, OutputTokens: 2_500_000, CacheReadTokens: 10},
		EstimatedUSD: 0.1234,
	}
	out := FormatProviderUsage(pu)
	for _, want := range []string{"anthropic", "Requests: 4", "1.5k in", "2.5M out", "cache: 10 read", "$0.1234"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatTokens(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.0k"},
		{45_600, "45.6k"},
		{2_000_000, "2.0M"},
	}
	for _, tt := range tests {
		if got := FormatTokens(tt.n); got != tt.want {
			t.Errorf("FormatTokens(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
