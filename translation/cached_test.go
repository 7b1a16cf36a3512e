package translation

import (
	"context"
	"sync"
	"testing"

	"github.com/60cod/realtime-translator/cache"
)

// countingClient echoes texts and records how many reach the network.
type countingClient struct {
	mu    sync.Mutex
	calls [][]string
}

func (c *countingClient) Translate(_ context.Context, texts []string, _, _ string) ([]Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]string, len(texts))
	copy(copied, texts)
	c.calls = append(c.calls, copied)

	results := make([]Result, len(texts))
	for i, t := range texts {
		results[i] = Result{Text: "t:" + t, DetectedSourceLang: "EN"}
	}
	return results, nil
}

func TestCachedClientServesHitsLocally(t *testing.T) {
	store, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer store.Close()

	inner := &countingClient{}
	client := &CachedClient{Inner: inner, Cache: store, Scope: "deepl"}
	ctx := context.Background()

	first, err := client.Translate(ctx, []string{"hello", "world"}, "DE", "EN")
	if err != nil {
		t.Fatalf("first translate: %v", err)
	}
	if len(first) != 2 || first[0].Text != "t:hello" {
		t.Fatalf("first results = %+v", first)
	}

	// "hello" is now cached; only "fresh" should hit the network, and the
	// combined results must keep positional order.
	second, err := client.Translate(ctx, []string{"hello", "fresh"}, "DE", "EN")
	if err != nil {
		t.Fatalf("second translate: %v", err)
	}
	if second[0].Text != "t:hello" || second[1].Text != "t:fresh" {
		t.Errorf("second results = %+v", second)
	}
	if second[0].DetectedSourceLang != "EN" {
		t.Errorf("cached entry lost detected language: %+v", second[0])
	}

	if len(inner.calls) != 2 {
		t.Fatalf("network calls = %d, want 2", len(inner.calls))
	}
	if len(inner.calls[1]) != 1 || inner.calls[1][0] != "fresh" {
		t.Errorf("second call = %v, want [fresh]", inner.calls[1])
	}
}

func TestCachedClientAllHits(t *testing.T) {
	store, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer store.Close()

	inner := &countingClient{}
	client := &CachedClient{Inner: inner, Cache: store, Scope: "deepl"}
	ctx := context.Background()

	if _, err := client.Translate(ctx, []string{"a"}, "DE", ""); err != nil {
		t.Fatalf("warm-up: %v", err)
	}
	if _, err := client.Translate(ctx, []string{"a"}, "DE", ""); err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if len(inner.calls) != 1 {
		t.Errorf("network calls = %d, want 1", len(inner.calls))
	}
}

func TestCachedClientKeysByLanguagePair(t *testing.T) {
	store, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer store.Close()

	inner := &countingClient{}
	client := &CachedClient{Inner: inner, Cache: store, Scope: "deepl"}
	ctx := context.Background()

	client.Translate(ctx, []string{"a"}, "DE", "")
	client.Translate(ctx, []string{"a"}, "FR", "")

	// Same text, different target: both go to the network.
	if len(inner.calls) != 2 {
		t.Errorf("network calls = %d, want 2", len(inner.calls))
	}
}

func TestCachedClientNilCachePassesThrough(t *testing.T) {
	inner := &countingClient{}
	client := &CachedClient{Inner: inner}

	res, err := client.Translate(context.Background(), []string{"x"}, "DE", "")
	if err != nil || len(res) != 1 || res[0].Text != "t:x" {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}
