package translation

import (
	"context"
	"time"

	"github.com/60cod/realtime-translator/cache"
	"github.com/60cod/realtime-translator/internal/metrics"
)

// CachedClient wraps a Client with a persistent cache. Texts already
// translated for the same language pair are answered locally; only the
// misses go to the network, and the combined results keep their
// positional order. Caching is best effort.
type CachedClient struct {
	Inner Client
	Cache *cache.Cache
	// Scope distinguishes backends in cache keys so switching the
	// translation backend doesn't serve stale entries.
	Scope string
}

func (c *CachedClient) Translate(ctx context.Context, texts []string, targetLang, sourceLang string) ([]Result, error) {
	if c.Cache == nil {
		return c.Inner.Translate(ctx, texts, targetLang, sourceLang)
	}

	results := make([]Result, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		entry, ok := c.Cache.Get(c.key(text, targetLang, sourceLang))
		if ok {
			results[i] = Result{Text: entry.Text, DetectedSourceLang: entry.DetectedSourceLang}
			metrics.CacheHits.Inc()
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.Inner.Translate(ctx, missTexts, targetLang, sourceLang)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		// Pass the mismatch through untouched; the queue rejects on it.
		return fresh, nil
	}

	for j, r := range fresh {
		i := missIdx[j]
		results[i] = r
		_ = c.Cache.Set(c.key(texts[i], targetLang, sourceLang), &cache.Entry{
			Text:               r.Text,
			DetectedSourceLang: r.DetectedSourceLang,
			CreatedAt:          time.Now(),
		}, cache.DefaultTTL)
	}
	return results, nil
}

func (c *CachedClient) key(text, targetLang, sourceLang string) string {
	return cache.GenerateKey(c.Scope, sourceLang, targetLang, text)
}
