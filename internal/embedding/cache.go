package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder memoizes Embed calls keyed by content hash. Import and
// ingest frequently re-embed identical sections across runs; hitting the
// cache skips a network round trip.
//
// Only dense vectors are cached. Token-level vectors are reindex-only and
// too large to be worth keeping.
type CachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps inner with an in-process cache sized for roughly
// maxEntries vectors.
func NewCachedEmbedder(inner Embedder, maxEntries int64) (*CachedEmbedder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Dimension returns the wrapped embedder's vector width.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// Embed returns a cached vector when available, otherwise delegates.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return v.([]float32), nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec, 1)
	return vec, nil
}

// EmbedTokens delegates to the wrapped embedder when it supports late
// interaction vectors.
func (c *CachedEmbedder) EmbedTokens(ctx context.Context, text string) ([][]float32, error) {
	if le, ok := c.inner.(LateEmbedder); ok {
		return le.EmbedTokens(ctx, text)
	}
	return nil, ErrUnavailable
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}
