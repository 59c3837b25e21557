package embed

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder memoizes another embedder's vectors keyed by model and
// text. Repeated questions and reindexing skip the remote call.
type CachedEmbedder struct {
	next  Embedder
	cache *ristretto.Cache
}

// Compile-time interface check.
var _ Embedder = (*CachedEmbedder)(nil)

// NewCached wraps next with a cache holding roughly maxEntries vectors.
func NewCached(next Embedder, maxEntries int64) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: creating cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

// ModelID implements Embedder.
func (c *CachedEmbedder) ModelID() string { return c.next.ModelID() }

// Embed implements Embedder. Callers receive a copy they may modify.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.next.ModelID() + "\x00" + text
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return slices.Clone(vec), nil
		}
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, slices.Clone(vec), 1)
	return vec, nil
}

// Wait blocks until pending cache writes are applied.
func (c *CachedEmbedder) Wait() { c.cache.Wait() }

// Close releases the cache.
func (c *CachedEmbedder) Close() { c.cache.Close() }
