package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

var _ storage.CacheIndex = (*CachingIndex)(nil)

// CachingIndex layers an in-process LRU of resolved entities over a
// CacheIndex, so hot labels skip the database entirely. Entries are
// invalidated on any write through this wrapper; writes that bypass it
// (another process, raw SQL) are only picked up after eviction, which
// is the documented trade-off of the hot cache.
type CachingIndex struct {
	inner storage.CacheIndex
	hot   *lru.Cache[string, *types.Entity]
}

// NewCachingIndex wraps inner with an LRU of at most size entities.
func NewCachingIndex(inner storage.CacheIndex, size int) (*CachingIndex, error) {
	if size < 1 {
		size = 1024
	}
	hot, err := lru.New[string, *types.Entity](size)
	if err != nil {
		return nil, err
	}
	return &CachingIndex{inner: inner, hot: hot}, nil
}

func hotKey(scope types.Scope, label string) string {
	return scope.TenantID + "|" + scope.OwnerID + "|" + label
}

// Lookup serves keys from the LRU where possible and fills the rest
// from the inner index, preserving key order. Misses are not cached:
// a NotFound marker must never outlive the entity's creation.
func (c *CachingIndex) Lookup(ctx context.Context, keys []string, scope types.Scope) ([]storage.CacheHit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	hits := make([]storage.CacheHit, len(keys))
	var missing []string
	var missingAt []int
	for i, key := range keys {
		if entity, ok := c.hot.Get(hotKey(scope, key)); ok {
			hits[i] = storage.CacheHit{Key: key, Entity: entity}
			continue
		}
		missing = append(missing, key)
		missingAt = append(missingAt, i)
	}

	if len(missing) > 0 {
		filled, err := c.inner.Lookup(ctx, missing, scope)
		if err != nil {
			return nil, err
		}
		for j, hit := range filled {
			hits[missingAt[j]] = hit
			if !hit.NotFound {
				c.hot.Add(hotKey(scope, hit.Key), hit.Entity)
			}
		}
	}
	return hits, nil
}

// UpsertEntry writes through and invalidates the hot entry. The LRU
// holds full entities and the index entry only carries a summary, so
// invalidation (not update) is the correct move.
func (c *CachingIndex) UpsertEntry(ctx context.Context, entry storage.CacheEntry) error {
	if err := c.inner.UpsertEntry(ctx, entry); err != nil {
		return err
	}
	c.hot.Remove(hotKey(entry.Scope, entry.Label))
	return nil
}

// DeleteEntry writes through and invalidates the hot entry.
func (c *CachingIndex) DeleteEntry(ctx context.Context, kind types.EntityKind, label string, scope types.Scope, generation int64) error {
	if err := c.inner.DeleteEntry(ctx, kind, label, scope, generation); err != nil {
		return err
	}
	c.hot.Remove(hotKey(scope, label))
	return nil
}

// RebuildCache rebuilds the inner index and drops the entire hot set.
func (c *CachingIndex) RebuildCache(ctx context.Context) error {
	if err := c.inner.RebuildCache(ctx); err != nil {
		return err
	}
	c.hot.Purge()
	return nil
}

// Invalidate drops one hot entry; used by callers that mutate entities
// outside the index write path.
func (c *CachingIndex) Invalidate(scope types.Scope, label string) {
	c.hot.Remove(hotKey(scope, label))
}
