package cache

import (
	"context"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

var _ storage.Backend = (*Backend)(nil)

// Backend composes a full storage backend with the hot-label LRU and
// the asynchronous index maintenance queue. LOOKUP reads go through the
// LRU; entity writes go straight to the inner store, which keeps the
// label index transactionally fresh, and drop the label's hot entry.
// Direct index mutations take the queued path and are applied by the
// background worker, relying on the per-label generation guard for
// out-of-order safety.
type Backend struct {
	storage.Backend

	idx       *CachingIndex
	rebuilder *Rebuilder
}

// WrapBackend layers the caching index and rebuild queue over inner.
// hotSize bounds the LRU; queueSize bounds pending index mutations.
func WrapBackend(inner storage.Backend, hotSize, queueSize int) (*Backend, error) {
	idx, err := NewCachingIndex(inner, hotSize)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Backend:   inner,
		idx:       idx,
		rebuilder: NewRebuilder(idx, queueSize),
	}, nil
}

// Lookup serves hot labels from the LRU and fills misses from the
// inner index.
func (b *Backend) Lookup(ctx context.Context, keys []string, scope types.Scope) ([]storage.CacheHit, error) {
	return b.idx.Lookup(ctx, keys, scope)
}

// UpsertEntity writes through and drops the label's hot entry, so the
// next lookup sees the new row instead of the cached copy.
func (b *Backend) UpsertEntity(ctx context.Context, entity *types.Entity) error {
	if err := b.Backend.UpsertEntity(ctx, entity); err != nil {
		return err
	}
	b.idx.Invalidate(entity.Scope, entity.Label)
	return nil
}

// DeleteEntity writes through and drops the label's hot entry.
func (b *Backend) DeleteEntity(ctx context.Context, kind types.EntityKind, label string, scope types.Scope) error {
	if err := b.Backend.DeleteEntity(ctx, kind, label, scope); err != nil {
		return err
	}
	b.idx.Invalidate(scope, label)
	return nil
}

// UpsertEntry queues the index refresh. The generation guard in the
// index makes a delayed application safe.
func (b *Backend) UpsertEntry(ctx context.Context, entry storage.CacheEntry) error {
	return b.rebuilder.EnqueueUpsert(ctx, entry)
}

// DeleteEntry queues the index tombstone.
func (b *Backend) DeleteEntry(ctx context.Context, kind types.EntityKind, label string, scope types.Scope, generation int64) error {
	return b.rebuilder.EnqueueDelete(ctx, kind, label, scope, generation)
}

// RebuildCache rebuilds the inner index and purges the hot set.
func (b *Backend) RebuildCache(ctx context.Context) error {
	return b.rebuilder.Rebuild(ctx)
}

// Close drains the mutation queue, then closes the inner store.
func (b *Backend) Close() error {
	b.rebuilder.Close()
	return b.Backend.Close()
}
