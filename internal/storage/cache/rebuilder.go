// Package cache provides the asynchronous label-index maintenance path
// and an in-process hot-label cache. The synchronous write path keeps
// the index transactionally fresh; this package exists for the eventual
// consistency mode, where index writes are queued and applied by a
// background worker, and for disaster recovery rebuilds.
package cache

import (
	"context"
	"log"
	"sync"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// task is one queued index mutation. Exactly one of upsert/delete is set.
type task struct {
	upsert *storage.CacheEntry

	deleteKind  types.EntityKind
	deleteLabel string
	deleteScope types.Scope
	deleteGen   int64
	isDelete    bool
}

// Rebuilder applies label-index mutations asynchronously through a
// bounded queue. Ordering between a delayed older write and a newer one
// is handled by the per-label generation guard in the index itself, so
// the worker needs no ordering logic of its own.
type Rebuilder struct {
	index storage.CacheIndex
	queue chan task

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRebuilder starts the worker. queueSize bounds pending mutations;
// a full queue applies backpressure to enqueuers (blocking Enqueue*).
func NewRebuilder(index storage.CacheIndex, queueSize int) *Rebuilder {
	if queueSize < 1 {
		queueSize = 256
	}
	r := &Rebuilder{
		index: index,
		queue: make(chan task, queueSize),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Rebuilder) run() {
	defer r.wg.Done()
	for t := range r.queue {
		ctx := context.Background()
		var err error
		if t.isDelete {
			err = r.index.DeleteEntry(ctx, t.deleteKind, t.deleteLabel, t.deleteScope, t.deleteGen)
		} else {
			err = r.index.UpsertEntry(ctx, *t.upsert)
		}
		if err != nil {
			// A failed index write leaves a stale row that the next
			// write or a RebuildCache repairs; log and keep draining.
			log.Printf("cache: apply index mutation: %v", err)
		}
	}
}

// EnqueueUpsert queues an index refresh for one entity. Blocks when the
// queue is full; returns ctx.Err() if the caller gives up first.
func (r *Rebuilder) EnqueueUpsert(ctx context.Context, entry storage.CacheEntry) error {
	select {
	case r.queue <- task{upsert: &entry}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueDelete queues an index tombstone.
func (r *Rebuilder) EnqueueDelete(ctx context.Context, kind types.EntityKind, label string, scope types.Scope, generation int64) error {
	select {
	case r.queue <- task{isDelete: true, deleteKind: kind, deleteLabel: label, deleteScope: scope, deleteGen: generation}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rebuild forces a full synchronous index rebuild.
func (r *Rebuilder) Rebuild(ctx context.Context) error {
	return r.index.RebuildCache(ctx)
}

// Close stops accepting work and drains what is queued.
func (r *Rebuilder) Close() {
	r.stopOnce.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
}
