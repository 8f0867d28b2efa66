package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// fakeBackend is an in-memory storage.Backend for engine tests. It
// mirrors the scope and resolution semantics of the real backends:
// labels are unique per (tenant, owner, kind), shared rows are visible
// tenant-wide, and kind-less resolution probes kinds in priority order.
type fakeBackend struct {
	mu       sync.Mutex
	entities map[string]*types.Entity

	// delay simulates a slow store for timeout tests.
	delay time.Duration

	// resolveCalls counts ResolveLabel invocations so tests can assert
	// plan mode performs no expansion.
	resolveCalls int
}

var _ storage.Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{entities: make(map[string]*types.Entity)}
}

func entityKey(kind types.EntityKind, scope types.Scope, label string) string {
	return string(kind) + "|" + scope.TenantID + "|" + scope.OwnerID + "|" + label
}

func (f *fakeBackend) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) UpsertEntity(ctx context.Context, entity *types.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := entityKey(entity.Kind, entity.Scope, entity.Label)
	if prior, ok := f.entities[key]; ok {
		entity.Generation = prior.Generation + 1
	} else {
		entity.Generation = 1
	}
	entity.UpdatedAt = time.Now()
	f.entities[key] = entity
	return nil
}

func (f *fakeBackend) DeleteEntity(ctx context.Context, kind types.EntityKind, label string, scope types.Scope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := entityKey(kind, scope, label)
	if _, ok := f.entities[key]; !ok {
		return types.ErrNotFound
	}
	delete(f.entities, key)
	return nil
}

func (f *fakeBackend) GetEntity(ctx context.Context, kind types.EntityKind, label string, scope types.Scope) (*types.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entities[entityKey(kind, scope, label)]; ok {
		return e, nil
	}
	shared := types.Scope{TenantID: scope.TenantID, OwnerID: types.SharedOwner}
	if e, ok := f.entities[entityKey(kind, shared, label)]; ok {
		return e, nil
	}
	return nil, types.ErrNotFound
}

func (f *fakeBackend) ResolveLabel(ctx context.Context, hint types.EntityKind, label string, scope types.Scope) (*types.Entity, error) {
	f.mu.Lock()
	f.resolveCalls++
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	if hint.Valid() {
		if e, err := f.GetEntity(ctx, hint, label, scope); err == nil {
			return e, nil
		}
	}
	for _, kind := range types.AllKinds() {
		if e, err := f.GetEntity(ctx, kind, label, scope); err == nil {
			return e, nil
		}
	}
	return nil, types.ErrNotFound
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) Lookup(ctx context.Context, keys []string, scope types.Scope) ([]storage.CacheHit, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	hits := make([]storage.CacheHit, 0, len(keys))
	for _, key := range keys {
		var found *types.Entity
		for _, kind := range types.AllKinds() {
			if e, err := f.GetEntity(ctx, kind, key, scope); err == nil {
				found = e
				break
			}
		}
		if found == nil {
			hits = append(hits, storage.CacheHit{Key: key, NotFound: true})
			continue
		}
		hits = append(hits, storage.CacheHit{Key: key, Entity: found})
	}
	return hits, nil
}

func (f *fakeBackend) UpsertEntry(ctx context.Context, entry storage.CacheEntry) error { return nil }

func (f *fakeBackend) DeleteEntry(ctx context.Context, kind types.EntityKind, label string, scope types.Scope, generation int64) error {
	return nil
}

func (f *fakeBackend) RebuildCache(ctx context.Context) error { return nil }

// FuzzySearch scores 1.0 for an exact label match and 0.6 for a
// substring hit, which is enough to exercise threshold semantics.
func (f *fakeBackend) FuzzySearch(ctx context.Context, opts storage.FuzzyOptions, scope types.Scope) ([]storage.ScoredEntity, *storage.ScanStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []storage.ScoredEntity
	scanned := 0
	for _, e := range f.entities {
		if !inScope(e, scope) {
			continue
		}
		scanned++
		var score float64
		switch {
		case e.Label == opts.Text:
			score = 1.0
		case strings.Contains(e.Label, opts.Text) || strings.Contains(e.Content, opts.Text):
			score = 0.6
		}
		if score >= opts.Threshold && score > 0 {
			out = append(out, storage.ScoredEntity{Entity: e, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Entity.Label < out[j].Entity.Label
	})
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, &storage.ScanStats{RowsScanned: scanned}, nil
}

func (f *fakeBackend) VectorSearch(ctx context.Context, vec []float32, opts storage.VectorOptions, scope types.Scope) ([]storage.ScoredEntity, *storage.ScanStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []storage.ScoredEntity
	scanned := 0
	for _, e := range f.entities {
		if e.Kind != opts.Kind || !inScope(e, scope) || len(e.Embedding) != len(vec) {
			continue
		}
		scanned++
		if !opts.Predicate.Matches(e) {
			continue
		}
		out = append(out, storage.ScoredEntity{Entity: e, Score: dot(vec, e.Embedding)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Entity.Label < out[j].Entity.Label
	})
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, &storage.ScanStats{RowsScanned: scanned}, nil
}

// ExecRaw enforces the real destructive and scope checks, then serves
// a canned response; the rewrite itself is covered by storage tests.
func (f *fakeBackend) ExecRaw(ctx context.Context, stmt string, scope types.Scope, maxRows int) (*storage.RawRows, error) {
	if storage.IsDestructive(stmt) {
		return nil, fmt.Errorf("raw statement contains blocked keyword: %w", types.ErrDestructiveStatement)
	}
	rewritten, err := storage.RewriteForScope(stmt, scope)
	if err != nil {
		return nil, err
	}
	return &storage.RawRows{
		Columns:     []string{"stmt"},
		Rows:        []map[string]interface{}{{"stmt": rewritten}},
		RowsScanned: 1,
	}, nil
}

func inScope(e *types.Entity, scope types.Scope) bool {
	if e.Scope.TenantID != scope.TenantID {
		return false
	}
	return e.Scope.OwnerID == scope.OwnerID || e.Scope.OwnerID == types.SharedOwner
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// fakeEmbedder returns canned vectors per text, or a zero vector of the
// configured dimension for unknown text.
type fakeEmbedder struct {
	vectors map[string][]float32
	dim     int
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, f.dim), nil
}

var errEmbedderDown = errors.New("embedder down")
