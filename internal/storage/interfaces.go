// Package storage provides composable storage interfaces for the Recall
// query engine.
//
// The layer is designed as small, focused interfaces that can be
// implemented independently and composed as needed, so backends (and
// test fakes) only implement what a given strategy touches.
package storage

import (
	"context"

	"github.com/scrypster/recall/pkg/types"
)

// EntityStore provides the producer interface and label resolution over
// the per-kind entity tables.
type EntityStore interface {
	// UpsertEntity creates or updates an entity by (kind, label, scope)
	// and synchronously refreshes its label-index entry in the same
	// unit of work. A missing ID is generated; Generation is advanced
	// past the stored row's.
	UpsertEntity(ctx context.Context, entity *types.Entity) error

	// DeleteEntity soft-deletes an entity and tombstones its cache
	// entry. Returns types.ErrNotFound if no such entity exists in scope.
	DeleteEntity(ctx context.Context, kind types.EntityKind, label string, scope types.Scope) error

	// GetEntity fetches one entity by (kind, label) within scope.
	GetEntity(ctx context.Context, kind types.EntityKind, label string, scope types.Scope) (*types.Entity, error)

	// ResolveLabel resolves a destination label to an entity, trying
	// the hinted kind first when hint is non-empty and otherwise
	// probing kinds in priority order. Resolution always stays within
	// scope; an out-of-scope destination is types.ErrNotFound, never an
	// escalation.
	ResolveLabel(ctx context.Context, hint types.EntityKind, label string, scope types.Scope) (*types.Entity, error)

	// Close releases the underlying connection pool.
	Close() error
}

// CacheHit is one label-index resolution result.
type CacheHit struct {
	// Key is the label that was looked up (order-preserved echo).
	Key string

	// Entity is the resolved entity; nil when NotFound.
	Entity *types.Entity

	// NotFound marks a key with no index entry in scope.
	NotFound bool
}

// CacheEntry is one denormalized row of the label index.
type CacheEntry struct {
	Scope      types.Scope
	Kind       types.EntityKind
	Label      string
	EntityID   string
	Summary    string
	Edges      []types.Edge
	Generation int64
}

// CacheIndex is the denormalized label → entity index giving LOOKUP its
// O(1) guarantee: one indexed hit per key, never a union scan. It must
// never be queried without a scope.
type CacheIndex interface {
	// Lookup resolves keys in order, one cache hit per key. Missing
	// keys come back as per-key NotFound markers; a multi-key lookup
	// never fails wholesale because one key is absent.
	Lookup(ctx context.Context, keys []string, scope types.Scope) ([]CacheHit, error)

	// UpsertEntry writes an index row guarded by the per-label
	// generation: a delayed write with an older generation never
	// overwrites a newer row.
	UpsertEntry(ctx context.Context, entry CacheEntry) error

	// DeleteEntry removes an index row if its generation is not newer
	// than the given one.
	DeleteEntry(ctx context.Context, kind types.EntityKind, label string, scope types.Scope, generation int64) error

	// RebuildCache recomputes the entire label index from the source
	// tables. Idempotent; available for disaster recovery and for
	// callers that need to force strong consistency.
	RebuildCache(ctx context.Context) error
}

// ScoredEntity pairs an entity with its similarity score.
type ScoredEntity struct {
	Entity *types.Entity
	Score  float64
}

// FuzzyProvider ranks entities by approximate string similarity against
// labels and content summaries. Implementations use an index structure,
// not a full scan (the SQLite backend's weaker candidate-capped path is
// documented on the implementation).
type FuzzyProvider interface {
	FuzzySearch(ctx context.Context, opts FuzzyOptions, scope types.Scope) ([]ScoredEntity, *ScanStats, error)
}

// VectorProvider ranks entities of one kind by cosine similarity to a
// query vector, optionally pre-filtered by a structured predicate
// (hybrid retrieval). Entities without an embedding are excluded.
type VectorProvider interface {
	VectorSearch(ctx context.Context, vec []float32, opts VectorOptions, scope types.Scope) ([]ScoredEntity, *ScanStats, error)
}

// RawRows is the output of a SQL passthrough execution.
type RawRows struct {
	Columns      []string
	Rows         []map[string]interface{}
	RowsAffected int64
	RowsScanned  int
}

// SQLPassthrough executes restricted raw relational statements with
// mechanical scope injection. Statements that reference entity tables
// but cannot be scoped safely fail closed with types.ErrScopeViolation.
type SQLPassthrough interface {
	ExecRaw(ctx context.Context, stmt string, scope types.Scope, maxRows int) (*RawRows, error)
}

// Backend is the full capability set a production store implements.
type Backend interface {
	EntityStore
	CacheIndex
	FuzzyProvider
	VectorProvider
	SQLPassthrough
}
