// Package engine dispatches parsed queries to their execution
// strategies and enforces the per-strategy complexity contracts. Every
// response carries its complexity class and scan counters so the
// contracts are observable, not just documented.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/recall/internal/embedding"
	"github.com/scrypster/recall/internal/query"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Config tunes the dispatcher.
type Config struct {
	// QueryTimeout bounds one query end to end (default 10s).
	QueryTimeout time.Duration

	// MaxRawRows caps rows returned by SQL passthrough reads (default 1000).
	MaxRawRows int

	// Bounds limit graph traversal expansion.
	Bounds storage.TraverseBounds
}

func (c *Config) normalize() {
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.MaxRawRows <= 0 {
		c.MaxRawRows = 1000
	}
	c.Bounds.Normalize()
}

// Engine executes query strings against a backend within a scope.
type Engine struct {
	store    storage.Backend
	embedder embedding.Embedder
	cfg      Config
}

// New builds an engine. The embedder may be nil, in which case SEARCH
// queries fail with a clear error while every other strategy works.
func New(store storage.Backend, embedder embedding.Embedder, cfg Config) *Engine {
	cfg.normalize()
	return &Engine{store: store, embedder: embedder, cfg: cfg}
}

// Execute parses and runs one query within scope. The whole execution
// shares a single deadline; exceeding it maps to types.ErrQueryTimeout.
func (e *Engine) Execute(ctx context.Context, input string, scope types.Scope) (*types.QueryResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	q, err := query.Parse(input)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	result, err := e.execute(ctx, q, scope)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query exceeded %v: %w", e.cfg.QueryTimeout, types.ErrQueryTimeout)
		}
		return nil, err
	}
	result.Stats.Elapsed = time.Since(start)
	return result, nil
}

func (e *Engine) execute(ctx context.Context, q query.Query, scope types.Scope) (*types.QueryResult, error) {
	switch q := q.(type) {
	case *query.Lookup:
		return e.execLookup(ctx, q, scope)
	case *query.Fuzzy:
		return e.execFuzzy(ctx, q, scope)
	case *query.Search:
		return e.execSearch(ctx, q, scope)
	case *query.Traverse:
		return e.execTraverse(ctx, q, scope)
	case *query.SQL:
		return e.execSQL(ctx, q, scope)
	}
	return nil, fmt.Errorf("engine: unknown query descriptor %T: %w", q, types.ErrInvalidInput)
}

// execLookup resolves keys through the label index: one indexed hit per
// key, misses as per-key markers.
func (e *Engine) execLookup(ctx context.Context, q *query.Lookup, scope types.Scope) (*types.QueryResult, error) {
	hits, err := e.store.Lookup(ctx, q.Keys, scope)
	if err != nil {
		return nil, err
	}

	items := make([]types.Result, 0, len(hits))
	for _, hit := range hits {
		if hit.NotFound {
			items = append(items, types.Result{Label: hit.Key, NotFound: true})
			continue
		}
		items = append(items, types.Result{
			Label:  hit.Entity.Label,
			Kind:   hit.Entity.Kind,
			Entity: hit.Entity,
		})
	}
	return &types.QueryResult{
		Items:      items,
		Complexity: types.ComplexityConstant,
		Stats:      types.QueryStats{RowsScanned: len(hits)},
	}, nil
}

func (e *Engine) execFuzzy(ctx context.Context, q *query.Fuzzy, scope types.Scope) (*types.QueryResult, error) {
	scored, stats, err := e.store.FuzzySearch(ctx, storage.FuzzyOptions{
		Text:      q.Text,
		Threshold: q.Threshold,
		Limit:     q.Limit,
	}, scope)
	if err != nil {
		return nil, err
	}
	return &types.QueryResult{
		Items:      scoredItems(scored),
		Complexity: types.ComplexityIndexed,
		Stats:      types.QueryStats{RowsScanned: stats.RowsScanned},
	}, nil
}

func (e *Engine) execSearch(ctx context.Context, q *query.Search, scope types.Scope) (*types.QueryResult, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("engine: semantic search requires an embedding provider: %w", types.ErrInvalidInput)
	}

	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("engine: embed query text: %w", err)
	}

	pred, err := storage.ParsePredicate(q.Predicate)
	if err != nil {
		return nil, err
	}

	scored, stats, err := e.store.VectorSearch(ctx, vec, storage.VectorOptions{
		Kind:      q.Kind,
		Predicate: pred,
		Limit:     q.Limit,
	}, scope)
	if err != nil {
		return nil, err
	}
	return &types.QueryResult{
		Items:      scoredItems(scored),
		Complexity: types.ComplexityLogarithmic,
		Stats:      types.QueryStats{RowsScanned: stats.RowsScanned},
	}, nil
}

func (e *Engine) execSQL(ctx context.Context, q *query.SQL, scope types.Scope) (*types.QueryResult, error) {
	raw, err := e.store.ExecRaw(ctx, q.Raw, scope, e.cfg.MaxRawRows)
	if err != nil {
		return nil, err
	}
	return &types.QueryResult{
		Items:        []types.Result{},
		Columns:      raw.Columns,
		Rows:         raw.Rows,
		RowsAffected: raw.RowsAffected,
		Complexity:   types.ComplexityUnbounded,
		Stats:        types.QueryStats{RowsScanned: raw.RowsScanned},
	}, nil
}

func scoredItems(scored []storage.ScoredEntity) []types.Result {
	items := make([]types.Result, 0, len(scored))
	for _, s := range scored {
		score := s.Score
		items = append(items, types.Result{
			Label:  s.Entity.Label,
			Kind:   s.Entity.Kind,
			Score:  &score,
			Entity: s.Entity,
		})
	}
	return items
}
