package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// FuzzySearch ranks labels by trigram similarity against the label
// index. Matching runs over labels and content summaries in a single
// GIN-indexed table, so the cost class is indexed rather than a union
// scan of the entity tables.
func (s *Store) FuzzySearch(ctx context.Context, opts storage.FuzzyOptions, scope types.Scope) ([]storage.ScoredEntity, *storage.ScanStats, error) {
	if err := scope.Validate(); err != nil {
		return nil, nil, err
	}
	if opts.Text == "" {
		return nil, nil, fmt.Errorf("postgres: fuzzy search requires text: %w", types.ErrInvalidInput)
	}
	if !s.trgmAvailable {
		return nil, nil, fmt.Errorf("postgres: fuzzy search requires the pg_trgm extension: %w", types.ErrInvalidInput)
	}
	opts.Normalize()

	const querySQL = `
		SELECT kind, label,
		       GREATEST(similarity(label, $4), similarity(summary, $4)) AS score
		FROM label_index
		WHERE tenant_id = $1 AND owner_id IN ($2, $3)
		  AND GREATEST(similarity(label, $4), similarity(summary, $4)) >= $5
		ORDER BY score DESC, label ASC
		LIMIT $6
	`

	rows, err := s.db.QueryContext(ctx, querySQL,
		scope.TenantID, scope.OwnerID, types.SharedOwner,
		opts.Text, opts.Threshold, opts.Limit,
	)
	if err != nil {
		return nil, nil, types.StoreErr("postgres: fuzzy search", err)
	}
	defer func() { _ = rows.Close() }()

	type match struct {
		kind  types.EntityKind
		label string
		score float64
	}
	matches := make([]match, 0, opts.Limit)
	for rows.Next() {
		var m match
		var kind string
		if err := rows.Scan(&kind, &m.label, &m.score); err != nil {
			return nil, nil, types.StoreErr("postgres: fuzzy search scan", err)
		}
		m.kind = types.EntityKind(kind)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, types.StoreErr("postgres: fuzzy search rows", err)
	}

	stats := &storage.ScanStats{RowsScanned: len(matches)}
	results := make([]storage.ScoredEntity, 0, len(matches))
	for _, m := range matches {
		entity, err := s.GetEntity(ctx, m.kind, m.label, scope)
		if errors.Is(err, types.ErrNotFound) {
			// Index row lagging a delete; skip rather than fail the search.
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		stats.RowsScanned++
		results = append(results, storage.ScoredEntity{Entity: entity, Score: m.score})
	}
	return results, stats, nil
}
