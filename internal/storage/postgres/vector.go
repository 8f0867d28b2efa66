package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// VectorSearch ranks entities of one kind by cosine similarity using
// the ivfflat index, with an optional structured predicate compiled
// into the same statement (hybrid retrieval). Rows without an
// embedding vector never match.
func (s *Store) VectorSearch(ctx context.Context, vec []float32, opts storage.VectorOptions, scope types.Scope) ([]storage.ScoredEntity, *storage.ScanStats, error) {
	if err := scope.Validate(); err != nil {
		return nil, nil, err
	}
	if len(vec) == 0 {
		return nil, nil, fmt.Errorf("postgres: vector search requires a query vector: %w", types.ErrInvalidInput)
	}
	if !s.pgvectorAvailable {
		return nil, nil, fmt.Errorf("postgres: vector search requires the pgvector extension: %w", types.ErrInvalidInput)
	}
	opts.Normalize()

	args := []interface{}{
		pgvector.NewVector(vec),
		scope.TenantID, scope.OwnerID, types.SharedOwner,
	}
	where := "tenant_id = $2 AND owner_id IN ($3, $4) AND deleted_at IS NULL AND embedding_vec IS NOT NULL"

	if opts.Predicate != nil {
		frag, predArgs, err := compilePredicate(opts.Predicate, len(args)+1)
		if err != nil {
			return nil, nil, err
		}
		where += " AND " + frag
		args = append(args, predArgs...)
	}

	args = append(args, opts.Limit)
	querySQL := fmt.Sprintf(`
		SELECT `+entitySelectColumns+`, 1 - (embedding_vec <=> $1) AS score
		FROM %s
		WHERE %s
		ORDER BY embedding_vec <=> $1
		LIMIT $%d
	`, opts.Kind.Table(), where, len(args))

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, nil, types.StoreErr("postgres: vector search", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]storage.ScoredEntity, 0, opts.Limit)
	for rows.Next() {
		entity, score, err := scanScoredEntityRow(rows, opts.Kind)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, storage.ScoredEntity{Entity: entity, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, types.StoreErr("postgres: vector search rows", err)
	}
	return results, &storage.ScanStats{RowsScanned: len(results)}, nil
}

// compilePredicate renders a structured predicate as a parameterized
// SQL fragment. "label" and "content" address entity columns; any other
// field addresses a metadata JSONB key. Field names are already
// whitelisted by ParsePredicate, so interpolating them is safe.
func compilePredicate(p *storage.Predicate, argIdx int) (string, []interface{}, error) {
	isColumn := p.Field == "label" || p.Field == "content"

	switch p.Op {
	case storage.OpEq, storage.OpNeq:
		op := "="
		if p.Op == storage.OpNeq {
			op = "!="
		}
		if isColumn {
			return fmt.Sprintf("%s %s $%d", p.Field, op, argIdx), []interface{}{p.Value.Text()}, nil
		}
		return fmt.Sprintf("metadata->>'%s' %s $%d", p.Field, op, argIdx), []interface{}{p.Value.Text()}, nil

	case storage.OpGt, storage.OpGte, storage.OpLt, storage.OpLte:
		num, ok := p.Value.AsNumber()
		if !ok {
			return "", nil, fmt.Errorf("postgres: range predicate on %q requires a numeric value: %w", p.Field, types.ErrInvalidInput)
		}
		op := map[storage.PredicateOp]string{
			storage.OpGt: ">", storage.OpGte: ">=",
			storage.OpLt: "<", storage.OpLte: "<=",
		}[p.Op]
		if isColumn {
			return "", nil, fmt.Errorf("postgres: range predicate not supported on column %q: %w", p.Field, types.ErrInvalidInput)
		}
		return fmt.Sprintf("(metadata->>'%s')::numeric %s $%d", p.Field, op, argIdx), []interface{}{num}, nil

	case storage.OpContains:
		if isColumn {
			return "", nil, fmt.Errorf("postgres: contains predicate not supported on column %q: %w", p.Field, types.ErrInvalidInput)
		}
		raw, err := json.Marshal(p.Value)
		if err != nil {
			return "", nil, fmt.Errorf("postgres: marshal predicate value: %w", err)
		}
		return fmt.Sprintf("metadata->'%s' @> $%d::jsonb", p.Field, argIdx), []interface{}{string(raw)}, nil

	case storage.OpLike:
		pattern := "%" + p.Value.Text() + "%"
		if isColumn {
			return fmt.Sprintf("%s ILIKE $%d", p.Field, argIdx), []interface{}{pattern}, nil
		}
		return fmt.Sprintf("metadata->>'%s' ILIKE $%d", p.Field, argIdx), []interface{}{pattern}, nil
	}
	return "", nil, fmt.Errorf("postgres: unsupported predicate operator: %w", types.ErrInvalidInput)
}
