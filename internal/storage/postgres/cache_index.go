package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// execer abstracts *sql.DB and *sql.Tx so cache writes can run both
// standalone (rebuild worker) and inside an entity-upsert transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// cacheUpsertSQL applies a label-index row guarded by generation: the
// WHERE clause makes a delayed older write a no-op, which is what keeps
// asynchronous rebuild writes ordered per label.
const cacheUpsertSQL = `
	INSERT INTO label_index (tenant_id, owner_id, kind, label, entity_id, summary, edges, generation)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (tenant_id, owner_id, kind, label) DO UPDATE SET
		entity_id = excluded.entity_id,
		summary = excluded.summary,
		edges = excluded.edges,
		generation = excluded.generation,
		updated_at = CURRENT_TIMESTAMP
	WHERE label_index.generation <= excluded.generation
`

func upsertCacheEntryTx(ctx context.Context, ex execer, entry storage.CacheEntry) error {
	edgesJSON, err := marshalJSON(entry.Edges)
	if err != nil {
		return fmt.Errorf("postgres: marshal cached edges: %w", err)
	}
	_, err = ex.ExecContext(ctx, cacheUpsertSQL,
		entry.Scope.TenantID, entry.Scope.OwnerID, string(entry.Kind), entry.Label,
		entry.EntityID, entry.Summary, edgesJSON, entry.Generation,
	)
	if err != nil {
		return types.StoreErr("postgres: upsert cache entry", err)
	}
	return nil
}

func deleteCacheEntryTx(ctx context.Context, ex execer, kind types.EntityKind, label string, scope types.Scope, generation int64) error {
	const deleteSQL = `
		DELETE FROM label_index
		WHERE tenant_id = $1 AND owner_id = $2 AND kind = $3 AND label = $4 AND generation <= $5
	`
	_, err := ex.ExecContext(ctx, deleteSQL, scope.TenantID, scope.OwnerID, string(kind), label, generation)
	if err != nil {
		return types.StoreErr("postgres: delete cache entry", err)
	}
	return nil
}

// UpsertEntry implements storage.CacheIndex for the rebuild worker.
func (s *Store) UpsertEntry(ctx context.Context, entry storage.CacheEntry) error {
	if err := entry.Scope.Validate(); err != nil {
		return err
	}
	return upsertCacheEntryTx(ctx, s.db, entry)
}

// DeleteEntry implements storage.CacheIndex.
func (s *Store) DeleteEntry(ctx context.Context, kind types.EntityKind, label string, scope types.Scope, generation int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return deleteCacheEntryTx(ctx, s.db, kind, label, scope, generation)
}

// Lookup resolves keys against the label index: one indexed hit per
// key, order preserved, misses reported individually. When the same
// label exists in multiple kinds, the caller's own row beats a shared
// row and earlier kinds beat later ones.
func (s *Store) Lookup(ctx context.Context, keys []string, scope types.Scope) ([]storage.CacheHit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("postgres: lookup requires at least one key: %w", types.ErrInvalidInput)
	}

	const querySQL = `
		SELECT kind, owner_id
		FROM label_index
		WHERE tenant_id = $1 AND owner_id IN ($2, $3) AND label = $4
	`

	hits := make([]storage.CacheHit, 0, len(keys))
	for _, key := range keys {
		rows, err := s.db.QueryContext(ctx, querySQL, scope.TenantID, scope.OwnerID, types.SharedOwner, key)
		if err != nil {
			return nil, types.StoreErr("postgres: cache lookup", err)
		}

		best := ""
		bestRank := -1
		for rows.Next() {
			var kind, owner string
			if err := rows.Scan(&kind, &owner); err != nil {
				_ = rows.Close()
				return nil, types.StoreErr("postgres: cache lookup scan", err)
			}
			if rank := resolutionRank(types.EntityKind(kind), owner, scope); bestRank == -1 || rank < bestRank {
				best, bestRank = kind, rank
			}
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, types.StoreErr("postgres: cache lookup rows", err)
		}
		_ = rows.Close()

		if bestRank == -1 {
			hits = append(hits, storage.CacheHit{Key: key, NotFound: true})
			continue
		}

		entity, err := s.GetEntity(ctx, types.EntityKind(best), key, scope)
		if errors.Is(err, types.ErrNotFound) {
			// The index row outlived its entity (eventual-consistency
			// window); report the key as missing rather than erroring.
			hits = append(hits, storage.CacheHit{Key: key, NotFound: true})
			continue
		}
		if err != nil {
			return nil, err
		}
		hits = append(hits, storage.CacheHit{Key: key, Entity: entity})
	}
	return hits, nil
}

// resolutionRank orders candidate index rows: own rows before shared,
// then kind priority. Lower is better.
func resolutionRank(kind types.EntityKind, owner string, scope types.Scope) int {
	rank := 0
	if owner != scope.OwnerID {
		rank += len(types.AllKinds())
	}
	for i, k := range types.AllKinds() {
		if k == kind {
			return rank + i
		}
	}
	return rank + len(types.AllKinds())
}

// RebuildCache recomputes the entire label index from the entity
// tables. Generation guards make it idempotent and safe to run while
// synchronous writes continue.
func (s *Store) RebuildCache(ctx context.Context) error {
	for _, kind := range types.AllKinds() {
		table := kind.Table()

		rebuildSQL := fmt.Sprintf(`
			INSERT INTO label_index (tenant_id, owner_id, kind, label, entity_id, summary, edges, generation)
			SELECT tenant_id, owner_id, '%s', label, id, LEFT(content, 280), edges, generation
			FROM %s
			WHERE deleted_at IS NULL
			ON CONFLICT (tenant_id, owner_id, kind, label) DO UPDATE SET
				entity_id = excluded.entity_id,
				summary = excluded.summary,
				edges = excluded.edges,
				generation = excluded.generation,
				updated_at = CURRENT_TIMESTAMP
			WHERE label_index.generation <= excluded.generation
		`, string(kind), table)
		if _, err := s.db.ExecContext(ctx, rebuildSQL); err != nil {
			return types.StoreErr("postgres: rebuild cache insert "+table, err)
		}

		pruneSQL := fmt.Sprintf(`
			DELETE FROM label_index li
			WHERE li.kind = '%s' AND NOT EXISTS (
				SELECT 1 FROM %s t
				WHERE t.tenant_id = li.tenant_id
				  AND t.owner_id = li.owner_id
				  AND t.label = li.label
				  AND t.deleted_at IS NULL
			)
		`, string(kind), table)
		if _, err := s.db.ExecContext(ctx, pruneSQL); err != nil {
			return types.StoreErr("postgres: rebuild cache prune "+table, err)
		}
	}
	return nil
}
