package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// UpsertEntity creates or updates an entity row and refreshes its
// label-index entry inside the same transaction, so the synchronous
// cache path gives read-after-write for LOOKUP.
func (s *Store) UpsertEntity(ctx context.Context, entity *types.Entity) error {
	if err := entity.Scope.Validate(); err != nil {
		return err
	}
	if entity.Label == "" || !entity.Kind.Valid() {
		return fmt.Errorf("postgres: entity requires label and kind: %w", types.ErrInvalidInput)
	}
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}

	metadataJSON, err := marshalJSON(entity.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal metadata: %w", err)
	}
	edgesJSON, err := marshalJSON(entity.Edges)
	if err != nil {
		return fmt.Errorf("postgres: marshal edges: %w", err)
	}

	var dimension sql.NullInt64
	if len(entity.Embedding) > 0 {
		dimension = sql.NullInt64{Int64: int64(len(entity.Embedding)), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.StoreErr("postgres: begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	table := entity.Kind.Table()
	upsertSQL := fmt.Sprintf(`
		INSERT INTO %s (id, label, tenant_id, owner_id, content, metadata, edges, embedding, dimension, generation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
		ON CONFLICT (tenant_id, owner_id, label) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			edges = excluded.edges,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			generation = %s.generation + 1,
			updated_at = CURRENT_TIMESTAMP,
			deleted_at = NULL
		RETURNING id, generation
	`, table, table)

	err = tx.QueryRowContext(ctx, upsertSQL,
		entity.ID, entity.Label, entity.Scope.TenantID, entity.Scope.OwnerID,
		entity.Content, metadataJSON, edgesJSON,
		serializeEmbedding(entity.Embedding), dimension,
	).Scan(&entity.ID, &entity.Generation)
	if err != nil {
		return types.StoreErr("postgres: upsert entity", err)
	}

	if s.pgvectorAvailable && len(entity.Embedding) > 0 {
		vecSQL := fmt.Sprintf(`UPDATE %s SET embedding_vec = $1 WHERE id = $2`, table)
		if _, err := tx.ExecContext(ctx, vecSQL, pgvector.NewVector(entity.Embedding), entity.ID); err != nil {
			return types.StoreErr("postgres: update embedding vector", err)
		}
	}

	if err := upsertCacheEntryTx(ctx, tx, storage.CacheEntry{
		Scope:      entity.Scope,
		Kind:       entity.Kind,
		Label:      entity.Label,
		EntityID:   entity.ID,
		Summary:    entity.Summary(),
		Edges:      entity.Edges,
		Generation: entity.Generation,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return types.StoreErr("postgres: commit upsert", err)
	}
	now := time.Now()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = now
	entity.DeletedAt = nil
	return nil
}

// DeleteEntity soft-deletes an entity and tombstones its cache entry in
// the same transaction.
func (s *Store) DeleteEntity(ctx context.Context, kind types.EntityKind, label string, scope types.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("postgres: unknown kind %q: %w", kind, types.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.StoreErr("postgres: begin delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleteSQL := fmt.Sprintf(`
		UPDATE %s
		SET deleted_at = CURRENT_TIMESTAMP, generation = generation + 1, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = $1 AND owner_id = $2 AND label = $3 AND deleted_at IS NULL
		RETURNING generation
	`, kind.Table())

	var generation int64
	err = tx.QueryRowContext(ctx, deleteSQL, scope.TenantID, scope.OwnerID, label).Scan(&generation)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("postgres: delete %s %q: %w", kind, label, types.ErrNotFound)
	}
	if err != nil {
		return types.StoreErr("postgres: delete entity", err)
	}

	if err := deleteCacheEntryTx(ctx, tx, kind, label, scope, generation); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return types.StoreErr("postgres: commit delete", err)
	}
	return nil
}

// GetEntity fetches one live entity by (kind, label) within scope.
// Shared rows are visible to every owner in the tenant.
func (s *Store) GetEntity(ctx context.Context, kind types.EntityKind, label string, scope types.Scope) (*types.Entity, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("postgres: unknown kind %q: %w", kind, types.ErrInvalidInput)
	}

	querySQL := fmt.Sprintf(`
		SELECT `+entitySelectColumns+`
		FROM %s
		WHERE tenant_id = $1 AND owner_id IN ($2, $3) AND label = $4 AND deleted_at IS NULL
		LIMIT 1
	`, kind.Table())

	rows, err := s.db.QueryContext(ctx, querySQL, scope.TenantID, scope.OwnerID, types.SharedOwner, label)
	if err != nil {
		return nil, types.StoreErr("postgres: get entity", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, types.StoreErr("postgres: get entity rows", err)
		}
		return nil, fmt.Errorf("postgres: %s %q: %w", kind, label, types.ErrNotFound)
	}
	return scanEntityRow(rows, kind)
}

// ResolveLabel resolves a destination label across the polymorphic
// entity kinds. The hinted kind is probed first; otherwise the label
// index disambiguates in one indexed query and kinds are probed in
// priority order as a fallback. Cost stays keyed — never a union scan.
func (s *Store) ResolveLabel(ctx context.Context, hint types.EntityKind, label string, scope types.Scope) (*types.Entity, error) {
	if hint.Valid() {
		e, err := s.GetEntity(ctx, hint, label, scope)
		if err == nil || !errors.Is(err, types.ErrNotFound) {
			return e, err
		}
		// A stale hint falls back to the full probe below.
	}

	hits, err := s.Lookup(ctx, []string{label}, scope)
	if err == nil && len(hits) == 1 && !hits[0].NotFound {
		return hits[0].Entity, nil
	}

	// Cache miss: probe kinds directly in priority order. Four keyed
	// queries at worst, still bounded.
	for _, kind := range types.AllKinds() {
		e, err := s.GetEntity(ctx, kind, label, scope)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("postgres: label %q: %w", label, types.ErrNotFound)
}
