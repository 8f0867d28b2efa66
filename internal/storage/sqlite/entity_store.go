package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// UpsertEntity creates or updates an entity row and refreshes its
// label-index entry inside the same transaction. SQLite has no usable
// RETURNING path here, so the prior generation is read first; the
// single-connection store makes that read-modify-write race-free.
func (s *Store) UpsertEntity(ctx context.Context, entity *types.Entity) error {
	if err := entity.Scope.Validate(); err != nil {
		return err
	}
	if entity.Label == "" || !entity.Kind.Valid() {
		return fmt.Errorf("sqlite: entity requires label and kind: %w", types.ErrInvalidInput)
	}

	metadataJSON, err := marshalJSON(entity.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: marshal metadata: %w", err)
	}
	edgesJSON, err := marshalJSON(entity.Edges)
	if err != nil {
		return fmt.Errorf("sqlite: marshal edges: %w", err)
	}
	var dimension sql.NullInt64
	if len(entity.Embedding) > 0 {
		dimension = sql.NullInt64{Int64: int64(len(entity.Embedding)), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.StoreErr("sqlite: begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	table := entity.Kind.Table()

	// Prior row, if any: keep its id and advance its generation even
	// when it was soft-deleted (upsert resurrects).
	var priorID string
	var priorGen int64
	selectSQL := fmt.Sprintf(
		`SELECT id, generation FROM %s WHERE tenant_id = ? AND owner_id = ? AND label = ?`, table)
	err = tx.QueryRowContext(ctx, selectSQL,
		entity.Scope.TenantID, entity.Scope.OwnerID, entity.Label).Scan(&priorID, &priorGen)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		entity.Generation = 1
	case err != nil:
		return types.StoreErr("sqlite: read prior generation", err)
	default:
		entity.ID = priorID
		entity.Generation = priorGen + 1
	}
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	upsertSQL := fmt.Sprintf(`
		INSERT INTO %s (id, label, tenant_id, owner_id, content, metadata, edges, embedding, dimension, generation, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(tenant_id, owner_id, label) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			edges = excluded.edges,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			generation = excluded.generation,
			updated_at = excluded.updated_at,
			deleted_at = NULL
	`, table)
	_, err = tx.ExecContext(ctx, upsertSQL,
		entity.ID, entity.Label, entity.Scope.TenantID, entity.Scope.OwnerID,
		entity.Content, metadataJSON, edgesJSON,
		serializeEmbedding(entity.Embedding), dimension,
		entity.Generation, now, now,
	)
	if err != nil {
		return types.StoreErr("sqlite: upsert entity", err)
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
		return types.StoreErr("sqlite: commit upsert", err)
	}
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
		return fmt.Errorf("sqlite: unknown kind %q: %w", kind, types.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.StoreErr("sqlite: begin delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	table := kind.Table()
	var generation int64
	selectSQL := fmt.Sprintf(
		`SELECT generation FROM %s WHERE tenant_id = ? AND owner_id = ? AND label = ? AND deleted_at IS NULL`, table)
	err = tx.QueryRowContext(ctx, selectSQL, scope.TenantID, scope.OwnerID, label).Scan(&generation)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: delete %s %q: %w", kind, label, types.ErrNotFound)
	}
	if err != nil {
		return types.StoreErr("sqlite: read generation for delete", err)
	}
	generation++

	now := time.Now().UTC()
	deleteSQL := fmt.Sprintf(`
		UPDATE %s SET deleted_at = ?, generation = ?, updated_at = ?
		WHERE tenant_id = ? AND owner_id = ? AND label = ?
	`, table)
	if _, err := tx.ExecContext(ctx, deleteSQL, now, generation, now,
		scope.TenantID, scope.OwnerID, label); err != nil {
		return types.StoreErr("sqlite: delete entity", err)
	}

	if err := deleteCacheEntryTx(ctx, tx, kind, label, scope, generation); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return types.StoreErr("sqlite: commit delete", err)
	}
	return nil
}

// GetEntity fetches one live entity by (kind, label) within scope.
func (s *Store) GetEntity(ctx context.Context, kind types.EntityKind, label string, scope types.Scope) (*types.Entity, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("sqlite: unknown kind %q: %w", kind, types.ErrInvalidInput)
	}

	querySQL := fmt.Sprintf(`
		SELECT `+entitySelectColumns+`
		FROM %s
		WHERE tenant_id = ? AND owner_id IN (?, ?) AND label = ? AND deleted_at IS NULL
		LIMIT 1
	`, kind.Table())

	rows, err := s.db.QueryContext(ctx, querySQL, scope.TenantID, scope.OwnerID, types.SharedOwner, label)
	if err != nil {
		return nil, types.StoreErr("sqlite: get entity", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, types.StoreErr("sqlite: get entity rows", err)
		}
		return nil, fmt.Errorf("sqlite: %s %q: %w", kind, label, types.ErrNotFound)
	}
	return scanEntityRow(rows, kind)
}

// ResolveLabel resolves a destination label across the polymorphic
// entity kinds, hinted kind first, then the label index, then a
// priority-order probe. Cost stays keyed.
func (s *Store) ResolveLabel(ctx context.Context, hint types.EntityKind, label string, scope types.Scope) (*types.Entity, error) {
	if hint.Valid() {
		e, err := s.GetEntity(ctx, hint, label, scope)
		if err == nil || !errors.Is(err, types.ErrNotFound) {
			return e, err
		}
	}

	hits, err := s.Lookup(ctx, []string{label}, scope)
	if err == nil && len(hits) == 1 && !hits[0].NotFound {
		return hits[0].Entity, nil
	}

	for _, kind := range types.AllKinds() {
		e, err := s.GetEntity(ctx, kind, label, scope)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("sqlite: label %q: %w", label, types.ErrNotFound)
}
