package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Compile-time interface checks.
var _ storage.Backend = (*Store)(nil)

// Store implements every storage interface on an embedded SQLite
// database. A single open connection serialises writes and avoids
// SQLITE_BUSY under concurrent load; WAL mode lets readers proceed
// without blocking the writer.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dsn and applies the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for the SQL passthrough and for tests.
func (s *Store) DB() *sql.DB { return s.db }

// ExecRaw implements storage.SQLPassthrough.
func (s *Store) ExecRaw(ctx context.Context, stmt string, scope types.Scope, maxRows int) (*storage.RawRows, error) {
	return storage.ExecuteRaw(ctx, s.db, stmt, scope, maxRows)
}

const entitySelectColumns = `
	id, label, tenant_id, owner_id, content,
	metadata, edges, embedding, dimension,
	generation, created_at, updated_at, deleted_at
`

// scanEntityRow scans one entity row in entitySelectColumns order.
func scanEntityRow(rows *sql.Rows, kind types.EntityKind) (*types.Entity, error) {
	var e types.Entity
	var metadataJSON, edgesJSON sql.NullString
	var embedding []byte
	var dimension sql.NullInt64
	var deletedAt sql.NullTime

	err := rows.Scan(
		&e.ID,
		&e.Label,
		&e.Scope.TenantID,
		&e.Scope.OwnerID,
		&e.Content,
		&metadataJSON,
		&edgesJSON,
		&embedding,
		&dimension,
		&e.Generation,
		&e.CreatedAt,
		&e.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan entity row: %w", err)
	}

	e.Kind = kind
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal metadata: %w", err)
		}
	}
	if edgesJSON.Valid && edgesJSON.String != "" {
		if err := json.Unmarshal([]byte(edgesJSON.String), &e.Edges); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal edges: %w", err)
		}
	}
	if len(embedding) > 0 && dimension.Valid {
		vec, err := deserializeEmbedding(embedding, int(dimension.Int64))
		if err != nil {
			return nil, fmt.Errorf("sqlite: deserialize embedding: %w", err)
		}
		e.Embedding = vec
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}
	return &e, nil
}

// marshalJSON renders v as a JSON string for a TEXT column, mapping nil
// to SQL NULL.
func marshalJSON(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
