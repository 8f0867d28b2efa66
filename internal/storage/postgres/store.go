package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Compile-time interface checks.
var _ storage.Backend = (*Store)(nil)

// Store implements every storage interface on a PostgreSQL database.
// All methods are stateless with respect to the process: concurrency
// control is delegated to PostgreSQL's transaction isolation.
type Store struct {
	db *sql.DB

	// pgvectorAvailable records whether the vector extension loaded;
	// without it vector search fails with a clear error instead of
	// silently degrading to an unindexed scan.
	pgvectorAvailable bool

	// trgmAvailable records whether pg_trgm loaded.
	trgmAvailable bool
}

// New opens a connection pool, creates the schema and applies the
// extension migrations. Extension failures are non-fatal: the store
// works without them, with the corresponding strategy disabled.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection without running migrations.
// Used by tests that drive the store through a mock driver.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, pgvectorAvailable: true, trgmAvailable: true}
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema()); err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, MigrationTrigram); err == nil {
		s.trgmAvailable = true
	}
	if _, err := s.db.ExecContext(ctx, MigrationPgvector()); err == nil {
		s.pgvectorAvailable = true
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for the SQL passthrough and for tests.
func (s *Store) DB() *sql.DB { return s.db }

// ExecRaw implements storage.SQLPassthrough.
func (s *Store) ExecRaw(ctx context.Context, stmt string, scope types.Scope, maxRows int) (*storage.RawRows, error) {
	return storage.ExecuteRaw(ctx, s.db, stmt, scope, maxRows)
}

// entitySelectColumns is the canonical SELECT list for entity tables.
// It must match the scan order in scanEntityRow.
const entitySelectColumns = `
	id, label, tenant_id, owner_id, content,
	metadata, edges, embedding, dimension,
	generation, created_at, updated_at, deleted_at
`

// scanEntityRow scans one entity row. The column order must match
// entitySelectColumns.
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
		return nil, fmt.Errorf("postgres: scan entity row: %w", err)
	}

	e.Kind = kind
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal metadata: %w", err)
		}
	}
	if edgesJSON.Valid && edgesJSON.String != "" {
		if err := json.Unmarshal([]byte(edgesJSON.String), &e.Edges); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal edges: %w", err)
		}
	}
	if len(embedding) > 0 && dimension.Valid {
		vec, err := deserializeEmbedding(embedding, int(dimension.Int64))
		if err != nil {
			return nil, fmt.Errorf("postgres: deserialize embedding: %w", err)
		}
		e.Embedding = vec
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}
	return &e, nil
}

// scanScoredEntityRow scans an entity row that carries a trailing
// score column, as produced by the similarity queries.
func scanScoredEntityRow(rows *sql.Rows, kind types.EntityKind) (*types.Entity, float64, error) {
	var e types.Entity
	var metadataJSON, edgesJSON sql.NullString
	var embedding []byte
	var dimension sql.NullInt64
	var deletedAt sql.NullTime
	var score float64

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
		&score,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: scan scored entity row: %w", err)
	}

	e.Kind = kind
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
			return nil, 0, fmt.Errorf("postgres: unmarshal metadata: %w", err)
		}
	}
	if edgesJSON.Valid && edgesJSON.String != "" {
		if err := json.Unmarshal([]byte(edgesJSON.String), &e.Edges); err != nil {
			return nil, 0, fmt.Errorf("postgres: unmarshal edges: %w", err)
		}
	}
	if len(embedding) > 0 && dimension.Valid {
		vec, err := deserializeEmbedding(embedding, int(dimension.Int64))
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: deserialize embedding: %w", err)
		}
		e.Embedding = vec
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}
	return &e, score, nil
}

// serializeEmbedding packs a float32 vector as little-endian bytes.
func serializeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding unpacks little-endian bytes into a float32 vector.
func deserializeEmbedding(buf []byte, dim int) ([]float32, error) {
	if len(buf) != 4*dim {
		return nil, fmt.Errorf("embedding blob is %d bytes, expected %d for dimension %d", len(buf), 4*dim, dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// marshalJSON renders v as a JSON string for a JSONB column, mapping
// nil to SQL NULL.
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
