// Package postgres provides the PostgreSQL implementation of the
// storage interfaces. It is the primary backend: pg_trgm backs the
// fuzzy index and pgvector's ivfflat index backs vector search, so all
// complexity-class guarantees hold here.
package postgres

import (
	"fmt"

	"github.com/scrypster/recall/pkg/types"
)

// entityTableDDL is the per-kind entity table shape. One table per
// kind keeps the model polymorphic: traversal resolves labels across a
// union of these tables, scoped by ownership.
const entityTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    label TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',

    -- Schemaless metadata and the embedded outgoing edge list
    metadata JSONB,
    edges JSONB,

    -- Embedding stored as packed float32; a vector column is added by
    -- MigrationPgvector when the extension is available.
    embedding BYTEA,
    dimension INTEGER,

    -- Per-label version guarding cache-index write ordering
    generation BIGINT NOT NULL DEFAULT 1,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at TIMESTAMP,

    -- Labels are the only externally meaningful identifier
    UNIQUE(tenant_id, owner_id, label)
);

CREATE INDEX IF NOT EXISTS idx_%s_scope_label ON %s(tenant_id, owner_id, label);
CREATE INDEX IF NOT EXISTS idx_%s_deleted_at ON %s(deleted_at);
`

// labelIndexDDL is the denormalized cache index giving LOOKUP its O(1)
// guarantee. The generation column lets asynchronous rebuild writes be
// ordered per label: a delayed older write never clobbers a newer row.
const labelIndexDDL = `
CREATE TABLE IF NOT EXISTS label_index (
    tenant_id TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    label TEXT NOT NULL,

    entity_id TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    edges JSONB,

    generation BIGINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (tenant_id, owner_id, kind, label)
);

-- Kind-less lookups resolve by (scope, label) alone.
CREATE INDEX IF NOT EXISTS idx_label_index_scope_label ON label_index(tenant_id, owner_id, label);
`

// Schema returns the full DDL for every entity kind plus the label index.
func Schema() string {
	out := ""
	for _, kind := range types.AllKinds() {
		t := kind.Table()
		out += fmt.Sprintf(entityTableDDL, t, t, t, t, t)
	}
	return out + labelIndexDDL
}

// MigrationTrigram adds the pg_trgm extension and GIN trigram indexes
// over the label index, backing the fuzzy strategy. Safe to run
// repeatedly.
const MigrationTrigram = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE INDEX IF NOT EXISTS idx_label_index_label_trgm
    ON label_index USING GIN (label gin_trgm_ops);
CREATE INDEX IF NOT EXISTS idx_label_index_summary_trgm
    ON label_index USING GIN (summary gin_trgm_ops);
`

// migrationPgvectorTable adds the vector column and ivfflat cosine
// index to one entity table. The ivfflat index needs at least one row,
// so creation is guarded the same way the base schema migrations are.
const migrationPgvectorTable = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = '%s' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE %s ADD COLUMN embedding_vec vector;
    END IF;
END
$$;

DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_%s_vec_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM %s LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_%s_vec_cosine ON %s USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`

// MigrationPgvector returns the pgvector migration for every entity
// table. Only applied when the vector extension is available.
func MigrationPgvector() string {
	out := "CREATE EXTENSION IF NOT EXISTS vector;\n"
	for _, kind := range types.AllKinds() {
		t := kind.Table()
		out += fmt.Sprintf(migrationPgvectorTable, t, t, t, t, t, t)
	}
	return out
}
