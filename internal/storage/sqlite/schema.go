// Package sqlite provides the embedded single-file implementation of
// the storage interfaces. It trades the Postgres backend's indexed
// strategies for candidate-capped in-process ones: fuzzy matching runs
// a normalized edit-distance ranker over a capped candidate set, and
// vector search brute-forces cosine similarity over the most recently
// updated rows. Correctness semantics are identical to Postgres; only
// the complexity evidence differs.
package sqlite

import (
	"fmt"

	"github.com/scrypster/recall/pkg/types"
)

// entityTableDDL mirrors the Postgres entity table shape with SQLite
// column affinities. JSON lives in TEXT columns, embeddings in BLOBs.
const entityTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    label TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',

    metadata TEXT,
    edges TEXT,

    embedding BLOB,
    dimension INTEGER,

    generation INTEGER NOT NULL DEFAULT 1,

    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    deleted_at DATETIME,

    UNIQUE(tenant_id, owner_id, label)
);

CREATE INDEX IF NOT EXISTS idx_%s_scope_label ON %s(tenant_id, owner_id, label);
CREATE INDEX IF NOT EXISTS idx_%s_updated_at ON %s(updated_at);
`

const labelIndexDDL = `
CREATE TABLE IF NOT EXISTS label_index (
    tenant_id TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    label TEXT NOT NULL,

    entity_id TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    edges TEXT,

    generation INTEGER NOT NULL DEFAULT 1,
    updated_at DATETIME NOT NULL,

    PRIMARY KEY (tenant_id, owner_id, kind, label)
);

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
