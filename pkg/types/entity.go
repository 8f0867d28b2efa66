// Package types defines the shared data model for the Recall query engine:
// entities, edges, ownership scopes, query results, and the error taxonomy.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityKind identifies which typed table an entity lives in.
// The set of kinds is closed: graph traversal resolves labels by probing
// kinds in priority order, so adding a kind means extending AllKinds and
// the backing schema together.
type EntityKind string

const (
	// KindResources holds documents, notes, files and other artifacts.
	// It is the default kind for SEARCH queries.
	KindResources EntityKind = "resources"

	// KindPeople holds person entities (e.g. "sarah-chen").
	KindPeople EntityKind = "people"

	// KindEvents holds temporal events and episodes.
	KindEvents EntityKind = "events"

	// KindSchemas holds agent schemas and other structural definitions.
	KindSchemas EntityKind = "schemas"
)

// AllKinds returns every entity kind in resolution-priority order.
// When a label is resolved without a kind hint, kinds earlier in this
// slice win over later ones.
func AllKinds() []EntityKind {
	return []EntityKind{KindResources, KindPeople, KindEvents, KindSchemas}
}

// ParseKind converts a string into an EntityKind.
// Returns an error for unknown kinds so callers fail fast instead of
// querying a table that does not exist.
func ParseKind(s string) (EntityKind, error) {
	k := EntityKind(s)
	for _, known := range AllKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("types: unknown entity kind %q", s)
}

// Table returns the backing table name for the kind.
func (k EntityKind) Table() string {
	return "entity_" + string(k)
}

// Valid reports whether the kind is one of the closed set.
func (k EntityKind) Valid() bool {
	_, err := ParseKind(string(k))
	return err == nil
}

// SharedOwner is the owner marker for rows visible to every owner
// within a tenant. Scope predicates always admit it alongside the
// caller's own owner id.
const SharedOwner = "shared"

// Scope is the (tenant, owner) pair that bounds visibility of every
// read and write. It is mandatory on every call into the engine and is
// threaded explicitly — never ambient.
type Scope struct {
	// TenantID is the tenant namespace.
	TenantID string `json:"tenant_id"`

	// OwnerID is the owning user or agent within the tenant.
	OwnerID string `json:"owner_id"`
}

// Validate ensures both scope components are present.
// An empty scope never defaults to "all data".
func (s Scope) Validate() error {
	if s.TenantID == "" || s.OwnerID == "" {
		return fmt.Errorf("types: scope requires tenant_id and owner_id: %w", ErrScopeViolation)
	}
	return nil
}

// Entity is any retrievable object. Entities of different kinds live in
// different typed tables but share this wire shape.
//
// Label is the only externally meaningful identifier: query syntax and
// edges address entities by label, never by the opaque ID. Labels are
// unique per (kind, scope).
type Entity struct {
	// ID is the opaque stable identifier (uuid). Never surfaced in query syntax.
	ID string `json:"id"`

	// Label is the human-readable unique-within-scope key (e.g. "sarah-chen").
	Label string `json:"label"`

	// Kind is the entity's table/category.
	Kind EntityKind `json:"kind"`

	// Scope is the owning (tenant, owner) pair.
	Scope Scope `json:"scope"`

	// Content is the text used for fuzzy matching and summaries.
	Content string `json:"content,omitempty"`

	// Embedding is the fixed-length vector, nil until computed.
	// Entities without an embedding are excluded from vector search,
	// never treated as similarity zero.
	Embedding []float32 `json:"embedding,omitempty"`

	// Metadata is the schemaless key/value map, held as typed values.
	Metadata map[string]Value `json:"metadata,omitempty"`

	// Edges is the ordered list of outgoing edges. Storage is
	// outbound-only; inbound relationships are discovered by scanning
	// the reverse direction when requested.
	Edges []Edge `json:"edges,omitempty"`

	// Generation is the per-label version used to order cache-index
	// writes. Later writes carry strictly larger generations.
	Generation int64 `json:"generation,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"` // soft delete
}

// Summary returns the content truncated for cache-index storage.
func (e *Entity) Summary() string {
	const max = 280
	if len(e.Content) <= max {
		return e.Content
	}
	return e.Content[:max]
}

// Edge is a directed, weighted, typed relationship embedded on its
// source entity. The destination is addressed by label, optionally
// disambiguated by a kind hint when the same label could exist in more
// than one kind.
type Edge struct {
	// DstLabel is the target entity's label.
	DstLabel string `json:"dst_label"`

	// RelType is the relationship type (e.g. "authored_by").
	RelType string `json:"rel_type"`

	// Weight is the relationship strength (conventionally 0-1,
	// higher = stronger). Used for ranking and tie-breaks only; the
	// traversal engine never prunes edges by weight. An absent weight
	// decodes as 1 (neutral); an explicit 0 stays 0 and ranks last.
	Weight float64 `json:"weight"`

	// DstKindHint optionally names the kind the destination label
	// resolves against. Empty means "search kinds in priority order".
	DstKindHint EntityKind `json:"dst_kind_hint,omitempty"`

	// Properties is the schemaless edge property map.
	Properties map[string]Value `json:"properties,omitempty"`
}

// UnmarshalJSON decodes an edge, defaulting Weight to 1 when the field
// is absent. Edges written without a weight rank neutrally instead of
// sinking below every weighted edge.
func (e *Edge) UnmarshalJSON(data []byte) error {
	type plain Edge
	decoded := plain{Weight: 1}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*e = Edge(decoded)
	return nil
}
