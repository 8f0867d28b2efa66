package types

import "time"

// Complexity is the algorithmic complexity class the dispatcher
// guarantees for a query. It is attached to every response so callers
// and tests can assert the contract (e.g. against Stats.RowsScanned)
// rather than trusting documentation.
type Complexity string

const (
	// ComplexityConstant: one indexed hit per key (LOOKUP).
	ComplexityConstant Complexity = "O(1)"

	// ComplexityIndexed: sub-linear via an index structure, no tighter
	// asymptotic guarantee (FUZZY).
	ComplexityIndexed Complexity = "indexed"

	// ComplexityLogarithmic: approximate-nearest-neighbor index scan
	// (SEARCH).
	ComplexityLogarithmic Complexity = "O(log n)"

	// ComplexityBounded: cost capped by depth × branching-factor
	// limits (TRAVERSE).
	ComplexityBounded Complexity = "bounded"

	// ComplexityUnbounded: raw relational passthrough; only the row
	// cap and timeout bound it (SQL).
	ComplexityUnbounded Complexity = "unbounded"
)

// Result is one entry of an ordered result set.
type Result struct {
	// Label is the entity's label (set for all non-raw results).
	Label string `json:"label"`

	// Kind is the entity's kind.
	Kind EntityKind `json:"kind,omitempty"`

	// Score is the similarity score. Present for FUZZY and SEARCH,
	// absent otherwise.
	Score *float64 `json:"score,omitempty"`

	// Path is the label path from the traversal seed to this entity.
	// Present for TRAVERSE, absent otherwise.
	Path []string `json:"path,omitempty"`

	// Entity is the resolved entity. Nil for NotFound markers.
	Entity *Entity `json:"entity,omitempty"`

	// NotFound marks a lookup key that did not resolve. A LOOKUP for N
	// keys where one is absent returns N-1 entities plus one marker —
	// never a total failure.
	NotFound bool `json:"not_found,omitempty"`
}

// QueryStats carries per-query execution counters.
type QueryStats struct {
	// RowsScanned is the number of rows the backing store examined.
	// Tests assert complexity contracts against this.
	RowsScanned int `json:"rows_scanned"`

	// Elapsed is the wall-clock execution time.
	Elapsed time.Duration `json:"elapsed"`
}

// QueryResult is the engine's response shape.
type QueryResult struct {
	// Items is the ordered result set. Empty (not nil) when nothing matched.
	Items []Result `json:"items"`

	// EdgeTypes is the distinct set of outgoing edge types observed on
	// the seed entities. Populated only in traversal plan mode (DEPTH 0).
	EdgeTypes []string `json:"edge_types,omitempty"`

	// Columns and Rows carry raw relational output for SQL passthrough.
	Columns []string                 `json:"columns,omitempty"`
	Rows    []map[string]interface{} `json:"rows,omitempty"`

	// RowsAffected reports mutated rows for raw write statements.
	RowsAffected int64 `json:"rows_affected,omitempty"`

	// Complexity is the guaranteed complexity class for this query.
	Complexity Complexity `json:"complexity"`

	// Stats carries execution counters.
	Stats QueryStats `json:"stats"`
}
