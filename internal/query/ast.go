// Package query implements the Recall query dialect: a tokenizer and
// parser that turn a query string into exactly one typed descriptor.
// Parsing is pure and side-effect-free; descriptors live for a single
// request and are never persisted.
package query

import "github.com/scrypster/recall/pkg/types"

// Defaults applied when a modifier is omitted.
const (
	// DefaultThreshold is the FUZZY similarity cutoff.
	DefaultThreshold = 0.5

	// DefaultFuzzyLimit caps FUZZY results.
	DefaultFuzzyLimit = 5

	// DefaultSearchLimit caps SEARCH results.
	DefaultSearchLimit = 10

	// DefaultTraverseDepth is the TRAVERSE expansion depth.
	DefaultTraverseDepth = 1

	// DefaultTraverseLimit caps TRAVERSE results.
	DefaultTraverseLimit = 9
)

// DefaultSearchKind is the entity kind SEARCH targets when FROM is omitted.
const DefaultSearchKind = types.KindResources

// Query is the closed set of query descriptors. Exactly one concrete
// type is produced per parse.
type Query interface {
	queryNode()
}

// Lookup is an exact-key query against the label index: O(1) per key.
type Lookup struct {
	// Keys is the ordered list of labels to resolve. Result order
	// mirrors key order; missing keys are reported individually.
	Keys []string
}

// Fuzzy is an approximate string match over labels and summaries.
type Fuzzy struct {
	Text      string
	Threshold float64 // similarity cutoff in [0,1]
	Limit     int
}

// Search is a vector-similarity query over one entity kind, optionally
// combined with a structured predicate (hybrid retrieval).
type Search struct {
	Text      string
	Kind      types.EntityKind
	Predicate string // raw predicate text, parsed by the storage layer; "" = none
	Limit     int
}

// Traverse is a depth-bounded graph walk rooted at the result of a
// nested seed query.
type Traverse struct {
	// EdgeTypes restricts expansion to edges whose rel_type is a
	// member of this set. Nil/empty means all edge types.
	EdgeTypes []string

	// Seed produces the frontier at depth 0. Restricted to the four
	// structured descriptors (raw SQL cannot seed a traversal).
	Seed Query

	// Depth is the maximum expansion depth. 0 = plan mode.
	Depth int

	// OrderBy is the raw ordering expression (e.g. "weight desc").
	// Empty means the default: weight descending, then discovery order.
	OrderBy string

	// Limit bounds the result size, not the frontier expansion.
	Limit int
}

// SQL is the raw relational escape hatch. Any query string not
// starting with LOOKUP/FUZZY/SEARCH/TRAVERSE parses as SQL verbatim.
type SQL struct {
	Raw string
}

func (*Lookup) queryNode()   {}
func (*Fuzzy) queryNode()    {}
func (*Search) queryNode()   {}
func (*Traverse) queryNode() {}
func (*SQL) queryNode()      {}
