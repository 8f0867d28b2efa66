package storage

import (
	"time"

	"github.com/scrypster/recall/pkg/types"
)

// ScanStats counts the rows a query examined, so the dispatcher can
// attach complexity evidence to the response.
type ScanStats struct {
	RowsScanned int
}

// Add accumulates counts from another stats value (nil-safe).
func (s *ScanStats) Add(o *ScanStats) {
	if s == nil || o == nil {
		return
	}
	s.RowsScanned += o.RowsScanned
}

// FuzzyOptions configures approximate string search.
type FuzzyOptions struct {
	// Text is the match target.
	Text string

	// Threshold is the minimum normalized similarity in [0,1].
	// 1.0 admits only exact matches; 0.0 ranks without filtering.
	Threshold float64

	// Limit caps the ranked result size.
	Limit int
}

// Normalize applies defaults and clamps out-of-range values.
func (o *FuzzyOptions) Normalize() {
	if o.Threshold < 0 {
		o.Threshold = 0
	}
	if o.Threshold > 1 {
		o.Threshold = 1
	}
	if o.Limit < 1 {
		o.Limit = 5
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
}

// VectorOptions configures similarity search over one entity kind.
type VectorOptions struct {
	// Kind selects the typed table to search.
	Kind types.EntityKind

	// Predicate optionally restricts candidates before/with ranking.
	Predicate *Predicate

	// Limit caps the ranked result size.
	Limit int
}

// Normalize applies defaults and clamps out-of-range values.
func (o *VectorOptions) Normalize() {
	if !o.Kind.Valid() {
		o.Kind = types.KindResources
	}
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
}

// TraverseBounds prevents combinatorial explosion during graph
// traversal. The dominant cost driver is polymorphic label resolution
// (a union of all entity kinds per unhinted edge), so expansion is
// bounded by depth × branching factor, never left unbounded.
type TraverseBounds struct {
	// MaxNodes caps the total entities resolved during expansion.
	MaxNodes int

	// MaxEdges caps the total edges examined.
	MaxEdges int

	// MaxEdgesPerNode caps fan-out from a single frontier entity.
	MaxEdgesPerNode int

	// Timeout caps traversal wall-clock time.
	Timeout time.Duration
}

// Normalize applies defaults and caps.
func (b *TraverseBounds) Normalize() {
	if b.MaxNodes < 1 {
		b.MaxNodes = 200
	}
	if b.MaxNodes > 2000 {
		b.MaxNodes = 2000
	}
	if b.MaxEdges < 1 {
		b.MaxEdges = 1000
	}
	if b.MaxEdges > 10000 {
		b.MaxEdges = 10000
	}
	if b.MaxEdgesPerNode < 1 {
		b.MaxEdgesPerNode = 32
	}
	if b.Timeout == 0 {
		b.Timeout = 10 * time.Second
	}
	if b.Timeout > time.Minute {
		b.Timeout = time.Minute
	}
}
