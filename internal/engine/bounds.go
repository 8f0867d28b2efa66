package engine

import (
	"context"
	"sync"
	"time"

	"github.com/scrypster/recall/internal/storage"
)

// boundsChecker tracks traversal cost against its limits. Hitting a
// limit is not an error at this layer: the traversal truncates
// gracefully and returns what it has. Safe for concurrent use by the
// per-depth expansion workers.
type boundsChecker struct {
	bounds storage.TraverseBounds
	start  time.Time

	mu    sync.Mutex
	nodes int
	edges int
}

func newBoundsChecker(bounds storage.TraverseBounds) *boundsChecker {
	bounds.Normalize()
	return &boundsChecker{bounds: bounds, start: time.Now()}
}

// visitNode claims budget for resolving one node. Returns false when
// the node budget, the deadline or the context is exhausted.
func (b *boundsChecker) visitNode(ctx context.Context) bool {
	if !b.alive(ctx) {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nodes >= b.bounds.MaxNodes {
		return false
	}
	b.nodes++
	return true
}

// visitEdge claims budget for examining one edge.
func (b *boundsChecker) visitEdge(ctx context.Context) bool {
	if !b.alive(ctx) {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.edges >= b.bounds.MaxEdges {
		return false
	}
	b.edges++
	return true
}

func (b *boundsChecker) alive(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	return time.Since(b.start) < b.bounds.Timeout
}

// nodesVisited reports how many nodes were resolved.
func (b *boundsChecker) nodesVisited() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nodes
}
