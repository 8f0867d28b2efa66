package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/scrypster/recall/internal/query"
	"github.com/scrypster/recall/pkg/types"
)

// node is one discovered entity during traversal.
type node struct {
	entity *types.Entity

	// path is the label sequence from the seed to this entity,
	// inclusive on both ends.
	path []string

	// weight is the product of edge weights along path. It only ranks
	// results; it never prunes expansion.
	weight float64
}

// execTraverse runs a depth-bounded breadth-first expansion rooted at
// the seed query's results. Expansion is parallel per depth level with
// a deterministic merge, cycle-safe per path, and truncates gracefully
// when a bound is hit.
func (e *Engine) execTraverse(ctx context.Context, q *query.Traverse, scope types.Scope) (*types.QueryResult, error) {
	if _, ok := q.Seed.(*query.SQL); ok {
		return nil, fmt.Errorf("engine: raw SQL cannot seed a traversal: %w", types.ErrInvalidInput)
	}

	seedResult, err := e.execute(ctx, q.Seed, scope)
	if err != nil {
		return nil, fmt.Errorf("engine: traversal seed: %w", err)
	}

	seeds := make([]node, 0, len(seedResult.Items))
	for _, item := range seedResult.Items {
		if item.Entity == nil {
			continue
		}
		seeds = append(seeds, node{
			entity: item.Entity,
			path:   []string{item.Entity.Label},
			weight: 1,
		})
	}

	if q.Depth == 0 {
		return planResult(seeds, seedResult.Stats.RowsScanned), nil
	}

	orderField, orderDesc, err := parseOrder(q.OrderBy)
	if err != nil {
		return nil, err
	}

	checker := newBoundsChecker(e.cfg.Bounds)
	edgeFilter := newEdgeFilter(q.EdgeTypes)

	// visited dedups expansion globally so a diamond-shaped graph costs
	// one resolution per entity. Cycle safety is per path, not global:
	// a path never revisits its own labels.
	visited := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		visited[nodeKey(s.entity)] = true
	}

	var found []node
	frontier := seeds
	for depth := 1; depth <= q.Depth && len(frontier) > 0; depth++ {
		batches := make([][]node, len(frontier))
		errs := make([]error, len(frontier))

		var wg sync.WaitGroup
		for i, n := range frontier {
			wg.Add(1)
			go func(i int, n node) {
				defer wg.Done()
				batches[i], errs[i] = e.expandNode(ctx, n, edgeFilter, checker, scope)
			}(i, n)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}

		// Merge in frontier order so discovery order is deterministic
		// regardless of goroutine scheduling.
		var next []node
		for _, batch := range batches {
			for _, cand := range batch {
				key := nodeKey(cand.entity)
				if visited[key] {
					continue
				}
				visited[key] = true
				found = append(found, cand)
				next = append(next, cand)
			}
		}
		frontier = next
	}

	sortNodes(found, orderField, orderDesc)

	limit := q.Limit
	if limit < 1 {
		limit = query.DefaultTraverseLimit
	}
	if len(found) > limit {
		found = found[:limit]
	}

	items := make([]types.Result, 0, len(found))
	for _, n := range found {
		items = append(items, types.Result{
			Label:  n.entity.Label,
			Kind:   n.entity.Kind,
			Path:   n.path,
			Entity: n.entity,
		})
	}
	return &types.QueryResult{
		Items:      items,
		Complexity: types.ComplexityBounded,
		Stats:      types.QueryStats{RowsScanned: seedResult.Stats.RowsScanned + checker.nodesVisited()},
	}, nil
}

// expandNode resolves the admissible edges of one frontier node.
// Returns the discovered children; bound exhaustion truncates rather
// than erroring.
func (e *Engine) expandNode(ctx context.Context, n node, admit func(string) bool, checker *boundsChecker, scope types.Scope) ([]node, error) {
	var children []node
	examined := 0
	for _, edge := range n.entity.Edges {
		if examined >= e.cfg.Bounds.MaxEdgesPerNode {
			break
		}
		if !admit(edge.RelType) {
			continue
		}
		if pathContains(n.path, edge.DstLabel) {
			continue
		}
		if !checker.visitEdge(ctx) {
			break
		}
		examined++

		if !checker.visitNode(ctx) {
			break
		}
		dst, err := e.store.ResolveLabel(ctx, edge.DstKindHint, edge.DstLabel, scope)
		if errors.Is(err, types.ErrNotFound) {
			// Dangling edge, or a destination outside the caller's
			// scope. Either way it does not exist for this traversal.
			continue
		}
		if err != nil {
			return nil, err
		}

		path := make([]string, len(n.path), len(n.path)+1)
		copy(path, n.path)
		children = append(children, node{
			entity: dst,
			path:   append(path, dst.Label),
			weight: n.weight * edge.Weight,
		})
	}
	return children, nil
}

// planResult is traversal plan mode (DEPTH 0): instead of expanding, it
// returns the seed entities themselves plus the distinct outgoing edge
// types observed on them, so a caller can decide what to traverse.
func planResult(seeds []node, seedScanned int) *types.QueryResult {
	seen := make(map[string]bool)
	var edgeTypes []string
	items := make([]types.Result, 0, len(seeds))
	for _, s := range seeds {
		items = append(items, types.Result{
			Label:  s.entity.Label,
			Kind:   s.entity.Kind,
			Path:   s.path,
			Entity: s.entity,
		})
		for _, edge := range s.entity.Edges {
			if !seen[edge.RelType] {
				seen[edge.RelType] = true
				edgeTypes = append(edgeTypes, edge.RelType)
			}
		}
	}
	sort.Strings(edgeTypes)

	return &types.QueryResult{
		Items:      items,
		EdgeTypes:  edgeTypes,
		Complexity: types.ComplexityBounded,
		Stats:      types.QueryStats{RowsScanned: seedScanned},
	}
}

func newEdgeFilter(edgeTypes []string) func(string) bool {
	if len(edgeTypes) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]bool, len(edgeTypes))
	for _, t := range edgeTypes {
		set[t] = true
	}
	return func(relType string) bool { return set[relType] }
}

func nodeKey(e *types.Entity) string {
	return string(e.Kind) + "|" + e.Label
}

func pathContains(path []string, label string) bool {
	for _, p := range path {
		if p == label {
			return true
		}
	}
	return false
}

// parseOrder interprets a TRAVERSE ordering expression. Supported
// fields: weight (path weight product), label, recency (updated_at).
// Direction defaults per field: weight and recency descend, label
// ascends.
func parseOrder(expr string) (field string, desc bool, err error) {
	parts := strings.Fields(strings.ToLower(expr))
	if len(parts) == 0 {
		return "weight", true, nil
	}

	field = parts[0]
	switch field {
	case "weight", "recency":
		desc = true
	case "label":
		desc = false
	default:
		return "", false, fmt.Errorf("engine: unknown order field %q: %w", field, types.ErrInvalidInput)
	}

	if len(parts) > 1 {
		switch parts[1] {
		case "asc":
			desc = false
		case "desc":
			desc = true
		default:
			return "", false, fmt.Errorf("engine: unknown order direction %q: %w", parts[1], types.ErrInvalidInput)
		}
	}
	if len(parts) > 2 {
		return "", false, fmt.Errorf("engine: trailing order tokens after %q: %w", parts[1], types.ErrInvalidInput)
	}
	return field, desc, nil
}

// sortNodes orders results, keeping discovery order for ties (the sort
// is stable and found is in discovery order).
func sortNodes(found []node, field string, desc bool) {
	less := func(i, j int) bool { return false }
	switch field {
	case "weight":
		less = func(i, j int) bool { return found[i].weight < found[j].weight }
	case "label":
		less = func(i, j int) bool { return found[i].entity.Label < found[j].entity.Label }
	case "recency":
		less = func(i, j int) bool { return found[i].entity.UpdatedAt.Before(found[j].entity.UpdatedAt) }
	}
	if desc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(found, less)
}
