package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

func edge(relType, dst string, weight float64) types.Edge {
	return types.Edge{RelType: relType, DstLabel: dst, Weight: weight}
}

func TestTraverseFindsAuthoredDocuments(t *testing.T) {
	f := newFakeBackend()
	mustUpsert(t, f, resource("doc-42", testScope))
	mustUpsert(t, f, resource("doc-99", testScope))
	mustUpsert(t, f, person("sarah-chen", testScope,
		edge("authored_by", "doc-42", 0.9),
		edge("authored_by", "doc-99", 0.4),
		edge("manages", "project-x", 1.0),
	))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE authored_by WITH LOOKUP "sarah-chen" DEPTH 1`, testScope)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, types.ComplexityBounded, res.Complexity)

	// Default ordering is weight descending.
	assert.Equal(t, "doc-42", res.Items[0].Label)
	assert.Equal(t, []string{"sarah-chen", "doc-42"}, res.Items[0].Path)
	assert.Equal(t, "doc-99", res.Items[1].Label)
}

func TestTraverseEdgeTypeFilter(t *testing.T) {
	f := newFakeBackend()
	mustUpsert(t, f, resource("doc-42", testScope))
	mustUpsert(t, f, resource("project-x", testScope))
	mustUpsert(t, f, person("sarah-chen", testScope,
		edge("authored_by", "doc-42", 1),
		edge("manages", "project-x", 1),
	))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE manages WITH LOOKUP "sarah-chen" DEPTH 1`, testScope)
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "project-x", res.Items[0].Label)
}

func TestTraverseAllEdgeTypesWhenUnfiltered(t *testing.T) {
	f := newFakeBackend()
	mustUpsert(t, f, resource("doc-42", testScope))
	mustUpsert(t, f, resource("project-x", testScope))
	mustUpsert(t, f, person("sarah-chen", testScope,
		edge("authored_by", "doc-42", 1),
		edge("manages", "project-x", 1),
	))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE WITH LOOKUP "sarah-chen" DEPTH 1`, testScope)
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
}

// A two-node cycle must terminate and never report a node twice, even
// with depth to spare.
func TestTraverseCycleTerminates(t *testing.T) {
	f := newFakeBackend()
	mustUpsert(t, f, person("a", testScope, edge("knows", "b", 1)))
	mustUpsert(t, f, person("b", testScope, edge("knows", "a", 1)))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE knows WITH LOOKUP "a" DEPTH 5`, testScope)
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "b", res.Items[0].Label)
	assert.Equal(t, []string{"a", "b"}, res.Items[0].Path)
}

func TestTraverseDiamondReportsNodeOnce(t *testing.T) {
	f := newFakeBackend()
	mustUpsert(t, f, person("root", testScope,
		edge("r", "left", 1), edge("r", "right", 1)))
	mustUpsert(t, f, person("left", testScope, edge("r", "sink", 1)))
	mustUpsert(t, f, person("right", testScope, edge("r", "sink", 1)))
	mustUpsert(t, f, person("sink", testScope))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE r WITH LOOKUP "root" DEPTH 3`, testScope)
	require.NoError(t, err)

	labels := make(map[string]int)
	for _, item := range res.Items {
		labels[item.Label]++
	}
	assert.Equal(t, 1, labels["sink"], "diamond join must be reported once")
	assert.Len(t, res.Items, 3)
}

func TestTraversePlanMode(t *testing.T) {
	f := newFakeBackend()
	mustUpsert(t, f, person("sarah-chen", testScope,
		edge("authored_by", "doc-42", 1),
		edge("manages", "project-x", 1),
		edge("authored_by", "doc-99", 1),
	))
	eng := newTestEngine(f, nil)

	before := f.resolveCalls
	res, err := eng.Execute(context.Background(),
		`TRAVERSE WITH LOOKUP "sarah-chen" DEPTH 0`, testScope)
	require.NoError(t, err)

	assert.Equal(t, []string{"authored_by", "manages"}, res.EdgeTypes)

	// The frontier itself is part of the plan: the seed comes back as a
	// depth-0 result alongside its edge-type set.
	require.Len(t, res.Items, 1)
	assert.Equal(t, "sarah-chen", res.Items[0].Label)
	assert.Equal(t, types.KindPeople, res.Items[0].Kind)
	assert.Equal(t, []string{"sarah-chen"}, res.Items[0].Path)
	assert.Equal(t, before, f.resolveCalls, "plan mode must not expand the graph")
}

func TestTraverseDepthTwo(t *testing.T) {
	f := newFakeBackend()
	mustUpsert(t, f, person("a", testScope, edge("x", "b", 1)))
	mustUpsert(t, f, person("b", testScope, edge("x", "c", 1)))
	mustUpsert(t, f, person("c", testScope, edge("x", "d", 1)))
	mustUpsert(t, f, person("d", testScope))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE x WITH LOOKUP "a" DEPTH 2 ORDER BY label ASC`, testScope)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "b", res.Items[0].Label)
	assert.Equal(t, "c", res.Items[1].Label)
	assert.Equal(t, []string{"a", "b", "c"}, res.Items[1].Path)
}

func TestTraverseDanglingEdgeSkipped(t *testing.T) {
	f := newFakeBackend()
	mustUpsert(t, f, person("a", testScope,
		edge("x", "gone", 1), edge("x", "b", 1)))
	mustUpsert(t, f, person("b", testScope))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE x WITH LOOKUP "a" DEPTH 1`, testScope)
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "b", res.Items[0].Label)
}

func TestTraverseCannotEscapeScope(t *testing.T) {
	f := newFakeBackend()
	otherOwner := types.Scope{TenantID: "t1", OwnerID: "mallory"}
	mustUpsert(t, f, person("secret", otherOwner))
	mustUpsert(t, f, person("a", testScope, edge("x", "secret", 1)))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE x WITH LOOKUP "a" DEPTH 1`, testScope)
	require.NoError(t, err)
	assert.Empty(t, res.Items, "an out-of-scope destination is indistinguishable from a missing one")
}

func TestTraverseLimitBindsResultsNotExpansion(t *testing.T) {
	f := newFakeBackend()
	edges := make([]types.Edge, 0, 6)
	for _, dst := range []string{"n1", "n2", "n3", "n4", "n5", "n6"} {
		edges = append(edges, edge("x", dst, 1))
		mustUpsert(t, f, person(dst, testScope))
	}
	mustUpsert(t, f, person("root", testScope, edges...))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE x WITH LOOKUP "root" DEPTH 1 ORDER BY label ASC LIMIT 2`, testScope)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "n1", res.Items[0].Label)
	assert.Equal(t, "n2", res.Items[1].Label)
}

// An explicit zero weight is a real ranking signal, not an unset field:
// it must sort below every positive weight under the default order.
func TestTraverseZeroWeightEdgeRanksLast(t *testing.T) {
	f := newFakeBackend()
	mustUpsert(t, f, person("strong", testScope))
	mustUpsert(t, f, person("weak", testScope))
	mustUpsert(t, f, person("root", testScope,
		edge("x", "weak", 0),
		edge("x", "strong", 0.3),
	))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE x WITH LOOKUP "root" DEPTH 1`, testScope)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "strong", res.Items[0].Label)
	assert.Equal(t, "weak", res.Items[1].Label)
}

func TestTraverseOrderByRecency(t *testing.T) {
	f := newFakeBackend()
	mustUpsert(t, f, person("old", testScope))
	mustUpsert(t, f, person("new", testScope))
	mustUpsert(t, f, person("root", testScope,
		edge("x", "old", 1), edge("x", "new", 1)))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE x WITH LOOKUP "root" DEPTH 1 ORDER BY recency DESC`, testScope)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "new", res.Items[0].Label)
}

func TestTraverseUnknownOrderField(t *testing.T) {
	f := newFakeBackend()
	mustUpsert(t, f, person("a", testScope))
	eng := newTestEngine(f, nil)

	_, err := eng.Execute(context.Background(),
		`TRAVERSE WITH LOOKUP "a" ORDER BY karma`, testScope)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestTraverseBoundsTruncateGracefully(t *testing.T) {
	f := newFakeBackend()
	edges := make([]types.Edge, 0, 10)
	for _, dst := range []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9", "m10"} {
		edges = append(edges, edge("x", dst, 1))
		mustUpsert(t, f, person(dst, testScope))
	}
	mustUpsert(t, f, person("root", testScope, edges...))

	eng := New(f, &fakeEmbedder{dim: 3}, Config{
		Bounds: storage.TraverseBounds{MaxNodes: 3, MaxEdges: 3, MaxEdgesPerNode: 32},
	})

	res, err := eng.Execute(context.Background(),
		`TRAVERSE x WITH LOOKUP "root" DEPTH 1 LIMIT 100`, testScope)
	require.NoError(t, err, "hitting a bound truncates, it does not fail")
	assert.Len(t, res.Items, 3)
}

func TestTraverseSeedCanBeFuzzy(t *testing.T) {
	f := newFakeBackend()
	mustUpsert(t, f, resource("doc-42", testScope))
	mustUpsert(t, f, person("sarah-chen", testScope, edge("authored_by", "doc-42", 1)))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE authored_by WITH FUZZY "sarah" DEPTH 1`, testScope)
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "doc-42", res.Items[0].Label)
}

func TestTraverseKindHintResolution(t *testing.T) {
	f := newFakeBackend()
	// Same label in two kinds; the hint must win over priority order.
	mustUpsert(t, f, resource("apollo", testScope))
	mustUpsert(t, f, &types.Entity{Label: "apollo", Kind: types.KindEvents, Scope: testScope})
	mustUpsert(t, f, person("root", testScope, types.Edge{
		RelType: "about", DstLabel: "apollo", Weight: 1, DstKindHint: types.KindEvents,
	}))
	eng := newTestEngine(f, nil)

	res, err := eng.Execute(context.Background(),
		`TRAVERSE about WITH LOOKUP "root" DEPTH 1`, testScope)
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, types.KindEvents, res.Items[0].Kind)
}
