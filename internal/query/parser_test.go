package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/pkg/types"
)

func TestParseLookupSingle(t *testing.T) {
	q, err := Parse(`LOOKUP "sarah-chen"`)
	require.NoError(t, err)

	lookup, ok := q.(*Lookup)
	require.True(t, ok)
	assert.Equal(t, []string{"sarah-chen"}, lookup.Keys)
}

func TestParseLookupBareWord(t *testing.T) {
	q, err := Parse(`lookup sarah-chen`)
	require.NoError(t, err)

	lookup, ok := q.(*Lookup)
	require.True(t, ok)
	assert.Equal(t, []string{"sarah-chen"}, lookup.Keys)
}

func TestParseLookupList(t *testing.T) {
	q, err := Parse(`LOOKUP ["a", "b", "c"]`)
	require.NoError(t, err)

	lookup, ok := q.(*Lookup)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, lookup.Keys)
}

func TestParseLookupEmptyListFails(t *testing.T) {
	_, err := Parse(`LOOKUP []`)
	require.Error(t, err)

	var perr *types.ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestParseFuzzyDefaults(t *testing.T) {
	q, err := Parse(`FUZZY "sara chen"`)
	require.NoError(t, err)

	fz, ok := q.(*Fuzzy)
	require.True(t, ok)
	assert.Equal(t, "sara chen", fz.Text)
	assert.Equal(t, DefaultThreshold, fz.Threshold)
	assert.Equal(t, DefaultFuzzyLimit, fz.Limit)
}

func TestParseFuzzyModifiers(t *testing.T) {
	q, err := Parse(`FUZZY "sara" THRESHOLD 0.8 LIMIT 3`)
	require.NoError(t, err)

	fz := q.(*Fuzzy)
	assert.Equal(t, 0.8, fz.Threshold)
	assert.Equal(t, 3, fz.Limit)
}

func TestParseFuzzyThresholdOutOfRange(t *testing.T) {
	_, err := Parse(`FUZZY "sara" THRESHOLD 1.5`)
	require.Error(t, err)
}

func TestParseSearchDefaults(t *testing.T) {
	q, err := Parse(`SEARCH "vector databases"`)
	require.NoError(t, err)

	s := q.(*Search)
	assert.Equal(t, "vector databases", s.Text)
	assert.Equal(t, types.KindResources, s.Kind)
	assert.Empty(t, s.Predicate)
	assert.Equal(t, DefaultSearchLimit, s.Limit)
}

func TestParseSearchFull(t *testing.T) {
	q, err := Parse(`SEARCH "meetings" FROM events WHERE "project = \"recall\"" LIMIT 4`)
	require.NoError(t, err)

	s := q.(*Search)
	assert.Equal(t, types.KindEvents, s.Kind)
	assert.Equal(t, `project = "recall"`, s.Predicate)
	assert.Equal(t, 4, s.Limit)
}

func TestParseSearchUnknownKind(t *testing.T) {
	_, err := Parse(`SEARCH "x" FROM gadgets`)
	require.Error(t, err)

	var perr *types.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "gadgets", perr.Token)
}

func TestParseTraverse(t *testing.T) {
	q, err := Parse(`TRAVERSE authored_by WITH LOOKUP "sarah-chen" DEPTH 2 LIMIT 5`)
	require.NoError(t, err)

	tr := q.(*Traverse)
	assert.Equal(t, []string{"authored_by"}, tr.EdgeTypes)
	assert.Equal(t, 2, tr.Depth)
	assert.Equal(t, 5, tr.Limit)

	seed, ok := tr.Seed.(*Lookup)
	require.True(t, ok)
	assert.Equal(t, []string{"sarah-chen"}, seed.Keys)
}

func TestParseTraverseBracketedTypes(t *testing.T) {
	q, err := Parse(`TRAVERSE [authored_by, cites] WITH LOOKUP "doc-42"`)
	require.NoError(t, err)

	tr := q.(*Traverse)
	assert.Equal(t, []string{"authored_by", "cites"}, tr.EdgeTypes)
	assert.Equal(t, DefaultTraverseDepth, tr.Depth)
	assert.Equal(t, DefaultTraverseLimit, tr.Limit)
}

func TestParseTraverseNoEdgeTypes(t *testing.T) {
	q, err := Parse(`TRAVERSE WITH LOOKUP "a" DEPTH 0`)
	require.NoError(t, err)

	tr := q.(*Traverse)
	assert.Empty(t, tr.EdgeTypes)
	assert.Equal(t, 0, tr.Depth)
}

// A LIMIT before DEPTH binds to the seed; a LIMIT after traversal
// modifiers binds to the traversal itself.
func TestParseTraverseSeedLimitBinding(t *testing.T) {
	q, err := Parse(`TRAVERSE cites WITH FUZZY "doc" LIMIT 2 DEPTH 3 LIMIT 7`)
	require.NoError(t, err)

	tr := q.(*Traverse)
	assert.Equal(t, 3, tr.Depth)
	assert.Equal(t, 7, tr.Limit)

	seed := tr.Seed.(*Fuzzy)
	assert.Equal(t, 2, seed.Limit)
}

func TestParseTraverseOrderBy(t *testing.T) {
	q, err := Parse(`TRAVERSE WITH LOOKUP "a" ORDER BY weight DESC`)
	require.NoError(t, err)

	tr := q.(*Traverse)
	assert.Equal(t, "weight desc", tr.OrderBy)
}

// Modifiers after a nested seed bind to the innermost query that
// recognizes them, so the outer traversal keeps its defaults here.
func TestParseTraverseNestedSeed(t *testing.T) {
	q, err := Parse(`TRAVERSE cites WITH TRAVERSE authored_by WITH LOOKUP "sarah-chen" DEPTH 2`)
	require.NoError(t, err)

	outer := q.(*Traverse)
	assert.Equal(t, DefaultTraverseDepth, outer.Depth)
	assert.Equal(t, []string{"cites"}, outer.EdgeTypes)

	inner, ok := outer.Seed.(*Traverse)
	require.True(t, ok)
	assert.Equal(t, 2, inner.Depth)
	assert.Equal(t, []string{"authored_by"}, inner.EdgeTypes)
}

func TestParseRawSQL(t *testing.T) {
	for _, raw := range []string{
		`SELECT * FROM entity_people WHERE label LIKE 'sara%'`,
		`select count(*) from entity_events`,
		`WITH x AS (SELECT 1) SELECT * FROM x`,
		`INSERT INTO entity_resources (id) VALUES ('a')`,
	} {
		q, err := Parse(raw)
		require.NoError(t, err, raw)

		sqlq, ok := q.(*SQL)
		require.True(t, ok, raw)
		assert.Equal(t, raw, sqlq.Raw)
	}
}

func TestParseEmptyQuery(t *testing.T) {
	_, err := Parse("   ")
	require.Error(t, err)

	var perr *types.ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestParseTrailingTokens(t *testing.T) {
	_, err := Parse(`LOOKUP "a" nonsense`)
	require.Error(t, err)

	var perr *types.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "nonsense", perr.Token)
}

func TestParseUnterminatedString(t *testing.T) {
	_, err := Parse(`FUZZY "unclosed`)
	require.Error(t, err)
}

func TestParseErrorReportsOffset(t *testing.T) {
	_, err := Parse(`FUZZY "x" THRESHOLD high`)
	require.Error(t, err)

	var perr *types.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "high", perr.Token)
	assert.Greater(t, perr.Pos, 0)
}
