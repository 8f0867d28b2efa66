package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/pkg/types"
)

var testScope = types.Scope{TenantID: "t1", OwnerID: "alice"}

func TestIsDestructive(t *testing.T) {
	destructive := []string{
		"DROP TABLE entity_people",
		"delete from entity_events where 1=1",
		"TRUNCATE entity_resources",
		"alter table label_index add column x int",
		"SELECT 1; DROP TABLE entity_people",
	}
	for _, stmt := range destructive {
		assert.True(t, IsDestructive(stmt), stmt)
	}

	safe := []string{
		"SELECT * FROM entity_people",
		"UPDATE entity_people SET content = 'x'",
		// Keyword only as part of a longer identifier.
		"SELECT dropped_count FROM stats",
		"SELECT * FROM undeleted_view",
	}
	for _, stmt := range safe {
		assert.False(t, IsDestructive(stmt), stmt)
	}
}

func TestRewriteSelectNoWhere(t *testing.T) {
	out, err := RewriteForScope("SELECT * FROM entity_people", testScope)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM entity_people WHERE (entity_people.tenant_id = 't1' AND entity_people.owner_id IN ('alice', 'shared'))",
		out)
}

func TestRewriteSelectWithWhere(t *testing.T) {
	out, err := RewriteForScope("SELECT label FROM entity_people WHERE label LIKE 'sara%'", testScope)
	require.NoError(t, err)
	assert.Contains(t, out, "WHERE (label LIKE 'sara%') AND (entity_people.tenant_id = 't1'")
}

func TestRewriteSelectWithAlias(t *testing.T) {
	out, err := RewriteForScope("SELECT p.label FROM entity_people p WHERE p.label = 'x'", testScope)
	require.NoError(t, err)
	assert.Contains(t, out, "p.tenant_id = 't1'")
	assert.Contains(t, out, "p.owner_id IN ('alice', 'shared')")
}

func TestRewriteSelectPreservesOrderAndLimit(t *testing.T) {
	out, err := RewriteForScope("SELECT * FROM entity_events ORDER BY created_at DESC LIMIT 5", testScope)
	require.NoError(t, err)
	assert.Contains(t, out, "WHERE (entity_events.tenant_id = 't1'")
	assert.Contains(t, out, "ORDER BY created_at DESC LIMIT 5")
}

func TestRewriteSelectNonEntityTablePassthrough(t *testing.T) {
	stmt := "SELECT * FROM pg_stat_activity"
	out, err := RewriteForScope(stmt, testScope)
	require.NoError(t, err)
	assert.Equal(t, stmt, out)
}

func TestRewriteSelectJoinFailsClosed(t *testing.T) {
	_, err := RewriteForScope(
		"SELECT * FROM entity_people p JOIN entity_events e ON p.label = e.label", testScope)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrScopeViolation)
}

func TestRewriteSelectSubqueryFailsClosed(t *testing.T) {
	_, err := RewriteForScope(
		"SELECT * FROM entity_people WHERE label IN (SELECT label FROM entity_events)", testScope)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrScopeViolation)
}

func TestRewriteUpdateAddsScope(t *testing.T) {
	out, err := RewriteForScope("UPDATE entity_people SET content = 'hi' WHERE label = 'sarah-chen'", testScope)
	require.NoError(t, err)
	assert.Contains(t, out, "WHERE (label = 'sarah-chen') AND (entity_people.tenant_id = 't1'")
}

func TestRewriteUpdateNoWhereScopesAllRows(t *testing.T) {
	out, err := RewriteForScope("UPDATE entity_people SET content = 'hi'", testScope)
	require.NoError(t, err)
	assert.Contains(t, out, "WHERE (entity_people.tenant_id = 't1'")
}

func TestInsertWithMatchingScopePasses(t *testing.T) {
	stmt := "INSERT INTO entity_people (id, label, tenant_id, owner_id) VALUES ('u1', 'bob', 't1', 'alice')"
	out, err := RewriteForScope(stmt, testScope)
	require.NoError(t, err)
	assert.Equal(t, stmt, out)
}

func TestInsertSharedOwnerPasses(t *testing.T) {
	stmt := "INSERT INTO entity_resources (id, tenant_id, owner_id) VALUES ('r1', 't1', 'shared')"
	_, err := RewriteForScope(stmt, testScope)
	assert.NoError(t, err)
}

func TestInsertWrongScopeFailsClosed(t *testing.T) {
	for _, stmt := range []string{
		"INSERT INTO entity_people (id, tenant_id, owner_id) VALUES ('u1', 't2', 'alice')",
		"INSERT INTO entity_people (id, tenant_id, owner_id) VALUES ('u1', 't1', 'mallory')",
		"INSERT INTO entity_people (id, label) VALUES ('u1', 'bob')",
	} {
		_, err := RewriteForScope(stmt, testScope)
		require.Error(t, err, stmt)
		assert.ErrorIs(t, err, types.ErrScopeViolation, stmt)
	}
}

func TestWithStatementOverEntityTablesFailsClosed(t *testing.T) {
	_, err := RewriteForScope("WITH x AS (SELECT * FROM entity_people) SELECT * FROM x", testScope)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrScopeViolation)
}

func TestSplitCSVRespectsQuotesAndParens(t *testing.T) {
	parts := splitCSV(`'a,b', func(1,2), "x", plain`)
	require.Len(t, parts, 4)
	assert.Equal(t, "'a,b'", strings.TrimSpace(parts[0]))
	assert.Equal(t, "func(1,2)", strings.TrimSpace(parts[1]))
}
