package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// destructivePattern matches blocked statement keywords as whole words,
// case-insensitive, anywhere in the text (multi-statement strings with
// a destructive tail are rejected too).
var destructivePattern = regexp.MustCompile(`(?i)(^|[^a-zA-Z0-9_])(drop|delete|truncate|alter)([^a-zA-Z0-9_]|$)`)

// IsDestructive reports whether raw SQL text contains a blocked
// keyword. This is a hard fail upstream, not a warning.
func IsDestructive(stmt string) bool {
	return destructivePattern.MatchString(stmt)
}

// EntityTables returns every known entity table plus the label index.
// The passthrough only attempts scope injection for these; statements
// touching other tables run unmodified (with the row cap).
func EntityTables() []string {
	tables := make([]string, 0, len(types.AllKinds())+1)
	for _, k := range types.AllKinds() {
		tables = append(tables, k.Table())
	}
	return append(tables, "label_index")
}

// referencedEntityTables returns the entity tables mentioned as whole
// words in the statement.
func referencedEntityTables(stmt string) []string {
	var refs []string
	for _, table := range EntityTables() {
		pattern := regexp.MustCompile(`(?i)(^|[^a-zA-Z0-9_])` + table + `([^a-zA-Z0-9_]|$)`)
		if pattern.MatchString(stmt) {
			refs = append(refs, table)
		}
	}
	return refs
}

// quoteLiteral renders a string as a single-quoted SQL literal, valid
// in both the Postgres and SQLite dialects.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// scopePredicate builds the ownership predicate injected into rewritten
// statements. Rows owned by the shared marker are always admitted.
func scopePredicate(qualifier string, scope types.Scope) string {
	prefix := ""
	if qualifier != "" {
		prefix = qualifier + "."
	}
	return fmt.Sprintf("(%stenant_id = %s AND %sowner_id IN (%s, %s))",
		prefix, quoteLiteral(scope.TenantID),
		prefix, quoteLiteral(scope.OwnerID),
		quoteLiteral(types.SharedOwner))
}

var (
	selectPattern = regexp.MustCompile(`(?is)^\s*select\s+.+?\s+from\s+([a-zA-Z_][a-zA-Z0-9_]*)(?:\s+(?:as\s+)?([a-zA-Z_][a-zA-Z0-9_]*))?\s*(.*)$`)
	updatePattern = regexp.MustCompile(`(?is)^\s*update\s+([a-zA-Z_][a-zA-Z0-9_]*)\s+set\s+(.+?)(\s+where\s+.+?)?\s*;?\s*$`)
	insertPattern = regexp.MustCompile(`(?is)^\s*insert\s+into\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(([^)]*)\)\s*values\s*\((.*)\)\s*;?\s*$`)
	wherePattern  = regexp.MustCompile(`(?is)^where\s+(.+?)(\s+(?:order\s+by|group\s+by|limit|offset)\b.*)?$`)
	tailKeyword   = regexp.MustCompile(`(?is)^(order\s+by|group\s+by|limit|offset)\b`)
	limitPattern  = regexp.MustCompile(`(?i)(^|[^a-zA-Z0-9_])limit([^a-zA-Z0-9_]|$)`)
)

// RewriteForScope injects the ownership predicate into a raw statement
// when it targets known entity tables and the rewrite is mechanically
// safe: a single-table SELECT or UPDATE without joins or subqueries, or
// a single-row INSERT whose literals already carry the caller's scope.
// Anything else that references an entity table fails closed with
// types.ErrScopeViolation rather than executing unscoped. Statements
// touching no entity table pass through unchanged.
func RewriteForScope(stmt string, scope types.Scope) (string, error) {
	refs := referencedEntityTables(stmt)
	if len(refs) == 0 {
		return stmt, nil
	}

	lower := strings.ToLower(stmt)
	selectCount := strings.Count(lower, "select")
	hasJoin := regexp.MustCompile(`(?i)(^|[^a-zA-Z0-9_])join([^a-zA-Z0-9_]|$)`).MatchString(stmt)

	switch verb := firstSQLWord(stmt); verb {
	case "SELECT":
		if len(refs) > 1 || selectCount > 1 || hasJoin {
			return "", fmt.Errorf("storage: cannot scope multi-table query: %w", types.ErrScopeViolation)
		}
		return rewriteSelect(stmt, refs[0], scope)

	case "UPDATE":
		if len(refs) > 1 || selectCount > 0 {
			return "", fmt.Errorf("storage: cannot scope complex update: %w", types.ErrScopeViolation)
		}
		return rewriteUpdate(stmt, refs[0], scope)

	case "INSERT":
		if len(refs) > 1 || selectCount > 0 {
			return "", fmt.Errorf("storage: cannot scope complex insert: %w", types.ErrScopeViolation)
		}
		return verifyInsertScope(stmt, scope)

	default:
		// WITH and anything else referencing entity tables: no safe
		// mechanical rewrite exists, so fail closed.
		return "", fmt.Errorf("storage: cannot inject scope into %s statement over entity tables: %w", verb, types.ErrScopeViolation)
	}
}

func firstSQLWord(stmt string) string {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimRight(fields[0], ";"))
}

func rewriteSelect(stmt, table string, scope types.Scope) (string, error) {
	m := selectPattern.FindStringSubmatch(stmt)
	if m == nil || !strings.EqualFold(m[1], table) {
		return "", fmt.Errorf("storage: cannot parse select for scope injection: %w", types.ErrScopeViolation)
	}
	alias := m[2]
	tail := m[3]
	// The optional alias group can swallow a clause keyword
	// ("... FROM entity_people WHERE ..."); push it back into the tail.
	switch strings.ToLower(alias) {
	case "where", "order", "group", "limit", "offset":
		tail = alias + " " + tail
		alias = ""
	}
	qualifier := alias
	if qualifier == "" {
		qualifier = table
	}

	head := strings.TrimSpace(strings.TrimSuffix(stmt[:len(stmt)-len(m[3])], " "))
	if alias == "" && m[2] != "" {
		// Alias text was pushed into the tail; trim it off the head too.
		head = strings.TrimSpace(strings.TrimSuffix(head, m[2]))
	}
	tail = strings.TrimSpace(strings.TrimSuffix(tail, ";"))
	pred := scopePredicate(qualifier, scope)

	if tail == "" {
		return head + " WHERE " + pred, nil
	}
	if wm := wherePattern.FindStringSubmatch(tail); wm != nil {
		rest := strings.TrimSpace(wm[2])
		out := head + " WHERE (" + strings.TrimSpace(wm[1]) + ") AND " + pred
		if rest != "" {
			out += " " + rest
		}
		return out, nil
	}
	if tailKeyword.MatchString(tail) {
		return head + " WHERE " + pred + " " + tail, nil
	}
	return "", fmt.Errorf("storage: unrecognized select tail %q: %w", tail, types.ErrScopeViolation)
}

func rewriteUpdate(stmt, table string, scope types.Scope) (string, error) {
	m := updatePattern.FindStringSubmatch(stmt)
	if m == nil || !strings.EqualFold(m[1], table) {
		return "", fmt.Errorf("storage: cannot parse update for scope injection: %w", types.ErrScopeViolation)
	}
	pred := scopePredicate(table, scope)
	if strings.TrimSpace(m[3]) == "" {
		return fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.TrimSpace(m[2]), pred), nil
	}
	cond := strings.TrimSpace(m[3])
	cond = strings.TrimSpace(cond[len("where"):])
	return fmt.Sprintf("UPDATE %s SET %s WHERE (%s) AND %s", table, strings.TrimSpace(m[2]), cond, pred), nil
}

// verifyInsertScope admits a single-row INSERT only when its column
// list names both scope columns and the corresponding literals match
// the caller's scope exactly.
func verifyInsertScope(stmt string, scope types.Scope) (string, error) {
	m := insertPattern.FindStringSubmatch(stmt)
	if m == nil {
		return "", fmt.Errorf("storage: cannot parse insert for scope check: %w", types.ErrScopeViolation)
	}
	cols := splitCSV(m[2])
	vals := splitCSV(m[3])
	if len(cols) != len(vals) {
		return "", fmt.Errorf("storage: insert column/value count mismatch: %w", types.ErrScopeViolation)
	}

	seen := map[string]string{}
	for i, col := range cols {
		seen[strings.ToLower(strings.TrimSpace(col))] = strings.TrimSpace(vals[i])
	}
	tenant, okT := seen["tenant_id"]
	owner, okO := seen["owner_id"]
	if !okT || !okO {
		return "", fmt.Errorf("storage: insert into entity table must set tenant_id and owner_id: %w", types.ErrScopeViolation)
	}
	if unquoteLiteral(tenant) != scope.TenantID {
		return "", fmt.Errorf("storage: insert tenant_id does not match caller scope: %w", types.ErrScopeViolation)
	}
	if o := unquoteLiteral(owner); o != scope.OwnerID && o != types.SharedOwner {
		return "", fmt.Errorf("storage: insert owner_id does not match caller scope: %w", types.ErrScopeViolation)
	}
	return stmt, nil
}

// splitCSV splits a comma-separated list, respecting quotes and nested
// parentheses.
func splitCSV(s string) []string {
	var out []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func unquoteLiteral(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

// ExecuteRaw runs a rewritten passthrough statement against db with a
// row cap. Reads return rows as column→value maps; writes return the
// affected-row count. Shared by the Postgres and SQLite backends since
// both speak database/sql.
func ExecuteRaw(ctx context.Context, db *sql.DB, stmt string, scope types.Scope, maxRows int) (*RawRows, error) {
	if IsDestructive(stmt) {
		return nil, fmt.Errorf("storage: raw statement contains blocked keyword: %w", types.ErrDestructiveStatement)
	}
	if maxRows < 1 {
		maxRows = 500
	}

	rewritten, err := RewriteForScope(stmt, scope)
	if err != nil {
		return nil, err
	}

	verb := firstSQLWord(rewritten)
	if verb == "INSERT" || verb == "UPDATE" {
		res, err := db.ExecContext(ctx, rewritten)
		if err != nil {
			return nil, types.StoreErr("storage: raw exec", err)
		}
		affected, _ := res.RowsAffected()
		return &RawRows{RowsAffected: affected}, nil
	}

	// Cap read result size when the caller didn't.
	queryStmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rewritten), ";"))
	if !limitPattern.MatchString(queryStmt) {
		queryStmt = fmt.Sprintf("%s LIMIT %d", queryStmt, maxRows)
	}

	rows, err := db.QueryContext(ctx, queryStmt)
	if err != nil {
		return nil, types.StoreErr("storage: raw query", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, types.StoreErr("storage: raw columns", err)
	}

	out := &RawRows{Columns: cols}
	for rows.Next() {
		if len(out.Rows) >= maxRows {
			break
		}
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, types.StoreErr("storage: raw scan", err)
		}
		rowMap := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				rowMap[col] = string(b)
			} else {
				rowMap[col] = vals[i]
			}
		}
		out.Rows = append(out.Rows, rowMap)
		out.RowsScanned++
	}
	if err := rows.Err(); err != nil {
		return nil, types.StoreErr("storage: raw rows", err)
	}
	return out, nil
}
