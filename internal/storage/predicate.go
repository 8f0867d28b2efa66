package storage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// PredicateOp enumerates the restricted structured-filter operators.
type PredicateOp int

const (
	// OpEq is equality on a declared field.
	OpEq PredicateOp = iota
	// OpNeq is inequality.
	OpNeq
	// OpGt, OpGte, OpLt, OpLte are numeric range comparisons.
	OpGt
	OpGte
	OpLt
	OpLte
	// OpContains is array membership on a list-valued field.
	OpContains
	// OpLike is case-insensitive substring match.
	OpLike
)

// Predicate is one restricted structured filter: equality, range,
// array-containment or substring on a declared field. Fields "label"
// and "content" address entity columns; any other identifier addresses
// a metadata key.
type Predicate struct {
	Field string
	Op    PredicateOp
	Value types.Value
}

// fieldPattern whitelists predicate field identifiers so they can be
// interpolated into generated SQL without injection risk.
var fieldPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParsePredicate parses predicate text of the form
//
//	field = "value" | field >= 3 | tags contains "x" | content like "foo"
//
// Returns nil for empty text.
func ParsePredicate(text string) (*Predicate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	field, rest, err := splitPredicateField(text)
	if err != nil {
		return nil, err
	}
	if !fieldPattern.MatchString(field) {
		return nil, fmt.Errorf("storage: invalid predicate field %q: %w", field, types.ErrInvalidInput)
	}

	op, rest, err := splitPredicateOp(rest)
	if err != nil {
		return nil, err
	}

	val, err := parsePredicateValue(strings.TrimSpace(rest))
	if err != nil {
		return nil, err
	}

	return &Predicate{Field: field, Op: op, Value: val}, nil
}

func splitPredicateField(text string) (field, rest string, err error) {
	idx := strings.IndexAny(text, " \t=<>!")
	if idx <= 0 {
		return "", "", fmt.Errorf("storage: predicate missing operator: %w", types.ErrInvalidInput)
	}
	return text[:idx], text[idx:], nil
}

func splitPredicateOp(rest string) (PredicateOp, string, error) {
	rest = strings.TrimSpace(rest)
	lower := strings.ToLower(rest)
	switch {
	case strings.HasPrefix(rest, ">="):
		return OpGte, rest[2:], nil
	case strings.HasPrefix(rest, "<="):
		return OpLte, rest[2:], nil
	case strings.HasPrefix(rest, "!="):
		return OpNeq, rest[2:], nil
	case strings.HasPrefix(rest, ">"):
		return OpGt, rest[1:], nil
	case strings.HasPrefix(rest, "<"):
		return OpLt, rest[1:], nil
	case strings.HasPrefix(rest, "="):
		return OpEq, rest[1:], nil
	case strings.HasPrefix(lower, "contains "):
		return OpContains, rest[len("contains "):], nil
	case strings.HasPrefix(lower, "like "):
		return OpLike, rest[len("like "):], nil
	}
	return 0, "", fmt.Errorf("storage: unsupported predicate operator in %q: %w", rest, types.ErrInvalidInput)
}

func parsePredicateValue(text string) (types.Value, error) {
	if text == "" {
		return types.Value{}, fmt.Errorf("storage: predicate missing value: %w", types.ErrInvalidInput)
	}
	if (text[0] == '"' || text[0] == '\'') && len(text) >= 2 && text[len(text)-1] == text[0] {
		return types.String(text[1 : len(text)-1]), nil
	}
	if text == "true" || text == "false" {
		return types.Bool(text == "true"), nil
	}
	if num, err := strconv.ParseFloat(text, 64); err == nil {
		return types.Number(num), nil
	}
	// Bare word — treat as string for convenience.
	return types.String(text), nil
}

// Matches evaluates the predicate against an entity in memory. Used by
// the SQLite backend and by engine tests; the Postgres backend compiles
// the same semantics to SQL instead.
func (p *Predicate) Matches(e *types.Entity) bool {
	if p == nil {
		return true
	}

	var field types.Value
	switch p.Field {
	case "label":
		field = types.String(e.Label)
	case "content":
		field = types.String(e.Content)
	default:
		v, ok := e.Metadata[p.Field]
		if !ok {
			return false
		}
		field = v
	}

	switch p.Op {
	case OpEq:
		return field.Equal(p.Value)
	case OpNeq:
		return !field.Equal(p.Value)
	case OpGt, OpGte, OpLt, OpLte:
		fn, ok1 := field.AsNumber()
		pn, ok2 := p.Value.AsNumber()
		if !ok1 || !ok2 {
			return false
		}
		switch p.Op {
		case OpGt:
			return fn > pn
		case OpGte:
			return fn >= pn
		case OpLt:
			return fn < pn
		default:
			return fn <= pn
		}
	case OpContains:
		list, ok := field.AsList()
		if !ok {
			return false
		}
		for _, item := range list {
			if item.Equal(p.Value) {
				return true
			}
		}
		return false
	case OpLike:
		return strings.Contains(strings.ToLower(field.Text()), strings.ToLower(p.Value.Text()))
	}
	return false
}
