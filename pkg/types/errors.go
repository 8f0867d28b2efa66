package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a requested entity or label does not exist
	// within the caller's scope. For multi-key lookups it is reported
	// per key, never as a whole-request failure.
	ErrNotFound = errors.New("not found")

	// ErrScopeViolation indicates an attempted access outside the
	// caller's owner scope. The engine fails closed: it never widens a
	// scope to make a query succeed.
	ErrScopeViolation = errors.New("scope violation")

	// ErrDestructiveStatement indicates a raw SQL query contained a
	// blocked keyword (DROP, DELETE, TRUNCATE, ALTER). Rejected before
	// reaching the backing store.
	ErrDestructiveStatement = errors.New("destructive statement rejected")

	// ErrQueryTimeout indicates the query exceeded its bounded
	// execution window. Safe to retry idempotently for every strategy
	// except raw-write SQL.
	ErrQueryTimeout = errors.New("query timeout")

	// ErrInvalidInput indicates a structurally invalid request
	// (e.g. a lookup with zero keys).
	ErrInvalidInput = errors.New("invalid input")
)

// ParseError reports malformed query text. It names the offending
// token and its byte offset so the caller can fix the query; parse
// errors are never retried automatically.
type ParseError struct {
	// Msg describes what was expected.
	Msg string

	// Token is the offending token text ("" at end of input).
	Token string

	// Pos is the byte offset of the token in the query string.
	Pos int
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("parse error at offset %d: %s (unexpected end of query)", e.Pos, e.Msg)
	}
	return fmt.Sprintf("parse error at offset %d near %q: %s", e.Pos, e.Token, e.Msg)
}

// BackingStoreError wraps a transient infrastructure failure from the
// relational store. The engine never retries these internally — a
// retry could duplicate a non-idempotent write — so callers retry with
// backoff where appropriate.
type BackingStoreError struct {
	// Op names the failing operation (e.g. "postgres: lookup").
	Op string

	// Err is the underlying driver error.
	Err error
}

func (e *BackingStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackingStoreError) Unwrap() error { return e.Err }

// StoreErr wraps err as a BackingStoreError unless it is already part
// of the engine's error taxonomy, in which case it passes through so
// errors.Is keeps working across the storage boundary.
func StoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrScopeViolation) ||
		errors.Is(err, ErrQueryTimeout) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	return &BackingStoreError{Op: op, Err: err}
}
