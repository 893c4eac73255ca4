package query

import (
	"context"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/schema"
)

// Result is one executed statement's output. Zero rows is a valid result,
// not an error.
type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// Executor runs one statement against an opened database.
type Executor interface {
	Execute(ctx context.Context, sqlText string) (Result, error)
}

// Introspector reads the structural description of an opened database.
type Introspector interface {
	IntrospectSchema(ctx context.Context) (schema.Database, error)
}

// Engine is a session-scoped handle to one database. Implementations open
// the underlying connection read-only; that handle, not statement filtering,
// is what guarantees no candidate statement can mutate the database.
type Engine interface {
	Executor
	Introspector
	Dialect() string
	Close() error
}

// QuoteIdent double-quotes an identifier for use in introspection statements.
func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// StripTrailingSemicolons removes statement terminators so the text can be
// wrapped in a row-limiting subquery.
func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// SelectShaped reports whether the statement reads like a query (SELECT or
// WITH prefix, ignoring blank and `--` comment lines).
func SelectShaped(sqlText string) bool {
	for _, line := range strings.Split(sqlText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		lowered := strings.ToLower(trimmed)
		return strings.HasPrefix(lowered, "select") || strings.HasPrefix(lowered, "with")
	}
	return false
}
