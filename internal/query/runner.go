package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Runner executes statements over a database/sql handle. It is shared by
// every engine; only connection setup and introspection differ per driver.
type Runner struct {
	DB       *sql.DB
	RowLimit int
}

// Execute runs one statement and scans the full result set. The driver's
// error is returned untouched: its exact text is fed back into repair
// prompts, so fidelity matters more than prettification. SELECT-shaped
// statements are wrapped in a limiting subquery when RowLimit is set;
// anything else runs as-is and lets the read-only handle reject it.
func (r *Runner) Execute(ctx context.Context, sqlText string) (Result, error) {
	start := time.Now()

	trimmed := StripTrailingSemicolons(sqlText)
	if trimmed == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if r.RowLimit > 0 && SelectShaped(trimmed) {
		trimmed = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", trimmed, r.RowLimit)
	}

	rows, err := r.DB.QueryContext(ctx, trimmed)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	return Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
