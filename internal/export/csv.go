package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/askdb/askdb/internal/query"
)

// WriteCSV streams a result set as CSV with a header row.
func WriteCSV(w io.Writer, result *query.Result) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(result.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i := range record {
			if i < len(row) {
				record[i] = FormatValue(row[i])
			} else {
				record[i] = ""
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// FormatValue renders a single cell for display or export. NULL becomes the
// empty string.
func FormatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(value)
	case time.Time:
		return value.Format(time.RFC3339)
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}
