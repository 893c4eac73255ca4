package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/askdb/askdb/internal/nl2sql"
)

// transcriptRow is one repair-loop attempt flattened for offline inspection.
// Prompts and completions are included; they carry schema text and SQL but
// never row data, so the transcript is safe to keep next to the database.
type transcriptRow struct {
	RunID          string `parquet:"run_id"`
	Intent         string `parquet:"intent"`
	Seq            int32  `parquet:"seq"`
	Prompt         string `parquet:"prompt"`
	RawCompletion  string `parquet:"raw_completion"`
	CandidateSQL   string `parquet:"candidate_sql"`
	ErrorMessage   string `parquet:"error_message"`
	Executed       bool   `parquet:"executed"`
	Outcome        string `parquet:"outcome"`
	GenerationMs   int64  `parquet:"generation_ms"`
	ExecutionMs    int64  `parquet:"execution_ms"`
	FinishedUnixMs int64  `parquet:"finished_unix_ms"`
}

// EncodeTranscript renders every attempt of one intent as parquet. The
// terminal outcome is repeated on each row so a single row is self-contained.
func EncodeTranscript(intent string, result nl2sql.LoopResult, finishedAt time.Time) ([]byte, error) {
	if len(result.Attempts) == 0 {
		return nil, fmt.Errorf("attempts are required")
	}

	rows := make([]transcriptRow, 0, len(result.Attempts))
	for _, attempt := range result.Attempts {
		rows = append(rows, transcriptRow{
			RunID:          result.RunID,
			Intent:         intent,
			Seq:            int32(attempt.Seq),
			Prompt:         attempt.Prompt,
			RawCompletion:  attempt.RawCompletion,
			CandidateSQL:   attempt.CandidateSQL,
			ErrorMessage:   attempt.ErrorMessage,
			Executed:       attempt.Executed,
			Outcome:        result.Outcome.String(),
			GenerationMs:   attempt.GenerationTime.Milliseconds(),
			ExecutionMs:    attempt.ExecutionTime.Milliseconds(),
			FinishedUnixMs: finishedAt.UTC().UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[transcriptRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
