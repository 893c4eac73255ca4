package askdb

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/export"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/storage"
)

// session holds everything one opened database conversation needs. A session
// serves the interactive REPL and the one-shot ask command alike.
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	engine   query.Engine
	provider nl2sql.Provider
	target   string

	schemaText string

	stdin  *bufio.Reader
	stdout io.Writer
	stderr io.Writer

	noNarrate     bool
	transcriptDir string
	exportPath    string
	exportS3      bool

	store    storage.ObjectStore
	newStore func(ctx context.Context, cfg config.Config) (storage.ObjectStore, error)
}

// prepare introspects the schema and renders the summary text every prompt
// uses. Without a schema there is nothing to ground generation on, so any
// failure here ends the session.
func (s *session) prepare(ctx context.Context) error {
	db, err := s.engine.IntrospectSchema(ctx)
	if err != nil {
		return fmt.Errorf("summarize schema: %w", err)
	}
	s.schemaText = schema.Summarize(db)
	return nil
}

func (s *session) printBanner() {
	_, _ = fmt.Fprintf(s.stdout, "connected to %s (%s, read-only)\n", s.target, s.engine.Dialect())
}

// narrate asks the provider for a short description of the database. The
// narration is a courtesy; when it fails the session carries on without it.
func (s *session) narrate(ctx context.Context) {
	pterm.Info.WithWriter(s.stderr).Println("asking " + s.provider.Name() + " about this database")
	text, err := s.provider.Complete(ctx, nl2sql.BuildNarrationPrompt(s.schemaText))
	if err != nil {
		s.logger.Warn("narration failed", slog.Any("error", err))
		_, _ = fmt.Fprintln(s.stderr, "narration unavailable")
		return
	}
	renderNarration(s.stdout, strings.TrimSpace(text))
}

// repl reads questions until a blank line, exit, quit, or end of input.
func (s *session) repl(ctx context.Context) error {
	_, _ = fmt.Fprintln(s.stdout, `Ask in plain language. "schema" reprints the summary, a blank line or "exit" leaves.`)
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, _ = fmt.Fprint(s.stdout, "ask> ")
		line, readErr := s.stdin.ReadString('\n')
		question := strings.TrimSpace(line)
		if question == "" {
			_, _ = fmt.Fprintln(s.stdout, "bye")
			return nil
		}
		switch question {
		case "exit", "quit":
			_, _ = fmt.Fprintln(s.stdout, "bye")
			return nil
		case "schema":
			renderSchema(s.stdout, s.schemaText)
		default:
			s.answer(ctx, question)
		}
		if readErr != nil {
			return nil
		}
	}
}

// answer runs one intent and reports failures on the session's streams. The
// REPL keeps going regardless of the outcome.
func (s *session) answer(ctx context.Context, question string) {
	res := s.runIntent(ctx, question)
	switch res.Outcome {
	case nl2sql.OutcomeSucceeded:
	case nl2sql.OutcomeAborted:
		if res.Err != nil {
			_, _ = fmt.Fprintf(s.stderr, "error: %v\n", res.Err)
		} else {
			_, _ = fmt.Fprintln(s.stdout, "aborted")
		}
	case nl2sql.OutcomeExhausted:
		_, _ = fmt.Fprintf(s.stderr, "no working statement after %d attempts: %v\n", len(res.Attempts), res.Err)
	}
}

// runIntent drives the repair loop for one question, renders a successful
// result, and persists the transcript when asked to.
func (s *session) runIntent(ctx context.Context, question string) nl2sql.LoopResult {
	loop := &nl2sql.Loop{
		Provider:     s.provider,
		Executor:     s.engine,
		SchemaText:   s.schemaText,
		Dialect:      s.engine.Dialect(),
		MaxRevisions: s.cfg.Loop.MaxRevisions,
		AutoApprove:  s.cfg.Loop.AutoApprove,
		RowLimit:     s.cfg.Query.RowLimit,
		Confirm:      s.confirm,
		Logger:       s.logger,
	}
	res := loop.RunIntent(ctx, question)

	// The confirm prompt already shows each candidate in interactive mode;
	// with --yes nothing would, so render every attempt here instead.
	if s.cfg.Loop.AutoApprove {
		for _, attempt := range res.Attempts {
			if attempt.CandidateSQL == "" {
				continue
			}
			renderSQL(s.stdout, attempt.CandidateSQL)
			if attempt.Executed && attempt.ErrorMessage != "" {
				_, _ = fmt.Fprintf(s.stderr, "attempt %d failed: %s\n", attempt.Seq, attempt.ErrorMessage)
			}
		}
	}
	if res.Outcome == nl2sql.OutcomeSucceeded {
		if n := len(res.Attempts); n > 0 {
			elapsed := res.Attempts[n-1].GenerationTime.Round(time.Millisecond)
			_, _ = fmt.Fprintf(s.stdout, "generated in %s\n", elapsed)
		}
		renderResult(s.stdout, res.Result)
		if s.exportPath != "" {
			s.exportCSV(res.Result)
		}
	}
	s.saveTranscript(ctx, question, res)
	return res
}

// confirm shows the candidate and reads the user's decision. Anything but an
// explicit yes aborts; "e" lets the user run an edited statement instead.
func (s *session) confirm(candidateSQL string) (nl2sql.Decision, string) {
	renderSQL(s.stdout, candidateSQL)
	_, _ = fmt.Fprint(s.stdout, "execute? [y/N/e]: ")
	line, err := s.stdin.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	if err != nil && answer == "" {
		return nl2sql.DecisionAbort, ""
	}
	switch answer {
	case "y", "yes":
		return nl2sql.DecisionProceed, ""
	case "e", "edit":
		_, _ = fmt.Fprint(s.stdout, "sql> ")
		edited, _ := s.stdin.ReadString('\n')
		return nl2sql.DecisionEdit, strings.TrimSpace(edited)
	default:
		return nl2sql.DecisionAbort, ""
	}
}

func (s *session) exportCSV(result *query.Result) {
	f, err := os.Create(s.exportPath)
	if err == nil {
		err = export.WriteCSV(f, result)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "csv export failed: %v\n", err)
		return
	}
	_, _ = fmt.Fprintf(s.stdout, "wrote %s\n", s.exportPath)
}

// saveTranscript encodes the run as Parquet and writes it to the transcript
// directory, the object store, or both. Persistence failures are reported but
// never fail the intent itself.
func (s *session) saveTranscript(ctx context.Context, question string, res nl2sql.LoopResult) {
	if s.transcriptDir == "" && !s.exportS3 {
		return
	}
	if len(res.Attempts) == 0 {
		return
	}
	finishedAt := time.Now().UTC()
	data, err := export.EncodeTranscript(question, res, finishedAt)
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "transcript encode failed: %v\n", err)
		return
	}

	if s.transcriptDir != "" {
		s.writeTranscriptFile(res.RunID, data)
	}
	if s.exportS3 {
		s.uploadTranscript(ctx, res.RunID, finishedAt, data)
	}
}

func (s *session) writeTranscriptFile(runID string, data []byte) {
	if err := os.MkdirAll(s.transcriptDir, 0o755); err != nil {
		_, _ = fmt.Fprintf(s.stderr, "transcript write failed: %v\n", err)
		return
	}
	name := filepath.Join(s.transcriptDir, "run-"+runID+".parquet")
	if err := os.WriteFile(name, data, 0o644); err != nil {
		_, _ = fmt.Fprintf(s.stderr, "transcript write failed: %v\n", err)
		return
	}
	s.logger.Info("transcript written", slog.String("path", name))
}

func (s *session) uploadTranscript(ctx context.Context, runID string, finishedAt time.Time, data []byte) {
	if s.store == nil {
		store, err := s.newStore(ctx, s.cfg)
		if err != nil {
			_, _ = fmt.Fprintf(s.stderr, "transcript upload failed: %v\n", err)
			return
		}
		s.store = store
	}
	key, err := storage.TranscriptKey(runID, finishedAt)
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "transcript upload failed: %v\n", err)
		return
	}
	opts := storage.PutOptions{ContentType: "application/octet-stream"}
	if _, err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		_, _ = fmt.Fprintf(s.stderr, "transcript upload failed: %v\n", err)
		return
	}
	s.logger.Info("transcript uploaded", slog.String("key", key))
}

func (s *session) close() {
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("close database", slog.Any("error", err))
	}
}
