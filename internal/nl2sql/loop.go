package nl2sql

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
)

// Decision is the user's answer at the confirmation step.
type Decision int

const (
	DecisionProceed Decision = iota
	DecisionAbort
	DecisionEdit
)

// ConfirmFunc is asked before each candidate executes when auto-approve is
// off. For DecisionEdit the returned string replaces the candidate for this
// attempt's execution.
type ConfirmFunc func(candidateSQL string) (Decision, string)

// Outcome is the terminal state of one intent.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeExhausted
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Attempt records one loop iteration. The slice of attempts is owned by the
// run and discarded with it; nothing carries over between intents.
type Attempt struct {
	Seq            int
	Prompt         string
	RawCompletion  string
	CandidateSQL   string
	ErrorMessage   string
	Executed       bool
	GenerationTime time.Duration
	ExecutionTime  time.Duration
}

// LoopResult is the terminal outcome of one intent. Err is set for
// exhaustion (the last execution error) and for provider infrastructure
// failures; a user abort leaves it nil.
type LoopResult struct {
	RunID    string
	Outcome  Outcome
	SQL      string
	Result   *query.Result
	Err      error
	Attempts []Attempt
}

// Loop drives prompt -> completion -> extraction -> execution for one intent
// at a time, feeding each failure back into the next prompt. Only the most
// recent failed (candidate, error) pair is carried forward, which keeps
// prompts bounded and the model focused on the latest fault.
type Loop struct {
	Provider     Provider
	Executor     query.Executor
	SchemaText   string
	Dialect      string
	MaxRevisions int
	AutoApprove  bool
	RowLimit     int
	Confirm      ConfirmFunc
	Logger       *slog.Logger
}

// RunIntent executes the bounded repair loop for a single natural-language
// question. Total attempts are MaxRevisions+1. Provider infrastructure
// errors abort the intent without consuming a revision; extraction and
// execution failures consume one revision each.
func (l *Loop) RunIntent(ctx context.Context, intent string) LoopResult {
	result := LoopResult{RunID: uuid.NewString()}
	ctx = observability.ContextWithRunID(ctx, result.RunID)
	logger := l.logger().With(slog.String("run_id", result.RunID))
	defer func() {
		observability.IncrementIntents(result.Outcome.String())
	}()

	maxAttempts := l.MaxRevisions + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var prior *Attempt
	for seq := 1; seq <= maxAttempts; seq++ {
		if err := ctx.Err(); err != nil {
			result.Outcome = OutcomeAborted
			result.Err = err
			return result
		}

		attempt := Attempt{Seq: seq}
		attempt.Prompt = BuildGenerationPrompt(l.SchemaText, intent, prior, l.Dialect, l.RowLimit)

		logger.Debug("generating", slog.Int("attempt", seq), slog.Int("max_attempts", maxAttempts))
		observability.IncrementGenerationAttempts()
		genStart := time.Now()
		raw, err := l.Provider.Complete(ctx, attempt.Prompt)
		attempt.GenerationTime = time.Since(genStart)
		observability.ObserveProviderRequest(l.Provider.Name(), errLabel(err), attempt.GenerationTime)
		if err != nil {
			// Infrastructure fault, not a query fault: fatal to the intent.
			attempt.ErrorMessage = err.Error()
			result.Attempts = append(result.Attempts, attempt)
			result.Outcome = OutcomeAborted
			result.Err = err
			logger.Debug("aborted", slog.Int("attempt", seq), slog.Any("error", err))
			return result
		}
		attempt.RawCompletion = raw

		logger.Debug("extracting", slog.Int("attempt", seq))
		candidate, err := Extract(raw)
		if err != nil {
			observability.IncrementExtractionFailures()
			attempt.ErrorMessage = err.Error()
			result.Attempts = append(result.Attempts, attempt)
			prior = &attempt
			if seq == maxAttempts {
				result.Outcome = OutcomeExhausted
				result.Err = err
				return result
			}
			continue
		}
		attempt.CandidateSQL = candidate

		if !l.AutoApprove && l.Confirm != nil {
			decision, edited := l.Confirm(candidate)
			switch decision {
			case DecisionAbort:
				result.Attempts = append(result.Attempts, attempt)
				result.Outcome = OutcomeAborted
				logger.Debug("aborted by user", slog.Int("attempt", seq))
				return result
			case DecisionEdit:
				if trimmed := strings.TrimSpace(edited); trimmed != "" {
					attempt.CandidateSQL = trimmed
				}
			}
		}

		logger.Debug("executing", slog.Int("attempt", seq))
		execStart := time.Now()
		res, err := l.Executor.Execute(ctx, attempt.CandidateSQL)
		attempt.ExecutionTime = time.Since(execStart)
		attempt.Executed = true
		observability.ObserveExecution(errLabel(err), attempt.ExecutionTime)
		if err == nil {
			result.Attempts = append(result.Attempts, attempt)
			result.Outcome = OutcomeSucceeded
			result.SQL = attempt.CandidateSQL
			result.Result = &res
			logger.Debug("succeeded", slog.Int("attempt", seq), slog.Int("rows", len(res.Rows)))
			return result
		}

		attempt.ErrorMessage = err.Error()
		result.Attempts = append(result.Attempts, attempt)
		prior = &attempt
		logger.Debug("execution failed", slog.Int("attempt", seq), slog.Any("error", err))
		if seq == maxAttempts {
			result.Outcome = OutcomeExhausted
			result.Err = err
			return result
		}
	}

	result.Outcome = OutcomeExhausted
	return result
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func errLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
