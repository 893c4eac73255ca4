package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/query"
)

type fakeProvider struct {
	replies []string
	errs    []error
	prompts []string
}

func (p *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	i := len(p.prompts) - 1
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.replies) {
		return p.replies[i], nil
	}
	return "", fmt.Errorf("unexpected completion call %d", i+1)
}

func (p *fakeProvider) Name() string { return "fake" }

type fakeExecutor struct {
	results []query.Result
	errs    []error
	sqls    []string
}

func (e *fakeExecutor) Execute(ctx context.Context, sqlText string) (query.Result, error) {
	e.sqls = append(e.sqls, sqlText)
	i := len(e.sqls) - 1
	if i < len(e.errs) && e.errs[i] != nil {
		return query.Result{}, e.errs[i]
	}
	if i < len(e.results) {
		return e.results[i], nil
	}
	return query.Result{}, nil
}

func TestRunIntentSucceedsOnFirstAttempt(t *testing.T) {
	provider := &fakeProvider{replies: []string{"```sql\nSELECT COUNT(*) FROM Customer;\n```"}}
	executor := &fakeExecutor{results: []query.Result{{Columns: []string{"n"}, Rows: [][]any{{int64(12)}}}}}
	loop := &Loop{
		Provider:     provider,
		Executor:     executor,
		SchemaText:   testSchemaText,
		Dialect:      "sqlite",
		MaxRevisions: 3,
		AutoApprove:  true,
	}

	result := loop.RunIntent(context.Background(), "how many customers are there")
	if result.Outcome != OutcomeSucceeded {
		t.Fatalf("Outcome = %v, err = %v", result.Outcome, result.Err)
	}
	if result.SQL != "SELECT COUNT(*) FROM Customer;" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Result == nil || len(result.Result.Rows) != 1 {
		t.Fatalf("Result = %+v", result.Result)
	}
	if result.RunID == "" {
		t.Fatal("RunID should be set")
	}
	if len(result.Attempts) != 1 {
		t.Fatalf("Attempts = %d, want 1", len(result.Attempts))
	}
	if !result.Attempts[0].Executed {
		t.Fatal("first attempt should be marked executed")
	}
	if len(executor.sqls) != 1 || executor.sqls[0] != "SELECT COUNT(*) FROM Customer;" {
		t.Fatalf("executed sqls = %v", executor.sqls)
	}
}

func TestRunIntentRepairsFailedStatement(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		"SELECT COUNT(*) FROM Customerr;",
		"SELECT COUNT(*) FROM Customer;",
	}}
	executor := &fakeExecutor{
		errs:    []error{errors.New("no such table: Customerr")},
		results: []query.Result{{}, {Columns: []string{"n"}, Rows: [][]any{{int64(3)}}}},
	}
	loop := &Loop{
		Provider:     provider,
		Executor:     executor,
		SchemaText:   testSchemaText,
		Dialect:      "sqlite",
		MaxRevisions: 3,
		AutoApprove:  true,
	}

	result := loop.RunIntent(context.Background(), "how many customers are there")
	if result.Outcome != OutcomeSucceeded {
		t.Fatalf("Outcome = %v, err = %v", result.Outcome, result.Err)
	}
	if len(result.Attempts) != 2 {
		t.Fatalf("Attempts = %d, want 2", len(result.Attempts))
	}
	if result.Attempts[0].ErrorMessage != "no such table: Customerr" {
		t.Fatalf("first attempt error = %q", result.Attempts[0].ErrorMessage)
	}
	if result.SQL != "SELECT COUNT(*) FROM Customer;" {
		t.Fatalf("SQL = %q", result.SQL)
	}

	repairPrompt := provider.prompts[1]
	if !strings.Contains(repairPrompt, "SELECT COUNT(*) FROM Customerr;") {
		t.Fatal("repair prompt missing failed candidate")
	}
	if !strings.Contains(repairPrompt, "no such table: Customerr") {
		t.Fatal("repair prompt missing verbatim engine error")
	}
}

func TestRunIntentExhaustsRevisionsOnUnextractableReplies(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		"I'm sorry, I cannot help with that.",
		"Still no statement here.",
		"Nothing usable either.",
	}}
	executor := &fakeExecutor{}
	loop := &Loop{
		Provider:     provider,
		Executor:     executor,
		SchemaText:   testSchemaText,
		Dialect:      "sqlite",
		MaxRevisions: 2,
		AutoApprove:  true,
	}

	result := loop.RunIntent(context.Background(), "how many customers")
	if result.Outcome != OutcomeExhausted {
		t.Fatalf("Outcome = %v", result.Outcome)
	}
	if !errors.Is(result.Err, ErrNoStatement) {
		t.Fatalf("Err = %v, want ErrNoStatement", result.Err)
	}
	if len(result.Attempts) != 3 {
		t.Fatalf("Attempts = %d, want maxRevisions+1", len(result.Attempts))
	}
	if len(executor.sqls) != 0 {
		t.Fatalf("executor ran %d times, nothing should execute", len(executor.sqls))
	}
	for _, prompt := range provider.prompts[1:] {
		if !strings.Contains(prompt, "contained no usable statement") {
			t.Fatal("followup prompt missing no-statement notice")
		}
		if !strings.Contains(prompt, ErrNoStatement.Error()) {
			t.Fatal("followup prompt missing synthesized failure reason")
		}
	}
}

func TestRunIntentAbortsOnProviderFailure(t *testing.T) {
	provider := &fakeProvider{errs: []error{
		fmt.Errorf("%w: chat completion failed status=401", ErrProviderUnavailable),
	}}
	executor := &fakeExecutor{}
	loop := &Loop{
		Provider:     provider,
		Executor:     executor,
		SchemaText:   testSchemaText,
		Dialect:      "sqlite",
		MaxRevisions: 3,
		AutoApprove:  true,
	}

	result := loop.RunIntent(context.Background(), "how many customers")
	if result.Outcome != OutcomeAborted {
		t.Fatalf("Outcome = %v", result.Outcome)
	}
	if !errors.Is(result.Err, ErrProviderUnavailable) {
		t.Fatalf("Err = %v, want ErrProviderUnavailable", result.Err)
	}
	if len(provider.prompts) != 1 {
		t.Fatalf("provider calls = %d, infrastructure failures must not be revised", len(provider.prompts))
	}
	if len(executor.sqls) != 0 {
		t.Fatal("nothing should execute after a provider failure")
	}
}

func TestRunIntentUserAbortStopsLoop(t *testing.T) {
	provider := &fakeProvider{replies: []string{"SELECT * FROM Customer;"}}
	executor := &fakeExecutor{}
	loop := &Loop{
		Provider:     provider,
		Executor:     executor,
		SchemaText:   testSchemaText,
		Dialect:      "sqlite",
		MaxRevisions: 3,
		Confirm: func(candidateSQL string) (Decision, string) {
			return DecisionAbort, ""
		},
	}

	result := loop.RunIntent(context.Background(), "show all customers")
	if result.Outcome != OutcomeAborted {
		t.Fatalf("Outcome = %v", result.Outcome)
	}
	if result.Err != nil {
		t.Fatalf("Err = %v, user aborts are not errors", result.Err)
	}
	if len(provider.prompts) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(provider.prompts))
	}
	if len(executor.sqls) != 0 {
		t.Fatal("aborted candidate must not execute")
	}
}

func TestRunIntentEditReplacesCandidate(t *testing.T) {
	provider := &fakeProvider{replies: []string{"SELECT * FROM Customer;"}}
	executor := &fakeExecutor{results: []query.Result{{Columns: []string{"n"}}}}
	loop := &Loop{
		Provider:     provider,
		Executor:     executor,
		SchemaText:   testSchemaText,
		Dialect:      "sqlite",
		MaxRevisions: 3,
		Confirm: func(candidateSQL string) (Decision, string) {
			return DecisionEdit, "SELECT FirstName FROM Customer;"
		},
	}

	result := loop.RunIntent(context.Background(), "show all customers")
	if result.Outcome != OutcomeSucceeded {
		t.Fatalf("Outcome = %v, err = %v", result.Outcome, result.Err)
	}
	if result.SQL != "SELECT FirstName FROM Customer;" {
		t.Fatalf("SQL = %q, edit should replace candidate", result.SQL)
	}
	if len(executor.sqls) != 1 || executor.sqls[0] != "SELECT FirstName FROM Customer;" {
		t.Fatalf("executed sqls = %v", executor.sqls)
	}
}

func TestRunIntentZeroRowsIsSuccess(t *testing.T) {
	provider := &fakeProvider{replies: []string{"SELECT * FROM Customer WHERE 1 = 0;"}}
	executor := &fakeExecutor{results: []query.Result{{Columns: []string{"CustomerId"}}}}
	loop := &Loop{
		Provider:    provider,
		Executor:    executor,
		SchemaText:  testSchemaText,
		Dialect:     "sqlite",
		AutoApprove: true,
	}

	result := loop.RunIntent(context.Background(), "customers named nobody")
	if result.Outcome != OutcomeSucceeded {
		t.Fatalf("Outcome = %v, err = %v", result.Outcome, result.Err)
	}
	if len(result.Result.Rows) != 0 {
		t.Fatalf("Rows = %d, want 0", len(result.Result.Rows))
	}
}

func TestRunIntentZeroRevisionsMeansOneAttempt(t *testing.T) {
	provider := &fakeProvider{replies: []string{"SELECT bogus FROM nowhere;"}}
	executor := &fakeExecutor{errs: []error{errors.New("no such table: nowhere")}}
	loop := &Loop{
		Provider:     provider,
		Executor:     executor,
		SchemaText:   testSchemaText,
		Dialect:      "sqlite",
		MaxRevisions: 0,
		AutoApprove:  true,
	}

	result := loop.RunIntent(context.Background(), "anything")
	if result.Outcome != OutcomeExhausted {
		t.Fatalf("Outcome = %v", result.Outcome)
	}
	if len(result.Attempts) != 1 {
		t.Fatalf("Attempts = %d, want 1", len(result.Attempts))
	}
	if result.Err == nil || result.Err.Error() != "no such table: nowhere" {
		t.Fatalf("Err = %v, want last execution error", result.Err)
	}
}

func TestRunIntentCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &fakeProvider{replies: []string{"SELECT 1;"}}
	executor := &fakeExecutor{}
	loop := &Loop{
		Provider:    provider,
		Executor:    executor,
		SchemaText:  testSchemaText,
		Dialect:     "sqlite",
		AutoApprove: true,
	}

	result := loop.RunIntent(ctx, "anything")
	if result.Outcome != OutcomeAborted {
		t.Fatalf("Outcome = %v", result.Outcome)
	}
	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("Err = %v", result.Err)
	}
	if len(provider.prompts) != 0 {
		t.Fatal("cancelled context must not reach the provider")
	}
}

func TestRunIntentPromptsNeverCarryRowData(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		"SELECT Email FROM Customer;",
		"SELECT FirstName FROM Customer;",
	}}
	executor := &fakeExecutor{results: []query.Result{
		{Columns: []string{"Email"}, Rows: [][]any{{"ada@example.com"}}},
		{Columns: []string{"FirstName"}, Rows: [][]any{{"Ada"}}},
	}}
	loop := &Loop{
		Provider:    provider,
		Executor:    executor,
		SchemaText:  testSchemaText,
		Dialect:     "sqlite",
		AutoApprove: true,
	}

	first := loop.RunIntent(context.Background(), "list customer emails")
	if first.Outcome != OutcomeSucceeded {
		t.Fatalf("first Outcome = %v, err = %v", first.Outcome, first.Err)
	}
	second := loop.RunIntent(context.Background(), "first names only")
	if second.Outcome != OutcomeSucceeded {
		t.Fatalf("second Outcome = %v, err = %v", second.Outcome, second.Err)
	}

	for i, prompt := range provider.prompts {
		if strings.Contains(prompt, "ada@example.com") {
			t.Fatalf("prompt %d carries row data", i+1)
		}
	}
	if strings.Contains(provider.prompts[1], "list customer emails") {
		t.Fatal("second intent's prompt carries the first question")
	}
	if strings.Contains(provider.prompts[1], "SELECT Email") {
		t.Fatal("second intent's prompt carries the first intent's statement")
	}
	if first.RunID == second.RunID {
		t.Fatal("each intent needs its own run id")
	}
}
