package askdb

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"

	"github.com/askdb/askdb/internal/export"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/query"
)

// providerWithSpinner animates a spinner on stderr while a generation call is
// in flight. Sessions only get one when stdin is a terminal, so piped input
// and tests never see escape sequences.
type providerWithSpinner struct {
	nl2sql.Provider
	stderr io.Writer
}

func (p *providerWithSpinner) Complete(ctx context.Context, prompt string) (string, error) {
	spinner, err := pterm.DefaultSpinner.
		WithWriter(p.stderr).
		WithRemoveWhenDone(true).
		Start("waiting for " + p.Name())
	if err != nil {
		return p.Provider.Complete(ctx, prompt)
	}
	text, completeErr := p.Provider.Complete(ctx, prompt)
	_ = spinner.Stop()
	return text, completeErr
}

func renderSQL(w io.Writer, sqlText string) {
	pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("SQL")).
		WithWriter(w).
		Println(sqlText)
}

func renderSchema(w io.Writer, schemaText string) {
	pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Schema")).
		WithWriter(w).
		Println(schemaText)
}

func renderNarration(w io.Writer, text string) {
	pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("About this database")).
		WithWriter(w).
		Println(text)
}

func renderResult(w io.Writer, result *query.Result) {
	if result == nil {
		return
	}
	elapsed := result.Duration.Round(time.Millisecond)
	if len(result.Rows) == 0 {
		_, _ = fmt.Fprintf(w, "no rows (in %s)\n", elapsed)
		return
	}

	data := make(pterm.TableData, 0, len(result.Rows)+1)
	data = append(data, result.Columns)
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = export.FormatValue(v)
		}
		data = append(data, cells)
	}
	_ = pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
	noun := "rows"
	if len(result.Rows) == 1 {
		noun = "row"
	}
	_, _ = fmt.Fprintf(w, "(%d %s in %s)\n", len(result.Rows), noun, elapsed)
}
