package nl2sql

import (
	"fmt"
	"strings"
)

// BuildNarrationPrompt asks the model to describe what the database appears
// to be for, from structure alone. Shown to the user once per session before
// any question is taken.
func BuildNarrationPrompt(schemaText string) string {
	var b strings.Builder
	b.WriteString("The following is the schema of a relational database.\n\n")
	b.WriteString(schemaText)
	b.WriteString("\nIn 100 words or fewer, describe the apparent purpose of this database in plain prose. ")
	b.WriteString("Do not list the tables one by one; summarize what the data is about.")
	return b.String()
}

// BuildGenerationPrompt produces the full instruction text for one
// generation attempt. It is a pure function of the schema text, the intent,
// and the most recent failed attempt; row values never appear in it. When
// prior is non-nil the prompt quotes the failed candidate and its exact
// error and asks for a correction of that specific fault.
func BuildGenerationPrompt(schemaText, intent string, prior *Attempt, dialect string, rowLimit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You translate questions about a relational database into %s SQL.\n\n", dialect)
	b.WriteString("Rules:\n")
	b.WriteString("- Respond with exactly one SQL statement.\n")
	fmt.Fprintf(&b, "- Use %s syntax only.\n", dialect)
	b.WriteString("- The statement must only read data. Never emit INSERT, UPDATE, DELETE, DROP, ALTER, or CREATE.\n")
	if rowLimit > 0 {
		fmt.Fprintf(&b, "- Limit output to at most %d rows.\n", rowLimit)
	}
	b.WriteString("- Common table expressions (WITH ...) are allowed.\n")
	b.WriteString("- You may put -- comment lines above the statement as hints.\n")

	b.WriteString("\nSchema:\n")
	b.WriteString(schemaText)

	fmt.Fprintf(&b, "\nQuestion:\n%s\n", strings.TrimSpace(intent))

	if prior != nil {
		if prior.CandidateSQL != "" {
			fmt.Fprintf(&b, "\nYour previous statement was:\n%s\n", prior.CandidateSQL)
			fmt.Fprintf(&b, "\nIt failed with this error:\n%s\n", prior.ErrorMessage)
			b.WriteString("\nRevise the statement to fix this exact error. Respond with one corrected SQL statement.\n")
		} else {
			fmt.Fprintf(&b, "\nYour previous response contained no usable statement (%s). ", prior.ErrorMessage)
			b.WriteString("Reissue exactly one SQL statement and nothing else.\n")
		}
	}
	return b.String()
}
