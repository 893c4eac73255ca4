package schema

import (
	"fmt"
	"strings"
)

// Summarize renders a deterministic plain-text description of the database
// structure for inclusion in generation prompts. Tables and columns appear in
// introspection order, so the same database always yields the same text.
func Summarize(db Database) string {
	var b strings.Builder
	for i, table := range db.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "table %s:\n", table.Name)
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "  %s %s", col.Name, col.Type)
			if col.PrimaryKey {
				b.WriteString(" [primary key]")
			}
			if !col.Nullable {
				b.WriteString(" [not null]")
			}
			b.WriteString("\n")
		}
		for _, fk := range table.ForeignKeys {
			fmt.Fprintf(&b, "  foreign key %s -> %s(%s)\n", fk.Column, fk.RefTable, fk.RefColumn)
		}
	}
	return b.String()
}
