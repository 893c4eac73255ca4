package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
)

// Engine is a read-only session over a DuckDB database file.
type Engine struct {
	db     *sql.DB
	runner *query.Runner
	name   string
}

// Open opens the file with access_mode=read_only so candidate statements
// cannot mutate it, whatever their text says.
func Open(ctx context.Context, path string, rowLimit int) (*Engine, error) {
	db, err := sql.Open("duckdb", path+"?access_mode=read_only")
	if err != nil {
		return nil, fmt.Errorf("open duckdb database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open duckdb database %q: %w", path, err)
	}
	return &Engine{
		db:     db,
		runner: &query.Runner{DB: db, RowLimit: rowLimit},
		name:   path,
	}, nil
}

func (e *Engine) Dialect() string { return "duckdb" }

func (e *Engine) Close() error { return e.db.Close() }

func (e *Engine) Execute(ctx context.Context, sqlText string) (query.Result, error) {
	return e.runner.Execute(ctx, sqlText)
}

// IntrospectSchema reads structure from information_schema and key
// declarations from duckdb_constraints(). Constraint column lists come back
// as rendered text, so they are parsed rather than scanned.
func (e *Engine) IntrospectSchema(ctx context.Context) (schema.Database, error) {
	tables, err := e.listTables(ctx)
	if err != nil {
		return schema.Database{}, fmt.Errorf("%w: %v", schema.ErrUnavailable, err)
	}
	if len(tables) == 0 {
		return schema.Database{}, fmt.Errorf("%w: database has no tables", schema.ErrUnavailable)
	}

	primaryKeys, foreignKeys, err := e.readConstraints(ctx)
	if err != nil {
		return schema.Database{}, fmt.Errorf("%w: %v", schema.ErrUnavailable, err)
	}

	db := schema.Database{Name: e.name}
	for _, name := range tables {
		columns, err := e.listColumns(ctx, name)
		if err != nil {
			return schema.Database{}, fmt.Errorf("%w: %v", schema.ErrUnavailable, err)
		}
		for i := range columns {
			if primaryKeys[name][columns[i].Name] {
				columns[i].PrimaryKey = true
				columns[i].Nullable = false
			}
		}
		db.Tables = append(db.Tables, schema.Table{
			Name:        name,
			Columns:     columns,
			ForeignKeys: foreignKeys[name],
		})
	}
	return db, nil
}

func (e *Engine) listTables(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' AND table_type = 'BASE TABLE' ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (e *Engine) listColumns(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = 'main' AND table_name = ? ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []schema.Column
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column %q: %w", table, err)
		}
		columns = append(columns, schema.Column{
			Name:     name,
			Type:     dataType,
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	return columns, rows.Err()
}

var (
	primaryKeyTextRe = regexp.MustCompile(`(?i)^PRIMARY KEY\s*\(([^)]+)\)`)
	foreignKeyTextRe = regexp.MustCompile(`(?i)^FOREIGN KEY\s*\(([^)]+)\)\s*REFERENCES\s+"?(\w+)"?\s*\(([^)]+)\)`)
)

func (e *Engine) readConstraints(ctx context.Context) (map[string]map[string]bool, map[string][]schema.ForeignKey, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT table_name, constraint_type, constraint_text FROM duckdb_constraints() WHERE constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY')`)
	if err != nil {
		return nil, nil, fmt.Errorf("read constraints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	primaryKeys := map[string]map[string]bool{}
	foreignKeys := map[string][]schema.ForeignKey{}
	for rows.Next() {
		var table, constraintType, constraintText string
		if err := rows.Scan(&table, &constraintType, &constraintText); err != nil {
			return nil, nil, fmt.Errorf("scan constraint: %w", err)
		}
		switch constraintType {
		case "PRIMARY KEY":
			match := primaryKeyTextRe.FindStringSubmatch(constraintText)
			if match == nil {
				continue
			}
			if primaryKeys[table] == nil {
				primaryKeys[table] = map[string]bool{}
			}
			for _, col := range splitIdentList(match[1]) {
				primaryKeys[table][col] = true
			}
		case "FOREIGN KEY":
			match := foreignKeyTextRe.FindStringSubmatch(constraintText)
			if match == nil {
				continue
			}
			from := splitIdentList(match[1])
			to := splitIdentList(match[3])
			for i := range from {
				fk := schema.ForeignKey{Column: from[i], RefTable: match[2]}
				if i < len(to) {
					fk.RefColumn = to[i]
				}
				foreignKeys[table] = append(foreignKeys[table], fk)
			}
		}
	}
	return primaryKeys, foreignKeys, rows.Err()
}

func splitIdentList(list string) []string {
	parts := strings.Split(list, ",")
	idents := make([]string, 0, len(parts))
	for _, part := range parts {
		ident := strings.Trim(strings.TrimSpace(part), `"`)
		if ident != "" {
			idents = append(idents, ident)
		}
	}
	return idents
}
