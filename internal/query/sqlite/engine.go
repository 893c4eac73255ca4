package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
)

// Engine is a read-only session over a SQLite database file.
type Engine struct {
	db     *sql.DB
	runner *query.Runner
	name   string
}

// Open opens the file with mode=ro at the connection level. Any statement
// that tries to write fails inside SQLite regardless of its text.
func Open(ctx context.Context, path string, rowLimit int) (*Engine, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}
	return &Engine{
		db:     db,
		runner: &query.Runner{DB: db, RowLimit: rowLimit},
		name:   path,
	}, nil
}

func (e *Engine) Dialect() string { return "sqlite" }

func (e *Engine) Close() error { return e.db.Close() }

func (e *Engine) Execute(ctx context.Context, sqlText string) (query.Result, error) {
	return e.runner.Execute(ctx, sqlText)
}

// IntrospectSchema reads table, column, and foreign-key declarations from
// sqlite_master and the table_info/foreign_key_list pragmas. Row data is
// never touched.
func (e *Engine) IntrospectSchema(ctx context.Context) (schema.Database, error) {
	tables, err := e.listTables(ctx)
	if err != nil {
		return schema.Database{}, fmt.Errorf("%w: %v", schema.ErrUnavailable, err)
	}
	if len(tables) == 0 {
		return schema.Database{}, fmt.Errorf("%w: database has no tables", schema.ErrUnavailable)
	}

	db := schema.Database{Name: e.name}
	for _, name := range tables {
		table, err := e.describeTable(ctx, name)
		if err != nil {
			return schema.Database{}, fmt.Errorf("%w: %v", schema.ErrUnavailable, err)
		}
		db.Tables = append(db.Tables, table)
	}
	return db, nil
}

func (e *Engine) listTables(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
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

func (e *Engine) describeTable(ctx context.Context, name string) (schema.Table, error) {
	table := schema.Table{Name: name}

	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", query.QuoteIdent(name)))
	if err != nil {
		return schema.Table{}, fmt.Errorf("table_info %q: %w", name, err)
	}
	for rows.Next() {
		var (
			cid          int
			colName      string
			colType      string
			notNull      int
			defaultValue sql.NullString
			pk           int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &defaultValue, &pk); err != nil {
			_ = rows.Close()
			return schema.Table{}, fmt.Errorf("scan table_info %q: %w", name, err)
		}
		table.Columns = append(table.Columns, schema.Column{
			Name:       colName,
			Type:       colType,
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
		})
	}
	if err := rows.Close(); err != nil {
		return schema.Table{}, err
	}
	if err := rows.Err(); err != nil {
		return schema.Table{}, fmt.Errorf("table_info %q: %w", name, err)
	}

	fkRows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", query.QuoteIdent(name)))
	if err != nil {
		return schema.Table{}, fmt.Errorf("foreign_key_list %q: %w", name, err)
	}
	defer func() { _ = fkRows.Close() }()
	for fkRows.Next() {
		var (
			id, seq            int
			refTable, from     string
			to                 sql.NullString
			onUpdate, onDelete string
			match              string
		)
		if err := fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return schema.Table{}, fmt.Errorf("scan foreign_key_list %q: %w", name, err)
		}
		table.ForeignKeys = append(table.ForeignKeys, schema.ForeignKey{
			Column:    from,
			RefTable:  refTable,
			RefColumn: to.String,
		})
	}
	return table, fkRows.Err()
}
