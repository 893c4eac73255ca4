package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
)

// Engine is a read-only session over a PostgreSQL database.
type Engine struct {
	db     *sql.DB
	runner *query.Runner
	name   string
}

// Open connects with default_transaction_read_only forced on for every
// pooled connection, so the server rejects writes no matter what statement
// text reaches it.
func Open(ctx context.Context, dsn string, rowLimit int) (*Engine, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	cfg.RuntimeParams["default_transaction_read_only"] = "on"

	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithDB(db, cfg.Database, rowLimit), nil
}

// NewWithDB wraps an existing handle. Tests inject a mocked handle here.
func NewWithDB(db *sql.DB, name string, rowLimit int) *Engine {
	return &Engine{
		db:     db,
		runner: &query.Runner{DB: db, RowLimit: rowLimit},
		name:   name,
	}
}

func (e *Engine) Dialect() string { return "postgres" }

func (e *Engine) Close() error { return e.db.Close() }

func (e *Engine) Execute(ctx context.Context, sqlText string) (query.Result, error) {
	return e.runner.Execute(ctx, sqlText)
}

const (
	listTablesSQL = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`

	listColumnsSQL = `SELECT column_name, data_type, is_nullable = 'YES' FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1 ORDER BY ordinal_position`

	listPrimaryKeySQL = `SELECT ku.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage ku ON tc.constraint_name = ku.constraint_name AND tc.table_schema = ku.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public' AND tc.table_name = $1`

	listForeignKeySQL = `SELECT ku.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage ku ON tc.constraint_name = ku.constraint_name AND tc.table_schema = ku.table_schema
JOIN information_schema.constraint_column_usage ccu ON tc.constraint_name = ccu.constraint_name
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public' AND tc.table_name = $1`
)

// IntrospectSchema reads the public schema's structure from
// information_schema. Only metadata is queried, never table contents.
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
	rows, err := e.db.QueryContext(ctx, listTablesSQL)
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

	rows, err := e.db.QueryContext(ctx, listColumnsSQL, name)
	if err != nil {
		return schema.Table{}, fmt.Errorf("list columns %q: %w", name, err)
	}
	for rows.Next() {
		var col schema.Column
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable); err != nil {
			_ = rows.Close()
			return schema.Table{}, fmt.Errorf("scan column %q: %w", name, err)
		}
		table.Columns = append(table.Columns, col)
	}
	if err := rows.Close(); err != nil {
		return schema.Table{}, err
	}
	if err := rows.Err(); err != nil {
		return schema.Table{}, fmt.Errorf("list columns %q: %w", name, err)
	}

	pkRows, err := e.db.QueryContext(ctx, listPrimaryKeySQL, name)
	if err != nil {
		return schema.Table{}, fmt.Errorf("list primary key %q: %w", name, err)
	}
	primary := map[string]bool{}
	for pkRows.Next() {
		var col string
		if err := pkRows.Scan(&col); err != nil {
			_ = pkRows.Close()
			return schema.Table{}, fmt.Errorf("scan primary key %q: %w", name, err)
		}
		primary[col] = true
	}
	if err := pkRows.Close(); err != nil {
		return schema.Table{}, err
	}
	if err := pkRows.Err(); err != nil {
		return schema.Table{}, fmt.Errorf("list primary key %q: %w", name, err)
	}
	for i := range table.Columns {
		if primary[table.Columns[i].Name] {
			table.Columns[i].PrimaryKey = true
		}
	}

	fkRows, err := e.db.QueryContext(ctx, listForeignKeySQL, name)
	if err != nil {
		return schema.Table{}, fmt.Errorf("list foreign keys %q: %w", name, err)
	}
	defer func() { _ = fkRows.Close() }()
	for fkRows.Next() {
		var fk schema.ForeignKey
		if err := fkRows.Scan(&fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return schema.Table{}, fmt.Errorf("scan foreign key %q: %w", name, err)
		}
		table.ForeignKeys = append(table.ForeignKeys, fk)
	}
	return table, fkRows.Err()
}
