package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestIntrospectSchemaAssemblesTables(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	engine := NewWithDB(db, "shop", 25)
	defer func() { _ = engine.Close() }()

	mock.ExpectQuery(listTablesSQL).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("customer").AddRow("orders"))

	mock.ExpectQuery(listColumnsSQL).WithArgs("customer").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "nullable"}).
			AddRow("id", "integer", false).
			AddRow("name", "text", true))
	mock.ExpectQuery(listPrimaryKeySQL).WithArgs("customer").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id"))
	mock.ExpectQuery(listForeignKeySQL).WithArgs("customer").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "table_name", "ref_column"}))

	mock.ExpectQuery(listColumnsSQL).WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "nullable"}).
			AddRow("id", "integer", false).
			AddRow("customer_id", "integer", true))
	mock.ExpectQuery(listPrimaryKeySQL).WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id"))
	mock.ExpectQuery(listForeignKeySQL).WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "table_name", "ref_column"}).
			AddRow("customer_id", "customer", "id"))

	got, err := engine.IntrospectSchema(context.Background())
	if err != nil {
		t.Fatalf("IntrospectSchema() error = %v", err)
	}
	if got.Name != "shop" {
		t.Fatalf("database name = %q", got.Name)
	}
	if len(got.Tables) != 2 {
		t.Fatalf("tables = %d", len(got.Tables))
	}
	customer := got.Tables[0]
	if !customer.Columns[0].PrimaryKey {
		t.Fatalf("customer.id should be primary key: %+v", customer.Columns[0])
	}
	orders := got.Tables[1]
	if len(orders.ForeignKeys) != 1 || orders.ForeignKeys[0].RefTable != "customer" {
		t.Fatalf("orders foreign keys = %+v", orders.ForeignKeys)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIntrospectSchemaFailsOnEmptyDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	engine := NewWithDB(db, "empty", 25)
	defer func() { _ = engine.Close() }()

	mock.ExpectQuery(listTablesSQL).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}))

	if _, err := engine.IntrospectSchema(context.Background()); err == nil {
		t.Fatal("expected schema error for database with no tables")
	}
}

func TestExecuteThroughRunner(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	engine := NewWithDB(db, "shop", 5)
	defer func() { _ = engine.Close() }()

	mock.ExpectQuery("SELECT * FROM (SELECT COUNT(*) FROM customer) AS q LIMIT 5").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	result, err := engine.Execute(context.Background(), "SELECT COUNT(*) FROM customer;")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0][0] != int64(42) {
		t.Fatalf("count = %#v", result.Rows[0][0])
	}
}
