package schema

import "errors"

// ErrUnavailable indicates the database structure could not be introspected
// (unreadable file, unsupported layout, or a database with no tables). It is
// fatal to the session: without a schema there is nothing to prompt with.
var ErrUnavailable = errors.New("schema unavailable")

// Database is the structural description of an opened database. It carries
// no row data; only metadata crosses the process boundary.
type Database struct {
	Name   string
	Tables []Table
}

// Table describes one table and its declared relationships.
type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// Column describes one column as declared, not as stored.
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
}

// ForeignKey describes a declared reference from a column of the owning
// table to a column of another table.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}
