// Package schema implements an idempotent schema reconciler: diffing a declared
// table model against live PostgreSQL catalog state and emitting corrective DDL
// until a full pass makes no further change.
package schema

// DefaultSchema is the PostgreSQL schema every reconciled table is assumed to live
// in.
const DefaultSchema = "public"

// Column declares one column of a table model.
type Column struct {
	// Name is the database column name.
	Name string

	// SQLType is the declared PostgreSQL type, e.g. "text", "bigint", "timestamp",
	// "uuid", "jsonb".
	SQLType string

	// Nullable declares whether the column accepts NULL.
	Nullable bool

	// Default, if non-empty, is the column's DEFAULT expression, e.g. "now()" or
	// "'active'".
	Default string
}

// IndexColumn is one column of an index, with its sort direction.
type IndexColumn struct {
	Column     string
	Descending bool
}

// Index declares one index on a table model.
type Index struct {
	Unique  bool
	Columns []IndexColumn
}

// PrimaryKey declares a table's primary key constraint.
type PrimaryKey struct {
	// Constraint is the constraint name. Empty means "<table>_pkey".
	Constraint string

	// Columns is the ordered list of primary-key column names.
	Columns []string
}

// TableSchema is the declared model for one table: constructed once at application
// start, fed to the Reconciler, then immutable.
type TableSchema struct {
	// Schema is the PostgreSQL schema the table lives in. Empty means DefaultSchema.
	Schema string

	// Name is the bare table name (unqualified).
	Name string

	PrimaryKey *PrimaryKey
	Columns    []Column
	Indexes    map[string]Index
}

// SchemaName returns t.Schema, defaulting to DefaultSchema.
func (t TableSchema) SchemaName() string {
	if t.Schema == "" {
		return DefaultSchema
	}
	return t.Schema
}

// QualifiedName returns "schema.name".
func (t TableSchema) QualifiedName() string {
	return t.SchemaName() + "." + t.Name
}

// ColumnByName returns the declared column named name, or ok=false.
func (t TableSchema) ColumnByName(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
