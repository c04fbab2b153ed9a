package database

import "github.com/myjettools/myjetpg/database/where"

// SelectFieldValue is the tagged union that drives one projected column of a SELECT.
// Exactly one concrete type below is used per SelectField.
type SelectFieldValue interface {
	isSelectFieldValue()
}

// LineNoValue projects the synthetic "where_no" column of a bulk UNION select.
type LineNoValue struct{ Index int }

// FieldValue projects a bare column, optionally wrapped (e.g. coalesce/cast text
// supplied by the entity) when Wrap is non-empty. Wrap must contain exactly one "%s"
// verb, substituted with the column name.
type FieldValue struct {
	Column string
	Wrap   string
}

// FieldWithCastValue projects "column::to".
type FieldWithCastValue struct {
	Column string
	To     string
}

// JSONValue projects a JSON/JSONB column as text: `col #>> '{}' as "field"`.
type JSONValue struct{ Column string }

// DateTimeAsBigintValue projects a bigint-backed timestamp column unchanged.
type DateTimeAsBigintValue struct{ Column string }

// DateTimeAsTimestampValue projects a timestamp column as epoch microseconds:
// `(extract(EPOCH FROM col) * 1000000)::bigint as "field"`.
type DateTimeAsTimestampValue struct{ Column string }

// GroupByFieldValue projects an aggregate expression: `<aggregate>(col)::<type> as
// "field"`, or the bare Statement when Statement is non-empty (a caller-supplied
// aggregate expression such as "count(*)").
type GroupByFieldValue struct {
	Column    string
	Aggregate string
	SQLType   string
	Statement string
}

func (LineNoValue) isSelectFieldValue()              {}
func (FieldValue) isSelectFieldValue()               {}
func (FieldWithCastValue) isSelectFieldValue()       {}
func (JSONValue) isSelectFieldValue()                {}
func (DateTimeAsBigintValue) isSelectFieldValue()    {}
func (DateTimeAsTimestampValue) isSelectFieldValue() {}
func (GroupByFieldValue) isSelectFieldValue()        {}

// SelectField pairs a projected expression with the Go-visible field/alias name used
// both as the SQL "AS" alias and, via sqlx's struct-tag mapper, as the destination
// field when scanning a row back into an entity.
type SelectField struct {
	Alias string
	Value SelectFieldValue
}

// Ignore is the sentinel Insertable.InsertValue/Updatable.UpdateValue implementations
// return for a column that must be omitted entirely from the statement.
var Ignore = ignoreMarker{}

type ignoreMarker struct{}

// RawWhereField backs a raw WHERE template built from literal content interleaved
// with ${field} placeholders: Template is tokenised once via where.ParseRawTemplate,
// and ValueOf resolves a placeholder's field name to its rendered value expression
// at call time.
type RawWhereField struct {
	Template where.RawTemplate
	ValueOf  func(field string) string
}

// WhereFieldData is either a typed per-column WHERE conjunct (DataField non-nil) or a
// raw template conjunct (Raw non-nil).
type WhereFieldData struct {
	Data *DataField
	Raw  *RawWhereField
}

// DataField is the typed form of a WHERE conjunct.
type DataField struct {
	Metadata where.ColumnMetadata
	Value    any
}

// Selectable is the capability an entity needs to drive a SELECT builder and to be
// materialised back from a database row (the latter delegated to sqlx's struct-tag
// reflection).
type Selectable interface {
	// SelectTable returns the table (and, where relevant, schema-qualified) name.
	SelectTable() string

	// SelectFields returns the ordered projected fields.
	SelectFields() []SelectField

	// OrderBy returns verbatim ORDER BY text (without the "ORDER BY" keyword), or
	// "" to omit the clause.
	OrderBy() string

	// GroupBy returns verbatim GROUP BY text (without the "GROUP BY" keyword), or
	// "" to omit the clause.
	GroupBy() string
}

// BulkSelectable is Selectable plus the where_no bookkeeping a bulk UNION select
// dispatches rows by.
type BulkSelectable interface {
	Selectable

	// LineNo returns the value most recently set by SetLineNo.
	LineNo() int

	// SetLineNo stores the "where_no" value scanned back for this row so the
	// caller can regroup results by originating WHERE model.
	SetLineNo(int)
}

// Insertable is the capability an entity needs to drive INSERT/BULK INSERT/UPSERT.
type Insertable interface {
	InsertTable() string

	// InsertFieldCount returns the number of candidate columns.
	InsertFieldCount() int

	// InsertColumnName returns the database column name for field i.
	InsertColumnName(i int) string

	// InsertValue returns the value for field i, or Ignore to omit the column
	// from the statement entirely.
	InsertValue(i int) any

	// ETagColumn returns the column name to stamp with the current time in
	// microseconds before binding, and whether one is declared at all.
	ETagColumn() (string, bool)

	// SetETag stores the microsecond timestamp stamped into the e_tag column, so
	// callers can read back what was written.
	SetETag(micros int64)
}

// Updatable is the capability an entity needs to drive UPDATE and to supply the
// primary-key WHERE conjunction UPDATE/UPSERT key off.
type Updatable interface {
	UpdateTable() string

	// UpdateFieldCount returns the number of candidate columns.
	UpdateFieldCount() int

	// UpdateColumnName returns the database column name for field i.
	UpdateColumnName(i int) string

	// UpdateValue returns the value for field i, or Ignore to omit the column.
	UpdateValue(i int) any

	// UpdateMetadata returns the where.ColumnMetadata used to render field i's
	// right-hand side (JSON path / sql_type gating), or the zero value.
	UpdateMetadata(i int) where.ColumnMetadata

	// PrimaryKeyFields returns the ordered primary-key WHERE conjuncts used by
	// UPDATE's WHERE clause.
	PrimaryKeyFields() []WhereFieldData

	// PrimaryKeyColumns returns the bare ordered primary-key column names, used by
	// UPSERT's "ON CONFLICT (col,...)" target when no named constraint is supplied.
	PrimaryKeyColumns() []string

	// PrimaryKeyString renders the primary key as a single comparable string, used
	// by the bulk-upsert duplicate pre-check.
	PrimaryKeyString() string
}

// WhereModel is the capability an entity needs to drive a WHERE clause (SELECT,
// UPDATE, DELETE, bulk UNION SELECT).
type WhereModel interface {
	// WhereFields returns the ordered WHERE conjuncts.
	WhereFields() []WhereFieldData

	// Limit returns the LIMIT value and whether one is declared.
	Limit() (int, bool)

	// Offset returns the OFFSET value and whether one is declared.
	Offset() (int, bool)
}

// Entity is the union every statement builder accepts; a concrete type opts in to
// exactly the subset of capabilities the builder it is passed to needs.
type Entity interface {
	any
}

// UpsertEntity is the capability UPSERT needs: both the INSERT side and enough of
// the UPDATE side to know the primary key and per-column EXCLUDED assignments.
type UpsertEntity interface {
	Insertable
	Updatable
}

// ConflictTarget describes UPSERT's "ON CONFLICT ..." target: either a named
// constraint or an explicit column list. Exactly one of Constraint or Columns should
// be set; if both are empty, the builder falls back to the entity's primary key
// columns.
type ConflictTarget struct {
	Constraint string
	Columns    []string
}
