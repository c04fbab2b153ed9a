package database

import (
	"strconv"
	"testing"

	"github.com/myjettools/myjetpg/database/sqlbuf"
	"github.com/myjettools/myjetpg/database/where"
	"github.com/stretchr/testify/require"
)

// widget is a minimal entity satisfying every capability interface this package's
// statement builders need, used to exercise them without a real database.
type widget struct {
	ID     int
	Name   string
	ETag   int64
	lineNo int
}

func (w *widget) InsertTable() string   { return "widgets" }
func (w *widget) InsertFieldCount() int { return 3 }
func (w *widget) InsertColumnName(i int) string {
	return []string{"id", "name", "e_tag"}[i]
}
func (w *widget) InsertValue(i int) any {
	switch i {
	case 0:
		return w.ID
	case 1:
		return w.Name
	default:
		return Ignore
	}
}
func (w *widget) ETagColumn() (string, bool) { return "e_tag", true }
func (w *widget) SetETag(micros int64)       { w.ETag = micros }

func (w *widget) UpdateTable() string   { return "widgets" }
func (w *widget) UpdateFieldCount() int { return 1 }
func (w *widget) UpdateColumnName(int) string {
	return "name"
}
func (w *widget) UpdateValue(int) any { return w.Name }
func (w *widget) UpdateMetadata(int) where.ColumnMetadata {
	return where.ColumnMetadata{Column: "name"}
}
func (w *widget) PrimaryKeyFields() []WhereFieldData {
	return []WhereFieldData{{Data: &DataField{Metadata: where.ColumnMetadata{Column: "id"}, Value: w.ID}}}
}
func (w *widget) PrimaryKeyColumns() []string { return []string{"id"} }
func (w *widget) PrimaryKeyString() string    { return strconv.Itoa(w.ID) }

func (w *widget) SelectTable() string { return "widgets" }
func (w *widget) SelectFields() []SelectField {
	return []SelectField{
		{Alias: "id", Value: FieldValue{Column: "id"}},
		{Alias: "name", Value: FieldValue{Column: "name"}},
	}
}
func (w *widget) OrderBy() string { return "" }
func (w *widget) GroupBy() string { return "" }
func (w *widget) LineNo() int     { return w.lineNo }
func (w *widget) SetLineNo(n int) { w.lineNo = n }

func (w *widget) WhereFields() []WhereFieldData {
	return []WhereFieldData{{Data: &DataField{Metadata: where.ColumnMetadata{Column: "id"}, Value: w.ID}}}
}
func (w *widget) Limit() (int, bool)  { return 0, false }
func (w *widget) Offset() (int, bool) { return 0, false }

// kvRow mirrors the enum-as-integer scenario: two string columns bound as
// parameters, one integer column rendered inline.
type kvRow struct {
	ClientID string
	Key      string
	Value    int
	etag     int64
}

func (r *kvRow) InsertTable() string   { return "t" }
func (r *kvRow) InsertFieldCount() int { return 3 }
func (r *kvRow) InsertColumnName(i int) string {
	return []string{"client_id", "key", "value"}[i]
}
func (r *kvRow) InsertValue(i int) any {
	switch i {
	case 0:
		return r.ClientID
	case 1:
		return r.Key
	default:
		return r.Value
	}
}
func (r *kvRow) ETagColumn() (string, bool) { return "", false }
func (r *kvRow) SetETag(micros int64)       { r.etag = micros }

func (r *kvRow) UpdateTable() string   { return "t" }
func (r *kvRow) UpdateFieldCount() int { return 1 }
func (r *kvRow) UpdateColumnName(int) string {
	return "value"
}
func (r *kvRow) UpdateValue(int) any { return r.Value }
func (r *kvRow) UpdateMetadata(int) where.ColumnMetadata {
	return where.ColumnMetadata{Column: "value"}
}
func (r *kvRow) PrimaryKeyFields() []WhereFieldData {
	return []WhereFieldData{
		{Data: &DataField{Metadata: where.ColumnMetadata{Column: "client_id"}, Value: r.ClientID}},
		{Data: &DataField{Metadata: where.ColumnMetadata{Column: "key"}, Value: r.Key}},
	}
}
func (r *kvRow) PrimaryKeyColumns() []string { return []string{"client_id", "key"} }
func (r *kvRow) PrimaryKeyString() string    { return r.ClientID + "|" + r.Key }

func TestInsertStatement_Build(t *testing.T) {
	buf := sqlbuf.New()
	w := &widget{ID: 1, Name: "gear"}

	sql, cols := NewInsertStatement(w).Build(buf)

	require.Equal(t, []string{"id", "name"}, cols)
	require.Equal(t, "INSERT INTO widgets(id,name) VALUES(1,$1)", sql)
	require.Equal(t, []any{"gear"}, buf.Materialize())
	require.NotZero(t, w.ETag, "ETagColumn declared, SetETag must be called")
}

func TestInsertStatement_EnumAsInteger(t *testing.T) {
	buf := sqlbuf.New()
	r := &kvRow{ClientID: "client1", Key: "key1", Value: 1}

	sql, _ := NewInsertStatement(r).Build(buf)

	require.Equal(t, "INSERT INTO t(client_id,key,value) VALUES($1,$2,1)", sql)
	require.Equal(t, []any{"client1", "key1"}, buf.Materialize())
}

func TestBuildBulkInsert(t *testing.T) {
	buf := sqlbuf.New()
	rows := []Insertable{&widget{ID: 1, Name: "a"}, &widget{ID: 2, Name: "b"}}

	sql, cols := BuildBulkInsert(buf, "widgets", rows)

	require.Equal(t, []string{"id", "name"}, cols)
	require.Equal(t, "INSERT INTO widgets(id,name) VALUES(1,$1),(2,$2)", sql)
	require.Equal(t, []any{"a", "b"}, buf.Materialize())
}

func TestSelectStatement_Build(t *testing.T) {
	buf := sqlbuf.New()
	w := &widget{ID: 7}

	sql := NewSelectStatement(w, w).Build(buf)

	require.Equal(t, "SELECT id,name FROM widgets WHERE id=7", sql)
	require.Equal(t, 0, buf.Len())
}

func TestUpdateStatement_Build(t *testing.T) {
	buf := sqlbuf.New()
	w := &widget{ID: 3, Name: "updated"}

	sql := NewUpdateStatement(w).Build(buf)

	require.Equal(t, "UPDATE widgets SET name=$1 WHERE id=3", sql)
	require.Equal(t, []any{"updated"}, buf.Materialize())
}

func TestUpdateStatement_SharedDedupAcrossSetAndWhere(t *testing.T) {
	buf := sqlbuf.New()
	r := &kvRow{ClientID: "same", Key: "same", Value: 2}

	sql := NewUpdateStatement(r).Build(buf)

	// "same" is pushed once; both WHERE conjuncts share $1.
	require.Equal(t, "UPDATE t SET value=2 WHERE client_id=$1 AND key=$1", sql)
	require.Equal(t, []any{"same"}, buf.Materialize())
}

func TestDeleteStatement_Build(t *testing.T) {
	buf := sqlbuf.New()
	w := &widget{ID: 9}

	sql := NewDeleteStatement("widgets", w).Build(buf)

	require.Equal(t, "DELETE FROM widgets WHERE id=9", sql)
}

func TestBuildBulkDelete_ORJoinsParenthesised(t *testing.T) {
	buf := sqlbuf.New()
	models := []WhereModel{&widget{ID: 1}, &widget{ID: 2}}

	sql := BuildBulkDelete(buf, "widgets", models)

	require.Equal(t, "DELETE FROM widgets WHERE (id=1) OR (id=2)", sql)
}

func TestUpsertStatement_Build(t *testing.T) {
	buf := sqlbuf.New()
	w := &widget{ID: 4, Name: "ups"}

	sql := NewUpsertStatement(w, ConflictTarget{}).Build(buf)

	require.Contains(t, sql, "INSERT INTO widgets(id,name) VALUES(4,$1)")
	require.Contains(t, sql, "ON CONFLICT (id)")
	require.Contains(t, sql, "DO UPDATE SET name=EXCLUDED.name")
}

func TestBuildBulkUpsert_NamedConstraint(t *testing.T) {
	buf := sqlbuf.New()
	rows := []UpsertEntity{
		&kvRow{ClientID: "client1", Key: "key1", Value: 1},
		&kvRow{ClientID: "client1", Key: "key2", Value: 2},
	}

	sql := BuildBulkUpsert(buf, "t", rows, ConflictTarget{Constraint: "pk_name"})

	require.Equal(t,
		"INSERT INTO t(client_id,key,value) VALUES($1,$2,1),($1,$3,2)"+
			" ON CONFLICT ON CONSTRAINT pk_name DO UPDATE SET value=EXCLUDED.value",
		sql)
	require.Equal(t, []any{"client1", "key1", "key2"}, buf.Materialize())
}

func TestBuildBulkUpsert_DuplicatePrimaryKeyPanics(t *testing.T) {
	buf := sqlbuf.New()
	rows := []UpsertEntity{
		&kvRow{ClientID: "client1", Key: "key1", Value: 1},
		&kvRow{ClientID: "client1", Key: "key1", Value: 2},
	}

	require.Panics(t, func() {
		BuildBulkUpsert(buf, "t", rows, ConflictTarget{})
	})
}

func TestBuildBulkUnionSelectAndDispatch(t *testing.T) {
	buf := sqlbuf.New()
	models := []WhereModel{&widget{ID: 1}, &widget{ID: 2}}

	sql := BuildBulkUnionSelect(buf, "widgets", (&widget{}).SelectFields(), models)

	require.Equal(t,
		"SELECT 0::int as where_no,id,name FROM widgets WHERE id=1"+
			" UNION SELECT 1::int as where_no,id,name FROM widgets WHERE id=2",
		sql)

	rows := []*widget{{ID: 1, lineNo: 0}, {ID: 2, lineNo: 1}, {ID: 10, lineNo: 0}}
	grouped := DispatchByLineNo(rows, len(models))

	require.Len(t, grouped, 2)
	require.Len(t, grouped[0], 2)
	require.Len(t, grouped[1], 1)
}

func TestRenderSelectField_Projections(t *testing.T) {
	cases := []struct {
		field SelectField
		want  string
	}{
		{SelectField{Alias: "f", Value: FieldValue{Column: "col"}}, "col"},
		{SelectField{Alias: "f", Value: FieldWithCastValue{Column: "col", To: "bigint"}}, "col::bigint"},
		{SelectField{Alias: "f", Value: JSONValue{Column: "col"}}, `col #>> '{}' as "f"`},
		{SelectField{Alias: "f", Value: DateTimeAsBigintValue{Column: "col"}}, "col"},
		{SelectField{Alias: "f", Value: DateTimeAsTimestampValue{Column: "col"}},
			`(extract(EPOCH FROM col) * 1000000)::bigint as "f"`},
		{SelectField{Alias: "f", Value: GroupByFieldValue{Column: "col", Aggregate: "max", SQLType: "bigint"}},
			`max(col)::bigint as "f"`},
		{SelectField{Alias: "f", Value: GroupByFieldValue{Statement: "count(*)"}}, `count(*) as "f"`},
		{SelectField{Alias: "f", Value: LineNoValue{Index: 3}}, "3::int as where_no"},
	}

	for _, c := range cases {
		require.Equal(t, c.want, renderSelectField(c.field))
	}
}
