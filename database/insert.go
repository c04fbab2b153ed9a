package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/myjettools/myjetpg/database/sqlbuf"
	"github.com/myjettools/myjetpg/database/where"
)

// InsertStatement builds a single-row INSERT statement: it stamps an e_tag column
// (if declared) with the current time in microseconds before binding any value,
// skips columns whose value reports Ignore, and records which columns were actually
// materialised so UPSERT can target only those in its DO UPDATE SET clause.
type InsertStatement struct {
	table  string
	entity Insertable
}

// NewInsertStatement returns a builder for entity, defaulting to entity.InsertTable().
func NewInsertStatement(entity Insertable) *InsertStatement {
	return &InsertStatement{table: entity.InsertTable(), entity: entity}
}

// Into overrides the table name the entity itself declares.
func (s *InsertStatement) Into(table string) *InsertStatement {
	s.table = table
	return s
}

// Build renders "INSERT INTO t(c1,c2,...) VALUES($1,$2,...)" against buf, returning
// the SQL text and the list of columns that were actually included.
func (s *InsertStatement) Build(buf *sqlbuf.Buffer) (sql string, usedColumns []string) {
	stampETag(s.entity)

	var columns []string
	var values []string

	for i := 0; i < s.entity.InsertFieldCount(); i++ {
		value := s.entity.InsertValue(i)
		if value == Ignore {
			continue
		}

		column := s.entity.InsertColumnName(i)
		columns = append(columns, column)
		values = append(values, where.RenderInsertValue(buf, where.ColumnMetadata{Column: column}, value))
	}

	sql = fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)",
		s.table, strings.Join(columns, ","), strings.Join(values, ","))
	return sql, columns
}

// stampETag stamps an e_tag column (if declared) with the current time in
// microseconds before binding, consulted by Insert, BulkInsert (per row) and Upsert.
func stampETag(e Insertable) {
	if _, ok := e.ETagColumn(); ok {
		e.SetETag(time.Now().UnixMicro())
	}
}

// BuildBulkInsert renders "INSERT INTO t(c1,c2,...) VALUES(...),(...),..." for rows,
// stamping each row's e_tag column independently. The used-columns list is taken
// from the first row and held fixed for the whole batch.
func BuildBulkInsert(buf *sqlbuf.Buffer, table string, rows []Insertable) (sql string, usedColumns []string) {
	if len(rows) == 0 {
		panic("database: BuildBulkInsert called with zero rows")
	}

	for _, row := range rows {
		stampETag(row)
	}

	first := rows[0]
	for i := 0; i < first.InsertFieldCount(); i++ {
		if first.InsertValue(i) == Ignore {
			continue
		}
		usedColumns = append(usedColumns, first.InsertColumnName(i))
	}

	tuples := make([]string, len(rows))
	for r, row := range rows {
		values := make([]string, 0, len(usedColumns))
		for _, column := range usedColumns {
			values = append(values, where.RenderInsertValue(buf, where.ColumnMetadata{Column: column}, valueForColumn(row, column)))
		}
		tuples[r] = "(" + strings.Join(values, ",") + ")"
	}

	sql = fmt.Sprintf("INSERT INTO %s(%s) VALUES%s", table, strings.Join(usedColumns, ","), strings.Join(tuples, ","))
	return sql, usedColumns
}

// valueForColumn looks up the Insertable value bound to column by name, since the
// fixed usedColumns list (taken from the first row) must still be applied positionally
// to every subsequent row even if a later row's own Ignore pattern differs.
func valueForColumn(e Insertable, column string) any {
	for i := 0; i < e.InsertFieldCount(); i++ {
		if e.InsertColumnName(i) == column {
			return e.InsertValue(i)
		}
	}
	panic(fmt.Sprintf("database: row does not declare column %q used by the first row of this batch", column))
}
