package database

import (
	"fmt"
	"strings"

	"github.com/myjettools/myjetpg/database/sqlbuf"
)

// BuildBulkUnionSelect emits one "SELECT <i>::int as where_no, <projection> FROM t
// WHERE ..." per element of models, UNION-combined in declaration order. where_no
// equals the 0-based index of the WHERE model that produced it.
func BuildBulkUnionSelect(buf *sqlbuf.Buffer, table string, fields []SelectField, models []WhereModel) string {
	if len(models) == 0 {
		panic("database: BuildBulkUnionSelect called with zero WHERE models")
	}

	branches := make([]string, len(models))
	for i, model := range models {
		branch := fmt.Sprintf("SELECT %d::int as where_no,%s FROM %s", i, renderProjection(fields), table)
		if whereClause, ok := RenderWhere(buf, model.WhereFields()); ok {
			branch += " WHERE " + whereClause
		}
		branch = appendLimitOffset(branch, model)
		branches[i] = branch
	}

	return strings.Join(branches, " UNION ")
}

// DispatchByLineNo regroups rows scanned back from a bulk UNION select into one
// slice per originating WHERE model, using each row's BulkSelectable.LineNo() (the
// where_no column), preserving per-input-row identity.
func DispatchByLineNo[T BulkSelectable](rows []T, modelCount int) [][]T {
	out := make([][]T, modelCount)
	for _, row := range rows {
		n := row.LineNo()
		if n < 0 || n >= modelCount {
			panic(fmt.Sprintf("database: row carries out-of-range where_no %d (expected [0,%d))", n, modelCount))
		}
		out[n] = append(out[n], row)
	}
	return out
}
