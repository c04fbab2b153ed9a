package database

import (
	"fmt"
	"strings"

	"github.com/myjettools/myjetpg/database/sqlbuf"
)

// DeleteStatement builds "DELETE FROM t WHERE ...".
type DeleteStatement struct {
	table string
	model WhereModel
}

// NewDeleteStatement returns a builder for table, driven by model's WHERE clause.
func NewDeleteStatement(table string, model WhereModel) *DeleteStatement {
	return &DeleteStatement{table: table, model: model}
}

// Build renders the DELETE statement against buf.
func (s *DeleteStatement) Build(buf *sqlbuf.Buffer) string {
	sql := fmt.Sprintf("DELETE FROM %s", s.table)
	if whereClause, ok := RenderWhere(buf, s.model.WhereFields()); ok {
		sql += " WHERE " + whereClause
	}
	return appendLimitOffset(sql, s.model)
}

// BuildBulkDelete OR-combines one parenthesised WHERE sub-expression per model in
// models. LIMIT/OFFSET is taken from the first model, since a single DELETE
// statement has one LIMIT/OFFSET for the entire result, not per sub-expression.
func BuildBulkDelete(buf *sqlbuf.Buffer, table string, models []WhereModel) string {
	if len(models) == 0 {
		panic("database: BuildBulkDelete called with zero models")
	}

	var groups []string
	for _, model := range models {
		if clause, ok := RenderWhere(buf, model.WhereFields()); ok {
			groups = append(groups, "("+clause+")")
		}
	}

	sql := fmt.Sprintf("DELETE FROM %s", table)
	if len(groups) > 0 {
		sql += " WHERE " + strings.Join(groups, " OR ")
	}

	return appendLimitOffset(sql, models[0])
}
