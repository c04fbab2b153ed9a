package database

import (
	"fmt"
	"strings"

	"github.com/myjettools/myjetpg/database/sqlbuf"
)

// renderSelectField renders one projected column per its concrete SelectFieldValue
// type.
func renderSelectField(f SelectField) string {
	switch v := f.Value.(type) {
	case LineNoValue:
		return fmt.Sprintf("%d::int as where_no", v.Index)

	case FieldValue:
		if v.Wrap != "" {
			return fmt.Sprintf(v.Wrap, v.Column)
		}
		return v.Column

	case FieldWithCastValue:
		return fmt.Sprintf("%s::%s", v.Column, v.To)

	case JSONValue:
		return fmt.Sprintf(`%s #>> '{}' as "%s"`, v.Column, f.Alias)

	case DateTimeAsBigintValue:
		return v.Column

	case DateTimeAsTimestampValue:
		return fmt.Sprintf(`(extract(EPOCH FROM %s) * 1000000)::bigint as "%s"`, v.Column, f.Alias)

	case GroupByFieldValue:
		if v.Statement != "" {
			return fmt.Sprintf(`%s as "%s"`, v.Statement, f.Alias)
		}

		expr := v.Column
		if v.Aggregate != "" {
			expr = fmt.Sprintf("%s(%s)", v.Aggregate, v.Column)
		}
		if v.SQLType != "" {
			expr = fmt.Sprintf("%s::%s", expr, v.SQLType)
		}
		return fmt.Sprintf(`%s as "%s"`, expr, f.Alias)

	default:
		panic(fmt.Sprintf("database: unhandled SelectFieldValue %T", f.Value))
	}
}

func renderProjection(fields []SelectField) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = renderSelectField(f)
	}
	return strings.Join(parts, ",")
}

// SelectStatement builds SELECT statements: projection is driven by the entity's
// declared field list; WHERE, LIMIT, OFFSET come from an optional WhereModel;
// ORDER BY/GROUP BY are appended verbatim.
type SelectStatement struct {
	table  string
	entity Selectable
	model  WhereModel
}

// NewSelectStatement returns a builder for entity, optionally filtered by model
// (pass nil to select every row).
func NewSelectStatement(entity Selectable, model WhereModel) *SelectStatement {
	return &SelectStatement{table: entity.SelectTable(), entity: entity, model: model}
}

// Into overrides the table name the entity itself declares.
func (s *SelectStatement) Into(table string) *SelectStatement {
	s.table = table
	return s
}

// Build renders the SELECT statement against buf.
func (s *SelectStatement) Build(buf *sqlbuf.Buffer) string {
	sql := fmt.Sprintf("SELECT %s FROM %s", renderProjection(s.entity.SelectFields()), s.table)

	if s.model != nil {
		if whereClause, ok := RenderWhere(buf, s.model.WhereFields()); ok {
			sql += " WHERE " + whereClause
		}
	}

	if groupBy := s.entity.GroupBy(); groupBy != "" {
		sql += " GROUP BY " + groupBy
	}

	if orderBy := s.entity.OrderBy(); orderBy != "" {
		sql += " ORDER BY " + orderBy
	}

	if s.model != nil {
		sql = appendLimitOffset(sql, s.model)
	}

	return sql
}
