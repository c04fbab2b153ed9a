package database

import (
	"fmt"
	"strings"

	"github.com/myjettools/myjetpg/database/sqlbuf"
	"github.com/myjettools/myjetpg/database/where"
)

// UpdateStatement builds "UPDATE t SET col=val,... WHERE <primary-key-conjunction>".
// SET and WHERE parameter indices share buf and are therefore deduplicated across
// the whole statement.
type UpdateStatement struct {
	table  string
	entity Updatable
}

// NewUpdateStatement returns a builder for entity, defaulting to entity.UpdateTable().
func NewUpdateStatement(entity Updatable) *UpdateStatement {
	return &UpdateStatement{table: entity.UpdateTable(), entity: entity}
}

// Into overrides the table name the entity itself declares.
func (s *UpdateStatement) Into(table string) *UpdateStatement {
	s.table = table
	return s
}

// Build renders the UPDATE statement against buf.
func (s *UpdateStatement) Build(buf *sqlbuf.Buffer) string {
	var assignments []string
	for i := 0; i < s.entity.UpdateFieldCount(); i++ {
		value := s.entity.UpdateValue(i)
		if value == Ignore {
			continue
		}

		column := s.entity.UpdateColumnName(i)
		rhs := where.RenderUpdateValue(buf, s.entity.UpdateMetadata(i), value)
		assignments = append(assignments, fmt.Sprintf("%s=%s", column, rhs))
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", s.table, strings.Join(assignments, ","))

	pkFields := s.entity.PrimaryKeyFields()
	if whereClause, ok := RenderWhere(buf, pkFields); ok {
		sql += " WHERE " + whereClause
	}

	return sql
}
