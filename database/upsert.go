package database

import (
	"fmt"
	"strings"

	"github.com/myjettools/myjetpg/database/sqlbuf"
)

// UpsertStatement builds INSERT ... ON CONFLICT ... DO UPDATE SET.
type UpsertStatement struct {
	table  string
	entity UpsertEntity
	target ConflictTarget
}

// NewUpsertStatement returns a builder for entity. target selects the ON CONFLICT
// clause; leave both of its fields empty to fall back to entity.PrimaryKeyColumns().
func NewUpsertStatement(entity UpsertEntity, target ConflictTarget) *UpsertStatement {
	return &UpsertStatement{table: entity.InsertTable(), entity: entity, target: target}
}

// Into overrides the table name the entity itself declares.
func (s *UpsertStatement) Into(table string) *UpsertStatement {
	s.table = table
	return s
}

func (s *UpsertStatement) onConflictTarget() string {
	if s.target.Constraint != "" {
		return "ON CONFLICT ON CONSTRAINT " + s.target.Constraint
	}

	columns := s.target.Columns
	if len(columns) == 0 {
		columns = s.entity.PrimaryKeyColumns()
	}
	return fmt.Sprintf("ON CONFLICT (%s)", strings.Join(columns, ","))
}

// Build renders the single-row UPSERT statement against buf.
func (s *UpsertStatement) Build(buf *sqlbuf.Buffer) string {
	insertSQL, usedColumns := NewInsertStatement(s.entity).Into(s.table).Build(buf)
	return insertSQL + " " + s.onConflictTarget() + " " + doUpdateSetClause(usedColumns, s.entity.PrimaryKeyColumns())
}

// doUpdateSetClause renders "DO UPDATE SET c=EXCLUDED.c,..." for every materialised
// column that is not part of the primary key.
func doUpdateSetClause(usedColumns, primaryKeyColumns []string) string {
	pk := make(map[string]bool, len(primaryKeyColumns))
	for _, c := range primaryKeyColumns {
		pk[c] = true
	}

	var assignments []string
	for _, c := range usedColumns {
		if pk[c] {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s=EXCLUDED.%s", c, c))
	}

	return "DO UPDATE SET " + strings.Join(assignments, ",")
}

// BuildBulkUpsert renders the bulk form: a single INSERT...VALUES(...),(...),...
// followed by one shared ON CONFLICT...DO UPDATE SET clause, after a duplicate
// primary-key pre-check: within one call no two input rows may share a primary-key
// tuple, enforced by a pre-execution set check that panics on violation. This check
// applies to bulk UPSERT only, never to single-row INSERT/UPSERT.
func BuildBulkUpsert(buf *sqlbuf.Buffer, table string, rows []UpsertEntity, target ConflictTarget) string {
	if len(rows) == 0 {
		panic("database: BuildBulkUpsert called with zero rows")
	}

	checkNoDuplicatePrimaryKeys(rows)

	insertables := make([]Insertable, len(rows))
	for i, r := range rows {
		insertables[i] = r
	}

	insertSQL, usedColumns := BuildBulkInsert(buf, table, insertables)

	first := rows[0]
	t := target
	if t.Constraint == "" && len(t.Columns) == 0 {
		t.Columns = first.PrimaryKeyColumns()
	}

	s := &UpsertStatement{table: table, entity: first, target: t}
	return insertSQL + " " + s.onConflictTarget() + " " + doUpdateSetClause(usedColumns, first.PrimaryKeyColumns())
}

// checkNoDuplicatePrimaryKeys panics if any two rows share the same
// PrimaryKeyString() primary-key-as-single-string representation.
func checkNoDuplicatePrimaryKeys(rows []UpsertEntity) {
	seen := make(map[string]int, len(rows))
	for i, r := range rows {
		key := r.PrimaryKeyString()
		if j, exists := seen[key]; exists {
			panic(fmt.Sprintf("database: bulk upsert rows %d and %d share primary key %q", j, i, key))
		}
		seen[key] = i
	}
}
