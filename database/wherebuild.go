package database

import (
	"fmt"
	"strings"

	"github.com/myjettools/myjetpg/database/sqlbuf"
	"github.com/myjettools/myjetpg/database/where"
)

// renderWhereConjunct renders one WhereFieldData into either a typed conjunct (via
// database/where.Render) or a raw template substitution, returning ok=false when the
// conjunct should be suppressed (ignore_if_none / empty-slice rules).
func renderWhereConjunct(buf *sqlbuf.Buffer, f WhereFieldData) (clause string, ok bool) {
	if f.Raw != nil {
		return f.Raw.Template.Render(f.Raw.ValueOf), true
	}

	return where.Render(buf, f.Data.Metadata, f.Data.Value)
}

// RenderWhere AND-joins every non-suppressed conjunct in fields, returning "" (ok=
// false) when every field was suppressed, i.e. the WHERE keyword itself should be
// omitted.
func RenderWhere(buf *sqlbuf.Buffer, fields []WhereFieldData) (clause string, ok bool) {
	var parts []string
	for _, f := range fields {
		if c, present := renderWhereConjunct(buf, f); present {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " AND "), true
}

// appendLimitOffset appends " LIMIT n" / " OFFSET n" to sql per model's declared
// values, in that order.
func appendLimitOffset(sql string, model WhereModel) string {
	if n, ok := model.Limit(); ok {
		sql += fmt.Sprintf(" LIMIT %d", n)
	}
	if n, ok := model.Offset(); ok {
		sql += fmt.Sprintf(" OFFSET %d", n)
	}
	return sql
}
