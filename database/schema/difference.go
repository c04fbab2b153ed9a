package schema

import (
	"regexp"
	"strings"
)

// transformValue normalises a live column_default value read back from
// information_schema.columns for comparison against a declared Column.Default,
// stripping a trailing "::type" cast and surrounding single quotes, e.g.
// "'2021-01-01'::date" -> "2021-01-01".
func transformValue(s string) string {
	if i := strings.LastIndex(s, "::"); i >= 0 {
		s = s[:i]
	}

	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = s[1 : len(s)-1]
	}

	return s
}

// liveColumn is one row read back from information_schema.columns.
type liveColumn struct {
	Name       string
	DataType   string
	IsNullable bool
	Default    string
}

// fieldDiff is the result of diffing a TableSchema's declared columns against live
// ones.
type fieldDiff struct {
	toAdd    []Column
	toUpdate []columnUpdate
}

// columnUpdate names which of a column's attributes differ and by how much.
type columnUpdate struct {
	Column         Column
	TypeDiffers    bool
	NullDiffers    bool
	DefaultDiffers bool
}

func diffFields(declared []Column, live []liveColumn) fieldDiff {
	liveByName := make(map[string]liveColumn, len(live))
	for _, c := range live {
		liveByName[c.Name] = c
	}

	var d fieldDiff
	for _, want := range declared {
		got, ok := liveByName[want.Name]
		if !ok {
			d.toAdd = append(d.toAdd, want)
			continue
		}

		u := columnUpdate{Column: want}
		u.TypeDiffers = !strings.EqualFold(got.DataType, want.SQLType)
		u.NullDiffers = got.IsNullable != want.Nullable
		u.DefaultDiffers = transformValue(got.Default) != transformValue(want.Default)

		if u.TypeDiffers || u.NullDiffers || u.DefaultDiffers {
			d.toUpdate = append(d.toUpdate, u)
		}
	}

	return d
}

// primaryKeyDiffers reports whether the live, ordered PK column list differs from
// declared.
func primaryKeyDiffers(declared []string, live []string) bool {
	if len(declared) != len(live) {
		return true
	}
	for i := range declared {
		if declared[i] != live[i] {
			return true
		}
	}
	return false
}

var indexDefColumnsRe = regexp.MustCompile(`\(([^)]*)\)\s*$`)

// parseIndexDef recovers an Index from one pg_indexes.indexdef string, e.g.
// "CREATE UNIQUE INDEX foo ON public.bar USING btree (a, b DESC)", by textual
// extraction rather than querying pg_index's lower-level columns directly.
func parseIndexDef(def string) Index {
	idx := Index{Unique: strings.Contains(strings.ToUpper(def), "UNIQUE")}

	m := indexDefColumnsRe.FindStringSubmatch(def)
	if m == nil {
		return idx
	}

	for _, raw := range strings.Split(m[1], ",") {
		field := strings.TrimSpace(raw)
		if field == "" {
			continue
		}

		descending := false
		fields := strings.Fields(field)
		col := fields[0]
		for _, tok := range fields[1:] {
			if strings.EqualFold(tok, "DESC") {
				descending = true
			}
		}

		idx.Columns = append(idx.Columns, IndexColumn{Column: col, Descending: descending})
	}

	return idx
}

// indexEquals reports index equality: same uniqueness, same ordered list of
// (column, direction), with direction defaulting to ascending when unspecified.
func indexEquals(a, b Index) bool {
	if a.Unique != b.Unique || len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i].Column != b.Columns[i].Column || a.Columns[i].Descending != b.Columns[i].Descending {
			return false
		}
	}
	return true
}
