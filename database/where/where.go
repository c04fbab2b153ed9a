// Package where implements the per-type WHERE/UPDATE value rendering rules: the
// engine that turns a Go value plus a column's declared metadata into either an
// inline SQL literal or a bound "$k" placeholder.
package where

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/myjettools/myjetpg/database/sqlbuf"
)

// Operator is a WHERE comparison operator. The zero value means "use the type's
// default operator".
type Operator string

const (
	Eq    Operator = "="
	NotEq Operator = "<>"
	Gt    Operator = ">"
	Gte   Operator = ">="
	Lt    Operator = "<"
	Lte   Operator = "<="
	Like  Operator = "like"
	In    Operator = "IN"
	NotIn Operator = "NOT IN"
	Is    Operator = "IS"
	IsNot Operator = "IS NOT"
)

// ColumnMetadata describes everything the value providers need to know about the
// column a value is being rendered for.
type ColumnMetadata struct {
	// Column is the bare column name, e.g. "id".
	Column string

	// JSONPath, when non-empty, means Column is the outer JSON/JSONB column and
	// JSONPath is the ordered list of keys to walk into it, producing
	// `"Column"->>'p1'->>'p2'` style expressions.
	JSONPath []string

	// SQLType gates time.Time rendering: must be "timestamp" or "bigint".
	SQLType string

	// Operator overrides the type's default operator when non-empty.
	Operator Operator

	// IgnoreIfNone, when true, makes a nil/absent value contribute zero tokens to
	// the WHERE text instead of rendering "col IS NULL".
	IgnoreIfNone bool
}

// IsNull is a marker value for the "operator rewrite to IS/IS NOT NULL" case.
type IsNull struct {
	Not bool
}

// FullLeftHandSide renders the left-hand side of a WHERE conjunct for meta,
// expanding a JSON path prefix into `"outer"->>'inner'->>'leaf'` form when
// meta.JSONPath is non-empty, or the bare column name otherwise.
func FullLeftHandSide(meta ColumnMetadata) string {
	if len(meta.JSONPath) == 0 {
		return meta.Column
	}

	lhs := fmt.Sprintf("%q", meta.Column)
	for _, p := range meta.JSONPath {
		lhs += fmt.Sprintf("->>'%s'", p)
	}
	return lhs
}

func operatorOrDefault(meta ColumnMetadata, def Operator) Operator {
	if meta.Operator != "" {
		return meta.Operator
	}
	return def
}

// Render renders one WHERE conjunct for value against meta, pushing parameters
// into buf as needed. ok is false when the conjunct should be suppressed entirely
// (a nil value with meta.IgnoreIfNone, or an empty slice).
func Render(buf *sqlbuf.Buffer, meta ColumnMetadata, value any) (clause string, ok bool) {
	lhs := FullLeftHandSide(meta)

	if value == nil {
		if meta.IgnoreIfNone {
			return "", false
		}
		return fmt.Sprintf("%s %s NULL", lhs, operatorOrDefault(meta, Is)), true
	}

	switch v := value.(type) {
	case IsNull:
		op := IsNot
		literal := "NOT NULL"
		if !v.Not {
			op = Is
			literal = "NULL"
		}
		return fmt.Sprintf("%s %s %s", lhs, op, literal), true

	case string:
		k := buf.Push(v)
		return fmt.Sprintf("%s%s%s", lhs, operatorOrDefault(meta, Eq), sqlbuf.Placeholder(k)), true

	case bool:
		return fmt.Sprintf("%s%s%t", lhs, operatorOrDefault(meta, Eq), v), true

	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%s%s%v", lhs, operatorOrDefault(meta, Eq), v), true

	case float32, float64:
		return fmt.Sprintf("%s%s%v", lhs, operatorOrDefault(meta, Eq), v), true

	case time.Time:
		return renderTime(lhs, meta, v)

	case map[string]string:
		return renderJSONProps(buf, meta, v)

	case Provider:
		return v.ProvideWhereValue(buf, meta)
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return renderVec(buf, meta, rv)
	}

	panic(fmt.Sprintf("where: no value provider for column %q of type %T", meta.Column, value))
}

// renderTime implements the date-time rendering rule: requires meta.SQLType to be
// "timestamp" (RFC3339 inline literal) or "bigint" (Unix-microsecond inline
// literal); any other declared type is a programmer error.
func renderTime(lhs string, meta ColumnMetadata, v time.Time) (string, bool) {
	switch meta.SQLType {
	case "timestamp":
		return fmt.Sprintf("%s%s'%s'", lhs, operatorOrDefault(meta, Eq), v.Format(time.RFC3339Nano)), true
	case "bigint":
		micros := v.UnixMicro()
		return fmt.Sprintf("%s%s%d", lhs, operatorOrDefault(meta, Eq), micros), true
	default:
		panic(fmt.Sprintf("where: column %q holds a time.Time value but declares sql_type %q (must be \"timestamp\" or \"bigint\")", meta.Column, meta.SQLType))
	}
}

// renderVec implements the slice cardinality rule: 0 elements suppresses the
// clause, 1 element delegates to the scalar provider for that element, n>=2
// renders "col IN (v1,...,vn)".
func renderVec(buf *sqlbuf.Buffer, meta ColumnMetadata, rv reflect.Value) (string, bool) {
	n := rv.Len()
	if n == 0 {
		return "", false
	}
	if n == 1 {
		return Render(buf, meta, rv.Index(0).Interface())
	}

	lhs := FullLeftHandSide(meta)
	op := In
	if meta.Operator == NotEq || meta.Operator == NotIn {
		op = NotIn
	}

	placeholders := make([]string, n)
	for i := 0; i < n; i++ {
		elem := rv.Index(i).Interface()
		switch e := elem.(type) {
		case string:
			k := buf.Push(e)
			placeholders[i] = sqlbuf.Placeholder(k)
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			placeholders[i] = fmt.Sprint(e)
		default:
			panic(fmt.Sprintf("where: unsupported element type %T in IN-list for column %q", elem, meta.Column))
		}
	}

	joined := placeholders[0]
	for _, p := range placeholders[1:] {
		joined += "," + p
	}

	return fmt.Sprintf("%s %s (%s)", lhs, op, joined), true
}

// renderJSONProps implements the BTreeMap<String,String> rule: sorted keys,
// AND-joined "col"->>'key' = $k conjuncts, parenthesised as a group when there is
// more than one key.
func renderJSONProps(buf *sqlbuf.Buffer, meta ColumnMetadata, props map[string]string) (string, bool) {
	if len(props) == 0 {
		return "", false
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conjuncts := make([]string, 0, len(keys))
	for _, k := range keys {
		idx := buf.Push(props[k])
		conjuncts = append(conjuncts, fmt.Sprintf("%q->>'%s'=%s", meta.Column, k, sqlbuf.Placeholder(idx)))
	}

	joined := conjuncts[0]
	for _, c := range conjuncts[1:] {
		joined += " AND " + c
	}

	if len(conjuncts) > 1 {
		return "(" + joined + ")", true
	}
	return joined, true
}

// Provider lets a custom type (e.g. types.UUID or an enum) take over its own
// WHERE/UPDATE rendering instead of relying on Render's built-in type switch.
type Provider interface {
	ProvideWhereValue(buf *sqlbuf.Buffer, meta ColumnMetadata) (clause string, ok bool)
}

// RenderUpdateValue renders the right-hand side of an UPDATE "col = <value>"
// assignment. Unlike WHERE rendering there is no operator and no suppression for
// IgnoreIfNone (the caller decides whether to include a column at all); json values
// are wrapped in a text->json cast.
func RenderUpdateValue(buf *sqlbuf.Buffer, meta ColumnMetadata, value any) string {
	if value == nil {
		return "NULL"
	}

	switch v := value.(type) {
	case string:
		k := buf.Push(v)
		return sqlbuf.Placeholder(k)
	case bool:
		return strconv.FormatBool(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v)
	case time.Time:
		switch meta.SQLType {
		case "timestamp":
			return fmt.Sprintf("'%s'", v.Format(time.RFC3339Nano))
		case "bigint":
			return fmt.Sprint(v.UnixMicro())
		default:
			panic(fmt.Sprintf("where: column %q holds a time.Time value but declares sql_type %q", meta.Column, meta.SQLType))
		}
	case JSONValue:
		k := buf.Push(string(v))
		return fmt.Sprintf("cast(%s::text as json)", sqlbuf.Placeholder(k))
	}

	panic(fmt.Sprintf("where: no update value provider for column %q of type %T", meta.Column, value))
}

// RenderInsertValue renders the value side of an INSERT column, following the same
// per-type rules as RenderUpdateValue except for JSON: INSERT pushes the JSON text
// and binds a bare "$k" (no cast wrapping).
func RenderInsertValue(buf *sqlbuf.Buffer, meta ColumnMetadata, value any) string {
	if v, ok := value.(JSONValue); ok {
		k := buf.Push(string(v))
		return sqlbuf.Placeholder(k)
	}

	return RenderUpdateValue(buf, meta, value)
}

// JSONValue wraps pre-marshalled JSON text so RenderUpdateValue knows to apply the
// cast($k::text as json) wrapping rule instead of treating it as a plain string
// column. WHERE rendering emits a bare $k (see ProvideWhereValue below).
type JSONValue string

// ProvideWhereValue implements Provider for JSONValue: push the JSON text and emit
// a bare "$k" (WHERE comparisons against JSON columns compare the raw text).
func (j JSONValue) ProvideWhereValue(buf *sqlbuf.Buffer, meta ColumnMetadata) (string, bool) {
	lhs := FullLeftHandSide(meta)
	k := buf.Push(string(j))
	return fmt.Sprintf("%s%s%s", lhs, operatorOrDefault(meta, Eq), sqlbuf.Placeholder(k)), true
}
