package where_test

import (
	"testing"

	"github.com/myjettools/myjetpg/database/where"
	"github.com/stretchr/testify/require"
)

func TestParseRawTemplate_AlternatingTokens(t *testing.T) {
	tpl := where.ParseRawTemplate("a > ${min} AND a < ${max}")

	tokens := tpl.Tokens()
	require.Len(t, tokens, 4)
	require.Equal(t, "a > ", tokens[0].Content)
	require.False(t, tokens[0].IsPlaceHolder)
	require.Equal(t, "min", tokens[1].Content)
	require.True(t, tokens[1].IsPlaceHolder)
	require.Equal(t, " AND a < ", tokens[2].Content)
	require.Equal(t, "max", tokens[3].Content)
	require.True(t, tokens[3].IsPlaceHolder)
}

func TestRawTemplate_Render(t *testing.T) {
	tpl := where.ParseRawTemplate("value BETWEEN ${low} AND ${high}")

	out := tpl.Render(func(field string) string {
		switch field {
		case "low":
			return "1"
		case "high":
			return "9"
		}
		return "?"
	})

	require.Equal(t, "value BETWEEN 1 AND 9", out)
}

func TestParseRawTemplate_UnterminatedPlaceholderIsLiteral(t *testing.T) {
	tpl := where.ParseRawTemplate("a = ${oops")

	out := tpl.Render(func(string) string { return "X" })
	require.Equal(t, "a = ${oops", out)
}

func TestParseRawTemplate_NoPlaceholders(t *testing.T) {
	tpl := where.ParseRawTemplate("deleted_at IS NULL")

	require.Len(t, tpl.Tokens(), 1)
	require.Equal(t, "deleted_at IS NULL", tpl.Render(nil))
}
