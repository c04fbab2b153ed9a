package sqlbuf_test

import (
	"testing"

	"github.com/myjettools/myjetpg/database/sqlbuf"
	"github.com/stretchr/testify/require"
)

func TestPush_Dedup(t *testing.T) {
	b := sqlbuf.New()

	i1 := b.Push("x")
	i2 := b.Push("x")
	require.Equal(t, i1, i2)
	require.Equal(t, 1, b.Len())

	i3 := b.Push("y")
	require.NotEqual(t, i1, i3)
	require.Equal(t, 2, b.Len())

	require.Equal(t, []string{"x", "y"}, b.Values())
}

func TestPush_OneBasedIndex(t *testing.T) {
	b := sqlbuf.New()
	require.Equal(t, 1, b.Push("a"))
	require.Equal(t, 2, b.Push("b"))
}

func TestEmpty_PushPanics(t *testing.T) {
	b := sqlbuf.Empty()
	require.Panics(t, func() { b.Push("x") })
	require.Equal(t, 0, b.Len())
	require.Empty(t, b.Materialize())

	require.Same(t, sqlbuf.Empty(), sqlbuf.Empty(), "Empty is a shared singleton")
}

func TestMaterialize_OrderPreserved(t *testing.T) {
	b := sqlbuf.New()
	b.Push("first")
	b.Push("second")
	b.Push("first")

	vals := b.Materialize()
	require.Equal(t, []any{"first", "second"}, vals)
}

func TestPlaceholder(t *testing.T) {
	require.Equal(t, "$1", sqlbuf.Placeholder(1))
	require.Equal(t, "$42", sqlbuf.Placeholder(42))
}
