package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFactory_ForReturnsSameLogger(t *testing.T) {
	f := NewFactory(&Config{Output: CONSOLE})

	a := f.For("database")
	b := f.For("database")
	require.Same(t, a, b)

	c := f.For("schema")
	require.NotSame(t, a, c)
	require.Equal(t, "schema", c.Name())
}

func TestNewLogger(t *testing.T) {
	base := zaptest.NewLogger(t).Sugar()
	l := NewLogger(base, "test")
	require.Equal(t, "test", l.Name())
	l.Info("hello")
}
