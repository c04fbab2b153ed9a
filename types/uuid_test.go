package types

import (
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestUUID_Value(t *testing.T) {
	nonzero := uuid.New()

	subtests := []struct {
		name   string
		input  uuid.UUID
		output []byte
	}{
		{"zero", uuid.UUID{}, make([]byte, 16)},
		{"nonzero", nonzero, nonzero[:]},
	}

	for _, st := range subtests {
		t.Run(st.name, func(t *testing.T) {
			actual, err := UUID{st.input}.Value()

			require.NoError(t, err)
			require.Equal(t, st.output, actual)
		})
	}
}

func TestUUID_Scan(t *testing.T) {
	nonzero := uuid.New()

	var fromBytes UUID
	require.NoError(t, fromBytes.Scan(nonzero[:]))
	require.Equal(t, nonzero, fromBytes.UUID)

	var fromText UUID
	require.NoError(t, fromText.Scan(nonzero.String()))
	require.Equal(t, nonzero, fromText.UUID)

	var fromNil UUID
	fromNil.UUID = nonzero
	require.NoError(t, fromNil.Scan(nil))
	require.Equal(t, uuid.UUID{}, fromNil.UUID)

	var fromBad UUID
	require.Error(t, fromBad.Scan(42))
}
