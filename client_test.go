package myjetpg

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/myjettools/myjetpg/connstring"
	"github.com/myjettools/myjetpg/database"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	conn := database.NewConn(database.StaticSettings{CS: &connstring.ConnectionString{
		Host:   "127.0.0.1",
		Port:   1,
		User:   "test",
		DBName: "test",
	}}, database.ConnConfig{AppName: "test"})

	return NewSingleClient(conn, nil, nil)
}

func TestClient_EmptyBulkCallsAreNoOps(t *testing.T) {
	c := testClient()
	defer c.Close()
	ctx := context.Background()

	// None of these may touch the (unreachable) connection.
	require.NoError(t, c.BulkInsert(ctx, "proc", time.Second, "t", nil))
	require.NoError(t, c.BulkUpsert(ctx, "proc", time.Second, "t", nil, database.ConflictTarget{}))
	require.NoError(t, c.BulkDelete(ctx, "proc", time.Second, "t", nil))
}

func TestClient_WithRetry(t *testing.T) {
	c := testClient()

	attempts := 0
	err := c.WithRetry(context.Background(), time.Second, func(context.Context) error {
		attempts++
		if attempts < 2 {
			return io.EOF
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestClient_DeleteSurfacesNoConnection(t *testing.T) {
	c := testClient()
	defer c.Close()

	err := c.Delete(context.Background(), "proc", 50*time.Millisecond, "t", emptyWhere{})
	require.ErrorIs(t, err, database.ErrNoConnection)
}

// emptyWhere matches every row: no conjuncts, no limit, no offset.
type emptyWhere struct{}

func (emptyWhere) WhereFields() []database.WhereFieldData { return nil }
func (emptyWhere) Limit() (int, bool)                     { return 0, false }
func (emptyWhere) Offset() (int, bool)                    { return 0, false }
