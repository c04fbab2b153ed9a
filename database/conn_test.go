package database

import (
	"context"
	"testing"
	"time"

	"github.com/myjettools/myjetpg/connstring"
	"github.com/stretchr/testify/require"
)

// unreachableSettings points at a port nothing listens on, so the reconnection loop
// keeps cycling through its Sleeping state for the duration of a test.
func unreachableSettings() SettingsProvider {
	return StaticSettings{CS: &connstring.ConnectionString{
		Host:   "127.0.0.1",
		Port:   1,
		User:   "test",
		DBName: "test",
	}}
}

func TestConn_AcquireTimesOutWhileUnreachable(t *testing.T) {
	c := NewConn(unreachableSettings(), ConnConfig{AppName: "test"})
	defer c.Close()

	_, err := c.Acquire(context.Background(), time.Now().Add(100*time.Millisecond))
	require.ErrorIs(t, err, ErrNoConnection)
}

func TestConn_AcquireHonorsContext(t *testing.T) {
	c := NewConn(unreachableSettings(), ConnConfig{AppName: "test"})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Acquire(ctx, time.Time{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConn_AcquireAfterCloseFailsFast(t *testing.T) {
	c := NewConn(unreachableSettings(), ConnConfig{AppName: "test"})
	require.NoError(t, c.Close())

	start := time.Now()
	_, err := c.Acquire(context.Background(), time.Now().Add(time.Minute))
	require.ErrorIs(t, err, ErrConnectionNotStartedYet)
	require.Less(t, time.Since(start), time.Second, "a disposed Conn must not block its callers")
}

func TestConn_EngageIsIdempotent(t *testing.T) {
	c := NewConn(unreachableSettings(), ConnConfig{AppName: "test"})
	defer c.Close()

	c.Engage()
	c.Engage()
}

func TestConn_MarkDisconnectedClearsFlag(t *testing.T) {
	c := NewConn(unreachableSettings(), ConnConfig{AppName: "test"})
	defer c.Close()

	c.connected.Store(true)
	c.MarkDisconnected()
	require.False(t, c.connected.Load())
}
