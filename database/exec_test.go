package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeSource stands in for a Conn/Pool so the pipeline's control flow can be
// exercised without a server.
type fakeSource struct {
	leaseFn func(ctx context.Context, deadline time.Time) (*connLease, error)
}

func (f *fakeSource) lease(ctx context.Context, deadline time.Time) (*connLease, error) {
	return f.leaseFn(ctx, deadline)
}

func (f *fakeSource) Close() error { return nil }

func testConn() *Conn {
	return NewConn(StaticSettings{}, ConnConfig{AppName: "test"})
}

func leaseFor(conn *Conn) func(context.Context, time.Time) (*connLease, error) {
	return func(context.Context, time.Time) (*connLease, error) {
		return &connLease{db: nil, conn: conn, release: func() {}}, nil
	}
}

type telemetryEvent struct {
	process string
	ok      bool
	message string
	tags    map[string]string
}

func recordTelemetry(events *[]telemetryEvent) TelemetryFunc {
	return func(process string, _ time.Time, ok bool, message string, tags map[string]string) {
		*events = append(*events, telemetryEvent{process: process, ok: ok, message: message, tags: tags})
	}
}

func TestRun_SuccessEmitsTelemetry(t *testing.T) {
	var events []telemetryEvent

	conn := testConn()
	d := newDatabase(&fakeSource{leaseFn: leaseFor(conn)}, nil, recordTelemetry(&events))

	rc := NewRequestContext(context.Background(), "proc", time.Second)
	err := d.run(rc, "SELECT 1", func(context.Context, *sqlx.DB) error { return nil })

	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].ok)
	require.Equal(t, "proc", events[0].process)
	require.Equal(t, "SELECT 1", events[0].tags["sql"])
}

func TestRun_TimeoutPoisonsConnection(t *testing.T) {
	var events []telemetryEvent

	conn := testConn()
	conn.connected.Store(true)
	d := newDatabase(&fakeSource{leaseFn: leaseFor(conn)}, nil, recordTelemetry(&events))

	rc := NewRequestContext(context.Background(), "proc", time.Second)
	err := d.run(rc, "SELECT pg_sleep(60)", func(context.Context, *sqlx.DB) error {
		return context.DeadlineExceeded
	})

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.False(t, conn.connected.Load(), "Timeout must mark the connection disconnected")
	require.Len(t, events, 1)
	require.False(t, events[0].ok)
}

func TestRun_PostgresErrorDoesNotDisconnect(t *testing.T) {
	conn := testConn()
	conn.connected.Store(true)
	d := newDatabase(&fakeSource{leaseFn: leaseFor(conn)}, nil, nil)

	rc := NewRequestContext(context.Background(), "proc", time.Second)
	err := d.run(rc, "INSERT ...", func(context.Context, *sqlx.DB) error {
		return &pq.Error{Code: "23505"}
	})

	var pgErr *PostgresError
	require.ErrorAs(t, err, &pgErr)
	require.True(t, conn.connected.Load(), "a structured driver error may be logical, no proactive disconnect")
}

func TestRun_NoConnectionLoopsUntilDeadline(t *testing.T) {
	attempts := 0
	source := &fakeSource{leaseFn: func(context.Context, time.Time) (*connLease, error) {
		attempts++
		return nil, ErrNoConnection
	}}
	d := newDatabase(source, nil, nil)

	rc := NewRequestContext(context.Background(), "proc", 60*time.Millisecond)
	err := d.run(rc, "SELECT 1", func(context.Context, *sqlx.DB) error { return nil })

	require.ErrorIs(t, err, ErrNoConnection)
	require.Greater(t, attempts, 1, "the pipeline must retry NoConnection internally before surfacing it")
}

func TestRun_NoConnectionRecovers(t *testing.T) {
	conn := testConn()
	attempts := 0
	source := &fakeSource{leaseFn: func(context.Context, time.Time) (*connLease, error) {
		attempts++
		if attempts < 3 {
			return nil, ErrConnectionNotStartedYet
		}
		return &connLease{db: nil, conn: conn, release: func() {}}, nil
	}}
	d := newDatabase(source, nil, nil)

	rc := NewRequestContext(context.Background(), "proc", time.Second)
	err := d.run(rc, "SELECT 1", func(context.Context, *sqlx.DB) error { return nil })

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{ErrNoConnection, KindNoConnection},
		{errors.Wrap(ErrNoConnection, "outer"), KindNoConnection},
		{ErrConnectionNotStartedYet, KindConnectionNotStartedYet},
		{&TimeoutError{After: time.Second}, KindTimeout},
		{&ErrMultipleRowsReturned{N: 2}, KindMultipleRows},
		{&PostgresError{Cause: &pq.Error{}}, KindPostgres},
		{&pq.Error{Code: "42P01"}, KindPostgres},
		{driver.ErrBadConn, KindOther},
		{errors.New("boom"), KindOther},
	}

	for _, c := range cases {
		require.Equal(t, c.want, Classify(c.err), "Classify(%v)", c.err)
	}
}

func TestShouldDisconnectAndLoop(t *testing.T) {
	require.True(t, shouldDisconnect(KindTimeout))
	require.True(t, shouldDisconnect(KindOther))
	require.False(t, shouldDisconnect(KindPostgres))
	require.False(t, shouldDisconnect(KindNoConnection))

	require.True(t, shouldLoop(KindNoConnection))
	require.True(t, shouldLoop(KindConnectionNotStartedYet))
	require.False(t, shouldLoop(KindTimeout))
	require.False(t, shouldLoop(KindPostgres))
}

func TestRequestContext_Deadline(t *testing.T) {
	rc := NewRequestContext(context.Background(), "proc", time.Hour)

	require.False(t, rc.Expired())
	require.WithinDuration(t, time.Now().Add(time.Hour), rc.Deadline(), time.Minute)
}

func TestRun_NoRowsDoesNotDisconnect(t *testing.T) {
	conn := testConn()
	conn.connected.Store(true)
	d := newDatabase(&fakeSource{leaseFn: leaseFor(conn)}, nil, nil)

	rc := NewRequestContext(context.Background(), "proc", time.Second)
	err := d.run(rc, "SELECT ...", func(context.Context, *sqlx.DB) error {
		return sql.ErrNoRows
	})

	require.ErrorIs(t, err, sql.ErrNoRows)
	require.True(t, conn.connected.Load())
}

func TestRun_CountsOutcomesForStatsLogging(t *testing.T) {
	conn := testConn()
	d := newDatabase(&fakeSource{leaseFn: leaseFor(conn)}, nil, nil)

	rc := NewRequestContext(context.Background(), "proc", time.Second)
	require.NoError(t, d.run(rc, "SELECT 1", func(context.Context, *sqlx.DB) error { return nil }))
	_ = d.run(rc, "SELECT 1", func(context.Context, *sqlx.DB) error { return errors.New("boom") })

	require.Equal(t, uint64(1), d.okCount.Val())
	require.Equal(t, uint64(1), d.failCount.Val())
}

func TestExecRaw_SurfacesNoConnection(t *testing.T) {
	source := &fakeSource{leaseFn: func(context.Context, time.Time) (*connLease, error) {
		return nil, ErrNoConnection
	}}
	d := newDatabase(source, nil, nil)

	rc := NewRequestContext(context.Background(), "proc", 30*time.Millisecond)
	err := d.ExecRaw(rc, "VACUUM widgets")
	require.ErrorIs(t, err, ErrNoConnection)
}

func TestBulkOps_EmptyInputIsNoOp(t *testing.T) {
	// The source would panic if leased; empty bulk calls must never reach it.
	source := &fakeSource{leaseFn: func(context.Context, time.Time) (*connLease, error) {
		panic("lease must not be called for empty bulk input")
	}}
	d := newDatabase(source, nil, nil)
	rc := NewRequestContext(context.Background(), "proc", time.Second)

	require.NoError(t, d.BulkInsert(rc, "t", nil))
	require.NoError(t, d.BulkUpsert(rc, "t", nil, ConflictTarget{}))
	require.NoError(t, d.BulkDelete(rc, "t", nil))

	groups, err := BulkSelect[*widget](d, rc, "t", nil, nil)
	require.NoError(t, err)
	require.Nil(t, groups)
}
