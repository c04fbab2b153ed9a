package database

import (
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// ErrNoConnection is returned when a statement is attempted while the connection
// handle is absent. The execution pipeline loops on this error (and
// ErrConnectionNotStartedYet) until either a connection becomes available or the
// request's deadline elapses.
var ErrNoConnection = stderrors.New("database: no connection")

// ErrConnectionNotStartedYet is returned before the reconnection loop has been armed
// via Engage. Like ErrNoConnection, the pipeline retries this internally.
var ErrConnectionNotStartedYet = stderrors.New("database: connection not started yet")

// ErrMultipleRowsReturned is returned by a single-row query that produced more than
// one row.
type ErrMultipleRowsReturned struct {
	N int
}

func (e *ErrMultipleRowsReturned) Error() string {
	return fmt.Sprintf("database: single-row request returned %d rows", e.N)
}

// TimeoutError is returned when a pipeline call loses its race against the request's
// per-call timeout.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("database: timed out after %s", e.After)
}

// PostgresError wraps a structured driver error.
type PostgresError struct {
	Cause error
}

func (e *PostgresError) Error() string { return "database: postgres error: " + e.Cause.Error() }
func (e *PostgresError) Unwrap() error { return e.Cause }

// OtherError is a generic failure carrying a diagnostic message: enforcement panics
// recovered at a boundary, schema-reconciler preconditions, and anything else that
// does not fit the taxonomy above.
type OtherError struct {
	Msg   string
	Cause error
}

func (e *OtherError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("database: %s: %v", e.Msg, e.Cause)
	}
	return "database: " + e.Msg
}
func (e *OtherError) Unwrap() error { return e.Cause }

// ErrorKind classifies an error for the execution pipeline's retry-vs-disconnect
// decisions.
type ErrorKind int

const (
	KindNoConnection ErrorKind = iota
	KindConnectionNotStartedYet
	KindTimeout
	KindPostgres
	KindMultipleRows
	KindOther
)

// Classify maps err onto the package's error taxonomy. Errors produced by this
// package (ErrNoConnection, *TimeoutError, ...) classify directly; a *pq.Error or
// anything wrapping one classifies as KindPostgres; anything else classifies as
// KindOther.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindOther
	case errors.Is(err, ErrNoConnection):
		return KindNoConnection
	case errors.Is(err, ErrConnectionNotStartedYet):
		return KindConnectionNotStartedYet
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return KindTimeout
	}

	var multiErr *ErrMultipleRowsReturned
	if errors.As(err, &multiErr) {
		return KindMultipleRows
	}

	var pgErr *PostgresError
	if errors.As(err, &pgErr) {
		return KindPostgres
	}

	var rawPgErr *pq.Error
	if errors.As(err, &rawPgErr) {
		return KindPostgres
	}

	if errors.Is(err, driver.ErrBadConn) {
		return KindOther
	}

	return KindOther
}

// shouldDisconnect reports whether the execution pipeline should proactively flip
// the connection's connected flag to false after observing err: true for Other and
// Timeout.
func shouldDisconnect(kind ErrorKind) bool {
	return kind == KindTimeout || kind == KindOther
}

// shouldLoop reports whether the execution pipeline should retry err internally
// (rather than surface it) subject to the request's deadline: only NoConnection and
// ConnectionNotStartedYet loop.
func shouldLoop(kind ErrorKind) bool {
	return kind == KindNoConnection || kind == KindConnectionNotStartedYet
}
