package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"time"

	"github.com/myjettools/myjetpg/com"
	"github.com/myjettools/myjetpg/database/sqlbuf"
	"github.com/myjettools/myjetpg/logging"
	"github.com/myjettools/myjetpg/utils"
	"github.com/jmoiron/sqlx"
)

// RequestContext carries the process name (used for telemetry and logging) and the
// timeout budget of a single logical database call. The same Timeout value both
// races each individual attempt and bounds the pipeline's internal retries for
// NoConnection/ConnectionNotStartedYet: once Elapsed() exceeds Timeout, the pipeline
// stops retrying and surfaces the last error.
type RequestContext struct {
	Ctx         context.Context
	ProcessName string
	Timeout     time.Duration

	started time.Time
}

// NewRequestContext starts a RequestContext, timestamping it with the current time.
func NewRequestContext(ctx context.Context, processName string, timeout time.Duration) *RequestContext {
	return &RequestContext{Ctx: ctx, ProcessName: processName, Timeout: timeout, started: time.Now()}
}

// Deadline returns the absolute time by which the call must either complete or give
// up retrying internally.
func (r *RequestContext) Deadline() time.Time { return r.started.Add(r.Timeout) }

// Elapsed returns the time passed since the RequestContext was created.
func (r *RequestContext) Elapsed() time.Duration { return time.Since(r.started) }

// Expired reports whether Elapsed has passed Timeout.
func (r *RequestContext) Expired() bool { return r.Elapsed() > r.Timeout }

// TelemetryFunc receives one event per completed pipeline call: the process name,
// when it started, whether it ultimately succeeded, a short outcome message, and
// free-form tags (at minimum "sql", the ellipsized statement text).
type TelemetryFunc func(processName string, started time.Time, ok bool, message string, tags map[string]string)

func noopTelemetry(string, time.Time, bool, string, map[string]string) {}

// Database is the thin execution pipeline sitting atop a connSource (a single Conn
// or a Pool): it acquires a handle, races the call against the request's timeout,
// classifies any failure, proactively disconnects on Timeout/Other, and loops
// internally on NoConnection/ConnectionNotStartedYet until the deadline passes.
type Database struct {
	source    connSource
	logger    *logging.Logger
	telemetry TelemetryFunc

	okCount   com.Counter
	failCount com.Counter
}

// NewSingleDatabase builds a Database pipeline over a single Conn.
func NewSingleDatabase(conn *Conn, logger *logging.Logger, telemetry TelemetryFunc) *Database {
	return newDatabase(conn, logger, telemetry)
}

// NewPooledDatabase builds a Database pipeline over a Pool.
func NewPooledDatabase(pool *Pool, logger *logging.Logger, telemetry TelemetryFunc) *Database {
	return newDatabase(pool, logger, telemetry)
}

func newDatabase(source connSource, logger *logging.Logger, telemetry TelemetryFunc) *Database {
	if telemetry == nil {
		telemetry = noopTelemetry
	}
	return &Database{source: source, logger: logger, telemetry: telemetry}
}

// Close disposes the underlying Conn or Pool. In-flight statements complete; their
// reconnection loops exit at their next iteration.
func (d *Database) Close() error {
	return d.source.Close()
}

// acquireRetryPause is the pause between internal retries caused by NoConnection or
// ConnectionNotStartedYet surfacing from the connSource itself (as opposed to from
// the statement callback), so the pipeline doesn't spin a tight loop while a Conn is
// still Starting.
const acquireRetryPause = 20 * time.Millisecond

// debugSQL gates per-call echoing of every statement the pipeline runs, for chasing
// down generated-SQL issues without raising the logger level globally.
var debugSQL = os.Getenv("DEBUG_SQL") != ""

// run is the execution pipeline itself. describe is used only for logging/telemetry.
func (d *Database) run(rc *RequestContext, describe string, fn func(ctx context.Context, db *sqlx.DB) error) error {
	if debugSQL && d.logger != nil {
		d.logger.Debugw("SQL", "process", rc.ProcessName, "sql", describe)
	}

	for {
		lease, err := d.source.lease(rc.Ctx, rc.Deadline())
		if err != nil {
			if shouldLoop(Classify(err)) && !rc.Expired() {
				select {
				case <-time.After(acquireRetryPause):
					continue
				case <-rc.Ctx.Done():
					err = rc.Ctx.Err()
				}
			}
			d.logFailure(rc, err, describe)
			return err
		}

		attemptCtx, cancel := context.WithTimeout(rc.Ctx, rc.Timeout)
		err = fn(attemptCtx, lease.db)
		cancel()
		lease.release()

		if err == nil {
			d.logSuccess(rc, describe)
			return nil
		}

		// A no-rows result is a logical outcome, not a connection problem: surface
		// it untouched, without disconnecting.
		if stderrors.Is(err, sql.ErrNoRows) {
			return err
		}

		if stderrors.Is(err, context.DeadlineExceeded) {
			err = &TimeoutError{After: rc.Timeout}
		} else {
			err = wrapDriverErr(err)
		}

		kind := Classify(err)

		if shouldDisconnect(kind) {
			lease.conn.MarkDisconnected()
		}

		if shouldLoop(kind) && !rc.Expired() {
			continue
		}

		d.logFailure(rc, err, describe)
		return err
	}
}

// wrapDriverErr normalizes a raw database/sql or lib/pq error into this package's
// error taxonomy, leaving errors already in it (and sql.ErrNoRows, which SelectOne
// handles specially) untouched. A *pq.Error becomes a PostgresError; anything else
// becomes an OtherError.
func wrapDriverErr(err error) error {
	if err == nil || stderrors.Is(err, sql.ErrNoRows) {
		return err
	}

	switch err.(type) {
	case *TimeoutError, *OtherError, *PostgresError, *ErrMultipleRowsReturned:
		return err
	}

	if stderrors.Is(err, ErrNoConnection) || stderrors.Is(err, ErrConnectionNotStartedYet) {
		return err
	}

	if Classify(err) == KindPostgres {
		return &PostgresError{Cause: err}
	}
	return &OtherError{Msg: "driver error", Cause: err}
}

func (d *Database) logSuccess(rc *RequestContext, sqlText string) {
	d.okCount.Add(1)
	d.telemetry(rc.ProcessName, rc.started, true, "ok", map[string]string{"sql": utils.Ellipsize(sqlText, 2048)})
}

func (d *Database) logFailure(rc *RequestContext, err error, sqlText string) {
	d.failCount.Add(1)
	tags := map[string]string{"sql": utils.Ellipsize(sqlText, 2048)}
	d.telemetry(rc.ProcessName, rc.started, false, err.Error(), tags)

	if d.logger != nil {
		d.logger.Errorw("database call failed",
			"process", rc.ProcessName, "sql", tags["sql"], logging.Error(err))
	}
}

// Exec runs sqlText with params, returning the driver's sql.Result.
func (d *Database) Exec(rc *RequestContext, sqlText string, params []any) (sql.Result, error) {
	var result sql.Result

	err := d.run(rc, sqlText, func(ctx context.Context, db *sqlx.DB) error {
		r, err := db.ExecContext(ctx, sqlText, params...)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	return result, err
}

// ExecRaw runs a complete, parameterless SQL statement, e.g. one-off DDL or a
// maintenance command. The empty sentinel buffer backs the call: a statement routed
// through here can never accidentally bind parameters.
func (d *Database) ExecRaw(rc *RequestContext, sqlText string) error {
	_, err := d.Exec(rc, sqlText, sqlbuf.Empty().Materialize())
	return err
}

// Insert inserts a single entity.
func (d *Database) Insert(rc *RequestContext, entity Insertable) error {
	buf := sqlbuf.New()
	sqlText, _ := NewInsertStatement(entity).Build(buf)
	_, err := d.Exec(rc, sqlText, buf.Materialize())
	return err
}

// BulkInsert inserts rows in a single multi-row INSERT. A nil or empty rows is a
// no-op.
func (d *Database) BulkInsert(rc *RequestContext, table string, rows []Insertable) error {
	if len(rows) == 0 {
		return nil
	}

	buf := sqlbuf.New()
	sqlText, _ := BuildBulkInsert(buf, table, rows)
	_, err := d.Exec(rc, sqlText, buf.Materialize())
	return err
}

// Upsert inserts entity, or on conflict at target updates every inserted column that
// is not part of the primary key.
func (d *Database) Upsert(rc *RequestContext, entity UpsertEntity, target ConflictTarget) error {
	buf := sqlbuf.New()
	sqlText := NewUpsertStatement(entity, target).Build(buf)
	_, err := d.Exec(rc, sqlText, buf.Materialize())
	return err
}

// BulkUpsert is BuildBulkUpsert's statement executed through the pipeline. A nil or
// empty rows is a no-op.
func (d *Database) BulkUpsert(rc *RequestContext, table string, rows []UpsertEntity, target ConflictTarget) error {
	if len(rows) == 0 {
		return nil
	}

	buf := sqlbuf.New()
	sqlText := BuildBulkUpsert(buf, table, rows, target)
	_, err := d.Exec(rc, sqlText, buf.Materialize())
	return err
}

// Update updates entity's row, identified by its primary key.
func (d *Database) Update(rc *RequestContext, entity Updatable) error {
	buf := sqlbuf.New()
	sqlText := NewUpdateStatement(entity).Build(buf)
	_, err := d.Exec(rc, sqlText, buf.Materialize())
	return err
}

// Delete deletes every row of table matching model.
func (d *Database) Delete(rc *RequestContext, table string, model WhereModel) error {
	buf := sqlbuf.New()
	sqlText := NewDeleteStatement(table, model).Build(buf)
	_, err := d.Exec(rc, sqlText, buf.Materialize())
	return err
}

// BulkDelete is BuildBulkDelete's statement executed through the pipeline. A nil or
// empty models is a no-op.
func (d *Database) BulkDelete(rc *RequestContext, table string, models []WhereModel) error {
	if len(models) == 0 {
		return nil
	}

	buf := sqlbuf.New()
	sqlText := BuildBulkDelete(buf, table, models)
	_, err := d.Exec(rc, sqlText, buf.Materialize())
	return err
}

// Select scans every row matching model into dest, a pointer to a slice of structs
// sqlx can map entity's SelectFields onto via their "db" struct tags.
func (d *Database) Select(rc *RequestContext, entity Selectable, model WhereModel, dest any) error {
	buf := sqlbuf.New()
	sqlText := NewSelectStatement(entity, model).Build(buf)

	return d.run(rc, sqlText, func(ctx context.Context, db *sqlx.DB) error {
		return db.SelectContext(ctx, dest, sqlText, buf.Materialize()...)
	})
}

// SelectOne scans exactly one row matching model into dest, a pointer to a struct.
// Returns *ErrMultipleRowsReturned if more than one row matched, or sql.ErrNoRows if
// none did.
func (d *Database) SelectOne(rc *RequestContext, entity Selectable, model WhereModel, dest any) error {
	buf := sqlbuf.New()
	sqlText := NewSelectStatement(entity, model).Build(buf)

	return d.run(rc, sqlText, func(ctx context.Context, db *sqlx.DB) error {
		rows, err := db.QueryxContext(ctx, sqlText, buf.Materialize()...)
		if err != nil {
			return err
		}
		defer rows.Close()

		found := 0
		for rows.Next() {
			found++
			if found > 1 {
				return &ErrMultipleRowsReturned{N: found}
			}
			if err := rows.StructScan(dest); err != nil {
				return err
			}
		}

		if err := rows.Err(); err != nil {
			return err
		}
		if found == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// BulkSelect runs a single UNION SELECT covering every model and regroups the
// results by which model they matched, in the order models was given. T must be a
// BulkSelectable whose "where_no" column is tagged for sqlx to scan into the field
// LineNo/SetLineNo expose.
func BulkSelect[T BulkSelectable](d *Database, rc *RequestContext, table string, fields []SelectField, models []WhereModel) ([][]T, error) {
	if len(models) == 0 {
		return nil, nil
	}

	buf := sqlbuf.New()
	sqlText := BuildBulkUnionSelect(buf, table, fields, models)

	var rows []T
	err := d.run(rc, sqlText, func(ctx context.Context, db *sqlx.DB) error {
		rows = nil
		return db.SelectContext(ctx, &rows, sqlText, buf.Materialize()...)
	})
	if err != nil {
		return nil, err
	}

	return DispatchByLineNo(rows, len(models)), nil
}
