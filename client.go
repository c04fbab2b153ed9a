// Package myjetpg is the public façade over this module's database package: thin,
// delegating methods for callers who only ever talk to one Postgres endpoint and
// don't need the rest of database's building blocks directly.
package myjetpg

import (
	"context"
	"time"

	"github.com/myjettools/myjetpg/backoff"
	"github.com/myjettools/myjetpg/database"
	"github.com/myjettools/myjetpg/database/schema"
	"github.com/myjettools/myjetpg/logging"
	"github.com/myjettools/myjetpg/periodic"
	"github.com/myjettools/myjetpg/retry"
)

// Client wraps a database.Database pipeline (over either a single Conn or a Pool)
// with a smaller, re-exported surface.
type Client struct {
	db *database.Database
}

// NewClient wraps an already-built database.Database.
func NewClient(db *database.Database) *Client {
	return &Client{db: db}
}

// NewSingleClient builds a Client over a single database.Conn.
func NewSingleClient(conn *database.Conn, logger *logging.Logger, telemetry database.TelemetryFunc) *Client {
	return NewClient(database.NewSingleDatabase(conn, logger, telemetry))
}

// NewPooledClient builds a Client over a database.Pool.
func NewPooledClient(pool *database.Pool, logger *logging.Logger, telemetry database.TelemetryFunc) *Client {
	return NewClient(database.NewPooledDatabase(pool, logger, telemetry))
}

// Close disposes the client's underlying connection or pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// LogStats periodically logs the client's statement throughput at debug level until
// ctx is done or Stop is called on the returned Stopper.
func (c *Client) LogStats(ctx context.Context, interval time.Duration) periodic.Stopper {
	return c.db.LogStats(ctx, interval)
}

// request bundles the context, process name and timeout every Client method needs
// into the database.RequestContext its database counterpart actually takes.
func (c *Client) request(ctx context.Context, processName string, timeout time.Duration) *database.RequestContext {
	return database.NewRequestContext(ctx, processName, timeout)
}

// ExecRaw runs a complete, parameterless SQL statement; see database.Database.ExecRaw.
func (c *Client) ExecRaw(ctx context.Context, processName string, timeout time.Duration, sqlText string) error {
	return c.db.ExecRaw(c.request(ctx, processName, timeout), sqlText)
}

func (c *Client) Insert(ctx context.Context, processName string, timeout time.Duration, entity database.Insertable) error {
	return c.db.Insert(c.request(ctx, processName, timeout), entity)
}

func (c *Client) BulkInsert(ctx context.Context, processName string, timeout time.Duration, table string, rows []database.Insertable) error {
	return c.db.BulkInsert(c.request(ctx, processName, timeout), table, rows)
}

func (c *Client) Upsert(ctx context.Context, processName string, timeout time.Duration, entity database.UpsertEntity, target database.ConflictTarget) error {
	return c.db.Upsert(c.request(ctx, processName, timeout), entity, target)
}

func (c *Client) BulkUpsert(ctx context.Context, processName string, timeout time.Duration, table string, rows []database.UpsertEntity, target database.ConflictTarget) error {
	return c.db.BulkUpsert(c.request(ctx, processName, timeout), table, rows, target)
}

func (c *Client) Update(ctx context.Context, processName string, timeout time.Duration, entity database.Updatable) error {
	return c.db.Update(c.request(ctx, processName, timeout), entity)
}

func (c *Client) Delete(ctx context.Context, processName string, timeout time.Duration, table string, model database.WhereModel) error {
	return c.db.Delete(c.request(ctx, processName, timeout), table, model)
}

func (c *Client) BulkDelete(ctx context.Context, processName string, timeout time.Duration, table string, models []database.WhereModel) error {
	return c.db.BulkDelete(c.request(ctx, processName, timeout), table, models)
}

func (c *Client) Select(ctx context.Context, processName string, timeout time.Duration, entity database.Selectable, model database.WhereModel, dest any) error {
	return c.db.Select(c.request(ctx, processName, timeout), entity, model, dest)
}

func (c *Client) SelectOne(ctx context.Context, processName string, timeout time.Duration, entity database.Selectable, model database.WhereModel, dest any) error {
	return c.db.SelectOne(c.request(ctx, processName, timeout), entity, model, dest)
}

// BulkSelect is a free function, not a Client method, because Go methods can't carry
// their own type parameters; see database.BulkSelect.
func BulkSelect[T database.BulkSelectable](c *Client, ctx context.Context, processName string, timeout time.Duration, table string, fields []database.SelectField, models []database.WhereModel) ([][]T, error) {
	return database.BulkSelect[T](c.db, c.request(ctx, processName, timeout), table, fields, models)
}

// Stream is a free function for the same reason as BulkSelect.
func Stream[T any](c *Client, ctx context.Context, processName string, timeout time.Duration, entity database.Selectable, model database.WhereModel, newRow func() T) (<-chan database.StreamResult[T], error) {
	return database.Stream[T](c.db, c.request(ctx, processName, timeout), entity, model, newRow)
}

// StreamBatches is Stream with rows regrouped into chunks of up to count, for
// feeding each chunk into a bulk write; see database.StreamBatches.
func StreamBatches[T any](c *Client, ctx context.Context, processName string, timeout time.Duration, entity database.Selectable, model database.WhereModel, newRow func() T, count int) (<-chan database.StreamResult[[]T], error) {
	return database.StreamBatches[T](c.db, c.request(ctx, processName, timeout), entity, model, newRow, count)
}

func (c *Client) BulkTx(ctx context.Context, processName string, timeout time.Duration, stmts []database.Statement) error {
	return c.db.BulkTx(c.request(ctx, processName, timeout), stmts)
}

// SyncSchema reconciles the given table models against the live database once, at
// application start. See database.EnsureDatabase for creating the database itself
// first when it may not exist yet.
func (c *Client) SyncSchema(ctx context.Context, processName string, timeout time.Duration, logger *logging.Logger, tables []schema.TableSchema) error {
	return c.db.SyncSchema(c.request(ctx, processName, timeout), logger, tables)
}

// WithRetry wraps fn with retry.WithBackoff using retry.Retryable and
// backoff.DefaultBackoff, for callers that want an outer retry layer around a whole
// sequence of Client calls rather than relying solely on the pipeline's own internal
// NoConnection/ConnectionNotStartedYet retries.
func (c *Client) WithRetry(ctx context.Context, timeout time.Duration, fn retry.RetryableFunc) error {
	return retry.WithBackoff(ctx, fn, retry.Retryable, backoff.DefaultBackoff, retry.Settings{Timeout: timeout})
}
