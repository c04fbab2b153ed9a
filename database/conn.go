package database

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/myjettools/myjetpg/backoff"
	"github.com/myjettools/myjetpg/com"
	"github.com/myjettools/myjetpg/connstring"
	"github.com/myjettools/myjetpg/logging"
	"github.com/myjettools/myjetpg/retry"
	"github.com/myjettools/myjetpg/sshtunnel"
	"github.com/myjettools/myjetpg/utils"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// connectTimeout bounds a single connect-and-ping attempt, independent of the
// request-level timeouts the execution pipeline applies to statements.
const connectTimeout = 10 * time.Second

// debug gates the reconnection loop's debug prints.
var debug = os.Getenv("DEBUG") != ""

// SettingsProvider supplies a fresh connection string on every (re)connect attempt,
// so that credential rotation or DNS changes are picked up without restarting the
// process.
type SettingsProvider interface {
	ConnectionString(ctx context.Context) (*connstring.ConnectionString, error)
}

// StaticSettings is a SettingsProvider that always returns the same connection
// string.
type StaticSettings struct {
	CS *connstring.ConnectionString
}

func (s StaticSettings) ConnectionString(context.Context) (*connstring.ConnectionString, error) {
	return s.CS, nil
}

// ConnConfig configures a Conn.
type ConnConfig struct {
	// AppName is rendered as the connection string's application_name. Defaults to
	// utils.AppName() if empty.
	AppName string

	// SSH, if non-nil, tunnels every (re)connect attempt through this SSH endpoint
	// before dialing Postgres.
	SSH *sshtunnel.Config

	Logger *logging.Logger
}

// Conn manages a single logical Postgres connection's lifecycle: Idle until Engage,
// then Starting/Connected/Disconnecting/Sleeping as the background reconnection loop
// runs. Statement execution (the "execution pipeline") borrows the handle through
// Acquire and reports failures back through MarkDisconnected; Conn itself never
// inspects query errors.
type Conn struct {
	settings SettingsProvider
	cfg      ConnConfig
	tunnels  *sshtunnel.Registry
	logger   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	cond   *com.Cond

	engageOnce sync.Once

	handle         com.Atomic[*sqlx.DB]
	connected      atomic.Bool
	toBeDisposable atomic.Bool
}

// NewConn returns a Conn that is Idle until Engage is called.
func NewConn(settings SettingsProvider, cfg ConnConfig) *Conn {
	if cfg.AppName == "" {
		cfg.AppName = utils.AppName()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Conn{
		settings: settings,
		cfg:      cfg,
		tunnels:  sshtunnel.Default(),
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		cond:     com.NewCond(ctx),
	}
}

// Engage arms the reconnection loop. Safe to call more than once and from more than
// one goroutine; only the first call has any effect.
func (c *Conn) Engage() {
	c.engageOnce.Do(func() {
		go c.loop()
	})
}

// Close disposes the connection: the reconnection loop exits (finishing its current
// connect attempt or sleep first) and the underlying handle, if any, is closed.
// Close never blocks on the loop's exit.
func (c *Conn) Close() error {
	c.toBeDisposable.Store(true)
	c.cancel()
	c.connected.Store(false)
	c.cond.Broadcast()
	return nil
}

// MarkDisconnected flips the connection's connected flag to false, waking the
// reconnection loop to close the stale handle and start over. Called by the
// execution pipeline after observing a Timeout or Other-classified error, not by
// Conn itself.
func (c *Conn) MarkDisconnected() {
	c.connected.Store(false)
	c.cond.Broadcast()
}

// Acquire returns the current handle once Connected, arming the reconnection loop on
// first call. It blocks until a handle is available, ctx is done, or deadline (the
// caller's overall request deadline) passes; a zero deadline means wait forever.
func (c *Conn) Acquire(ctx context.Context, deadline time.Time) (*sqlx.DB, error) {
	c.Engage()

	var deadlineCh <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		deadlineCh = timer.C
	}

	for {
		if db, ok := c.handle.Load(); ok && db != nil && c.connected.Load() {
			return db, nil
		}
		if c.toBeDisposable.Load() {
			return nil, ErrConnectionNotStartedYet
		}

		ch := c.cond.Wait()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadlineCh:
			return nil, ErrNoConnection
		case <-c.cond.Done():
			return nil, ErrConnectionNotStartedYet
		}
	}
}

// lease implements connSource for a single Conn: there is nothing to release, the
// handle simply belongs to Conn for as long as it is Connected.
func (c *Conn) lease(ctx context.Context, deadline time.Time) (*connLease, error) {
	db, err := c.Acquire(ctx, deadline)
	if err != nil {
		return nil, err
	}

	return &connLease{db: db, conn: c, release: func() {}}, nil
}

func (c *Conn) loop() {
	for {
		db, err := c.connectWithRetry()
		if err != nil {
			// Only returns a non-nil error if c.ctx was canceled, i.e. Close was called.
			return
		}

		c.handle.Store(db)
		c.connected.Store(true)
		c.cond.Broadcast()

		if debug && c.logger != nil {
			c.logger.Debugw("Connected to database", "app", c.cfg.AppName)
		}

		c.waitWhileConnected()
		c.disconnect()

		if debug && c.logger != nil {
			c.logger.Debugw("Disconnected from database", "app", c.cfg.AppName)
		}

		if c.toBeDisposable.Load() {
			return
		}
	}
}

// connectWithRetry retries connectOnce with jittered backoff between roughly one and
// three seconds (the loop's Sleeping state) until it succeeds or c.ctx is done.
func (c *Conn) connectWithRetry() (*sqlx.DB, error) {
	var db *sqlx.DB

	err := retry.WithBackoff(
		c.ctx,
		func(ctx context.Context) error {
			d, err := c.connectOnce(ctx)
			if err != nil {
				return err
			}
			db = d
			return nil
		},
		func(error) bool { return true },
		backoff.NewExponentialWithJitter(time.Second, 3*time.Second),
		retry.Settings{
			OnRetryableError: func(_ time.Duration, attempt uint64, err, _ error) {
				if c.logger != nil {
					c.logger.Warnw("Can't connect to database, retrying",
						"attempt", attempt, logging.Error(err))
				}
			},
		},
	)

	return db, err
}

// connectOnce makes exactly one connect-and-ping attempt, tunnelling through SSH
// first if configured.
func (c *Conn) connectOnce(ctx context.Context) (*sqlx.DB, error) {
	cs, err := c.settings.ConnectionString(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "can't obtain connection string")
	}
	if cs == nil {
		return nil, errors.New("settings provider returned no connection string")
	}

	host, port := cs.Host, cs.Port

	if c.cfg.SSH != nil {
		localPort, err := c.tunnels.Ensure(ctx, *c.cfg.SSH, cs.Host, cs.Port)
		if err != nil {
			return nil, errors.Wrap(err, "can't establish ssh tunnel")
		}
		host, port = "127.0.0.1", localPort
	}

	// The ssh directive is consumed above; it must never reach the driver, which
	// would forward it to the server as a runtime parameter.
	driverCS := *cs
	driverCS.SSH = ""
	dsn := driverCS.RenderWithNewHostPort(c.cfg.AppName, host, port)

	connector, err := NewConnector(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "can't build connector")
	}

	sqlDB := sql.OpenDB(connector)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "can't ping database")
	}

	return sqlx.NewDb(sqlDB, "postgres"), nil
}

// waitWhileConnected blocks until MarkDisconnected or Close is called.
func (c *Conn) waitWhileConnected() {
	for {
		ch := c.cond.Wait()

		if !c.connected.Load() || c.toBeDisposable.Load() {
			return
		}

		select {
		case <-ch:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Conn) disconnect() {
	if db, ok := c.handle.Swap(nil); ok && db != nil {
		_ = db.Close()
	}
	c.connected.Store(false)
}

var _ connSource = (*Conn)(nil)
