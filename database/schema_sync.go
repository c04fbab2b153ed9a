package database

import (
	"context"
	"database/sql"

	"github.com/myjettools/myjetpg/connstring"
	"github.com/myjettools/myjetpg/database/schema"
	"github.com/myjettools/myjetpg/logging"
	"github.com/pkg/errors"
)

// maintenanceDBName is the database every PostgreSQL cluster is born with,
// connected to when the target database itself may not exist yet.
const maintenanceDBName = "postgres"

// EnsureDatabase connects to the cluster's maintenance database using cs's
// credentials and creates cs's target database if it does not exist. The temporary
// connection is closed before returning; the caller's own Conn stays untouched.
// Callers reaching the cluster through an SSH tunnel should pass a cs whose
// host/port have already been rewritten to the tunnel's local endpoint.
func EnsureDatabase(ctx context.Context, cs *connstring.ConnectionString, appName string) error {
	driverCS := *cs
	driverCS.SSH = ""
	dsn := driverCS.RenderWithNewDBName(appName, maintenanceDBName)

	connector, err := NewConnector(dsn)
	if err != nil {
		return errors.Wrap(err, "can't build maintenance connector")
	}

	db := sql.OpenDB(connector)
	defer func() { _ = db.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return errors.Wrap(err, "can't reach maintenance database")
	}

	return schema.EnsureDatabaseExists(ctx, db, cs.DBName)
}

// SyncSchema reconciles every table in tables against the live database through
// this pipeline's connection, giving each table the reconciler's 20-second budget.
// Meant to run once at application start, after EnsureDatabase if the target
// database itself may be missing.
func (d *Database) SyncSchema(rc *RequestContext, logger *logging.Logger, tables []schema.TableSchema) error {
	lease, err := d.source.lease(rc.Ctx, rc.Deadline())
	if err != nil {
		return err
	}
	defer lease.release()

	return schema.NewReconciler(lease.db, logger).SyncAllWithTimeout(rc.Ctx, tables)
}
