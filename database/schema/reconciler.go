package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/myjettools/myjetpg/logging"
	"github.com/myjettools/myjetpg/retry"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// tableSchemaSynchronizationTag is the structured log field naming this subsystem.
const tableSchemaSynchronizationTag = "TABLE_SCHEMA_SYNCHRONIZATION"

// Queryer is the minimal database/sql surface the reconciler needs. Both *sql.DB and
// *sqlx.DB satisfy it, so the reconciler stays decoupled from which row-scanning
// layer the caller prefers.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Reconciler drives a fixed-point reconciliation loop against db.
type Reconciler struct {
	DB     Queryer
	Logger *logging.Logger
}

// NewReconciler returns a Reconciler logging through logger.
func NewReconciler(db Queryer, logger *logging.Logger) *Reconciler {
	return &Reconciler{DB: db, Logger: logger}
}

// Sync reconciles table against the live database, looping until a full pass makes
// no further change.
func (r *Reconciler) Sync(ctx context.Context, table TableSchema) error {
	for {
		changed, err := r.syncFields(ctx, table)
		if err != nil {
			return errors.Wrapf(err, "can't sync columns of table %q", table.QualifiedName())
		}
		if changed {
			continue
		}

		changed, err = r.syncPrimaryKey(ctx, table)
		if err != nil {
			return errors.Wrapf(err, "can't sync primary key of table %q", table.QualifiedName())
		}
		if changed {
			continue
		}

		changed, err = r.syncIndexes(ctx, table)
		if err != nil {
			return errors.Wrapf(err, "can't sync indexes of table %q", table.QualifiedName())
		}
		if changed {
			continue
		}

		return nil
	}
}

func (r *Reconciler) exec(ctx context.Context, ddl string) error {
	if r.Logger != nil {
		r.Logger.Warnw("Altering database schema", zap.String("tag", tableSchemaSynchronizationTag), zap.String("ddl", ddl))
	}

	_, err := r.DB.ExecContext(ctx, ddl)
	return err
}

func (r *Reconciler) fetchLiveColumns(ctx context.Context, table TableSchema) ([]liveColumn, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT column_name, column_default, is_nullable, data_type
		 FROM information_schema.columns
		 WHERE table_schema=$1 AND table_name=$2
		 ORDER BY ordinal_position`,
		table.SchemaName(), table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []liveColumn
	for rows.Next() {
		var c liveColumn
		var def sql.NullString
		var nullable string
		if err := rows.Scan(&c.Name, &def, &nullable, &c.DataType); err != nil {
			return nil, err
		}
		c.Default = def.String
		c.IsNullable = nullable == "YES"
		out = append(out, c)
	}
	return out, rows.Err()
}

// syncFields creates the table if it is missing entirely, then adds and updates
// columns to match the declared model.
func (r *Reconciler) syncFields(ctx context.Context, table TableSchema) (changed bool, err error) {
	live, err := r.fetchLiveColumns(ctx, table)
	if err != nil {
		return false, err
	}

	if len(live) == 0 {
		if err := r.exec(ctx, createTableDDL(table)); err != nil {
			return false, errors.Wrap(err, "can't create table")
		}
		return true, nil
	}

	diff := diffFields(table.Columns, live)

	for _, u := range diff.toUpdate {
		if err := r.updateColumn(ctx, table, u); err != nil {
			return false, errors.Wrapf(err, "can't update column %q", u.Column.Name)
		}
		changed = true
	}

	for _, c := range diff.toAdd {
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table.QualifiedName(), columnDDL(c))
		if err := r.exec(ctx, ddl); err != nil {
			return false, errors.Wrapf(err, "can't add column %q", c.Name)
		}
		changed = true
	}

	return changed, nil
}

// updateColumn builds the DDL block for one differing column (up to three ALTER
// COLUMN statements: type, nullability, default) and executes it one statement at a
// time, naming the offending statement and column on failure.
func (r *Reconciler) updateColumn(ctx context.Context, table TableSchema, u columnUpdate) error {
	qualifiedCol := fmt.Sprintf("%s.%s", table.QualifiedName(), u.Column.Name)

	for _, stmt := range SplitStatements(updateColumnDDL(table, u)) {
		if err := r.exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "can't apply %q to column %s", stmt, qualifiedCol)
		}
	}

	return nil
}

// updateColumnDDL renders the corrective statements for one columnUpdate as a
// single semicolon-separated block, in the order type, nullability, default.
func updateColumnDDL(table TableSchema, u columnUpdate) string {
	var b strings.Builder

	if u.TypeDiffers {
		fmt.Fprintf(&b, "ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s;\n",
			table.QualifiedName(), u.Column.Name, u.Column.SQLType, u.Column.Name, u.Column.SQLType)
	}

	if u.NullDiffers {
		verb := "SET NOT NULL"
		if u.Column.Nullable {
			verb = "DROP NOT NULL"
		}
		fmt.Fprintf(&b, "ALTER TABLE %s ALTER COLUMN %s %s;\n", table.QualifiedName(), u.Column.Name, verb)
	}

	if u.DefaultDiffers {
		if u.Column.Default == "" {
			fmt.Fprintf(&b, "ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT;\n", table.QualifiedName(), u.Column.Name)
		} else {
			fmt.Fprintf(&b, "ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s;\n", table.QualifiedName(), u.Column.Name, u.Column.Default)
		}
	}

	return b.String()
}

type livePrimaryKey struct {
	Constraint string
	Columns    []string
}

func (r *Reconciler) fetchLivePrimaryKey(ctx context.Context, table TableSchema) (*livePrimaryKey, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT tc.constraint_name, kcu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		 WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema=$1 AND tc.table_name=$2
		 ORDER BY kcu.ordinal_position`,
		table.SchemaName(), table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pk livePrimaryKey
	for rows.Next() {
		var constraint, column string
		if err := rows.Scan(&constraint, &column); err != nil {
			return nil, err
		}
		pk.Constraint = constraint
		pk.Columns = append(pk.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pk.Columns) == 0 {
		return nil, nil
	}
	return &pk, nil
}

// syncPrimaryKey reconciles the table's primary-key constraint against the declared
// model, dropping and recreating it when the column list differs.
func (r *Reconciler) syncPrimaryKey(ctx context.Context, table TableSchema) (changed bool, err error) {
	if table.PrimaryKey == nil {
		return false, nil
	}

	live, err := r.fetchLivePrimaryKey(ctx, table)
	if err != nil {
		return false, err
	}

	declaredCols := table.PrimaryKey.Columns
	liveCols := []string(nil)
	liveConstraint := ""
	if live != nil {
		liveCols = live.Columns
		liveConstraint = live.Constraint
	}

	if !primaryKeyDiffers(declaredCols, liveCols) {
		return false, nil
	}

	if liveConstraint != "" {
		ddl := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table.QualifiedName(), liveConstraint)
		if err := r.exec(ctx, ddl); err != nil {
			return false, errors.Wrap(err, "can't drop existing primary key constraint")
		}
	}

	constraintName := table.PrimaryKey.Constraint
	if constraintName == "" {
		constraintName = table.Name + "_pkey"
	}
	ddl := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (%s)",
		table.QualifiedName(), constraintName, strings.Join(declaredCols, ","))
	if err := r.exec(ctx, ddl); err != nil {
		return false, errors.Wrap(err, "can't add primary key constraint")
	}

	return true, nil
}

type liveIndex struct {
	Name string
	Def  string
}

func (r *Reconciler) fetchLiveIndexes(ctx context.Context, table TableSchema) ([]liveIndex, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT indexname, indexdef FROM pg_indexes WHERE schemaname=$1 AND tablename=$2`,
		table.SchemaName(), table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []liveIndex
	for rows.Next() {
		var li liveIndex
		if err := rows.Scan(&li.Name, &li.Def); err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// syncIndexes reconciles the table's indexes against the declared model. A
// differing index is dropped and recreated rather than altered in place, since
// PostgreSQL has no generic "alter index definition" statement.
func (r *Reconciler) syncIndexes(ctx context.Context, table TableSchema) (changed bool, err error) {
	live, err := r.fetchLiveIndexes(ctx, table)
	if err != nil {
		return false, err
	}

	liveByName := make(map[string]Index, len(live))
	for _, li := range live {
		liveByName[li.Name] = parseIndexDef(li.Def)
	}

	for name, declared := range table.Indexes {
		got, exists := liveByName[name]

		if exists && indexEquals(got, declared) {
			continue
		}

		if exists {
			if err := r.exec(ctx, fmt.Sprintf("DROP INDEX %s.%s", table.SchemaName(), name)); err != nil {
				return false, errors.Wrapf(err, "can't drop index %q", name)
			}
		}

		if err := r.exec(ctx, createIndexDDL(table, name, declared)); err != nil {
			return false, errors.Wrapf(err, "can't create index %q", name)
		}
		changed = true
	}

	return changed, nil
}

func columnDDL(c Column) string {
	ddl := fmt.Sprintf("%s %s", c.Name, c.SQLType)
	if !c.Nullable {
		ddl += " NOT NULL"
	}
	if c.Default != "" {
		ddl += " DEFAULT " + c.Default
	}
	return ddl
}

func createTableDDL(table TableSchema) string {
	parts := make([]string, 0, len(table.Columns)+1)
	for _, c := range table.Columns {
		parts = append(parts, columnDDL(c))
	}

	if table.PrimaryKey != nil {
		name := table.PrimaryKey.Constraint
		if name == "" {
			name = table.Name + "_pkey"
		}
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", name, strings.Join(table.PrimaryKey.Columns, ",")))
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", table.QualifiedName(), strings.Join(parts, ", "))
}

func createIndexDDL(table TableSchema, name string, idx Index) string {
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		dir := "ASC"
		if c.Descending {
			dir = "DESC"
		}
		cols[i] = fmt.Sprintf("%s %s", c.Column, dir)
	}

	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}

	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, name, table.QualifiedName(), strings.Join(cols, ","))
}

// EnsureDatabaseExists checks for dbName's existence using a connection to the
// maintenance database (the caller is responsible for pointing db at "postgres"),
// and issues CREATE DATABASE if it does not yet exist.
func EnsureDatabaseExists(ctx context.Context, db Queryer, dbName string) error {
	rows, err := db.QueryContext(ctx, "SELECT count(*) FROM pg_database WHERE datname=$1", dbName)
	if err != nil {
		return errors.Wrap(err, "can't check database existence")
	}

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			rows.Close()
			return err
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}

	if count > 0 {
		return nil
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %q", dbName)); err != nil {
		return errors.Wrapf(err, "can't create database %q", dbName)
	}
	return nil
}

// SyncAllWithTimeout reconciles every table in tables, giving each one a 20-second
// wall-clock budget with 3-second sleeps between retries on transient failure.
// Exceeding the budget for any one table is fatal.
func (r *Reconciler) SyncAllWithTimeout(ctx context.Context, tables []TableSchema) error {
	const budget = 20 * time.Second
	const delay = 3 * time.Second

	for _, table := range tables {
		syncCtx, cancel := context.WithTimeout(ctx, budget)
		err := retry.WithFixedDelay(syncCtx, func(ctx context.Context) error {
			return r.Sync(ctx, table)
		}, delay, 0)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrapf(err, "schema synchronization of table %q exceeded its %s budget", table.QualifiedName(), budget)
		}
	}

	return nil
}
