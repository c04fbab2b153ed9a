package database

import (
	"context"
	"strings"

	"github.com/myjettools/myjetpg/database/sqlbuf"
	"github.com/jmoiron/sqlx"
)

// Statement is one statement of a BulkTx sequence: SQL text together with its
// already-materialized positional parameters.
type Statement struct {
	SQL    string
	Params []any
}

// NewStatement builds a Statement from sqlText and buf, materializing buf's bound
// values.
func NewStatement(sqlText string, buf *sqlbuf.Buffer) Statement {
	return Statement{SQL: sqlText, Params: buf.Materialize()}
}

// BulkTx executes every statement in stmts, in order, inside a single transaction. A
// single timeout races the whole sequence (not each statement individually), matching
// d.run's usual per-call semantics: BulkTx is just another pipeline call whose fn
// happens to run several statements. An empty stmts is a no-op that still opens and
// commits an empty transaction.
func (d *Database) BulkTx(rc *RequestContext, stmts []Statement) error {
	describe := describeBulkTx(stmts)

	return d.run(rc, describe, func(ctx context.Context, db *sqlx.DB) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}

		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s.SQL, s.Params...); err != nil {
				_ = tx.Rollback()
				return err
			}
		}

		return tx.Commit()
	})
}

func describeBulkTx(stmts []Statement) string {
	var b strings.Builder
	b.WriteString("BEGIN;")
	for _, s := range stmts {
		b.WriteString(s.SQL)
		b.WriteString(";")
	}
	b.WriteString("COMMIT;")
	return b.String()
}
