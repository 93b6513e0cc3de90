package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
)

// withTx runs fn in a transaction, committed if fn succeeds.
func withTx(ctx context.Context, db core.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return storeErr(errors.Wrap(err, "beginning transaction"))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return storeErr(errors.Wrap(err, "committing transaction"))
	}
	return nil
}

func isPostgres(db core.DBExecutor) bool {
	return db.DriverName() == "postgres"
}

// forUpdate locks the selected rows on engines that support row locks.
// SQLite transactions already hold the database write lock.
func forUpdate(db core.DBExecutor, query string) string {
	if isPostgres(db) {
		return query + " FOR UPDATE"
	}
	return query
}

func withLimit(query string, limit int) string {
	if limit > 0 {
		return fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	return query
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	return n, storeErr(err)
}
