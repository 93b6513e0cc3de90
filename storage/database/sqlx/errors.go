package sqlxrepos

import (
	"database/sql"
	"database/sql/driver"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
)

func trapNoRowsErr(err, notFound error) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return storeErr(err)
}

// storeErr marks the failures a retry may resolve as transient.
func storeErr(err error) error {
	if err == nil || core.IsTransient(err) {
		return err
	}

	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		switch {
		case e.Code == "40001", // serialization_failure
			e.Code == "40P01", // deadlock_detected
			e.Code == "57P01", // admin_shutdown
			e.Code.Class() == "08": // connection exception
			return core.NewTransientError(err)
		}
	case sqlite3.Error:
		if e.Code == sqlite3.ErrBusy || e.Code == sqlite3.ErrLocked {
			return core.NewTransientError(err)
		}
	}
	if errors.Cause(err) == driver.ErrBadConn {
		return core.NewTransientError(err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		return e.Code == "23505"
	case sqlite3.Error:
		return e.Code == sqlite3.ErrConstraint
	}
	return false
}
