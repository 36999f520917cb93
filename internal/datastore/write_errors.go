package datastore

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/casebridge/dispatch-migrate/internal/errors"
)

// WriteErrorKind is a low-cardinality classification of a failed write, used in
// batch error reports and metric labels.
type WriteErrorKind string

const (
	WriteErrorConstraint WriteErrorKind = "constraint"
	WriteErrorData       WriteErrorKind = "data"
	WriteErrorConnection WriteErrorKind = "connection"
	WriteErrorCanceled   WriteErrorKind = "canceled"
	WriteErrorUnknown    WriteErrorKind = "unknown"
)

// WriteErrorDetail describes a driver error in dialect-neutral terms.
type WriteErrorDetail struct {
	Kind WriteErrorKind
	Code string // SQLSTATE, MySQL error number or SQLite extended code
}

func (d WriteErrorDetail) String() string {
	if d.Code == "" {
		return string(d.Kind)
	}
	return fmt.Sprintf("%s (%s)", d.Kind, d.Code)
}

// ClassifyWriteError inspects postgres, mysql and sqlite driver errors.
func ClassifyWriteError(err error) WriteErrorDetail {
	if err == nil {
		return WriteErrorDetail{}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return WriteErrorDetail{Kind: WriteErrorCanceled}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return WriteErrorDetail{Kind: postgresKind(pgErr.Code), Code: pgErr.Code}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return WriteErrorDetail{Kind: mysqlKind(myErr.Number), Code: fmt.Sprintf("%d", myErr.Number)}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return WriteErrorDetail{Kind: sqliteKind(liteErr), Code: fmt.Sprintf("%d", int(liteErr.ExtendedCode))}
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return WriteErrorDetail{Kind: WriteErrorConnection}
	}

	return WriteErrorDetail{Kind: WriteErrorUnknown}
}

func postgresKind(code string) WriteErrorKind {
	if len(code) < 2 {
		return WriteErrorUnknown
	}
	switch code[:2] {
	case "23": // integrity_constraint_violation
		return WriteErrorConstraint
	case "22": // data_exception
		return WriteErrorData
	case "08", "57": // connection_exception, operator_intervention
		return WriteErrorConnection
	default:
		return WriteErrorUnknown
	}
}

func mysqlKind(number uint16) WriteErrorKind {
	switch number {
	case 1048, 1062, 1216, 1217, 1451, 1452, 3819: // not null, duplicate, foreign key, check
		return WriteErrorConstraint
	case 1264, 1265, 1292, 1366, 1406: // out of range, truncated, incorrect value, too long
		return WriteErrorData
	case 2006, 2013: // server gone away, lost connection
		return WriteErrorConnection
	default:
		return WriteErrorUnknown
	}
}

func sqliteKind(err sqlite3.Error) WriteErrorKind {
	switch err.Code {
	case sqlite3.ErrConstraint:
		return WriteErrorConstraint
	case sqlite3.ErrMismatch, sqlite3.ErrTooBig, sqlite3.ErrRange:
		return WriteErrorData
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
		return WriteErrorConnection
	default:
		return WriteErrorUnknown
	}
}
