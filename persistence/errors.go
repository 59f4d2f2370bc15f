package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/VividCortex/mysqlerr"
	"github.com/go-sql-driver/mysql"
)

// DbError reports a failure the database itself rejected the query
// for — a duplicate key, a constraint violation, a syntax error. The
// connection is retained; the caller decides whether to retry.
// ConstantName carries the matched mysqlerr constant's name (e.g.
// "ER_DUP_ENTRY"), empty if Code doesn't match one this package knows
// about.
type DbError struct {
	Code         int
	State        string
	Message      string
	ConstantName string
}

func (e *DbError) Error() string {
	if e.ConstantName != "" {
		return fmt.Sprintf("db error %d %s (%s): %s", e.Code, e.ConstantName, e.State, e.Message)
	}
	return fmt.Sprintf("db error %d (%s): %s", e.Code, e.State, e.Message)
}

// mysqlErrorNames maps the mysqlerr constants this package already
// checks against back to their names, so DbError can report which one
// matched without the caller re-deriving it from the raw code.
var mysqlErrorNames = map[int]string{
	mysqlerr.ER_DUP_ENTRY:           "ER_DUP_ENTRY",
	mysqlerr.ER_BAD_NULL_ERROR:      "ER_BAD_NULL_ERROR",
	mysqlerr.ER_NO_REFERENCED_ROW:   "ER_NO_REFERENCED_ROW",
	mysqlerr.ER_NO_REFERENCED_ROW_2: "ER_NO_REFERENCED_ROW_2",
	mysqlerr.ER_ROW_IS_REFERENCED:   "ER_ROW_IS_REFERENCED",
	mysqlerr.ER_ROW_IS_REFERENCED_2: "ER_ROW_IS_REFERENCED_2",
}

// IsDuplicateEntry reports whether err is a unique/primary key
// violation, comparing against mysqlerr's named constant rather than
// a magic number.
func IsDuplicateEntry(err error) bool {
	var dbErr *DbError
	return errors.As(err, &dbErr) && dbErr.Code == mysqlerr.ER_DUP_ENTRY
}

// IsConstraintViolation reports whether err is a NOT NULL, foreign
// key, or check constraint violation.
func IsConstraintViolation(err error) bool {
	var dbErr *DbError
	if !errors.As(err, &dbErr) {
		return false
	}
	switch dbErr.Code {
	case mysqlerr.ER_BAD_NULL_ERROR, mysqlerr.ER_NO_REFERENCED_ROW,
		mysqlerr.ER_NO_REFERENCED_ROW_2, mysqlerr.ER_ROW_IS_REFERENCED,
		mysqlerr.ER_ROW_IS_REFERENCED_2:
		return true
	}
	return false
}

// DbConnectError reports that the connection to the database itself
// could not be established or was lost outright; the daemon discards
// the connection and re-enters the backoff loop.
type DbConnectError struct {
	Cause error
}

func (e *DbConnectError) Error() string { return fmt.Sprintf("db connect error: %v", e.Cause) }
func (e *DbConnectError) Unwrap() error { return e.Cause }

// SystemError wraps a save or load whose context expired or was
// canceled; classify builds it for no other error. The connection is
// retained.
type SystemError struct {
	Cause error
}

func (e *SystemError) Error() string { return fmt.Sprintf("system error: %v", e.Cause) }
func (e *SystemError) Unwrap() error { return e.Cause }

// ProtocolError reports malformed or out-of-sequence wire data on the
// socket I/O core.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Message }

// ShutdownRejected is returned by PendForSaving/PendForLoading once
// the daemon has been asked to stop; callers must not queue more work
// past that point.
var ShutdownRejected = errors.New("persistence: daemon is shutting down")

// classify turns a raw error from the sql.DB layer into DbError (query
// rejected by the server, connection retained), SystemError (the
// 30-second Save/Load context expired or was canceled — not a sign
// the connection itself is bad), or DbConnectError (connection itself
// is bad, discard and reconnect), following the same dispatch
// go.chromium.org/luci/machine-db uses against *mysql.MySQLError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		code := int(myErr.Number)
		return &DbError{Code: code, State: "", Message: myErr.Message, ConstantName: mysqlErrorNames[code]}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &SystemError{Cause: err}
	}
	return &DbConnectError{Cause: err}
}
