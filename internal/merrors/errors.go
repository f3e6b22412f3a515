// Package merrors defines the closed error taxonomy shared by every memd
// component, and the boundary-translation helpers that turn lower-level
// errors (database/sql, bleve, faiss, RPC) into it.
package merrors

import (
	"database/sql"
	"errors"
	"fmt"
)

// Code is one of the seven kinds of failure a memd operation can report.
type Code string

const (
	InvalidArgument Code = "invalid_argument"
	NotFound        Code = "not_found"
	Conflict        Code = "conflict"
	Unavailable     Code = "unavailable"
	Timeout         Code = "timeout"
	Storage         Code = "storage"
	Internal        Code = "internal"
)

// Error is the concrete type every memd component returns for a classified
// failure. Op names the operation that failed ("eventstore.PutEvent"); Err,
// when set, is the underlying cause and is reachable via errors.Unwrap.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Code, letting callers
// write errors.Is(err, merrors.ErrNotFound) style checks via the sentinels
// below, or errors.Is(err, &merrors.Error{Code: merrors.Conflict}) directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds an *Error for op with the given code and no wrapped cause.
func New(code Code, op string, msg string) *Error {
	return &Error{Code: code, Op: op, Err: errors.New(msg)}
}

// Wrap classifies err under code, recording op for diagnostics. A nil err
// yields a nil *Error (returned as error so callers can `return Wrap(...)`
// directly without an extra nil check).
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the Code from err, defaulting to Internal when err isn't
// (or doesn't wrap) a *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Is reports whether err carries the given code, looking through wrapping.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// WrapDB classifies a database/sql error for op, mapping sql.ErrNoRows to
// NotFound the way the teacher's sqlite error-wrapping does, and anything
// else to Storage.
func WrapDB(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Code: NotFound, Op: op, Err: err}
	}
	return &Error{Code: Storage, Op: op, Err: err}
}

// sentinels for the common single-value checks
var (
	ErrNotFound        = &Error{Code: NotFound, Op: "", Err: errors.New("not found")}
	ErrConflict        = &Error{Code: Conflict, Op: "", Err: errors.New("conflict")}
	ErrInvalidArgument = &Error{Code: InvalidArgument, Op: "", Err: errors.New("invalid argument")}
	ErrUnavailable     = &Error{Code: Unavailable, Op: "", Err: errors.New("unavailable")}
	ErrTimeout         = &Error{Code: Timeout, Op: "", Err: errors.New("timeout")}
)
