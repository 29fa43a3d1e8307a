package continuous

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by all operations of this package.
//
// Errors compare by code, so errors.Is(err, ErrConflict) holds for every
// conflict regardless of message or offending version.
type Error struct {
	Code    ErrCode  // The error code
	Msg     string   // The error message
	Version *Version // Offending version (conflicts only), may be nil
	Err     error    // Wrapped cause (fatal errors only), may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ContinuousError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("ContinuousError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new error with the given code and message.
func NewError(code ErrCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

func newErrorf(code ErrCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// fatal wraps an engine error.
func fatal(msg string, err error) *Error {
	return &Error{
		Code: ErrCFatal,
		Msg:  msg,
		Err:  err,
	}
}

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

type ErrCode uint64

const (
	ErrCNone                      ErrCode = iota // 0: No error.
	ErrCTransactionNotStarted                    // 1: Write or commit without an active transaction.
	ErrCTransactionAlreadyStarted                // 2: Begin while a different, non-empty transaction runs.
	ErrCObjectAlreadyInserted                    // 3: Insert of a record that already belongs to a history.
	ErrCAmbiguousVersion                         // 4: Second working copy of a history from a different version.
	ErrCNotCurrentVersion                        // 5: Delete (or update) of a version that is not current.
	ErrCConflict                                 // 6: A newer version was committed after the snapshot.
	ErrCNotUnique                                // 7: Unique index violation.
	ErrCSingleton                                // 8: More than one result where one was expected.
	ErrCSchema                                   // 9: Unknown table or index, invalid table definition.
	ErrCFatal                                    // 10: Unrecoverable engine error.
)

func (c ErrCode) String() string {
	switch c {
	case ErrCNone:
		return "None"
	case ErrCTransactionNotStarted:
		return "TransactionNotStarted"
	case ErrCTransactionAlreadyStarted:
		return "TransactionAlreadyStarted"
	case ErrCObjectAlreadyInserted:
		return "ObjectAlreadyInserted"
	case ErrCAmbiguousVersion:
		return "AmbiguousVersion"
	case ErrCNotCurrentVersion:
		return "NotCurrentVersion"
	case ErrCConflict:
		return "Conflict"
	case ErrCNotUnique:
		return "NotUnique"
	case ErrCSingleton:
		return "Singleton"
	case ErrCSchema:
		return "Schema"
	case ErrCFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is
var (
	ErrTransactionNotStarted     = NewError(ErrCTransactionNotStarted, "no active transaction")
	ErrTransactionAlreadyStarted = NewError(ErrCTransactionAlreadyStarted, "another transaction is in progress")
	ErrObjectAlreadyInserted     = NewError(ErrCObjectAlreadyInserted, "record already belongs to a version history")
	ErrAmbiguousVersion          = NewError(ErrCAmbiguousVersion, "history already has a working copy from another version")
	ErrNotCurrentVersion         = NewError(ErrCNotCurrentVersion, "version is not current for the transaction")
	ErrConflict                  = NewError(ErrCConflict, "concurrent modification")
	ErrNotUnique                 = NewError(ErrCNotUnique, "unique constraint violated")
	ErrSingleton                 = NewError(ErrCSingleton, "more than one result")
	ErrSchema                    = NewError(ErrCSchema, "schema error")
	ErrFatal                     = NewError(ErrCFatal, "fatal engine error")
)
