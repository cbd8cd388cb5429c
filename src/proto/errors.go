package proto

import (
	"errors"
	"fmt"
)

// ErrorCode is the numeric code carried by an error payload.
type ErrorCode int

// Error codes defined by the harness protocol.
const (
	Timeout                ErrorCode = 0
	NodeNotFound           ErrorCode = 1
	NotSupported           ErrorCode = 10
	TemporarilyUnavailable ErrorCode = 11
	MalformedRequest       ErrorCode = 12
	Crash                  ErrorCode = 13
	Abort                  ErrorCode = 14
	KeyDoesNotExist        ErrorCode = 20
	KeyAlreadyExists       ErrorCode = 21
	PreconditionFailed     ErrorCode = 22
	TransactionConflict    ErrorCode = 30
)

// String ...
func (c ErrorCode) String() string {
	switch c {
	case Timeout:
		return "timeout"
	case NodeNotFound:
		return "node_not_found"
	case NotSupported:
		return "not_supported"
	case TemporarilyUnavailable:
		return "temporarily_unavailable"
	case MalformedRequest:
		return "malformed_request"
	case Crash:
		return "crash"
	case Abort:
		return "abort"
	case KeyDoesNotExist:
		return "key_does_not_exist"
	case KeyAlreadyExists:
		return "key_already_exists"
	case PreconditionFailed:
		return "precondition_failed"
	case TransactionConflict:
		return "txn_conflict"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Error is both the error payload exchanged with peers and a Go error, so a
// protocol failure detected locally can be sent as is.
type Error struct {
	Code ErrorCode
	Text string
}

// NewError returns an error payload with the given code and text.
func NewError(code ErrorCode, text string) *Error {
	return &Error{Code: code, Text: text}
}

// Malformed wraps err into a MalformedRequest error.
func Malformed(err error) *Error {
	return &Error{Code: MalformedRequest, Text: err.Error()}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Text)
}

// IsErrorCode reports whether err is, or wraps, a protocol Error with the
// given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Code == code
}
