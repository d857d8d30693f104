// Package apperror carries the error taxonomy used to pick HTTP status codes
// and event error codes without string-matching error messages.
package apperror

import "fmt"

// Code classifies an error for the HTTP layer and for error{code,...} events.
type Code string

const (
	// CodeNotFound marks a missing session, turn, permission request, etc.
	CodeNotFound Code = "NOT_FOUND"
	// CodeInvalidRequest marks a client fault: bad body, unknown tool, path traversal.
	CodeInvalidRequest Code = "INVALID_REQUEST"
	// CodeBusy marks a turn submitted while one is already active for the session.
	CodeBusy Code = "BUSY"
	// CodeLLMStreamError marks a streaming completion failure.
	CodeLLMStreamError Code = "LLM_STREAM_ERROR"
	// CodeCancelled marks a turn torn down by explicit cancellation.
	CodeCancelled Code = "CANCELLED"
	// CodeTurnError marks any other unhandled turn failure.
	CodeTurnError Code = "TURN_ERROR"
	// CodeInternal marks a non-classified server fault.
	CodeInternal Code = "INTERNAL_ERROR"
)

// Error wraps an underlying cause with a taxonomy Code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error around an existing error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Code from err if it (or something it wraps) is an *Error.
// Falls back to CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return CodeInternal
	}
	return e.Code
}
