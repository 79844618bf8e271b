package orchestrator

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error classification surfaced through the
// API and logs.
type Code string

// Error codes.
const (
	CodeStreamNotFound  Code = "STREAM_NOT_FOUND"
	CodeStreamNotActive Code = "STREAM_NOT_ACTIVE"
	CodeStreamExists    Code = "STREAM_EXISTS"
	CodeStreamBusy      Code = "STREAM_BUSY"
	CodeInvalidParams   Code = "INVALID_PARAMS"
	CodeSpawnFailed     Code = "SPAWN_FAILED"
	CodeSCTE35Disabled  Code = "SCTE35_DISABLED"
	CodeManifestError   Code = "MANIFEST_ERROR"
	CodeEventNotFound   Code = "EVENT_NOT_FOUND"
)

// StreamError is a typed orchestration error.
type StreamError struct {
	Code    Code
	Stream  string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *StreamError) Unwrap() error { return e.Err }

func newError(code Code, stream, format string, args ...any) *StreamError {
	return &StreamError{
		Code:    code,
		Stream:  stream,
		Message: fmt.Sprintf(format, args...),
	}
}

func wrapError(code Code, stream string, err error, format string, args ...any) *StreamError {
	return &StreamError{
		Code:    code,
		Stream:  stream,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// CodeOf extracts the classification from an error chain, or returns an
// empty Code for non-orchestration errors.
func CodeOf(err error) Code {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
