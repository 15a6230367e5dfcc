package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a minutes error code.
type ErrorCode string

const (
	ErrAudio            ErrorCode = "AUDIO"              // 500
	ErrIPC              ErrorCode = "IPC"                // 400
	ErrAlreadyRecording ErrorCode = "ALREADY_RECORDING"  // 409
	ErrNotRecording     ErrorCode = "NOT_RECORDING"      // 409
	ErrStartupTimeout   ErrorCode = "STARTUP_TIMEOUT"    // 504
	ErrDaemonNotRunning ErrorCode = "DAEMON_NOT_RUNNING" // 503
	ErrCodec            ErrorCode = "CODEC"              // 422
	ErrTranscription    ErrorCode = "TRANSCRIPTION"      // 500
	ErrNotFound         ErrorCode = "NOT_FOUND"          // 404
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"    // 400
	ErrSummarizer       ErrorCode = "SUMMARIZER"         // 502
	ErrInternal         ErrorCode = "INTERNAL"           // 500
)

// MinutesError represents a structured error with code, status, and details.
type MinutesError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *MinutesError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *MinutesError) Unwrap() error {
	return e.Err
}

// withCause appends the cause's text to msg so it survives the trip over IPC.
func withCause(msg string, cause error) string {
	if cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, cause)
}

// NewAudio creates an error for capture failures: no device, missing tool, spawn failure.
func NewAudio(msg string, cause error) *MinutesError {
	return &MinutesError{
		Code:    ErrAudio,
		Status:  500,
		Message: withCause(msg, cause),
		Err:     cause,
	}
}

// NewIPC creates an error for malformed or oversized frames.
func NewIPC(msg string, cause error) *MinutesError {
	return &MinutesError{
		Code:    ErrIPC,
		Status:  400,
		Message: withCause(msg, cause),
		Err:     cause,
	}
}

// NewAlreadyRecording is returned when a recording is requested while the daemon is busy.
func NewAlreadyRecording(state string) *MinutesError {
	msg := "already recording"
	if state != "" && state != "recording" {
		msg = fmt.Sprintf("daemon is busy (%s)", state)
	}
	return &MinutesError{
		Code:    ErrAlreadyRecording,
		Status:  409,
		Message: msg,
		Details: map[string]any{"state": state},
	}
}

// NewNotRecording is returned by stop when nothing is being recorded.
func NewNotRecording() *MinutesError {
	return &MinutesError{
		Code:    ErrNotRecording,
		Status:  409,
		Message: "not recording",
	}
}

// NewStartupTimeout is returned by the launcher when the daemon never became ready.
func NewStartupTimeout(msg string) *MinutesError {
	return &MinutesError{
		Code:    ErrStartupTimeout,
		Status:  504,
		Message: msg,
	}
}

// NewDaemonNotRunning is returned by the client when the socket cannot be reached.
func NewDaemonNotRunning(socketPath string) *MinutesError {
	return &MinutesError{
		Code:    ErrDaemonNotRunning,
		Status:  503,
		Message: "daemon is not running (start it with `minutes daemon start`)",
		Details: map[string]any{"socket_path": socketPath},
	}
}

// NewCodec creates an error for unsupported or empty audio input.
func NewCodec(msg string) *MinutesError {
	return &MinutesError{
		Code:    ErrCodec,
		Status:  422,
		Message: msg,
	}
}

// NewTranscription creates an error for a failed transcription pass.
func NewTranscription(msg string, cause error) *MinutesError {
	return &MinutesError{
		Code:    ErrTranscription,
		Status:  500,
		Message: withCause(msg, cause),
		Err:     cause,
	}
}

// NewNotFound creates a 404 error for when a recording cannot be found.
func NewNotFound(identifier string) *MinutesError {
	return &MinutesError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("recording not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *MinutesError {
	return &MinutesError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewSummarizer creates an error for provider setup or call failures.
func NewSummarizer(msg string, cause error) *MinutesError {
	return &MinutesError{
		Code:    ErrSummarizer,
		Status:  502,
		Message: withCause(msg, cause),
		Err:     cause,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *MinutesError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &MinutesError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is checks if an error is (or wraps) a MinutesError with the given code.
func Is(err error, code ErrorCode) bool {
	var mErr *MinutesError
	if stderrors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}

var statusByCode = map[ErrorCode]int{
	ErrAudio:            500,
	ErrIPC:              400,
	ErrAlreadyRecording: 409,
	ErrNotRecording:     409,
	ErrStartupTimeout:   504,
	ErrDaemonNotRunning: 503,
	ErrCodec:            422,
	ErrTranscription:    500,
	ErrNotFound:         404,
	ErrInvalidRequest:   400,
	ErrSummarizer:       502,
	ErrInternal:         500,
}

// FromWire rebuilds an error received over IPC. The message is kept
// verbatim; unknown codes become INTERNAL.
func FromWire(code, msg string) *MinutesError {
	c := ErrorCode(code)
	status, ok := statusByCode[c]
	if !ok {
		c, status = ErrInternal, 500
	}
	return &MinutesError{Code: c, Status: status, Message: msg}
}

// CodeOf returns the code of a MinutesError, or INTERNAL for any other error.
func CodeOf(err error) ErrorCode {
	var mErr *MinutesError
	if stderrors.As(err, &mErr) {
		return mErr.Code
	}
	return ErrInternal
}
