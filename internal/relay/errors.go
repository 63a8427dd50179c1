package relay

import "fmt"

// ErrorCode identifies why a relay command was refused or failed.
type ErrorCode string

// Error codes for relay commands.
const (
	CodeAlreadyRunning ErrorCode = "ALREADY_RUNNING"
	CodeNotRunning     ErrorCode = "NOT_RUNNING"
	CodeStopTimeout    ErrorCode = "STOP_TIMEOUT"
	CodeSignalFailed   ErrorCode = "SIGNAL_FAILED"
	CodePersistence    ErrorCode = "PERSISTENCE"
)

// Sentinel errors for errors.Is. Any *Error with the same code matches.
var (
	ErrAlreadyRunning = &Error{Code: CodeAlreadyRunning, Message: "master already running"}
	ErrNotRunning     = &Error{Code: CodeNotRunning, Message: "master not running"}
	ErrStopTimeout    = &Error{Code: CodeStopTimeout, Message: "master did not stop in time"}
)

// Error is a relay failure with the master PID it concerns, if known.
type Error struct {
	Code    ErrorCode
	Message string
	PID     int
	Cause   error
}

func newError(code ErrorCode, message string, pid int, cause error) *Error {
	return &Error{Code: code, Message: message, PID: pid, Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.PID > 0 {
		msg = fmt.Sprintf("%s (pid %d)", msg, e.PID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any relay error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}
