package browser

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrDriverNotFound    = errors.New("driver not found")
	ErrDriverUnavailable = errors.New("driver unavailable")
	ErrLaunchTimeout     = errors.New("launch timeout")
	ErrSessionInit       = errors.New("session init failed")
	ErrTabNotFound       = errors.New("tab not found")
	ErrNoActiveTab       = errors.New("no active tab")
	ErrActionExecution   = errors.New("action failed")
	ErrProcessCrashed    = errors.New("process crashed")
)

// Error carries an error kind, the operation that failed and the cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// NewError builds an Error. Err may be nil.
func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error whose cause is a formatted message.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil && e.Op == "":
		return e.Kind.Error()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the error kind of err, or nil if err carries none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrDriverNotFound,
		ErrDriverUnavailable,
		ErrLaunchTimeout,
		ErrSessionInit,
		ErrTabNotFound,
		ErrNoActiveTab,
		ErrActionExecution,
		ErrProcessCrashed,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
