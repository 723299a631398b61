package supervisor

import (
	"errors"
	"fmt"
)

// Kind classifies a supervision failure
type Kind int

const (
	KindUnknown Kind = iota
	// KindBinaryMissing means the resolved daemon binary does not exist
	KindBinaryMissing
	// KindBackendFailed means launchctl or the OS refused the operation
	KindBackendFailed
	// KindNotRunning means stop found no daemon process to signal
	KindNotRunning
	// KindTimeout means a launchctl call exceeded the configured command timeout
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindBinaryMissing:
		return "binary missing"
	case KindBackendFailed:
		return "backend failed"
	case KindNotRunning:
		return "not running"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrBinaryMissing = &Error{Kind: KindBinaryMissing}
	ErrBackendFailed = &Error{Kind: KindBackendFailed}
	ErrNotRunning    = &Error{Kind: KindNotRunning}
	ErrTimeout       = &Error{Kind: KindTimeout}
)

// Error is returned by Start and Stop
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Message == "":
		return "supervisor: " + e.Kind.String()
	case e.Message == "":
		return fmt.Sprintf("supervisor %s: %s", e.Op, e.Kind)
	default:
		return fmt.Sprintf("supervisor %s: %s: %s", e.Op, e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can write errors.Is(err, supervisor.ErrNotRunning)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of err, or KindUnknown when err is not a supervision error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
