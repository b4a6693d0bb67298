package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout means the command was killed at its deadline. Run still
	// returns whatever output was captured.
	ErrTimeout = errors.New("command exceeded its time limit")
	// ErrOutputLimit is reported by callers when Result.OutputTruncated is set.
	ErrOutputLimit    = errors.New("output limit exceeded")
	ErrInvalidRequest = errors.New("invalid sandbox command")
	ErrUnavailable    = errors.New("sandbox backend unavailable")
	ErrImage          = errors.New("image unavailable")
)

// ExecutionError ties a backend failure to the command and step it came from.
type ExecutionError struct {
	ExecID string
	Op     string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.ExecID != "" {
		return fmt.Sprintf("command %s: %s: %v", e.ExecID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
