package enrich

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput marks a backlog record that cannot be normalized.
	ErrMalformedInput = errors.New("malformed input")
	// ErrSessionInit marks a browser session that could not be started.
	ErrSessionInit = errors.New("session init failed")
	// ErrPersistence marks a failed write-back of an outcome.
	ErrPersistence = errors.New("persistence failed")
)

// StepError reports the interaction stage at which an attempt failed.
type StepError struct {
	Stage string
	Err   error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("step %s failed", e.Stage)
	}
	return fmt.Sprintf("step %s: %v", e.Stage, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
