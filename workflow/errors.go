package workflow

import (
	"errors"
	"fmt"
)

// Code classifies engine errors.
type Code string

const (
	// CodeConfig marks configuration errors: undeclared router targets,
	// malformed graphs. Fatal, never retried.
	CodeConfig Code = "CONFIG"
	// CodeStage marks a stage that returned an unrecoverable error.
	CodeStage Code = "STAGE"
	// CodeExhausted marks a run that exceeded the executor's step ceiling.
	CodeExhausted Code = "EXHAUSTED"
)

// Error is a structured engine error carrying the failing stage and cause.
type Error struct {
	Code    Code
	Stage   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = fmt.Sprintf("stage %s: %s", e.Stage, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// ErrRunNotFound is returned by Resume and State for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// ErrRunCompleted is returned by Resume when the run already finished.
var ErrRunCompleted = errors.New("run already completed")

// CodeOf extracts the engine error code, or "" for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
