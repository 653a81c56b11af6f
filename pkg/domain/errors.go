package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBadRequest is returned for user-correctable input problems (missing or oversized upload).
	ErrBadRequest = errors.New("bad request")

	// ErrWorkspaceCreation is returned when a session directory cannot be allocated.
	ErrWorkspaceCreation = errors.New("workspace creation failed")

	// ErrStaging is returned when a support file cannot be copied into the workspace.
	ErrStaging = errors.New("staging failed")

	// ErrSpawn is returned when the executable cannot be started at all.
	ErrSpawn = errors.New("converter could not be started")

	// ErrExecutionFailed is returned when the executable ran and exited non-zero.
	ErrExecutionFailed = errors.New("converter exited with non-zero status")

	// ErrExecutionTimeout is returned when the executable was killed for exceeding its deadline.
	ErrExecutionTimeout = errors.New("converter timed out")

	// ErrCanceled is returned when the request was abandoned before the executable finished.
	ErrCanceled = errors.New("conversion canceled")

	// ErrOutputDirectoryMissing is returned when the declared output directory is absent after execution.
	ErrOutputDirectoryMissing = errors.New("declared output directory missing")

	// ErrNoOutputProduced is returned when the output directory holds no regular files.
	ErrNoOutputProduced = errors.New("no output produced")
)

// ConversionError annotates a failure with the terminal state the request ended
// in and, when the executable ran, its captured Result.
type ConversionError struct {
	State  State
	Err    error
	Result *Result
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// IsBadRequest reports whether err is user-correctable.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// ResultOf extracts the captured Result from err, if any.
func ResultOf(err error) *Result {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Result
	}
	return nil
}
