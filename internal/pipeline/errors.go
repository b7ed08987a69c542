package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout      = errors.New("pipeline: document timed out")
	ErrUploadFailed = errors.New("pipeline: object upload failed")
)

// PreflightError aborts a run before any document is processed.
type PreflightError struct {
	Op  string
	Err error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Op, e.Err)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// DocumentError attributes a failure to a document and the stage it had
// reached.
type DocumentError struct {
	Path  string
	Stage State
	Err   error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s (after %s): %v", e.Path, e.Stage, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }
