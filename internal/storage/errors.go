package storage

import (
	"errors"
	"fmt"
)

var (
	ErrSpecInvalid        = errors.New("storage: invalid storage spec")
	ErrBackendUnavailable = errors.New("storage: backend not configured")
	ErrObjectNotFound     = errors.New("storage: object not found")
	ErrPointerInvalid     = errors.New("storage: invalid pointer")
)

// StorageError reports a backend failure for one object.
type StorageError struct {
	Op      string
	Pointer string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Pointer, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IntegrityError reports bytes whose recomputed hash differs from the hash
// recorded in their pointer.
type IntegrityError struct {
	Pointer string
	Want    string
	Got     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("storage: integrity mismatch for %s: want %s, got %s", e.Pointer, e.Want, e.Got)
}
