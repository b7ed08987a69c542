package document

import (
	"fmt"
)

// ParseError reports a document whose source could not be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a document that decoded but does not fit the
// schema. Location names the offending value, e.g. post.tags[1].tag.
type ValidationError struct {
	Path     string
	Location string
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("validate %s: %s: %s", e.Path, e.Location, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }
