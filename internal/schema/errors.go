package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies schema compilation failures.
type ErrorKind string

const (
	DuplicateTable     ErrorKind = "duplicate_table"
	CyclicSchema       ErrorKind = "cyclic_schema"
	InvalidFieldOption ErrorKind = "invalid_field_option"
	UnknownFieldType   ErrorKind = "unknown_field_type"
)

var (
	ErrDuplicateTable     = errors.New("schema: duplicate table")
	ErrCyclicSchema       = errors.New("schema: cyclic schema")
	ErrInvalidFieldOption = errors.New("schema: invalid field option")
	ErrUnknownFieldType   = errors.New("schema: unknown field type")
)

var kindSentinels = map[ErrorKind]error{
	DuplicateTable:     ErrDuplicateTable,
	CyclicSchema:       ErrCyclicSchema,
	InvalidFieldOption: ErrInvalidFieldOption,
	UnknownFieldType:   ErrUnknownFieldType,
}

// SchemaError is a fatal problem in a collection's field tree.
type SchemaError struct {
	Kind   ErrorKind
	Table  string
	Field  string
	Detail string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString(kindSentinels[e.Kind].Error())
	if e.Table != "" {
		fmt.Fprintf(&b, " in table %q", e.Table)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Is matches the sentinel for the error's kind.
func (e *SchemaError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func schemaErr(kind ErrorKind, table, field, format string, args ...any) *SchemaError {
	return &SchemaError{Kind: kind, Table: table, Field: field, Detail: fmt.Sprintf(format, args...)}
}
