package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/goliatone/go-contentpack/internal/codegen"
	"github.com/goliatone/go-contentpack/internal/schema"
)

const resourceName = "validator.json"

var (
	ErrSchemaInvalid    = errors.New("validator schema invalid")
	ErrSchemaValidation = errors.New("payload validation failed")
	ErrUnknownTable     = errors.New("unknown table")
	ErrNotMarkdown      = errors.New("column is not a markdown field")
)

// ValidationIssue captures a single validation failure.
type ValidationIssue struct {
	Location string
	Message  string
}

// PayloadValidationError surfaces validation issues with their instance
// locations.
type PayloadValidationError struct {
	Table  string
	Issues []ValidationIssue
	Cause  error
}

func (e *PayloadValidationError) Error() string {
	prefix := ""
	if e.Table != "" {
		prefix = e.Table + ": "
	}
	if len(e.Issues) == 0 {
		if e.Cause != nil {
			return prefix + e.Cause.Error()
		}
		return prefix + ErrSchemaValidation.Error()
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		location := strings.TrimSpace(issue.Location)
		if location == "" {
			location = "#"
		} else if !strings.HasPrefix(location, "#") {
			location = "#" + location
		}
		if issue.Message == "" {
			parts = append(parts, location)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", location, issue.Message))
	}
	return prefix + strings.Join(parts, "; ")
}

func (e *PayloadValidationError) Unwrap() error {
	return ErrSchemaValidation
}

// Issues extracts validation issues from an error.
func Issues(err error) []ValidationIssue {
	if err == nil {
		return nil
	}
	var payloadErr *PayloadValidationError
	if errors.As(err, &payloadErr) && payloadErr != nil {
		return payloadErr.Issues
	}
	var validationErr *jsonschema.ValidationError
	if errors.As(err, &validationErr) && validationErr != nil {
		return collectValidationIssues(validationErr)
	}
	return []ValidationIssue{{Message: err.Error()}}
}

// Validator checks rows and markdown bodies against the generated JSON
// Schema of a collection.
type Validator struct {
	collection *schema.Collection
	tables     map[string]*jsonschema.Schema
	body       *jsonschema.Schema
}

// NewValidator compiles the collection's validator document.
func NewValidator(c *schema.Collection) (*Validator, error) {
	raw, err := codegen.ValidatorJSON(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	return FromJSON(raw, c)
}

// FromJSON compiles a previously emitted validator document.
func FromJSON(raw []byte, c *schema.Collection) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}

	v := &Validator{collection: c, tables: make(map[string]*jsonschema.Schema, len(c.Tables))}
	for _, t := range c.Tables {
		compiled, err := compiler.Compile(resourceName + codegen.DefRef(t.Name))
		if err != nil {
			return nil, fmt.Errorf("%w: table %s: %v", ErrSchemaInvalid, t.Name, err)
		}
		v.tables[t.Name] = compiled
	}
	body, err := compiler.Compile(resourceName + codegen.DefRef(codegen.DefMarkdownDocument))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	v.body = body
	return v, nil
}

// ValidateRow checks one row of table. Values may be any JSON-encodable Go
// values; they are normalized through encoding/json first.
func (v *Validator) ValidateRow(table string, row map[string]any) error {
	compiled, ok := v.tables[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	instance, err := normalize(row)
	if err != nil {
		return &PayloadValidationError{Table: table, Cause: err}
	}
	return validate(table, compiled, instance)
}

// ValidateBody checks a serialized markdown document of a markdown column,
// as stored behind its pointer.
func (v *Validator) ValidateBody(table, column string, raw []byte) error {
	t, ok := v.collection.Table(table)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if f, ok := t.Field(column); !ok || f.Kind != schema.KindMarkdown {
		return fmt.Errorf("%w: %s.%s", ErrNotMarkdown, table, column)
	}
	instance, err := decode(raw)
	if err != nil {
		return &PayloadValidationError{Table: table, Cause: err}
	}
	return validate(table+"."+column, v.body, instance)
}

func validate(table string, compiled *jsonschema.Schema, instance any) error {
	if err := compiled.Validate(instance); err != nil {
		return &PayloadValidationError{Table: table, Issues: Issues(err), Cause: err}
	}
	return nil
}

func normalize(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func collectValidationIssues(err *jsonschema.ValidationError) []ValidationIssue {
	if err == nil {
		return nil
	}
	issues := []ValidationIssue{}
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if node == nil {
			return
		}
		if len(node.Causes) == 0 {
			issues = append(issues, ValidationIssue{
				Location: strings.TrimSpace(node.InstanceLocation),
				Message:  strings.TrimSpace(node.Message),
			})
			return
		}
		for _, cause := range node.Causes {
			walk(cause)
		}
	}
	walk(err)
	return issues
}
