package commands

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-contentpack/internal/config"
	"github.com/goliatone/go-contentpack/internal/schema"
)

const (
	commandValidationCode   = "COMMAND_VALIDATION_FAILED"
	commandContextCanceled  = "COMMAND_CONTEXT_CANCELED"
	commandContextTimeout   = "COMMAND_CONTEXT_TIMEOUT"
	commandContextErrorCode = "COMMAND_CONTEXT_ERROR"
	commandExecuteFailed    = "COMMAND_EXECUTION_FAILED"
	schemaInvalidCode       = "CONTENT_SCHEMA_INVALID"
	configInvalidCode       = "CONTENT_CONFIG_INVALID"
	documentsFailedCode     = "CONTENT_DOCUMENTS_FAILED"
)

// ErrDocumentsFailed is returned by run commands when at least one document
// ended in the failed state.
var ErrDocumentsFailed = errors.New("commands: one or more documents failed")

func wrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, "command validation failed").
		WithTextCode(commandValidationCode)
}

func wrapContextError(err error) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return goerrors.Wrap(err, goerrors.CategoryCommand, "command execution cancelled").
			WithTextCode(commandContextCanceled)
	case errors.Is(err, context.DeadlineExceeded):
		return goerrors.Wrap(err, goerrors.CategoryCommand, "command execution deadline exceeded").
			WithTextCode(commandContextTimeout)
	default:
		return goerrors.Wrap(err, goerrors.CategoryCommand, "command context error").
			WithTextCode(commandContextErrorCode)
	}
}

// wrapExecuteError categorises execution failures. Schema and config
// problems are validation errors; everything else is a command error.
func wrapExecuteError(err error) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	var serr *schema.SchemaError
	switch {
	case errors.As(err, &serr):
		return goerrors.Wrap(err, goerrors.CategoryValidation, "content schema is invalid").
			WithTextCode(schemaInvalidCode)
	case errors.Is(err, config.ErrConfigInvalid), errors.Is(err, config.ErrConfigNotFound):
		return goerrors.Wrap(err, goerrors.CategoryValidation, "content configuration is invalid").
			WithTextCode(configInvalidCode)
	case errors.Is(err, ErrDocumentsFailed):
		return goerrors.Wrap(err, goerrors.CategoryCommand, "content run finished with failed documents").
			WithTextCode(documentsFailedCode)
	default:
		return goerrors.Wrap(err, goerrors.CategoryCommand, "command execution failed").
			WithTextCode(commandExecuteFailed)
	}
}
