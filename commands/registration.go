package commands

import (
	"errors"
	"io"

	internalcommands "github.com/goliatone/go-contentpack/internal/commands"
	deploycmd "github.com/goliatone/go-contentpack/internal/commands/deploy"
	"github.com/goliatone/go-contentpack/pkg/interfaces"
)

// CommandRegistry records command handlers so hosts can expose them via CLI or cron.
type CommandRegistry interface {
	RegisterCommand(handler any) error
}

// CommandDispatcher subscribes command handlers to a dispatcher implementation.
type CommandDispatcher interface {
	RegisterCommand(handler any) (CommandSubscription, error)
}

// CommandSubscription allows hosts to tear down dispatcher subscriptions.
type CommandSubscription interface {
	Unsubscribe()
}

// RegistrationOptions configures how handlers are registered during construction.
type RegistrationOptions struct {
	Registry       CommandRegistry
	Dispatcher     CommandDispatcher
	LoggerProvider interfaces.LoggerProvider
	// OnReport receives the report of every batch and dump run.
	OnReport deploycmd.ReportFunc
	// SchemaOutput receives show-schema artifacts. Defaults to stdout.
	SchemaOutput io.Writer
}

// RegistrationResult captures the constructed command handlers and any dispatcher subscriptions.
type RegistrationResult struct {
	Handlers      []any
	Subscriptions []CommandSubscription

	Batch      *deploycmd.BatchHandler
	Dump       *deploycmd.DumpHandler
	ShowSchema *deploycmd.ShowSchemaHandler
}

// RegisterDeployCommands builds the deploy command handlers for service and
// optionally registers them with registry and dispatcher integrations.
func RegisterDeployCommands(service deploycmd.Service, opts RegistrationOptions) (*RegistrationResult, error) {
	if service == nil {
		return nil, errors.New("register deploy commands: service is required")
	}

	result := &RegistrationResult{
		Handlers:      make([]any, 0, 3),
		Subscriptions: make([]CommandSubscription, 0),
	}

	var errs error
	register := func(handler any) {
		result.Handlers = append(result.Handlers, handler)

		if opts.Registry != nil {
			if err := opts.Registry.RegisterCommand(handler); err != nil {
				errs = errors.Join(errs, err)
			}
		}

		if opts.Dispatcher != nil {
			subscription, err := opts.Dispatcher.RegisterCommand(handler)
			if err != nil {
				errs = errors.Join(errs, err)
			} else if subscription != nil {
				result.Subscriptions = append(result.Subscriptions, subscription)
			}
		}
	}

	logger := internalcommands.CommandLogger(opts.LoggerProvider, "deploy")

	result.Batch = deploycmd.NewBatchHandler(service, logger, opts.OnReport)
	result.Dump = deploycmd.NewDumpHandler(service, logger, opts.OnReport)
	result.ShowSchema = deploycmd.NewShowSchemaHandler(service, opts.SchemaOutput, logger)

	register(result.Batch)
	register(result.Dump)
	register(result.ShowSchema)

	return result, errs
}
