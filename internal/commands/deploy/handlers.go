package deploycmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	command "github.com/goliatone/go-command"

	"github.com/goliatone/go-contentpack/internal/commands"
	"github.com/goliatone/go-contentpack/internal/pipeline"
	"github.com/goliatone/go-contentpack/pkg/interfaces"
)

const (
	batchOperation      = "deploy.batch"
	dumpOperation       = "deploy.dump"
	showSchemaOperation = "deploy.show_schema"
)

var ErrNoReport = errors.New("deploy command: service returned no report")

var (
	_ command.Commander[BatchCommand]      = (*BatchHandler)(nil)
	_ command.Commander[DumpCommand]       = (*DumpHandler)(nil)
	_ command.Commander[ShowSchemaCommand] = (*ShowSchemaHandler)(nil)
)

// RunOptions are the per-run knobs shared by batch and dump.
type RunOptions struct {
	Force           bool
	Preview         bool
	Prune           bool
	Workers         int
	DocumentTimeout time.Duration
}

// Service is the content module as seen by the deploy commands.
type Service interface {
	Batch(ctx context.Context, opts RunOptions) (*pipeline.Report, error)
	Dump(ctx context.Context, outDir string, opts RunOptions) (*pipeline.Report, error)
	Schema(format string) (string, error)
}

// ReportFunc receives the report of a finished run, failed documents
// included.
type ReportFunc func(*pipeline.Report)

// BatchHandler runs a remote deployment.
type BatchHandler struct {
	inner *commands.Handler[BatchCommand]
}

func NewBatchHandler(service Service, logger interfaces.Logger, onReport ReportFunc, opts ...commands.HandlerOption[BatchCommand]) *BatchHandler {
	baseLogger := commands.EnsureLogger(logger)
	exec := func(ctx context.Context, msg BatchCommand) error {
		report, err := service.Batch(ctx, RunOptions{
			Force:           msg.Force,
			Preview:         msg.Preview,
			Prune:           msg.Prune,
			Workers:         msg.Workers,
			DocumentTimeout: msg.DocumentTimeout,
		})
		return finishRun(report, err, onReport)
	}

	handlerOpts := []commands.HandlerOption[BatchCommand]{
		commands.WithLogger[BatchCommand](baseLogger),
		commands.WithOperation[BatchCommand](batchOperation),
		commands.WithMessageFields(func(msg BatchCommand) map[string]any {
			fields := map[string]any{}
			if msg.Force {
				fields["force"] = true
			}
			if msg.Preview {
				fields["preview"] = true
			}
			if msg.Prune {
				fields["prune"] = true
			}
			return fields
		}),
		commands.WithTelemetry(commands.DefaultTelemetry[BatchCommand](nil)),
	}
	handlerOpts = append(handlerOpts, opts...)
	return &BatchHandler{inner: commands.NewHandler(exec, handlerOpts...)}
}

// Execute satisfies command.Commander[BatchCommand].
func (h *BatchHandler) Execute(ctx context.Context, msg BatchCommand) error {
	return h.inner.Execute(ctx, msg)
}

// DumpHandler exports the collection to local files.
type DumpHandler struct {
	inner *commands.Handler[DumpCommand]
}

func NewDumpHandler(service Service, logger interfaces.Logger, onReport ReportFunc, opts ...commands.HandlerOption[DumpCommand]) *DumpHandler {
	baseLogger := commands.EnsureLogger(logger)
	exec := func(ctx context.Context, msg DumpCommand) error {
		report, err := service.Dump(ctx, msg.OutDir, RunOptions{
			Force:           msg.Force,
			Prune:           msg.Prune,
			Workers:         msg.Workers,
			DocumentTimeout: msg.DocumentTimeout,
		})
		return finishRun(report, err, onReport)
	}

	handlerOpts := []commands.HandlerOption[DumpCommand]{
		commands.WithLogger[DumpCommand](baseLogger),
		commands.WithOperation[DumpCommand](dumpOperation),
		commands.WithMessageFields(func(msg DumpCommand) map[string]any {
			return map[string]any{"out_dir": msg.OutDir}
		}),
		commands.WithTelemetry(commands.DefaultTelemetry[DumpCommand](nil)),
	}
	handlerOpts = append(handlerOpts, opts...)
	return &DumpHandler{inner: commands.NewHandler(exec, handlerOpts...)}
}

// Execute satisfies command.Commander[DumpCommand].
func (h *DumpHandler) Execute(ctx context.Context, msg DumpCommand) error {
	return h.inner.Execute(ctx, msg)
}

func finishRun(report *pipeline.Report, err error, onReport ReportFunc) error {
	if report != nil && onReport != nil {
		onReport(report)
	}
	if err != nil {
		return err
	}
	if report == nil {
		return ErrNoReport
	}
	if !report.OK() {
		return fmt.Errorf("%w: %d of %d", commands.ErrDocumentsFailed, report.Failed, report.Documents)
	}
	return nil
}

// ShowSchemaHandler prints a generated artifact.
type ShowSchemaHandler struct {
	inner *commands.Handler[ShowSchemaCommand]
}

func NewShowSchemaHandler(service Service, out io.Writer, logger interfaces.Logger, opts ...commands.HandlerOption[ShowSchemaCommand]) *ShowSchemaHandler {
	if out == nil {
		out = os.Stdout
	}
	exec := func(ctx context.Context, msg ShowSchemaCommand) error {
		artifact, err := service.Schema(msg.Format)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, artifact)
		return err
	}

	handlerOpts := []commands.HandlerOption[ShowSchemaCommand]{
		commands.WithLogger[ShowSchemaCommand](commands.EnsureLogger(logger)),
		commands.WithOperation[ShowSchemaCommand](showSchemaOperation),
		commands.WithMessageFields(func(msg ShowSchemaCommand) map[string]any {
			return map[string]any{"format": msg.Format}
		}),
	}
	handlerOpts = append(handlerOpts, opts...)
	return &ShowSchemaHandler{inner: commands.NewHandler(exec, handlerOpts...)}
}

// Execute satisfies command.Commander[ShowSchemaCommand].
func (h *ShowSchemaHandler) Execute(ctx context.Context, msg ShowSchemaCommand) error {
	return h.inner.Execute(ctx, msg)
}
