package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goliatone/go-command/dispatcher"

	"github.com/goliatone/go-contentpack"
	bootstrap "github.com/goliatone/go-contentpack/commands/bootstrap/deploy"
	deploycmd "github.com/goliatone/go-contentpack/internal/commands/deploy"
	"github.com/goliatone/go-contentpack/internal/pipeline"
)

var moduleBuilder = bootstrap.BuildModule

const usage = `usage: contentpack <command> [flags]

commands:
  batch         compile and deploy to Postgres, Redis and the objects directory
  dump          compile into a local SQLite file and object directories
  show-schema   print generated sql, typescript or jsonschema

remote targets are read from CONTENTPACK_POSTGRES_DSN, CONTENTPACK_REDIS_ADDR,
CONTENTPACK_REDIS_PASSWORD, CONTENTPACK_OBJECTS_DIR and CONTENTPACK_ASSET_ROOT.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Getenv); err != nil {
		stop()
		log.Fatalf("contentpack: %v", err)
	}
}

// common holds the flags every command accepts.
type common struct {
	config    *string
	workers   *int
	timeout   *time.Duration
	verify    *bool
	linkCards *bool
	logger    *string
	level     *string
	format    *string
}

func commonFlags(fs *flag.FlagSet) common {
	return common{
		config:    fs.String("config", "contentpack.yaml", "Path to the collection config"),
		workers:   fs.Int("workers", 0, "Documents processed concurrently (0 uses the CPU count)"),
		timeout:   fs.Duration("timeout", 0, "Per-document processing limit (0 disables it)"),
		verify:    fs.Bool("verify", false, "Read uploaded objects back and compare hashes"),
		linkCards: fs.Bool("link-cards", false, "Fetch OpenGraph metadata for bare links"),
		logger:    fs.String("log-provider", "console", "Logging provider: console or gologger"),
		level:     fs.String("log-level", "info", "Minimum log level"),
		format:    fs.String("log-format", "", "gologger output format: json, console or pretty"),
	}
}

func (c common) options(stdout io.Writer, getenv func(string) string) bootstrap.Options {
	return bootstrap.Options{
		ConfigPath:      *c.config,
		Workers:         *c.workers,
		DocumentTimeout: *c.timeout,
		Verify:          *c.verify,
		FetchLinkCards:  *c.linkCards,
		Remote:          bootstrap.RemoteFromEnv(contentpack.RemoteConfig{}, getenv),
		Logging: contentpack.LoggingConfig{
			Provider: *c.logger,
			Level:    *c.level,
			Format:   *c.format,
		},
		OnReport:     func(r *pipeline.Report) { printReport(stdout, r) },
		SchemaOutput: stdout,
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, getenv func(string) string) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("a command is required")
	}
	name, args := args[0], args[1:]
	fs := flag.NewFlagSet("contentpack "+name, flag.ContinueOnError)
	flags := commonFlags(fs)

	switch name {
	case "batch":
		force := fs.Bool("force", false, "Rewrite unchanged documents and re-upload every object")
		preview := fs.Bool("preview", false, "Deploy to the preview database")
		prune := fs.Bool("prune", false, "Delete stored documents whose source is gone")
		if err := fs.Parse(args); err != nil {
			return err
		}
		res, err := moduleBuilder(flags.options(stdout, getenv))
		if err != nil {
			return fmt.Errorf("bootstrap module: %w", err)
		}
		sub := dispatcher.SubscribeCommand(res.Commands.Batch)
		defer sub.Unsubscribe()
		return dispatcher.Dispatch(ctx, deploycmd.BatchCommand{
			Force:           *force,
			Preview:         *preview,
			Prune:           *prune,
			Workers:         *flags.workers,
			DocumentTimeout: *flags.timeout,
		})

	case "dump":
		out := fs.String("out", "", "Output directory")
		force := fs.Bool("force", false, "Rewrite unchanged documents")
		prune := fs.Bool("prune", false, "Delete stored documents whose source is gone")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if strings.TrimSpace(*out) == "" {
			return errors.New("dump: -out is required")
		}
		res, err := moduleBuilder(flags.options(stdout, getenv))
		if err != nil {
			return fmt.Errorf("bootstrap module: %w", err)
		}
		sub := dispatcher.SubscribeCommand(res.Commands.Dump)
		defer sub.Unsubscribe()
		return dispatcher.Dispatch(ctx, deploycmd.DumpCommand{
			OutDir:          *out,
			Force:           *force,
			Prune:           *prune,
			Workers:         *flags.workers,
			DocumentTimeout: *flags.timeout,
		})

	case "show-schema":
		if err := fs.Parse(args); err != nil {
			return err
		}
		format := strings.TrimSpace(fs.Arg(0))
		if format == "" {
			return errors.New("show-schema: format is required (sql, typescript or jsonschema)")
		}
		res, err := moduleBuilder(flags.options(stdout, getenv))
		if err != nil {
			return fmt.Errorf("bootstrap module: %w", err)
		}
		sub := dispatcher.SubscribeCommand(res.Commands.ShowSchema)
		defer sub.Unsubscribe()
		return dispatcher.Dispatch(ctx, deploycmd.ShowSchemaCommand{Format: format})

	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", name)
	}
}

func printReport(w io.Writer, r *pipeline.Report) {
	fmt.Fprintf(w, "run %s: %d documents, %d written, %d unchanged, %d failed in %s\n",
		r.RunID, r.Documents, r.Written, r.Unchanged, r.Failed, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "objects: %d uploaded (%s), %d already present, %d failed\n",
		r.Uploaded, humanize.Bytes(uint64(r.BytesUploaded)), r.Skipped, r.UploadFailed)
	if len(r.Pruned) > 0 {
		fmt.Fprintf(w, "pruned: %s\n", strings.Join(r.Pruned, ", "))
	}
	for _, o := range r.Outcomes {
		for _, warning := range o.Warnings {
			fmt.Fprintf(w, "warning %s: %v\n", o.Path, warning)
		}
	}
	for _, o := range r.Failures() {
		fmt.Fprintf(w, "failed %s (%s): %v\n", o.Path, o.Stage, o.Err)
	}
}
