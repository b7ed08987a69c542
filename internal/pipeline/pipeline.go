package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-contentpack/internal/document"
	"github.com/goliatone/go-contentpack/internal/identity"
	"github.com/goliatone/go-contentpack/internal/logging"
	"github.com/goliatone/go-contentpack/internal/storage"
	"github.com/goliatone/go-contentpack/pkg/interfaces"
)

// Source discovers and reads documents.
type Source interface {
	Discover(ctx context.Context) ([]string, error)
	Read(ctx context.Context, path string) (document.Source, error)
}

// Compiler turns a source into rows and objects.
type Compiler interface {
	Compile(ctx context.Context, src document.Source) (*document.Compiled, error)
}

// Sink stores compiled rows and the hash of the last write.
type Sink interface {
	EnsureSchema(ctx context.Context) error
	StoredHash(ctx context.Context, id string) (string, bool, error)
	Write(ctx context.Context, c *document.Compiled) error
}

// Pruner removes stored documents that are no longer in the source.
type Pruner interface {
	Prune(ctx context.Context, keep []string) ([]string, error)
}

// Uploader writes one object, deduplicating against what is present.
type Uploader interface {
	Upload(ctx context.Context, obj storage.Object) storage.Outcome
}

// Config tunes a run.
type Config struct {
	// Collection names the run in logs and identities.
	Collection string
	// Workers bounds concurrently processed documents. Defaults to the
	// number of CPUs.
	Workers int
	// Uploads bounds concurrent object uploads per document. Defaults to 4.
	Uploads int
	// Timeout limits the processing of a single document. Zero disables it.
	Timeout time.Duration
	// Force rewrites unchanged documents and bypasses existence checks.
	Force bool
	// Prune deletes stored documents missing from the source once every
	// document succeeded. Requires a Sink that implements Pruner.
	Prune bool
}

// Pipeline compiles every discovered document and writes the changed ones.
type Pipeline struct {
	cfg      Config
	source   Source
	compiler Compiler
	sink     Sink
	uploader Uploader
	logger   interfaces.Logger
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(logger interfaces.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the clock used for run identities and durations.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func New(cfg Config, source Source, compiler Compiler, sink Sink, uploader Uploader, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		source:   source,
		compiler: compiler,
		sink:     sink,
		uploader: uploader,
		logger:   logging.NoOp(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes the collection. Per-document failures are recorded in the
// report. The returned error is non-nil for pre-flight failures, with a nil
// report, and for prune failures, alongside the completed report.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	started := p.now()
	report := &Report{RunID: identity.RunUUID(p.cfg.Collection, started).String()}
	ctx = logging.WithRunScope(ctx, report.RunID, p.cfg.Collection)
	logger := logging.Scoped(p.logger, ctx)

	if err := p.sink.EnsureSchema(ctx); err != nil {
		return nil, &PreflightError{Op: "apply schema", Err: err}
	}
	paths, err := p.source.Discover(ctx)
	if err != nil {
		return nil, &PreflightError{Op: "discover documents", Err: err}
	}
	logger.Info("pipeline.run.start", "documents", len(paths), "force", p.cfg.Force)

	results := make(chan DocumentOutcome)
	go p.dispatch(ctx, paths, results)
	for outcome := range results {
		report.add(outcome)
	}

	sort.Slice(report.Outcomes, func(i, j int) bool {
		return report.Outcomes[i].Path < report.Outcomes[j].Path
	})
	pruneErr := p.prune(ctx, report, logger)
	report.Duration = p.now().Sub(started)
	logger.Info("pipeline.run.complete",
		"written", report.Written,
		"unchanged", report.Unchanged,
		"failed", report.Failed,
		"uploaded", report.Uploaded,
		"skipped", report.Skipped,
		"pruned", len(report.Pruned),
	)
	return report, pruneErr
}

func (p *Pipeline) prune(ctx context.Context, report *Report, logger interfaces.Logger) error {
	if !p.cfg.Prune {
		return nil
	}
	pruner, ok := p.sink.(Pruner)
	if !ok {
		logger.Warn("pipeline.prune.unsupported")
		return nil
	}
	if !report.OK() {
		logger.Warn("pipeline.prune.skipped", "failed", report.Failed)
		return nil
	}
	keep := make([]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		keep = append(keep, o.ID)
	}
	removed, err := pruner.Prune(ctx, keep)
	if err != nil {
		return fmt.Errorf("pipeline: prune: %w", err)
	}
	report.Pruned = removed
	return nil
}

// dispatch feeds paths to the worker pool and closes results once every
// worker has emitted its outcomes.
func (p *Pipeline) dispatch(ctx context.Context, paths []string, results chan<- DocumentOutcome) {
	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < p.workers(len(paths)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- p.process(ctx, path)
			}
		}()
	}
	for _, path := range paths {
		jobs <- path
	}
	close(jobs)
	wg.Wait()
	close(results)
}

func (p *Pipeline) workers(documents int) int {
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}
	if documents > 0 && workers > documents {
		return documents
	}
	return workers
}

// process drives one document to a terminal state.
func (p *Pipeline) process(ctx context.Context, path string) (out DocumentOutcome) {
	start := p.now()
	out = DocumentOutcome{Path: path, State: StateDiscovered}
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	ctx = logging.WithDocumentScope(ctx, path)
	logger := logging.WithDocumentContext(logging.Scoped(p.logger, ctx), "", "", string(StateDiscovered))
	defer func() {
		out.Duration = p.now().Sub(start)
		if out.State == StateFailed {
			logger.Warn("pipeline.document.failed", "stage", out.Stage, "error", out.Err)
			return
		}
		logger.Debug("pipeline.document.done", "state", out.State, "id", out.ID)
	}()

	fail := func(stage State, err error) DocumentOutcome {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		out.Stage = stage
		out.State = StateFailed
		out.Err = &DocumentError{Path: path, Stage: stage, Err: err}
		return out
	}

	src, err := p.source.Read(ctx, path)
	if err != nil {
		return fail(StateParsed, err)
	}
	compiled, err := p.compiler.Compile(ctx, src)
	if err != nil {
		var perr *document.ParseError
		if errors.As(err, &perr) {
			return fail(StateParsed, err)
		}
		return fail(StateCompiled, err)
	}
	out.State = StateCompiled
	out.ID = compiled.ID
	out.UUID = identity.DocumentUUID(p.cfg.Collection, compiled.ID).String()
	out.Hash = compiled.Hash
	out.Warnings = compiled.Warnings
	logger = logging.WithDocumentContext(logging.Scoped(p.logger, ctx), "", compiled.ID, string(StateCompiled))
	if err := ctx.Err(); err != nil {
		return fail(StateCompiled, err)
	}

	stored, found, err := p.sink.StoredHash(ctx, compiled.ID)
	if err != nil {
		return fail(StateDiffed, err)
	}
	out.State = StateDiffed
	if found && stored == compiled.Hash && !p.cfg.Force {
		out.State = StateUnchanged
		return out
	}

	uploads, err := p.upload(ctx, compiled.Objects)
	out.Uploads = uploads
	if err != nil {
		return fail(StateDiffed, err)
	}
	if err := p.sink.Write(ctx, compiled); err != nil {
		return fail(StateDiffed, err)
	}
	out.State = StateWritten
	return out
}

// upload writes every pending object of a document before its rows are
// written. All uploads run to completion so each outcome is reported.
func (p *Pipeline) upload(ctx context.Context, objects []storage.Object) ([]storage.Outcome, error) {
	if len(objects) == 0 {
		return nil, nil
	}
	limit := p.cfg.Uploads
	if limit <= 0 {
		limit = 4
	}
	outcomes := make([]storage.Outcome, len(objects))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, obj := range objects {
		g.Go(func() error {
			outcomes[i] = p.uploader.Upload(ctx, obj)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.Status == storage.StatusFailed {
			errs = append(errs, o.Err)
		}
	}
	if len(errs) > 0 {
		return outcomes, fmt.Errorf("%w: %w", ErrUploadFailed, errors.Join(errs...))
	}
	return outcomes, ctx.Err()
}
