package contentpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	adapter "github.com/goliatone/go-contentpack/internal/adapters/storage"
	"github.com/goliatone/go-contentpack/internal/codegen"
	deploycmd "github.com/goliatone/go-contentpack/internal/commands/deploy"
	"github.com/goliatone/go-contentpack/internal/config"
	"github.com/goliatone/go-contentpack/internal/document"
	"github.com/goliatone/go-contentpack/internal/logging"
	"github.com/goliatone/go-contentpack/internal/logging/console"
	"github.com/goliatone/go-contentpack/internal/logging/gologger"
	"github.com/goliatone/go-contentpack/internal/markdown"
	"github.com/goliatone/go-contentpack/internal/pipeline"
	"github.com/goliatone/go-contentpack/internal/schema"
	"github.com/goliatone/go-contentpack/internal/sink"
	"github.com/goliatone/go-contentpack/internal/storage"
	"github.com/goliatone/go-contentpack/internal/validation"
	"github.com/goliatone/go-contentpack/pkg/interfaces"
	pkgstorage "github.com/goliatone/go-contentpack/pkg/storage"
)

// ErrUnknownFormat is returned by Schema for an unsupported artifact.
var ErrUnknownFormat = errors.New("contentpack: unknown schema format")

// Report exports the outcome of a batch or dump run.
type Report = pipeline.Report

// RunOptions exports the per-run knobs of Batch and Dump.
type RunOptions = deploycmd.RunOptions

var _ deploycmd.Service = (*Module)(nil)

// Module is the content compiler façade: one collection, its compiled
// schema and the wiring for remote and local deploys.
type Module struct {
	cfg        Config
	definition config.Collection
	collection *schema.Collection
	validator  *validation.Validator

	loggerProvider interfaces.LoggerProvider
	logger         interfaces.Logger
	httpClient     *http.Client

	remoteProvider interfaces.StorageProvider
	remoteBlobs    storage.BlobStore
	remoteKV       storage.KVStore
}

// Option overrides parts of the module wiring.
type Option func(*Module)

// WithLoggerProvider replaces the provider built from Config.Logging.
func WithLoggerProvider(provider interfaces.LoggerProvider) Option {
	return func(m *Module) {
		if provider != nil {
			m.loggerProvider = provider
		}
	}
}

// WithHTTPClient sets the client used for remote images and files.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Module) { m.httpClient = client }
}

// WithRemoteProvider replaces the Postgres table store used by Batch.
func WithRemoteProvider(provider interfaces.StorageProvider) Option {
	return func(m *Module) { m.remoteProvider = provider }
}

// WithRemoteBlobStore replaces the r2 object store used by Batch.
func WithRemoteBlobStore(store storage.BlobStore) Option {
	return func(m *Module) { m.remoteBlobs = store }
}

// WithRemoteKVStore replaces the Redis kv store used by Batch.
func WithRemoteKVStore(store storage.KVStore) Option {
	return func(m *Module) { m.remoteKV = store }
}

// New loads and compiles the collection named by cfg.ConfigPath.
func New(cfg Config, opts ...Option) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	def, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	collection, err := schema.Compile(def)
	if err != nil {
		return nil, err
	}
	validator, err := validation.NewValidator(collection)
	if err != nil {
		return nil, fmt.Errorf("contentpack: build validator: %w", err)
	}

	m := &Module{
		cfg:        cfg,
		definition: def,
		collection: collection,
		validator:  validator,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.loggerProvider == nil {
		provider, err := configureLoggerProvider(cfg.Logging)
		if err != nil {
			return nil, err
		}
		m.loggerProvider = provider
	}
	m.logger = logging.ModuleLogger(m.loggerProvider, "contentpack")
	return m, nil
}

func configureLoggerProvider(cfg LoggingConfig) (interfaces.LoggerProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "gologger":
		return gologger.NewProvider(gologger.Config{
			Level:     cfg.Level,
			Format:    cfg.Format,
			AddSource: cfg.AddSource,
			Focus:     cfg.Focus,
		})
	default:
		return console.NewProvider(console.WithMinLevel(console.ParseLevel(cfg.Level))), nil
	}
}

// Collection returns the compiled collection.
func (m *Module) Collection() *schema.Collection {
	return m.collection
}

// LoggerProvider returns the provider handing out module loggers.
func (m *Module) LoggerProvider() interfaces.LoggerProvider {
	return m.loggerProvider
}

// Schema renders one generated artifact: sql (SQLite DDL), typescript or
// jsonschema.
func (m *Module) Schema(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case deploycmd.FormatSQL:
		return codegen.SQL(m.collection, codegen.DialectSQLite), nil
	case deploycmd.FormatTypeScript:
		return codegen.TypeScript(m.collection), nil
	case deploycmd.FormatJSONSchema:
		raw, err := codegen.ValidatorJSON(m.collection)
		if err != nil {
			return "", err
		}
		return string(raw) + "\n", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// target is where one run writes rows and objects.
type target struct {
	provider interfaces.StorageProvider
	blobs    storage.BlobStore
	kv       storage.KVStore
	assets   string
	closers  []io.Closer
}

func (t *target) close() error {
	var errs []error
	for i := len(t.closers) - 1; i >= 0; i-- {
		errs = append(errs, t.closers[i].Close())
	}
	return errors.Join(errs...)
}

// Batch deploys the collection to Postgres, Redis and the objects
// directory, or to the stores supplied through options.
func (m *Module) Batch(ctx context.Context, opts RunOptions) (*Report, error) {
	database := m.definition.DatabaseFor(opts.Preview)
	t, err := m.remoteTarget(database)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := t.close(); cerr != nil {
			m.logger.Warn("contentpack.batch.close_failed", "error", cerr)
		}
	}()
	m.logger.Info("contentpack.batch.start", "database", database, "preview", opts.Preview)
	return m.run(ctx, t, opts)
}

func (m *Module) remoteTarget(database string) (*target, error) {
	remote := m.cfg.Remote
	t := &target{provider: m.remoteProvider, blobs: m.remoteBlobs, kv: m.remoteKV, assets: remote.AssetRoot}
	if strings.TrimSpace(t.assets) == "" && strings.TrimSpace(remote.ObjectsDir) != "" {
		t.assets = filepath.Join(remote.ObjectsDir, string(storage.SchemeAsset))
	}

	if t.provider == nil {
		if strings.TrimSpace(remote.PostgresDSN) == "" {
			return nil, fmt.Errorf("%w: postgres dsn", ErrRemoteIncomplete)
		}
		provider, err := adapter.NewProvider(pkgstorage.Config{
			Name:   database,
			Driver: adapter.DriverPostgres,
			DSN:    remote.DSN(database),
		})
		if err != nil {
			return nil, err
		}
		t.provider = provider
		t.closers = append(t.closers, provider)
	}
	if t.kv == nil {
		if strings.TrimSpace(remote.RedisAddr) == "" {
			_ = t.close()
			return nil, fmt.Errorf("%w: redis address", ErrRemoteIncomplete)
		}
		client := storage.NewRedisClient(remote.RedisAddr, remote.RedisPassword, remote.RedisDB)
		t.kv = storage.NewRedisKVStore(client)
		t.closers = append(t.closers, client)
	}
	if t.blobs == nil {
		if strings.TrimSpace(remote.ObjectsDir) == "" {
			_ = t.close()
			return nil, fmt.Errorf("%w: objects directory", ErrRemoteIncomplete)
		}
		t.blobs = storage.NewFileBlobStore(remote.ObjectsDir)
	}
	return t, nil
}

// Dump writes the collection to outDir: a SQLite file named after the
// database id, r2 objects under r2/, kv entries under kv/ and static assets
// under asset/.
func (m *Module) Dump(ctx context.Context, outDir string, opts RunOptions) (*Report, error) {
	outDir = strings.TrimSpace(outDir)
	if outDir == "" {
		return nil, errors.New("contentpack: dump output directory is required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("contentpack: create output directory: %w", err)
	}
	dbPath := filepath.Join(outDir, m.DumpDatabaseName())
	provider, err := adapter.NewProvider(pkgstorage.Config{
		Name:   m.collection.Name,
		Driver: adapter.DriverSQLite,
		DSN:    "file:" + dbPath + "?_fk=1",
	})
	if err != nil {
		return nil, err
	}
	t := &target{
		provider: provider,
		blobs:    storage.NewFileBlobStore(outDir),
		kv:       storage.NewFileKVStore(outDir),
		assets:   filepath.Join(outDir, string(storage.SchemeAsset)),
		closers:  []io.Closer{provider},
	}
	defer func() {
		if cerr := t.close(); cerr != nil {
			m.logger.Warn("contentpack.dump.close_failed", "error", cerr)
		}
	}()
	m.logger.Info("contentpack.dump.start", "out_dir", outDir, "database", dbPath)
	return m.run(ctx, t, opts)
}

// DumpDatabaseName is the SQLite file Dump writes inside its output
// directory.
func (m *Module) DumpDatabaseName() string {
	name := strings.TrimSpace(m.collection.DatabaseID)
	if name == "" {
		name = m.collection.Name
	}
	return name + ".sqlite"
}

func (m *Module) run(ctx context.Context, t *target, opts RunOptions) (*Report, error) {
	loader, err := document.NewLoader(m.collection.BaseDir, m.collection.Glob)
	if err != nil {
		return nil, err
	}
	uploader := storage.NewUploader(
		storage.Backends{Blobs: t.blobs, KV: t.kv, AssetRoot: t.assets},
		storage.WithForce(opts.Force),
		storage.WithVerify(m.cfg.Verify),
		storage.WithUploaderLogger(logging.StorageLogger(m.loggerProvider)),
	)
	out := sink.New(t.provider, m.collection, sink.WithLogger(logging.SinkLogger(m.loggerProvider)))

	workers := opts.Workers
	if workers == 0 {
		workers = m.cfg.Workers
	}
	timeout := opts.DocumentTimeout
	if timeout == 0 {
		timeout = m.cfg.DocumentTimeout
	}
	p := pipeline.New(pipeline.Config{
		Collection: m.collection.Name,
		Workers:    workers,
		Uploads:    m.cfg.UploadConcurrency,
		Timeout:    timeout,
		Force:      opts.Force,
		Prune:      opts.Prune,
	}, loader, m.compiler(), out, uploader, pipeline.WithLogger(logging.PipelineLogger(m.loggerProvider)))
	return p.Run(ctx)
}

func (m *Module) compiler() *document.Compiler {
	opts := []document.Option{
		document.WithValidator(m.validator),
		document.WithLogger(logging.MarkdownLogger(m.loggerProvider)),
	}
	if m.httpClient != nil {
		opts = append(opts, document.WithHTTPClient(m.httpClient))
	}
	if m.cfg.LinkCards.Fetch {
		opts = append(opts, document.WithLinkCardResolver(markdown.NewHTTPLinkCardResolver(m.cfg.LinkCards.Timeout)))
	}
	return document.NewCompiler(m.collection, opts...)
}
