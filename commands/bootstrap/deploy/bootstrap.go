package bootstrap

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goliatone/go-contentpack"
	"github.com/goliatone/go-contentpack/commands"
	deploycmd "github.com/goliatone/go-contentpack/internal/commands/deploy"
	"github.com/goliatone/go-contentpack/pkg/interfaces"
)

// Options captures the tunable configuration shared across deploy CLI commands.
type Options struct {
	ConfigPath      string
	Workers         int
	DocumentTimeout time.Duration
	Verify          bool
	FetchLinkCards  bool
	Remote          contentpack.RemoteConfig
	Logging         contentpack.LoggingConfig
	LoggerProvider  interfaces.LoggerProvider
	OnReport        deploycmd.ReportFunc
	SchemaOutput    io.Writer
	// Dispatcher, when set, receives a subscription for every handler.
	Dispatcher commands.CommandDispatcher
}

// Resources groups the module runtime and the command handlers used by CLI commands.
type Resources struct {
	Module    *contentpack.Module
	Collector *CommandCollector
	Commands  *commands.RegistrationResult
}

// CommandCollector records registered handlers so CLI commands can invoke
// them directly when no dispatcher is configured.
type CommandCollector struct {
	handlers []any
}

// RegisterCommand satisfies commands.CommandRegistry.
func (c *CommandCollector) RegisterCommand(handler any) error {
	c.handlers = append(c.handlers, handler)
	return nil
}

// Handlers returns the collected handlers.
func (c *CommandCollector) Handlers() []any {
	if len(c.handlers) == 0 {
		return nil
	}
	out := make([]any, len(c.handlers))
	copy(out, c.handlers)
	return out
}

// BuildModule constructs a contentpack.Module and its deploy handlers using
// the supplied options.
func BuildModule(opts Options) (*Resources, error) {
	cfg := contentpack.DefaultConfig()
	cfg.ConfigPath = strings.TrimSpace(opts.ConfigPath)
	cfg.Workers = opts.Workers
	cfg.DocumentTimeout = opts.DocumentTimeout
	cfg.Verify = opts.Verify
	cfg.LinkCards.Fetch = opts.FetchLinkCards
	cfg.Remote = opts.Remote
	if strings.TrimSpace(opts.Logging.Provider) != "" {
		cfg.Logging = opts.Logging
	}

	moduleOpts := []contentpack.Option{}
	if opts.LoggerProvider != nil {
		moduleOpts = append(moduleOpts, contentpack.WithLoggerProvider(opts.LoggerProvider))
	}

	module, err := contentpack.New(cfg, moduleOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise content module: %w", err)
	}

	collector := &CommandCollector{handlers: make([]any, 0)}
	result, err := commands.RegisterDeployCommands(module, commands.RegistrationOptions{
		Registry:       collector,
		Dispatcher:     opts.Dispatcher,
		LoggerProvider: module.LoggerProvider(),
		OnReport:       opts.OnReport,
		SchemaOutput:   opts.SchemaOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("register deploy commands: %w", err)
	}

	return &Resources{
		Module:    module,
		Collector: collector,
		Commands:  result,
	}, nil
}

// RemoteFromEnv fills the unset fields of remote from CONTENTPACK_*
// environment variables.
func RemoteFromEnv(remote contentpack.RemoteConfig, getenv func(string) string) contentpack.RemoteConfig {
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = strings.TrimSpace(getenv(key))
		}
	}
	fill(&remote.PostgresDSN, "CONTENTPACK_POSTGRES_DSN")
	fill(&remote.RedisAddr, "CONTENTPACK_REDIS_ADDR")
	fill(&remote.RedisPassword, "CONTENTPACK_REDIS_PASSWORD")
	fill(&remote.ObjectsDir, "CONTENTPACK_OBJECTS_DIR")
	fill(&remote.AssetRoot, "CONTENTPACK_ASSET_ROOT")
	return remote
}
