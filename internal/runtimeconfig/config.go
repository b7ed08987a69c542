package runtimeconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrConfigPathRequired = errors.New("contentpack config: collection config path is required")
var ErrWorkersInvalid = errors.New("contentpack config: worker counts cannot be negative")
var ErrTimeoutInvalid = errors.New("contentpack config: timeouts cannot be negative")
var ErrLoggingProviderRequired = errors.New("contentpack config: logging provider is required")
var ErrLoggingProviderUnknown = errors.New("contentpack config: logging provider is invalid")
var ErrLoggingLevelInvalid = errors.New("contentpack config: logging level is invalid")
var ErrLoggingFormatInvalid = errors.New("contentpack config: logging format is invalid")

// ErrRemoteIncomplete is returned when a remote deploy lacks a credential.
var ErrRemoteIncomplete = errors.New("contentpack config: remote target is incomplete")

// DatabasePlaceholder is replaced by the collection's database id in
// Remote.PostgresDSN.
const DatabasePlaceholder = "{database}"

// Config is the runtime configuration of a content module.
type Config struct {
	// ConfigPath is the collection YAML file.
	ConfigPath string
	// Workers bounds concurrently processed documents. Zero uses the number
	// of CPUs.
	Workers int
	// UploadConcurrency bounds concurrent object uploads per document.
	UploadConcurrency int
	// DocumentTimeout limits one document's processing. Zero disables it.
	DocumentTimeout time.Duration
	// Verify reads objects back after upload and compares hashes.
	Verify    bool
	LinkCards LinkCardConfig
	Remote    RemoteConfig
	Logging   LoggingConfig
}

// LinkCardConfig controls OpenGraph lookups for bare links.
type LinkCardConfig struct {
	Fetch   bool
	Timeout time.Duration
}

// RemoteConfig holds the remote deploy targets.
type RemoteConfig struct {
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// ObjectsDir is where r2 objects are mirrored for upload.
	ObjectsDir string
	// AssetRoot is where asset:// pointers are published. Defaults to
	// <ObjectsDir>/asset.
	AssetRoot string
}

// LoggingConfig captures provider-specific options for runtime logging.
type LoggingConfig struct {
	Provider  string
	Level     string
	Format    string
	AddSource bool
	Focus     []string
}

func DefaultConfig() Config {
	return Config{
		UploadConcurrency: 4,
		LinkCards: LinkCardConfig{
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Provider: "console",
			Level:    "info",
		},
	}
}

// Validate performs high-level consistency checks.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.ConfigPath) == "" {
		return ErrConfigPathRequired
	}
	if cfg.Workers < 0 || cfg.UploadConcurrency < 0 {
		return ErrWorkersInvalid
	}
	if cfg.DocumentTimeout < 0 || cfg.LinkCards.Timeout < 0 {
		return ErrTimeoutInvalid
	}
	provider := normalizeProvider(cfg.Logging.Provider)
	if provider == "" {
		return ErrLoggingProviderRequired
	}
	if !isSupportedProvider(provider) {
		return fmt.Errorf("%w: %s", ErrLoggingProviderUnknown, provider)
	}
	if level := strings.TrimSpace(cfg.Logging.Level); level != "" && !isSupportedLevel(level) {
		return fmt.Errorf("%w: %s", ErrLoggingLevelInvalid, level)
	}
	if provider == "gologger" {
		if format := strings.TrimSpace(cfg.Logging.Format); format != "" && !isSupportedFormat(format) {
			return fmt.Errorf("%w: %s", ErrLoggingFormatInvalid, format)
		}
	}
	return nil
}

// Validate reports the first missing remote credential.
func (r RemoteConfig) Validate() error {
	switch {
	case strings.TrimSpace(r.PostgresDSN) == "":
		return fmt.Errorf("%w: postgres dsn", ErrRemoteIncomplete)
	case strings.TrimSpace(r.RedisAddr) == "":
		return fmt.Errorf("%w: redis address", ErrRemoteIncomplete)
	case strings.TrimSpace(r.ObjectsDir) == "":
		return fmt.Errorf("%w: objects directory", ErrRemoteIncomplete)
	}
	return nil
}

// DSN returns the Postgres DSN for database.
func (r RemoteConfig) DSN(database string) string {
	return strings.ReplaceAll(r.PostgresDSN, DatabasePlaceholder, database)
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func isSupportedProvider(provider string) bool {
	switch provider {
	case "console", "gologger":
		return true
	default:
		return false
	}
}

func isSupportedLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal":
		return true
	default:
		return false
	}
}

func isSupportedFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "console", "pretty":
		return true
	default:
		return false
	}
}
