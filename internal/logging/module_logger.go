package logging

import (
	"context"
	"strings"

	"github.com/goliatone/go-contentpack/pkg/interfaces"
)

const (
	rootModule     = "contentpack"
	schemaModule   = "contentpack.schema"
	markdownModule = "contentpack.markdown"
	storageModule  = "contentpack.storage"
	sinkModule     = "contentpack.sink"
	pipelineModule = "contentpack.pipeline"
)

const (
	fieldDocumentPath  = "document_path"
	fieldDocumentID    = "document_id"
	fieldDocumentStage = "stage"
)

// ModuleLogger returns a module-scoped logger, defaulting to a no-op
// implementation when no provider is supplied. The module identifier is
// attached as a structured field.
func ModuleLogger(provider interfaces.LoggerProvider, module string) interfaces.Logger {
	if module == "" {
		module = rootModule
	}

	logger := NoOp()
	if provider != nil {
		if provided := provider.GetLogger(module); provided != nil {
			logger = provided
		}
	}

	return WithFields(logger, map[string]any{
		"module": module,
	})
}

// SchemaLogger returns the logger used while compiling collection schemas.
func SchemaLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, schemaModule)
}

// MarkdownLogger returns the logger used by the document and markdown compilers.
func MarkdownLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, markdownModule)
}

// StorageLogger returns the logger used by object backends and the uploader.
func StorageLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, storageModule)
}

// SinkLogger returns the logger used by table sinks.
func SinkLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, sinkModule)
}

// PipelineLogger returns the logger used by the orchestrator and its workers.
func PipelineLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, pipelineModule)
}

// WithDocumentContext enriches logger with the document path, id and the
// pipeline stage. Empty values are ignored.
func WithDocumentContext(logger interfaces.Logger, path, id, stage string) interfaces.Logger {
	fields := map[string]any{}
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		fields[fieldDocumentPath] = trimmed
	}
	if trimmed := strings.TrimSpace(id); trimmed != "" {
		fields[fieldDocumentID] = trimmed
	}
	if trimmed := strings.TrimSpace(stage); trimmed != "" {
		fields[fieldDocumentStage] = trimmed
	}
	return WithFields(logger, fields)
}

// NoOp returns a logger that drops every entry.
func NoOp() interfaces.Logger {
	return noopLogger{}
}

type noopLogger struct{}

var _ interfaces.Logger = noopLogger{}

func (noopLogger) Trace(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Fatal(string, ...any) {}

func (n noopLogger) WithFields(map[string]any) interfaces.Logger {
	return n
}

func (n noopLogger) WithContext(context.Context) interfaces.Logger {
	return n
}
