package logging

import (
	"context"
	"maps"
	"strings"

	"github.com/goliatone/go-contentpack/pkg/interfaces"
)

const (
	fieldRunID      = "run_id"
	fieldCollection = "collection"
)

type scopeKey struct{}

// WithRunScope tags ctx with the run id and collection so every entry
// logged while the run is active carries them.
func WithRunScope(ctx context.Context, runID, collection string) context.Context {
	return ContextWithFields(ctx, nonEmpty(map[string]string{
		fieldRunID:      runID,
		fieldCollection: collection,
	}))
}

// WithDocumentScope tags ctx with the path of the document being processed.
func WithDocumentScope(ctx context.Context, path string) context.Context {
	return ContextWithFields(ctx, nonEmpty(map[string]string{fieldDocumentPath: path}))
}

// ContextWithFields layers fields over those already on ctx. Later values
// win on key collisions.
func ContextWithFields(ctx context.Context, fields map[string]any) context.Context {
	if ctx == nil || len(fields) == 0 {
		return ctx
	}
	merged := ContextFields(ctx)
	if merged == nil {
		merged = make(map[string]any, len(fields))
	}
	maps.Copy(merged, fields)
	return context.WithValue(ctx, scopeKey{}, merged)
}

// ContextFields returns a copy of the fields carried by ctx.
func ContextFields(ctx context.Context) map[string]any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(scopeKey{}).(map[string]any)
	if len(fields) == 0 {
		return nil
	}
	return maps.Clone(fields)
}

// Scoped binds logger to ctx when ctx carries scope fields.
func Scoped(logger interfaces.Logger, ctx context.Context) interfaces.Logger {
	if logger == nil || len(ContextFields(ctx)) == 0 {
		return logger
	}
	return logger.WithContext(ctx)
}

func nonEmpty(values map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for key, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out[key] = trimmed
		}
	}
	return out
}
