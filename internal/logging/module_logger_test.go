package logging

import (
	"context"
	"testing"

	"github.com/goliatone/go-contentpack/pkg/interfaces"
)

type recordingLogger struct {
	fields []map[string]any
}

func (r *recordingLogger) Trace(string, ...any) {}
func (r *recordingLogger) Debug(string, ...any) {}
func (r *recordingLogger) Info(string, ...any)  {}
func (r *recordingLogger) Warn(string, ...any)  {}
func (r *recordingLogger) Error(string, ...any) {}
func (r *recordingLogger) Fatal(string, ...any) {}

func (r *recordingLogger) WithFields(fields map[string]any) interfaces.Logger {
	r.fields = append(r.fields, fields)
	return r
}

func (r *recordingLogger) WithContext(context.Context) interfaces.Logger { return r }

type stubProvider struct {
	requested []string
	logger    interfaces.Logger
}

func (s *stubProvider) GetLogger(name string) interfaces.Logger {
	s.requested = append(s.requested, name)
	return s.logger
}

func TestModuleLoggerFallsBackToNoOp(t *testing.T) {
	logger := ModuleLogger(nil, "contentpack.test")
	if _, ok := logger.(noopLogger); !ok {
		t.Fatalf("expected noopLogger fallback, got %T", logger)
	}
	logger.WithContext(context.Background()).WithFields(map[string]any{"k": "v"}).Debug("noop")
}

func TestModuleLoggerAttachesModuleField(t *testing.T) {
	recorder := &recordingLogger{}
	provider := &stubProvider{logger: recorder}

	PipelineLogger(provider)

	if len(provider.requested) != 1 || provider.requested[0] != pipelineModule {
		t.Fatalf("expected provider to be asked for %q, got %v", pipelineModule, provider.requested)
	}
	if len(recorder.fields) != 1 || recorder.fields[0]["module"] != pipelineModule {
		t.Fatalf("expected module field, got %v", recorder.fields)
	}
}

func TestWithDocumentContextSkipsEmptyValues(t *testing.T) {
	recorder := &recordingLogger{}
	WithDocumentContext(recorder, " posts/a.md ", "", "compiled")

	if len(recorder.fields) != 1 {
		t.Fatalf("expected one WithFields call, got %d", len(recorder.fields))
	}
	got := recorder.fields[0]
	if got[fieldDocumentPath] != "posts/a.md" || got[fieldDocumentStage] != "compiled" {
		t.Fatalf("unexpected fields %v", got)
	}
	if _, ok := got[fieldDocumentID]; ok {
		t.Fatalf("empty id should be omitted: %v", got)
	}
}

func TestContextFieldsMerge(t *testing.T) {
	ctx := ContextWithFields(context.Background(), map[string]any{"a": 1})
	ctx = ContextWithFields(ctx, map[string]any{"b": 2})
	fields := ContextFields(ctx)
	if fields["a"] != 1 || fields["b"] != 2 {
		t.Fatalf("expected merged fields, got %v", fields)
	}
}

func TestRunAndDocumentScopes(t *testing.T) {
	ctx := WithRunScope(context.Background(), "run-1", "posts")
	ctx = WithDocumentScope(ctx, " posts/a.md ")
	ctx = WithDocumentScope(ctx, "")

	want := map[string]any{fieldRunID: "run-1", fieldCollection: "posts", fieldDocumentPath: "posts/a.md"}
	got := ContextFields(ctx)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	got["run_id"] = "mutated"
	if ContextFields(ctx)[fieldRunID] != "run-1" {
		t.Fatal("ContextFields must return a copy")
	}
}

func TestScopedLeavesUnscopedLoggersAlone(t *testing.T) {
	recorder := &recordingLogger{}
	if Scoped(recorder, context.Background()) != interfaces.Logger(recorder) {
		t.Fatal("expected the logger to be returned unchanged")
	}
	if Scoped(nil, WithRunScope(context.Background(), "run-1", "")) != nil {
		t.Fatal("nil loggers stay nil")
	}
}
