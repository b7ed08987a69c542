package console_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-contentpack/internal/logging"
	"github.com/goliatone/go-contentpack/internal/logging/console"
)

func TestConsoleLoggerWritesSortedFields(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)
	provider := console.NewProvider(
		console.WithWriter(&buf),
		console.WithClock(func() time.Time { return now }),
		console.WithMinLevel(console.LevelDebug),
	)

	logger := logging.ModuleLogger(provider, "contentpack.pipeline")
	ctx := logging.ContextWithFields(context.Background(), map[string]any{"run_id": "r-1"})
	logger.WithContext(ctx).Info("document.written", "document_id", "test", "error", errors.New("none here"))

	got := strings.TrimSpace(buf.String())
	want := `2024-03-14T15:09:26Z INFO document.written document_id=test error="none here" logger=contentpack.pipeline module=contentpack.pipeline run_id=r-1`
	if got != want {
		t.Fatalf("unexpected entry\nwant: %s\ngot:  %s", want, got)
	}
}

func TestConsoleLoggerFiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	provider := console.NewProvider(console.WithWriter(&buf), console.WithMinLevel(console.LevelWarn))
	logger := provider.GetLogger("contentpack")

	logger.Info("skipped")
	logger.Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "WARN kept") {
		t.Fatalf("expected single warn line, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]console.Level{
		"trace":   console.LevelTrace,
		"DEBUG":   console.LevelDebug,
		"warning": console.LevelWarn,
		"":        console.LevelInfo,
		"bogus":   console.LevelInfo,
	}
	for input, want := range cases {
		if got := console.ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
