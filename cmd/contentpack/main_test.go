package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	bootstrap "github.com/goliatone/go-contentpack/commands/bootstrap/deploy"
	"github.com/goliatone/go-contentpack/internal/logging/console"
	"github.com/goliatone/go-contentpack/internal/pipeline"
)

const collectionYAML = `
name: articles
glob: "articles/*.md"
table: article
syntax: {type: markdown, column: body}
schema:
  id: {type: id}
  title: {type: string, required: true}
  body: {type: markdown, storage: {type: kv, namespace: articles}}
`

func quietBuilder(t *testing.T) {
	t.Helper()
	original := moduleBuilder
	t.Cleanup(func() { moduleBuilder = original })
	moduleBuilder = func(opts bootstrap.Options) (*bootstrap.Resources, error) {
		opts.LoggerProvider = console.NewProvider(console.WithWriter(io.Discard))
		return original(opts)
	}
}

func writeCollection(t *testing.T, docs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{"content.yaml": collectionYAML}
	for name, body := range docs {
		files[filepath.Join("articles", name)] = body
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return filepath.Join(dir, "content.yaml")
}

func noEnv(string) string { return "" }

func TestRunDumpPrintsReport(t *testing.T) {
	quietBuilder(t)
	config := writeCollection(t, map[string]string{
		"hello.md": "---\nid: hello\ntitle: Hello\n---\nHello world.\n",
	})
	out := filepath.Join(t.TempDir(), "dist")

	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"dump", "-config", config, "-out", out}, &stdout, noEnv); err != nil {
		t.Fatalf("run dump: %v", err)
	}
	if !strings.Contains(stdout.String(), "1 documents, 1 written") {
		t.Fatalf("unexpected report:\n%s", stdout.String())
	}
	if _, err := os.Stat(filepath.Join(out, "articles.sqlite")); err != nil {
		t.Fatalf("expected dump database: %v", err)
	}
}

func TestRunDumpFailsOnDocumentErrors(t *testing.T) {
	quietBuilder(t)
	config := writeCollection(t, map[string]string{
		"ok.md":     "---\nid: ok\ntitle: OK\n---\nFine.\n",
		"broken.md": "---\nid: broken\n---\nMissing title.\n",
	})

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"dump", "-config", config, "-out", t.TempDir()}, &stdout, noEnv)
	if err == nil {
		t.Fatal("expected failed documents to fail the command")
	}
	if !strings.Contains(stdout.String(), "failed articles/broken.md") {
		t.Fatalf("expected the failure to be reported:\n%s", stdout.String())
	}
}

func TestRunShowSchema(t *testing.T) {
	quietBuilder(t)
	config := writeCollection(t, nil)

	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"show-schema", "-config", config, "typescript"}, &stdout, noEnv); err != nil {
		t.Fatalf("run show-schema: %v", err)
	}
	if !strings.Contains(stdout.String(), "Article") {
		t.Fatalf("expected the Article type:\n%s", stdout.String())
	}
}

func TestRunBatchRequiresRemoteTargets(t *testing.T) {
	quietBuilder(t)
	config := writeCollection(t, nil)
	if err := run(context.Background(), []string{"batch", "-config", config}, io.Discard, noEnv); err == nil {
		t.Fatal("expected batch without remote targets to fail")
	}
}

func TestRunRejectsUnknownCommands(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"deploy"}, &stdout, noEnv); err == nil {
		t.Fatal("expected an unknown command error")
	}
	if !strings.HasPrefix(stdout.String(), "usage:") {
		t.Fatalf("expected usage, got %q", stdout.String())
	}
	if err := run(context.Background(), nil, io.Discard, noEnv); err == nil {
		t.Fatal("expected an error without a command")
	}
}

func TestRunBootstrapErrorsAreWrapped(t *testing.T) {
	original := moduleBuilder
	t.Cleanup(func() { moduleBuilder = original })
	sentinel := errors.New("boom")
	moduleBuilder = func(bootstrap.Options) (*bootstrap.Resources, error) { return nil, sentinel }

	err := run(context.Background(), []string{"dump", "-out", t.TempDir()}, io.Discard, noEnv)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped bootstrap error, got %v", err)
	}
}

func TestPrintReportListsPrunedAndFailures(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &pipeline.Report{
		RunID:         "run-1",
		Documents:     2,
		Written:       1,
		Failed:        1,
		Uploaded:      1,
		BytesUploaded: 2048,
		Pruned:        []string{"gone"},
		Outcomes: []pipeline.DocumentOutcome{
			{Path: "a.md", State: pipeline.StateWritten},
			{Path: "b.md", State: pipeline.StateFailed, Stage: pipeline.StateParsed, Err: errors.New("bad frontmatter")},
		},
	})
	for _, want := range []string{"2.0 kB", "pruned: gone", "failed b.md (parsed): bad frontmatter"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("expected %q in report:\n%s", want, buf.String())
		}
	}
}
