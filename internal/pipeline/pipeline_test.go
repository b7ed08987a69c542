package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	adapter "github.com/goliatone/go-contentpack/internal/adapters/storage"
	"github.com/goliatone/go-contentpack/internal/config"
	"github.com/goliatone/go-contentpack/internal/document"
	"github.com/goliatone/go-contentpack/internal/logging"
	"github.com/goliatone/go-contentpack/internal/logging/console"
	"github.com/goliatone/go-contentpack/internal/markdown"
	"github.com/goliatone/go-contentpack/internal/pipeline"
	"github.com/goliatone/go-contentpack/internal/schema"
	"github.com/goliatone/go-contentpack/internal/sink"
	"github.com/goliatone/go-contentpack/internal/storage"
	"github.com/goliatone/go-contentpack/internal/validation"
	pkgstorage "github.com/goliatone/go-contentpack/pkg/storage"
)

const postsYAML = `
name: posts
glob: "posts/*.md"
table: post
syntax: {type: markdown, column: body}
schema:
  id: {type: id}
  hash: {type: hash}
  title: {type: string, required: true}
  cover: {type: image, storage: {type: r2, bucket: media, prefix: covers}}
  comments:
    type: records
    table: comment
    inherit_ids: [post_id]
    schema:
      id: {type: id}
      text: {type: markdown, storage: {type: inline}}
  body:
    type: markdown
    required: true
    storage: {type: kv, namespace: bodies}
    image:
      table: post_image
      inherit_ids: [post_id]
      embed_svg_threshold: 64
      storage: {type: r2, bucket: media, prefix: img}
`

type fixture struct {
	dir        string
	collection *schema.Collection
	sink       *sink.Sink
	blobs      storage.BlobStore
	kv         storage.KVStore
}

func writeFile(t *testing.T, dir, name string, body []byte) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		t.Fatal(err)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newFixture(t *testing.T, dsn string, blobs storage.BlobStore, kv storage.KVStore) *fixture {
	t.Helper()
	cfg, err := config.Parse([]byte(postsYAML))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	col, err := schema.Compile(cfg)
	if err != nil {
		t.Fatalf("schema.Compile: %v", err)
	}
	provider, err := adapter.NewProvider(pkgstorage.Config{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Close() })
	return &fixture{
		dir:        t.TempDir(),
		collection: col,
		sink:       sink.New(provider, col),
		blobs:      blobs,
		kv:         kv,
	}
}

func memoryDSN(name string) string {
	return "file:" + name + "?mode=memory&cache=shared&_fk=1"
}

func (f *fixture) run(t *testing.T, cfg pipeline.Config) *pipeline.Report {
	t.Helper()
	return f.runWith(t, cfg, document.NewCompiler(f.collection))
}

func (f *fixture) runWith(t *testing.T, cfg pipeline.Config, compiler pipeline.Compiler) *pipeline.Report {
	t.Helper()
	loader, err := document.NewLoader(f.dir, f.collection.Glob)
	if err != nil {
		t.Fatal(err)
	}
	uploader := storage.NewUploader(storage.Backends{Blobs: f.blobs, KV: f.kv}, storage.WithForce(cfg.Force))
	cfg.Collection = f.collection.Name
	report, err := pipeline.New(cfg, loader, compiler, f.sink, uploader).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return report
}

func states(r *pipeline.Report) map[string]pipeline.State {
	out := map[string]pipeline.State{}
	for _, o := range r.Outcomes {
		out[o.Path] = o.State
	}
	return out
}

func TestRunIsIdempotent(t *testing.T) {
	blobs, kv := storage.NewMemoryBlobStore(), storage.NewMemoryKVStore()
	f := newFixture(t, memoryDSN("pipeline_idempotent"), blobs, kv)
	cover := pngBytes(t, 3, 3)
	writeFile(t, f.dir, "posts/cover.png", cover)
	writeFile(t, f.dir, "posts/a.md", []byte("---\nid: a\ntitle: A\ncover: cover.png\n---\nFirst.\n"))
	writeFile(t, f.dir, "posts/b.md", []byte("---\nid: b\ntitle: B\ncover: cover.png\n---\nSecond.\n"))

	first := f.run(t, pipeline.Config{Workers: 2})
	if first.Written != 2 || first.Failed != 0 {
		t.Fatalf("first run: %+v", first)
	}
	// The shared cover is uploaded once and skipped for the other document.
	if first.Uploaded != 3 || first.Skipped != 1 {
		t.Fatalf("first run uploads: uploaded=%d skipped=%d", first.Uploaded, first.Skipped)
	}
	if blobs.Puts() != 1 || kv.Puts() != 2 {
		t.Fatalf("backend writes: blobs=%d kv=%d", blobs.Puts(), kv.Puts())
	}

	second := f.run(t, pipeline.Config{Workers: 2})
	if second.Unchanged != 2 || second.Written != 0 || second.Uploaded != 0 {
		t.Fatalf("second run: %+v", second)
	}
	if blobs.Puts() != 1 || kv.Puts() != 2 {
		t.Fatalf("second run wrote to backends: blobs=%d kv=%d", blobs.Puts(), kv.Puts())
	}

	forced := f.run(t, pipeline.Config{Workers: 2, Force: true})
	if forced.Written != 2 || forced.Uploaded != 3 || forced.Skipped != 1 {
		t.Fatalf("forced run: %+v", forced)
	}
	if blobs.Puts() != 2 || kv.Puts() != 4 {
		t.Fatalf("forced run backend writes: blobs=%d kv=%d", blobs.Puts(), kv.Puts())
	}
}

func TestRunRewritesChangedDocuments(t *testing.T) {
	f := newFixture(t, memoryDSN("pipeline_changed"), storage.NewMemoryBlobStore(), storage.NewMemoryKVStore())
	writeFile(t, f.dir, "posts/a.md", []byte("---\nid: a\ntitle: A\n---\nFirst.\n"))
	writeFile(t, f.dir, "posts/b.md", []byte("---\nid: b\ntitle: B\n---\nSecond.\n"))
	f.run(t, pipeline.Config{})

	writeFile(t, f.dir, "posts/b.md", []byte("---\nid: b\ntitle: B, edited\n---\nSecond.\n"))
	report := f.run(t, pipeline.Config{})
	want := map[string]pipeline.State{"posts/a.md": pipeline.StateUnchanged, "posts/b.md": pipeline.StateWritten}
	if diff := cmp.Diff(want, states(report)); diff != "" {
		t.Fatalf("states (-want +got):\n%s", diff)
	}
}

func TestRunPrunesRemovedDocuments(t *testing.T) {
	f := newFixture(t, memoryDSN("pipeline_prune"), storage.NewMemoryBlobStore(), storage.NewMemoryKVStore())
	writeFile(t, f.dir, "posts/a.md", []byte("---\nid: a\ntitle: A\ncomments:\n  - {id: c1, text: hi}\n---\nFirst.\n"))
	writeFile(t, f.dir, "posts/b.md", []byte("---\nid: b\ntitle: B\ncomments:\n  - {id: c1, text: yo}\n---\nSecond.\n"))
	f.run(t, pipeline.Config{})

	if err := os.Remove(filepath.Join(f.dir, "posts", "b.md")); err != nil {
		t.Fatal(err)
	}
	report := f.run(t, pipeline.Config{Prune: true})
	if diff := cmp.Diff([]string{"b"}, report.Pruned); diff != "" {
		t.Fatalf("pruned (-want +got):\n%s", diff)
	}

	ctx := context.Background()
	posts, err := f.sink.ReadRows(ctx, "post")
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0]["id"] != "a" {
		t.Fatalf("posts after prune: %v", posts)
	}
	comments, err := f.sink.ReadRows(ctx, "comment")
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 1 || comments[0]["post_id"] != "a" {
		t.Fatalf("comments after prune: %v", comments)
	}
	if _, found, err := f.sink.StoredHash(ctx, "b"); err != nil || found {
		t.Fatalf("StoredHash(b) found=%v err=%v", found, err)
	}
}

type failingBlobs struct {
	storage.BlobStore
}

func (failingBlobs) Put(context.Context, string, string, string, []byte) error {
	return errors.New("bucket unavailable")
}

func TestRunIsolatesDocumentFailures(t *testing.T) {
	f := newFixture(t, memoryDSN("pipeline_isolation"), failingBlobs{storage.NewMemoryBlobStore()}, storage.NewMemoryKVStore())
	writeFile(t, f.dir, "posts/cover.png", pngBytes(t, 2, 2))
	writeFile(t, f.dir, "posts/upload.md", []byte("---\nid: upload\ntitle: U\ncover: cover.png\n---\nBody.\n"))
	writeFile(t, f.dir, "posts/invalid.md", []byte("---\nid: invalid\n---\nNo title.\n"))
	writeFile(t, f.dir, "posts/broken.md", []byte("no frontmatter here\n"))
	writeFile(t, f.dir, "posts/ok.md", []byte("---\nid: ok\ntitle: OK\n---\nBody.\n"))

	report := f.run(t, pipeline.Config{Workers: 3})
	if report.OK() || report.Failed != 3 || report.Written != 1 {
		t.Fatalf("report: %+v", report)
	}

	stages := map[string]pipeline.State{}
	for _, o := range report.Failures() {
		stages[o.Path] = o.Stage
		var derr *pipeline.DocumentError
		if !errors.As(o.Err, &derr) || derr.Path != o.Path {
			t.Fatalf("%s: expected DocumentError, got %v", o.Path, o.Err)
		}
	}
	want := map[string]pipeline.State{
		"posts/broken.md":  pipeline.StateParsed,
		"posts/invalid.md": pipeline.StateCompiled,
		"posts/upload.md":  pipeline.StateDiffed,
	}
	if diff := cmp.Diff(want, stages); diff != "" {
		t.Fatalf("failure stages (-want +got):\n%s", diff)
	}

	for _, o := range report.Failures() {
		if o.Path != "posts/upload.md" {
			continue
		}
		var serr *storage.StorageError
		if !errors.Is(o.Err, pipeline.ErrUploadFailed) || !errors.As(o.Err, &serr) {
			t.Fatalf("expected upload failure, got %v", o.Err)
		}
	}
	if _, ok, err := f.sink.StoredHash(context.Background(), "upload"); err != nil || ok {
		t.Fatalf("failed document must not be recorded: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := f.sink.StoredHash(context.Background(), "ok"); !ok {
		t.Fatal("expected the valid document to be written")
	}
}

type blockingCompiler struct{}

func (blockingCompiler) Compile(ctx context.Context, _ document.Source) (*document.Compiled, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunTimesOutSlowDocuments(t *testing.T) {
	f := newFixture(t, memoryDSN("pipeline_timeout"), storage.NewMemoryBlobStore(), storage.NewMemoryKVStore())
	writeFile(t, f.dir, "posts/slow.md", []byte("---\nid: slow\ntitle: S\n---\n"))

	report := f.runWith(t, pipeline.Config{Timeout: 20 * time.Millisecond}, blockingCompiler{})
	failures := report.Failures()
	if len(failures) != 1 {
		t.Fatalf("expected one failure, got %+v", report)
	}
	if !errors.Is(failures[0].Err, pipeline.ErrTimeout) || !errors.Is(failures[0].Err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout, got %v", failures[0].Err)
	}
}

type failingSink struct {
	pipeline.Sink
}

func (failingSink) EnsureSchema(context.Context) error {
	return errors.New("permission denied")
}

type failingSource struct{}

func (failingSource) Discover(context.Context) ([]string, error) {
	return nil, errors.New("no such directory")
}

func (failingSource) Read(context.Context, string) (document.Source, error) {
	return document.Source{}, nil
}

func TestRunAbortsOnPreflightErrors(t *testing.T) {
	f := newFixture(t, memoryDSN("pipeline_preflight"), storage.NewMemoryBlobStore(), storage.NewMemoryKVStore())
	compiler := document.NewCompiler(f.collection)
	uploader := storage.NewUploader(storage.Backends{})
	loader, err := document.NewLoader(f.dir, f.collection.Glob)
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]*pipeline.Pipeline{
		"apply schema":       pipeline.New(pipeline.Config{}, loader, compiler, failingSink{f.sink}, uploader),
		"discover documents": pipeline.New(pipeline.Config{}, failingSource{}, compiler, f.sink, uploader),
	}
	for op, p := range cases {
		t.Run(op, func(t *testing.T) {
			report, err := p.Run(context.Background())
			var perr *pipeline.PreflightError
			if !errors.As(err, &perr) || perr.Op != op || report != nil {
				t.Fatalf("expected %s preflight error, got report=%v err=%v", op, report, err)
			}
		})
	}
}

const scenario = `---
id: test
title: Everything
comments:
  - id: c1
    text: |
      > [!CAUTION]
      > Hot.
---
Intro with a reference[^1].

![chart](chart.png)

> [!NOTE]
> Remember this.

https://example.com/page

` + "```js\nconsole.log(1)\n```" + `

[^1]: The footnote.
`

func TestDumpAndReadBack(t *testing.T) {
	ctx := context.Background()
	out := t.TempDir()
	dsn := "file:" + filepath.Join(out, "content.db") + "?_fk=1"
	kv := storage.NewFileKVStore(filepath.Join(out, "kv"))
	f := newFixture(t, dsn, storage.NewFileBlobStore(filepath.Join(out, "r2")), kv)
	writeFile(t, f.dir, "posts/test.md", []byte(scenario))
	writeFile(t, f.dir, "posts/chart.png", pngBytes(t, 6, 4))

	report := f.run(t, pipeline.Config{})
	if !report.OK() || report.Written != 1 {
		t.Fatalf("dump failed: %+v", report.Failures())
	}

	posts, err := f.sink.ReadRows(ctx, "post")
	if err != nil {
		t.Fatal(err)
	}
	comments, err := f.sink.ReadRows(ctx, "comment")
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || len(comments) != 1 {
		t.Fatalf("expected one post and one comment, got %d and %d", len(posts), len(comments))
	}

	v, err := validation.NewValidator(f.collection)
	if err != nil {
		t.Fatal(err)
	}
	for table, rows := range map[string][]document.Row{"post": posts, "comment": comments} {
		for _, row := range rows {
			if err := v.ValidateRow(table, row); err != nil {
				t.Fatalf("%s row does not validate: %v", table, err)
			}
		}
	}

	col := posts[0]["body"].(storage.Column)
	pointer, err := storage.ParsePointer(col.Pointer)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok, err := kv.Get(ctx, pointer.Location, pointer.Key)
	if err != nil || !ok {
		t.Fatalf("body entry %s: ok=%v err=%v", col.Pointer, ok, err)
	}
	if storage.Hash(entry.Value) != col.Hash {
		t.Fatal("stored body does not match its column hash")
	}
	if err := v.ValidateBody("post", "body", entry.Value); err != nil {
		t.Fatalf("body does not validate: %v", err)
	}
	doc, err := markdown.DecodeDocument(entry.Value)
	if err != nil {
		t.Fatal(err)
	}
	want := map[schema.KeepKind]int{
		schema.KeepImage:             1,
		schema.KeepAlert:             1,
		schema.KeepFootnoteReference: 1,
		schema.KeepLinkCard:          1,
		schema.KeepCodeblock:         1,
	}
	if diff := cmp.Diff(want, markdown.CountKeep(doc)); diff != "" {
		t.Fatalf("keep counts (-want +got):\n%s", diff)
	}
}

// syncBuffer serialises writes from concurrent workers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

func TestRunScopesComponentLogsToDocument(t *testing.T) {
	f := newFixture(t, memoryDSN("pipeline_log_scope"), storage.NewMemoryBlobStore(), storage.NewMemoryKVStore())
	writeFile(t, f.dir, "posts/a.md", []byte("---\nid: a\ntitle: A\n---\nFirst.\n"))

	out := &syncBuffer{}
	provider := console.NewProvider(console.WithWriter(out), console.WithMinLevel(console.LevelDebug))
	loader, err := document.NewLoader(f.dir, f.collection.Glob)
	if err != nil {
		t.Fatal(err)
	}
	uploader := storage.NewUploader(
		storage.Backends{Blobs: f.blobs, KV: f.kv},
		storage.WithUploaderLogger(logging.StorageLogger(provider)),
	)
	p := pipeline.New(pipeline.Config{Collection: f.collection.Name}, loader, document.NewCompiler(f.collection), f.sink, uploader,
		pipeline.WithLogger(logging.PipelineLogger(provider)))
	report, err := p.Run(context.Background())
	if err != nil || !report.OK() {
		t.Fatalf("Run: %v %+v", err, report)
	}

	var uploaded string
	for _, line := range out.lines() {
		if strings.Contains(line, "storage.object.uploaded") {
			uploaded = line
		}
	}
	for _, want := range []string{"run_id=" + report.RunID, "collection=posts", "document_path=posts/a.md"} {
		if !strings.Contains(uploaded, want) {
			t.Fatalf("expected %q on the upload entry, got %q", want, uploaded)
		}
	}
}
