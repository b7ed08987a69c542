package sink_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	adapter "github.com/goliatone/go-contentpack/internal/adapters/storage"
	"github.com/goliatone/go-contentpack/internal/config"
	"github.com/goliatone/go-contentpack/internal/document"
	"github.com/goliatone/go-contentpack/internal/schema"
	"github.com/goliatone/go-contentpack/internal/sink"
	"github.com/goliatone/go-contentpack/internal/storage"
	"github.com/goliatone/go-contentpack/internal/validation"
	pkgstorage "github.com/goliatone/go-contentpack/pkg/storage"
)

const shelvesYAML = `
name: shelves
glob: "*.yaml"
table: shelf
syntax: {type: yaml}
schema:
  id: {type: id}
  hash: {type: hash}
  label: {type: string, required: true}
  public: {type: boolean}
  note: {type: markdown, storage: {type: inline}}
  books:
    type: records
    table: shelf_book
    inherit_ids: [shelf_id]
    schema:
      id: {type: id}
      title: {type: string, required: true}
      quotes:
        type: records
        table: book_quote
        inherit_ids: [shelf_id, book_id]
        schema:
          id: {type: id}
          text: {type: string}
`

const shelfV1 = `id: fiction
label: Fiction
public: true
note: Read **slowly**.
books:
  - id: b1
    title: One
    quotes:
      - {id: q1, text: first}
      - {id: q2}
  - id: b2
    title: Two
`

const shelfV2 = `id: fiction
label: Fiction, revised
public: false
books:
  - id: b2
    title: Two
`

func setup(t *testing.T, name string) (*schema.Collection, *sink.Sink) {
	t.Helper()
	cfg, err := config.Parse([]byte(shelvesYAML))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	col, err := schema.Compile(cfg)
	if err != nil {
		t.Fatalf("schema.Compile: %v", err)
	}
	provider, err := adapter.NewProvider(pkgstorage.Config{
		Driver: "sqlite",
		DSN:    "file:" + name + "?mode=memory&cache=shared&_fk=1",
	})
	if err != nil {
		t.Fatalf("open provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Close() })

	s := sink.New(provider, col)
	for i := 0; i < 2; i++ {
		if err := s.EnsureSchema(context.Background()); err != nil {
			t.Fatalf("EnsureSchema (pass %d): %v", i+1, err)
		}
	}
	return col, s
}

func compile(t *testing.T, col *schema.Collection, raw string) *document.Compiled {
	t.Helper()
	out, err := document.NewCompiler(col).Compile(context.Background(), document.Source{
		Path: "fiction.yaml",
		Dir:  t.TempDir(),
		Raw:  []byte(raw),
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return out
}

func readIDs(t *testing.T, s *sink.Sink, table string, columns ...string) [][]any {
	t.Helper()
	rows, err := s.ReadRows(context.Background(), table)
	if err != nil {
		t.Fatalf("ReadRows(%s): %v", table, err)
	}
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		var key []any
		for _, c := range columns {
			key = append(key, row[c])
		}
		out = append(out, key)
	}
	return out
}

func TestWriteReplacesDocumentRows(t *testing.T) {
	ctx := context.Background()
	col, s := setup(t, "sink_replace")

	if _, ok, err := s.StoredHash(ctx, "fiction"); err != nil || ok {
		t.Fatalf("expected no stored hash, got ok=%v err=%v", ok, err)
	}

	v1 := compile(t, col, shelfV1)
	if err := s.Write(ctx, v1); err != nil {
		t.Fatalf("Write v1: %v", err)
	}

	hash, ok, err := s.StoredHash(ctx, "fiction")
	if err != nil || !ok || hash != v1.Hash {
		t.Fatalf("stored hash = %q ok=%v err=%v, want %q", hash, ok, err, v1.Hash)
	}

	shelves, err := s.ReadRows(ctx, "shelf")
	if err != nil {
		t.Fatal(err)
	}
	if len(shelves) != 1 {
		t.Fatalf("expected one shelf, got %d", len(shelves))
	}
	if shelves[0]["public"] != true || shelves[0]["hash"] != v1.Hash {
		t.Fatalf("shelf row = %#v", shelves[0])
	}
	note, ok := shelves[0]["note"].(storage.Column)
	if !ok || len(note.Content) == 0 || note.Hash != v1.Root()["note"].(storage.Column).Hash {
		t.Fatalf("note column = %#v", shelves[0]["note"])
	}

	if diff := cmp.Diff([][]any{{"fiction", "b1"}, {"fiction", "b2"}}, readIDs(t, s, "shelf_book", "shelf_id", "id")); diff != "" {
		t.Fatalf("books (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]any{{"fiction", "b1", "q1"}, {"fiction", "b1", "q2"}}, readIDs(t, s, "book_quote", "shelf_id", "book_id", "id")); diff != "" {
		t.Fatalf("quotes (-want +got):\n%s", diff)
	}

	v2 := compile(t, col, shelfV2)
	if err := s.Write(ctx, v2); err != nil {
		t.Fatalf("Write v2: %v", err)
	}
	shelves, err = s.ReadRows(ctx, "shelf")
	if err != nil {
		t.Fatal(err)
	}
	if len(shelves) != 1 || shelves[0]["label"] != "Fiction, revised" || shelves[0]["public"] != false || shelves[0]["note"] != nil {
		t.Fatalf("shelf row after rewrite = %#v", shelves)
	}
	if diff := cmp.Diff([][]any{{"fiction", "b2"}}, readIDs(t, s, "shelf_book", "shelf_id", "id")); diff != "" {
		t.Fatalf("books after rewrite (-want +got):\n%s", diff)
	}
	if got := readIDs(t, s, "book_quote", "id"); len(got) != 0 {
		t.Fatalf("expected quotes to be cleared, got %v", got)
	}
	if hash, _, _ := s.StoredHash(ctx, "fiction"); hash != v2.Hash {
		t.Fatalf("stored hash = %q, want %q", hash, v2.Hash)
	}
}

func TestReadRowsValidateAgainstGeneratedSchema(t *testing.T) {
	ctx := context.Background()
	col, s := setup(t, "sink_validate")
	if err := s.Write(ctx, compile(t, col, shelfV1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	v, err := validation.NewValidator(col)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	for _, table := range col.Tables {
		rows, err := s.ReadRows(ctx, table.Name)
		if err != nil {
			t.Fatalf("ReadRows(%s): %v", table.Name, err)
		}
		for _, row := range rows {
			if err := v.ValidateRow(table.Name, row); err != nil {
				t.Fatalf("%s row %v: %v", table.Name, row, err)
			}
		}
	}
}

func TestReadRowsUnknownTable(t *testing.T) {
	_, s := setup(t, "sink_unknown")
	if _, err := s.ReadRows(context.Background(), "missing"); err == nil {
		t.Fatal("expected unknown table error")
	}
}
