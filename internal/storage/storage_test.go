package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHashIsDeterministic(t *testing.T) {
	a := Hash([]byte("hello world"))
	b := Hash([]byte("hello world"))
	if a != b {
		t.Fatalf("hash changed between calls: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d (%s)", len(a), a)
	}
	if a == Hash([]byte("hello world!")) {
		t.Fatal("different input produced equal hash")
	}

	spec := Spec{Scheme: SchemeR2, Bucket: "media", Prefix: "img/"}
	p1 := spec.Locate([]byte("pixels"), "image/png", Locator{Ext: ".png"})
	p2 := spec.Locate([]byte("pixels"), "image/png", Locator{Ext: ".png"})
	if p1.URI() != p2.URI() {
		t.Fatalf("derived keys differ: %s vs %s", p1.URI(), p2.URI())
	}
	want := "r2://media/img/" + Hash([]byte("pixels")) + ".png"
	if p1.URI() != want {
		t.Fatalf("URI = %s, want %s", p1.URI(), want)
	}
}

func TestLocatePerScheme(t *testing.T) {
	body := []byte("# title")
	cases := []struct {
		name string
		spec Spec
		loc  Locator
		uri  string
	}{
		{"kv", Spec{Scheme: SchemeKV, Namespace: "bodies", Prefix: "post"}, Locator{Key: "test/body"}, "kv://bodies/post/test/body"},
		{"asset", Spec{Scheme: SchemeAsset, Dir: "public/"}, Locator{Key: "./img/a.png"}, "asset://public/img/a.png"},
		{"inline", Spec{Scheme: SchemeInline}, Locator{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.spec.Locate(body, "text/markdown", tc.loc)
			if p.URI() != tc.uri {
				t.Fatalf("URI = %q, want %q", p.URI(), tc.uri)
			}
			if p.Size != int64(len(body)) || p.Hash != Hash(body) {
				t.Fatalf("unexpected size/hash %+v", p)
			}
		})
	}
}

func TestParsePointer(t *testing.T) {
	p, err := ParsePointer("kv://bodies/post/test")
	if err != nil {
		t.Fatalf("ParsePointer: %v", err)
	}
	if diff := cmp.Diff(Pointer{Scheme: SchemeKV, Location: "bodies", Key: "post/test"}, p); diff != "" {
		t.Fatalf("pointer mismatch (-want +got):\n%s", diff)
	}
	for _, bad := range []string{"nope", "ftp://x/y", "r2://bucket", "inline://x/y"} {
		if _, err := ParsePointer(bad); !errors.Is(err, ErrPointerInvalid) {
			t.Fatalf("%q: expected ErrPointerInvalid, got %v", bad, err)
		}
	}
}

func TestSpecValidate(t *testing.T) {
	bad := []Spec{
		{Scheme: SchemeR2},
		{Scheme: SchemeKV},
		{Scheme: SchemeAsset},
		{Scheme: "s3"},
	}
	for _, spec := range bad {
		if err := spec.Validate(); !errors.Is(err, ErrSpecInvalid) {
			t.Fatalf("%+v: expected ErrSpecInvalid, got %v", spec, err)
		}
	}
	if err := (Spec{Scheme: SchemeInline}).Validate(); err != nil {
		t.Fatalf("inline spec should be valid: %v", err)
	}
}

func TestInlineColumnEncodings(t *testing.T) {
	jsonCol := InlineColumn([]byte(`{"a":1}`), "application/json")
	if string(jsonCol.Content) != `{"a":1}` || jsonCol.Encoding != "" {
		t.Fatalf("unexpected json column %+v", jsonCol)
	}
	textCol := InlineColumn([]byte("<svg/>"), "image/svg+xml")
	if string(textCol.Content) != `"<svg/>"` || textCol.Encoding != "" {
		t.Fatalf("unexpected text column %s", textCol.Content)
	}
	binCol := InlineColumn([]byte{0xff, 0x00}, "image/png")
	if binCol.Encoding != "base64" {
		t.Fatalf("expected base64 encoding, got %+v", binCol)
	}
	for _, col := range []Column{jsonCol, textCol, binCol} {
		raw, err := col.Bytes()
		if err != nil {
			t.Fatalf("Bytes: %v", err)
		}
		if Hash(raw) != col.Hash {
			t.Fatalf("decoded bytes do not match hash for %s", col.ContentType)
		}
	}
}

func TestUploaderDeduplicatesIdenticalContent(t *testing.T) {
	blobs := NewMemoryBlobStore()
	u := NewUploader(Backends{Blobs: blobs})
	spec := Spec{Scheme: SchemeR2, Bucket: "media"}
	body := []byte("same image bytes")

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := spec.Locate(body, "image/png", Locator{Ext: ".png"})
			outcomes[i] = u.Upload(context.Background(), Object{Pointer: p, Body: body})
		}(i)
	}
	wg.Wait()

	counts := map[Status]int{}
	for _, o := range outcomes {
		counts[o.Status]++
		if o.Status == StatusSkipped && o.Reason != AlreadyPresent {
			t.Fatalf("unexpected skip reason %q", o.Reason)
		}
	}
	if counts[StatusUploaded] != 1 || counts[StatusSkipped] != 7 {
		t.Fatalf("expected 1 upload and 7 skips, got %v", counts)
	}
	if blobs.Puts() != 1 {
		t.Fatalf("expected a single put, got %d", blobs.Puts())
	}
}

func TestUploaderSkipsObjectsPresentBeforeRun(t *testing.T) {
	blobs := NewMemoryBlobStore()
	body := []byte("existing")
	p := Spec{Scheme: SchemeR2, Bucket: "media"}.Locate(body, "image/png", Locator{})
	_ = blobs.Put(context.Background(), p.Location, p.Key, p.ContentType, body)

	out := NewUploader(Backends{Blobs: blobs}).Upload(context.Background(), Object{Pointer: p, Body: body})
	if out.Status != StatusSkipped {
		t.Fatalf("expected skip, got %+v", out)
	}

	forced := NewUploader(Backends{Blobs: blobs}, WithForce(true)).Upload(context.Background(), Object{Pointer: p, Body: body})
	if forced.Status != StatusUploaded {
		t.Fatalf("forced upload should write, got %+v", forced)
	}
	if blobs.Puts() != 2 {
		t.Fatalf("expected forced put, got %d puts", blobs.Puts())
	}
}

type flakyBlobStore struct {
	*MemoryBlobStore
	mu       sync.Mutex
	failures int
}

func (s *flakyBlobStore) Put(ctx context.Context, bucket, key, ct string, body []byte) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("connection reset")
	}
	s.mu.Unlock()
	return s.MemoryBlobStore.Put(ctx, bucket, key, ct, body)
}

func TestUploaderDoesNotCacheFailedPuts(t *testing.T) {
	store := &flakyBlobStore{MemoryBlobStore: NewMemoryBlobStore(), failures: 1}
	u := NewUploader(Backends{Blobs: store})
	body := []byte("retry me")
	p := Spec{Scheme: SchemeR2, Bucket: "media"}.Locate(body, "image/png", Locator{})

	first := u.Upload(context.Background(), Object{Pointer: p, Body: body})
	var storageErr *StorageError
	if first.Status != StatusFailed || !errors.As(first.Err, &storageErr) || storageErr.Op != "put" {
		t.Fatalf("expected put StorageError, got %+v", first)
	}

	second := u.Upload(context.Background(), Object{Pointer: p, Body: body})
	if second.Status != StatusUploaded {
		t.Fatalf("retry should upload, got %+v", second)
	}
}

func TestUploaderMissingBackend(t *testing.T) {
	body := []byte("x")
	p := Spec{Scheme: SchemeKV, Namespace: "ns"}.Locate(body, "text/plain", Locator{Key: "k"})
	out := NewUploader(Backends{}).Upload(context.Background(), Object{Pointer: p, Body: body})
	if out.Status != StatusFailed || !errors.Is(out.Err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %+v", out)
	}
}

func TestKVBackendExistsComparesHash(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKVStore()
	spec := Spec{Scheme: SchemeKV, Namespace: "bodies"}
	old := spec.Locate([]byte("v1"), "text/plain", Locator{Key: "post/test"})
	if _, err := NewKVBackend(kv).Put(ctx, []byte("v1"), old); err != nil {
		t.Fatalf("Put: %v", err)
	}

	next := spec.Locate([]byte("v2"), "text/plain", Locator{Key: "post/test"})
	ok, err := NewKVBackend(kv).Exists(ctx, next)
	if err != nil || ok {
		t.Fatalf("changed value should not exist yet: ok=%v err=%v", ok, err)
	}
	out := NewUploader(Backends{KV: kv}).Upload(ctx, Object{Pointer: next, Body: []byte("v2")})
	if out.Status != StatusUploaded {
		t.Fatalf("expected upload of changed value, got %+v", out)
	}
}

type corruptBlobStore struct{ *MemoryBlobStore }

func (s corruptBlobStore) Get(context.Context, string, string) ([]byte, error) {
	return []byte("bit rot"), nil
}

func TestUploaderVerifyDetectsIntegrityMismatch(t *testing.T) {
	store := corruptBlobStore{NewMemoryBlobStore()}
	body := []byte("original")
	p := Spec{Scheme: SchemeR2, Bucket: "media"}.Locate(body, "image/png", Locator{})

	out := NewUploader(Backends{Blobs: store}, WithVerify(true)).Upload(context.Background(), Object{Pointer: p, Body: body})
	var integrity *IntegrityError
	if out.Status != StatusFailed || !errors.As(out.Err, &integrity) {
		t.Fatalf("expected IntegrityError, got %+v", out)
	}
	if integrity.Want != p.Hash {
		t.Fatalf("unexpected integrity error %+v", integrity)
	}
}

func TestFileStoresMirrorPointerScheme(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	blobs := NewFileBlobStore(root)
	kv := NewFileKVStore(root)

	if err := blobs.Put(ctx, "media", "img/abc.png", "image/png", []byte("png")); err != nil {
		t.Fatalf("blob put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "r2", "media", "img", "abc.png")); err != nil {
		t.Fatalf("expected mirrored blob file: %v", err)
	}
	ok, err := blobs.Stat(ctx, "media", "img/abc.png")
	if err != nil || !ok {
		t.Fatalf("Stat = %v, %v", ok, err)
	}
	if _, err := blobs.Get(ctx, "media", "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}

	if err := kv.Put(ctx, "bodies", "post/test", KVEntry{Value: []byte("{}")}); err != nil {
		t.Fatalf("kv put: %v", err)
	}
	hash, found, err := kv.Hash(ctx, "bodies", "post/test")
	if err != nil || !found || hash != Hash([]byte("{}")) {
		t.Fatalf("Hash = %q %v %v", hash, found, err)
	}
	if _, found, _ := kv.Get(ctx, "bodies", "nope"); found {
		t.Fatal("unexpected entry")
	}

	if err := blobs.Put(ctx, "media", "../../escape", "", []byte("x")); !errors.Is(err, ErrPointerInvalid) {
		t.Fatalf("expected traversal rejection, got %v", err)
	}
}

func TestAssetBackendPublishesFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	spec := Spec{Scheme: SchemeAsset, Dir: "public"}
	body := []byte("png bytes")
	p := spec.Locate(body, "image/png", Locator{Key: "hello/img/a.png"})

	u := NewUploader(Backends{AssetRoot: root})
	if out := u.Upload(ctx, Object{Pointer: p, Body: body}); out.Status != StatusUploaded {
		t.Fatalf("expected upload, got %+v", out)
	}
	got, err := os.ReadFile(filepath.Join(root, "public", "hello", "img", "a.png"))
	if err != nil || string(got) != string(body) {
		t.Fatalf("published asset = %q, %v", got, err)
	}

	again := NewUploader(Backends{AssetRoot: root}).Upload(ctx, Object{Pointer: p, Body: body})
	if again.Status != StatusSkipped {
		t.Fatalf("unchanged asset should be skipped, got %+v", again)
	}

	changed := []byte("new png bytes")
	next := spec.Locate(changed, "image/png", Locator{Key: "hello/img/a.png"})
	if ok, err := NewAssetBackend(root).Exists(ctx, next); err != nil || ok {
		t.Fatalf("changed asset should not exist yet: ok=%v err=%v", ok, err)
	}

	missing := NewUploader(Backends{}).Upload(ctx, Object{Pointer: p, Body: body})
	if missing.Status != StatusFailed || !errors.Is(missing.Err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable without an asset root, got %+v", missing)
	}
}

func TestRedisKVStore(t *testing.T) {
	addr := os.Getenv("CONTENTPACK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONTENTPACK_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := NewRedisClient(addr, "", 0)
	defer client.Close()
	store := NewRedisKVStore(client)

	entry := KVEntry{Value: []byte("body"), Hash: Hash([]byte("body")), ContentType: "text/plain"}
	if err := store.Put(ctx, "contentpack-test", "k", entry); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, found, err := store.Get(ctx, "contentpack-test", "k")
	if err != nil || !found {
		t.Fatalf("Get: %v %v", found, err)
	}
	if diff := cmp.Diff(entry, got); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
	if _, found, _ := store.Hash(ctx, "contentpack-test", "absent"); found {
		t.Fatal("absent key reported as found")
	}
}
