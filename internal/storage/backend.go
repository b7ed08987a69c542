package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend is the capability every storage variant implements.
type Backend interface {
	Exists(ctx context.Context, target Pointer) (bool, error)
	Put(ctx context.Context, body []byte, target Pointer) (Pointer, error)
}

// Reader is implemented by backends whose objects can be read back.
type Reader interface {
	Read(ctx context.Context, target Pointer) ([]byte, error)
}

// BlobStore is the client contract for a bucket/key object store.
type BlobStore interface {
	Stat(ctx context.Context, bucket, key string) (bool, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key, contentType string, body []byte) error
}

// KVEntry is a value stored in a key-value namespace.
type KVEntry struct {
	Value       []byte
	Hash        string
	ContentType string
}

// KVStore is the client contract for a namespaced key-value store. Hash
// returns the content hash recorded for key without fetching its value.
type KVStore interface {
	Hash(ctx context.Context, namespace, key string) (string, bool, error)
	Get(ctx context.Context, namespace, key string) (KVEntry, bool, error)
	Put(ctx context.Context, namespace, key string, entry KVEntry) error
}

// Backends holds the store clients available to a run and selects the
// backend variant for a pointer.
type Backends struct {
	Blobs BlobStore
	KV    KVStore
	// AssetRoot is the directory static assets are published under.
	AssetRoot string
}

// For returns the backend serving the pointer's scheme.
func (b Backends) For(p Pointer) (Backend, error) {
	switch p.Scheme {
	case SchemeR2:
		if b.Blobs == nil {
			return nil, fmt.Errorf("%w: r2", ErrBackendUnavailable)
		}
		return ObjectBackend{store: b.Blobs}, nil
	case SchemeKV:
		if b.KV == nil {
			return nil, fmt.Errorf("%w: kv", ErrBackendUnavailable)
		}
		return KVBackend{store: b.KV}, nil
	case SchemeInline:
		return InlineBackend{}, nil
	case SchemeAsset:
		if strings.TrimSpace(b.AssetRoot) == "" {
			return nil, fmt.Errorf("%w: asset", ErrBackendUnavailable)
		}
		return AssetBackend{root: b.AssetRoot}, nil
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrSpecInvalid, p.Scheme)
	}
}

// ObjectBackend stores content-addressed objects in a bucket. Equal hashes
// map to equal keys, so the store deduplicates naturally.
type ObjectBackend struct {
	store BlobStore
}

func NewObjectBackend(store BlobStore) ObjectBackend {
	return ObjectBackend{store: store}
}

func (b ObjectBackend) Exists(ctx context.Context, p Pointer) (bool, error) {
	return b.store.Stat(ctx, p.Location, p.Key)
}

func (b ObjectBackend) Put(ctx context.Context, body []byte, p Pointer) (Pointer, error) {
	if err := b.store.Put(ctx, p.Location, p.Key, p.ContentType, body); err != nil {
		return Pointer{}, err
	}
	return p, nil
}

func (b ObjectBackend) Read(ctx context.Context, p Pointer) ([]byte, error) {
	return b.store.Get(ctx, p.Location, p.Key)
}

// KVBackend stores values under explicit keys. An entry only counts as
// present when its recorded hash matches the target.
type KVBackend struct {
	store KVStore
}

func NewKVBackend(store KVStore) KVBackend {
	return KVBackend{store: store}
}

func (b KVBackend) Exists(ctx context.Context, p Pointer) (bool, error) {
	hash, found, err := b.store.Hash(ctx, p.Location, p.Key)
	if err != nil || !found {
		return false, err
	}
	return hash == p.Hash, nil
}

func (b KVBackend) Put(ctx context.Context, body []byte, p Pointer) (Pointer, error) {
	entry := KVEntry{Value: body, Hash: p.Hash, ContentType: p.ContentType}
	if err := b.store.Put(ctx, p.Location, p.Key, entry); err != nil {
		return Pointer{}, err
	}
	return p, nil
}

func (b KVBackend) Read(ctx context.Context, p Pointer) ([]byte, error) {
	entry, found, err := b.store.Get(ctx, p.Location, p.Key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrObjectNotFound
	}
	return entry.Value, nil
}

// InlineBackend never writes; the bytes travel inside the row.
type InlineBackend struct{}

func (InlineBackend) Exists(context.Context, Pointer) (bool, error) { return true, nil }

func (InlineBackend) Put(_ context.Context, _ []byte, p Pointer) (Pointer, error) { return p, nil }

// AssetBackend publishes static assets as files under root, mirroring
// asset://dir/key pointers at <root>/dir/key. An asset counts as present
// only when the file holds the same bytes.
type AssetBackend struct {
	root string
}

func NewAssetBackend(root string) AssetBackend {
	return AssetBackend{root: root}
}

func (b AssetBackend) Exists(ctx context.Context, p Pointer) (bool, error) {
	body, err := b.Read(ctx, p)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return Hash(body) == p.Hash, nil
}

func (b AssetBackend) Put(_ context.Context, body []byte, p Pointer) (Pointer, error) {
	target, err := safeJoin(b.root, p.Location, p.Key)
	if err != nil {
		return Pointer{}, err
	}
	if err := writeFile(target, body); err != nil {
		return Pointer{}, err
	}
	return p, nil
}

func (b AssetBackend) Read(_ context.Context, p Pointer) ([]byte, error) {
	target, err := safeJoin(b.root, p.Location, p.Key)
	if err != nil {
		return nil, err
	}
	return readFile(target)
}
