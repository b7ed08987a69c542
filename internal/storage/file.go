package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// FileBlobStore mirrors r2://bucket/key pointers under <root>/r2/bucket/key.
type FileBlobStore struct {
	root string
}

func NewFileBlobStore(root string) *FileBlobStore {
	return &FileBlobStore{root: filepath.Join(root, string(SchemeR2))}
}

func (s *FileBlobStore) Stat(_ context.Context, bucket, key string) (bool, error) {
	p, err := safeJoin(s.root, bucket, key)
	if err != nil {
		return false, err
	}
	return fileExists(p)
}

func (s *FileBlobStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	p, err := safeJoin(s.root, bucket, key)
	if err != nil {
		return nil, err
	}
	return readFile(p)
}

func (s *FileBlobStore) Put(_ context.Context, bucket, key, _ string, body []byte) error {
	p, err := safeJoin(s.root, bucket, key)
	if err != nil {
		return err
	}
	return writeFile(p, body)
}

// FileKVStore mirrors kv://namespace/key pointers under <root>/kv/namespace/key.
// Hashes are recomputed from the stored bytes, so no metadata is kept beside
// the value.
type FileKVStore struct {
	root string
}

func NewFileKVStore(root string) *FileKVStore {
	return &FileKVStore{root: filepath.Join(root, string(SchemeKV))}
}

func (s *FileKVStore) Hash(ctx context.Context, namespace, key string) (string, bool, error) {
	entry, found, err := s.Get(ctx, namespace, key)
	if err != nil || !found {
		return "", found, err
	}
	return entry.Hash, true, nil
}

func (s *FileKVStore) Get(_ context.Context, namespace, key string) (KVEntry, bool, error) {
	p, err := safeJoin(s.root, namespace, key)
	if err != nil {
		return KVEntry{}, false, err
	}
	value, err := readFile(p)
	if errors.Is(err, ErrObjectNotFound) {
		return KVEntry{}, false, nil
	}
	if err != nil {
		return KVEntry{}, false, err
	}
	return KVEntry{Value: value, Hash: Hash(value)}, true, nil
}

func (s *FileKVStore) Put(_ context.Context, namespace, key string, entry KVEntry) error {
	p, err := safeJoin(s.root, namespace, key)
	if err != nil {
		return err
	}
	return writeFile(p, entry.Value)
}

func safeJoin(root, location, key string) (string, error) {
	if location == "" || key == "" {
		return "", fmt.Errorf("%w: empty location or key", ErrPointerInvalid)
	}
	joined := filepath.Join(root, filepath.FromSlash(location), filepath.FromSlash(key))
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s/%s escapes store root", ErrPointerInvalid, location, key)
	}
	return joined, nil
}

func fileExists(p string) (bool, error) {
	_, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func readFile(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return data, err
}

func writeFile(p string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return atomic.WriteFile(p, bytes.NewReader(body))
}
