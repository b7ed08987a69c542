package storage

import (
	"context"
	"sync"
)

// MemoryBlobStore is an in-process BlobStore.
type MemoryBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: map[string][]byte{}}
}

func (s *MemoryBlobStore) Stat(_ context.Context, bucket, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[bucket+"/"+key]
	return ok, nil
}

func (s *MemoryBlobStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), body...), nil
}

func (s *MemoryBlobStore) Put(_ context.Context, bucket, key, _ string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = append([]byte(nil), body...)
	s.puts++
	return nil
}

// Puts returns the number of writes performed.
func (s *MemoryBlobStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// MemoryKVStore is an in-process KVStore.
type MemoryKVStore struct {
	mu      sync.Mutex
	entries map[string]KVEntry
	puts    int
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{entries: map[string]KVEntry{}}
}

func (s *MemoryKVStore) Hash(ctx context.Context, namespace, key string) (string, bool, error) {
	entry, ok, err := s.Get(ctx, namespace, key)
	return entry.Hash, ok, err
}

func (s *MemoryKVStore) Get(_ context.Context, namespace, key string) (KVEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[namespace+"/"+key]
	return entry, ok, nil
}

func (s *MemoryKVStore) Put(_ context.Context, namespace, key string, entry KVEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Value = append([]byte(nil), entry.Value...)
	s.entries[namespace+"/"+key] = entry
	s.puts++
	return nil
}

// Puts returns the number of writes performed.
func (s *MemoryKVStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}
