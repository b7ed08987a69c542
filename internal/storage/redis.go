package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const (
	redisFieldValue       = "value"
	redisFieldHash        = "hash"
	redisFieldContentType = "content_type"
)

// RedisKVStore keeps each entry in a hash at "<namespace>:<key>" with value,
// hash and content_type fields.
type RedisKVStore struct {
	client *redis.Client
}

// NewRedisClient opens a client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (s *RedisKVStore) Hash(ctx context.Context, namespace, key string) (string, bool, error) {
	hash, err := s.client.HGet(ctx, redisKey(namespace, key), redisFieldHash).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

func (s *RedisKVStore) Get(ctx context.Context, namespace, key string) (KVEntry, bool, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(namespace, key)).Result()
	if err != nil {
		return KVEntry{}, false, err
	}
	value, ok := fields[redisFieldValue]
	if !ok {
		return KVEntry{}, false, nil
	}
	return KVEntry{
		Value:       []byte(value),
		Hash:        fields[redisFieldHash],
		ContentType: fields[redisFieldContentType],
	}, true, nil
}

func (s *RedisKVStore) Put(ctx context.Context, namespace, key string, entry KVEntry) error {
	return s.client.HSet(ctx, redisKey(namespace, key),
		redisFieldValue, entry.Value,
		redisFieldHash, entry.Hash,
		redisFieldContentType, entry.ContentType,
	).Err()
}

func redisKey(namespace, key string) string {
	return namespace + ":" + key
}
