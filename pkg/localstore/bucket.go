package localstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smith3v/word-sync/pkg/config"
)

var ErrKeyNotFound = errors.New("key not found")

// Bucket is the minimal key/value surface the fallback backend needs.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Swap stores value and returns what was there before, atomically.
	// A missing key yields a nil slice and no error.
	Swap(ctx context.Context, key string, value []byte) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// MemoryBucket keeps values in process memory. It is what the fallback
// backend uses when no Redis is configured, and what tests use.
type MemoryBucket struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{values: make(map[string][]byte)}
}

func (b *MemoryBucket) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

func (b *MemoryBucket) Set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = append([]byte(nil), value...)
	return nil
}

func (b *MemoryBucket) Swap(_ context.Context, key string, value []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := b.values[key]
	b.values[key] = append([]byte(nil), value...)
	return old, nil
}

func (b *MemoryBucket) Ping(context.Context) error {
	return nil
}

func (b *MemoryBucket) Close() error {
	return nil
}

// RedisBucket stores each collection under prefix:key.
type RedisBucket struct {
	client *redis.Client
	prefix string
}

func NewRedisBucket(cfg config.RedisConfig) (*RedisBucket, error) {
	port := cfg.Port
	if port == 0 {
		port = 6379
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + strconv.Itoa(port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisBucketFromClient(client, cfg.KeyPrefix), nil
}

func NewRedisBucketFromClient(client *redis.Client, prefix string) *RedisBucket {
	return &RedisBucket{client: client, prefix: prefix}
}

func (b *RedisBucket) key(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + ":" + key
}

func (b *RedisBucket) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (b *RedisBucket) Set(ctx context.Context, key string, value []byte) error {
	return b.client.Set(ctx, b.key(key), value, 0).Err()
}

func (b *RedisBucket) Swap(ctx context.Context, key string, value []byte) ([]byte, error) {
	old, err := b.client.SetArgs(ctx, b.key(key), value, redis.SetArgs{Get: true}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(old), nil
}

func (b *RedisBucket) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBucket) Close() error {
	return b.client.Close()
}
