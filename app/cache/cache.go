// Package cache provides the key-value stores with expiry used for
// short-lived derived results such as password validation outcomes.
package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/FACorreiaa/gearguard/config"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Store is a byte-valued cache with per-entry TTL. A missing or expired key
// reports found == false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	c *gocache.Cache
}

func NewMemoryStore(defaultTTL, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{c: gocache.New(defaultTTL, cleanupInterval)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := m.c.Get(key)
	if !found {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("cache entry %q has unexpected type %T", key, v)
	}
	return b, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.c.Set(key, value, ttl)
	return nil
}

// ItemCount reports live entries, expired ones included until the next cleanup.
func (m *MemoryStore) ItemCount() int {
	return m.c.ItemCount()
}

// RedisStore shares entries between processes.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return b, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// NewRedisClient builds a client from configuration and pings it.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rc := cfg.Repositories.Redis
	options := &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", rc.Host, rc.Port),
		Password: rc.Password,
		DB:       rc.DB,
	}

	// Enable TLS for production environments when password is set
	if rc.Password != "" && cfg.Mode != "development" {
		options.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewStore picks the backend named in the password configuration. The
// returned closer releases any connection the store holds.
func NewStore(ctx context.Context, cfg *config.Config) (Store, func() error, error) {
	switch cfg.Password.CacheBackend {
	case "", BackendMemory:
		ttl := cfg.Password.CacheTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		return NewMemoryStore(ttl, 2*ttl), func() error { return nil }, nil
	case BackendRedis:
		client, err := NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisStore(client), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Password.CacheBackend)
	}
}
