// Package redis implements kv.Store on Redis, for deployments that run several
// processes against one shared cache or cannot write to local disk.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/kv"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	// PoolSize is the maximum number of socket connections.
	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string

	// KeyTTL bounds how long a key lives in Redis. Freshness is decided by the
	// caches; this only keeps abandoned keys from piling up. 0 keeps keys forever.
	KeyTTL time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "arena:",
		KeyTTL:       8 * 24 * time.Hour,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ErrConnection is returned when Redis cannot be reached at startup.
var ErrConnection = errors.New("redis: connection failed")

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store is a kv.Store backed by Redis strings.
type Store struct {
	client *redis.Client
	config Config
}

var _ kv.Store = (*Store)(nil)

// NewStore connects to Redis and verifies the connection.
func NewStore(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return NewStoreFromClient(client, cfg), nil
}

// NewStoreFromClient wraps an existing client.
func NewStoreFromClient(client *redis.Client, cfg Config) *Store {
	return &Store{client: client, config: cfg}
}

// Key returns the Redis key for namespace/key.
func (s *Store) Key(namespace, key string) string {
	return s.config.KeyPrefix + namespace + ":" + key
}

// Get reads a value.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := kv.ValidateKey(namespace, key); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.Key(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s/%s: %w", namespace, key, err)
	}
	return data, nil
}

// Put writes a value with the configured key TTL.
func (s *Store) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := kv.ValidateKey(namespace, key); err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.Key(namespace, key), value, s.config.KeyTTL).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Delete removes a value.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if err := kv.ValidateKey(namespace, key); err != nil {
		return err
	}
	return s.client.Del(ctx, s.Key(namespace, key)).Err()
}

// Ping checks that Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
