// Package kv defines the namespaced key/value contract that the arena caches are
// built on. Backends live in the sibling file, redis and sqlite packages.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("kv: key not found")

	// ErrInvalidKey is returned for empty namespaces or keys and for path-like keys.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Store is a namespaced byte store. Values are opaque to the store.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// ValidateKey checks a namespace/key pair.
func ValidateKey(namespace, key string) error {
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty namespace or key", ErrInvalidKey)
	}
	if key == "." || key == ".." || namespace == "." || namespace == ".." {
		return fmt.Errorf("%w: %q/%q", ErrInvalidKey, namespace, key)
	}
	if strings.ContainsAny(namespace, `/\:`) {
		return fmt.Errorf("%w: namespace %q contains a separator", ErrInvalidKey, namespace)
	}
	return nil
}

// GetJSON reads and decodes a JSON value.
func GetJSON[T any](ctx context.Context, s Store, namespace, key string) (T, error) {
	var v T
	data, err := s.Get(ctx, namespace, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("kv: decode %s/%s: %w", namespace, key, err)
	}
	return v, nil
}

// PutJSON encodes and writes a JSON value.
func PutJSON(ctx context.Context, s Store, namespace, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s/%s: %w", namespace, key, err)
	}
	return s.Put(ctx, namespace, key, data)
}
