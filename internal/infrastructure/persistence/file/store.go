// Package file implements kv.Store on the local filesystem: one directory per
// namespace and one JSON file per key. It is the default backend and needs no
// external service.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/kv"
)

const fileExt = ".json"

// Store keeps values under a root directory.
type Store struct {
	root string
}

var _ kv.Store = (*Store)(nil)

// New creates the root directory if needed and returns a Store.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("file store: empty root directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the root directory.
func (s *Store) Root() string { return s.root }

// Path returns the file that holds namespace/key. Keys are path-escaped so that any
// player name maps to a single file name.
func (s *Store) Path(namespace, key string) string {
	return filepath.Join(s.root, namespace, url.PathEscape(key)+fileExt)
}

// Get reads the value.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := kv.ValidateKey(namespace, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path(namespace, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("file store: read %s/%s: %w", namespace, key, err)
	}
	return data, nil
}

// Put writes the value through a temp file and rename so readers never see a partial file.
func (s *Store) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := kv.ValidateKey(namespace, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(s.root, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file store: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("file store: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: write %s/%s: %w", namespace, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store: close %s/%s: %w", namespace, key, err)
	}
	if err := os.Rename(tmpName, s.Path(namespace, key)); err != nil {
		return fmt.Errorf("file store: rename %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Delete removes the value. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if err := kv.ValidateKey(namespace, key); err != nil {
		return err
	}
	err := os.Remove(s.Path(namespace, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file store: delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Ping checks that the root directory is still there.
func (s *Store) Ping(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("file store: %s is not a directory", s.root)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
