// Package sqlite implements kv.Store on a local SQLite database, migrated with goose.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/kv"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Config holds database settings.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns settings for a single-process service.
func DefaultConfig() Config {
	return Config{
		Path:            "data/arena.db",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// Store is a kv.Store backed by the kv_entries table.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

var _ kv.Store = (*Store)(nil)

// Open opens (creating if needed) the database, tunes it and runs migrations.
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	logger.Info().Str("path", cfg.Path).Msg("opening sqlite store")

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := applyPragmas(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger, now: time.Now}, nil
}

func applyPragmas(db *sql.DB, logger zerolog.Logger) error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"busy_timeout", "5000"},
		{"temp_store", "MEMORY"},
	}

	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("set pragma %s: %w", p.name, err)
		}
		logger.Debug().Str("pragma", p.name).Str("value", p.value).Msg("sqlite pragma set")
	}
	return nil
}

func migrate(db *sql.DB, logger zerolog.Logger) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	logger.Debug().Msg("sqlite migrations applied")
	return nil
}

// Get reads a value.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := kv.ValidateKey(namespace, key); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

// Put upserts a value.
func (s *Store) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := kv.ValidateKey(namespace, key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		namespace, key, value, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite put %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Delete removes a value.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if err := kv.ValidateKey(namespace, key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE namespace = ? AND key = ?`, namespace, key,
	); err != nil {
		return fmt.Errorf("sqlite delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Prune removes entries not updated since before. It returns the number removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE updated_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite prune: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
