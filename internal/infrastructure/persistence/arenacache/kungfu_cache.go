package arenacache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jianghu-hub/arena-hub/internal/domain/arena"
	"github.com/jianghu-hub/arena-hub/internal/infrastructure/persistence/kv"
	"github.com/jianghu-hub/arena-hub/pkg/clock"
)

// ErrNotCacheable is returned by Put for attributions without a usable build.
var ErrNotCacheable = errors.New("attribution has no build and is not cached")

// kungfuRecord is the stored form of one attribution.
type kungfuRecord struct {
	Server    string               `json:"server"`
	Name      string               `json:"name"`
	Kuangfu   string               `json:"kuangfu"`
	Found     bool                 `json:"found"`
	CacheTime int64                `json:"cache_time"`
	Tier      arena.ResolutionTier `json:"tier,omitempty"`
}

// KungfuAttributionCache stores one attribution per (server, name).
type KungfuAttributionCache struct {
	store  kv.Store
	clock  clock.Clock
	ttl    time.Duration
	logger zerolog.Logger
}

// NewKungfuAttributionCache creates the cache. ttl <= 0 selects DefaultKungfuTTL.
func NewKungfuAttributionCache(store kv.Store, clk clock.Clock, ttl time.Duration, logger zerolog.Logger) *KungfuAttributionCache {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = DefaultKungfuTTL
	}
	return &KungfuAttributionCache{
		store:  store,
		clock:  clk,
		ttl:    ttl,
		logger: logger.With().Str("component", "kungfu_cache").Logger(),
	}
}

// TTL returns the freshness window.
func (c *KungfuAttributionCache) TTL() time.Duration { return c.ttl }

// Key returns the storage key for (server, name).
func Key(server, name string) string {
	return strings.TrimSpace(server) + "/" + strings.TrimSpace(name)
}

// Get returns a fresh, usable attribution or nil.
func (c *KungfuAttributionCache) Get(ctx context.Context, server, name string) *arena.KungfuAttribution {
	rec, err := kv.GetJSON[kungfuRecord](ctx, c.store, NamespaceKungfu, Key(server, name))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Warn().Err(err).
				Str("server", server).Str("role_name", name).
				Msg("kungfu cache entry unreadable, treating as miss")
		}
		return nil
	}

	attr := arena.KungfuAttribution{
		Server:     rec.Server,
		Name:       rec.Name,
		Kungfu:     rec.Kuangfu,
		Found:      rec.Found,
		ResolvedAt: time.Unix(rec.CacheTime, 0),
		Tier:       rec.Tier,
	}
	if !attr.FreshAt(c.clock.Now(), c.ttl) {
		return nil
	}
	return &attr
}

// Put stores a usable attribution. Anything else is rejected with ErrNotCacheable
// so a failed lookup can never shadow a later successful one.
func (c *KungfuAttributionCache) Put(ctx context.Context, attr arena.KungfuAttribution) error {
	if !attr.Usable() {
		return fmt.Errorf("%w: %s", ErrNotCacheable, Key(attr.Server, attr.Name))
	}

	resolvedAt := attr.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = c.clock.Now()
	}
	rec := kungfuRecord{
		Server:    attr.Server,
		Name:      attr.Name,
		Kuangfu:   strings.TrimSpace(attr.Kungfu),
		Found:     true,
		CacheTime: resolvedAt.Unix(),
		Tier:      attr.Tier,
	}
	return kv.PutJSON(ctx, c.store, NamespaceKungfu, Key(attr.Server, attr.Name), rec)
}

// Invalidate removes the entry for (server, name).
func (c *KungfuAttributionCache) Invalidate(ctx context.Context, server, name string) error {
	return c.store.Delete(ctx, NamespaceKungfu, Key(server, name))
}
