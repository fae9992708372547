// Package pacing spaces out calls to the arena data provider.
//
// The provider blocks clients that call it in quick succession, so every network
// call is preceded by a delay: fixed before the leaderboard download, random within
// [Min, Max] before each per-player lookup. A Pacer is safe for concurrent use; each
// caller pays its own delay, and MinSpacing additionally keeps any two calls through
// the same Pacer at least that far apart.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jianghu-hub/arena-hub/pkg/clock"
)

// Config defines the delay policy.
type Config struct {
	// Min and Max bound the random delay. Min == Max gives a fixed delay.
	Min time.Duration
	Max time.Duration

	// MinSpacing is the minimum distance between two calls admitted by the same
	// Pacer, across all goroutines. 0 disables the shared gate.
	MinSpacing time.Duration
}

// Fixed returns a config with a constant delay.
func Fixed(d time.Duration) Config {
	return Config{Min: d, Max: d}
}

// Jitter returns a config with a uniformly random delay in [min, max].
func Jitter(lo, hi time.Duration) Config {
	if hi < lo {
		lo, hi = hi, lo
	}
	return Config{Min: lo, Max: hi}
}

// RankingDelay is the pause before the leaderboard download.
const RankingDelay = 5450 * time.Millisecond

// Resolve delay bounds before each per-player lookup.
const (
	ResolveMinDelay = 3 * time.Second
	ResolveMaxDelay = 5 * time.Second
)

// Stats counts what a Pacer has done.
type Stats struct {
	Waits     int64
	TotalWait time.Duration
	LastWait  time.Duration
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithRand sets the random source.
func WithRand(r *rand.Rand) Option {
	return func(p *Pacer) {
		if r != nil {
			p.rnd = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pacer) { p.logger = l }
}

// Pacer enforces delays before upstream calls.
type Pacer struct {
	name   string
	cfg    Config
	clock  clock.Clock
	logger zerolog.Logger

	mu       sync.Mutex
	rnd      *rand.Rand
	nextSlot time.Time
	stats    Stats
}

// New creates a Pacer.
func New(name string, cfg Config, clk clock.Clock, opts ...Option) *Pacer {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Max < cfg.Min {
		cfg.Max = cfg.Min
	}
	p := &Pacer{
		name:   name,
		cfg:    cfg,
		clock:  clk,
		logger: zerolog.Nop(),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the pacer name.
func (p *Pacer) Name() string { return p.name }

// Config returns the delay policy.
func (p *Pacer) Config() Config { return p.cfg }

// nextDelay must be called with p.mu held.
func (p *Pacer) nextDelay() time.Duration {
	if p.cfg.Max <= p.cfg.Min {
		return p.cfg.Min
	}
	span := int64(p.cfg.Max - p.cfg.Min)
	return p.cfg.Min + time.Duration(p.rnd.Int63n(span+1))
}

// reserve picks the delay for one call and claims its slot in the shared gate.
func (p *Pacer) reserve() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	delay := p.nextDelay()

	if p.cfg.MinSpacing > 0 {
		at := now.Add(delay)
		if at.Before(p.nextSlot) {
			at = p.nextSlot
		}
		p.nextSlot = at.Add(p.cfg.MinSpacing)
		delay = at.Sub(now)
	}

	p.stats.Waits++
	p.stats.TotalWait += delay
	p.stats.LastWait = delay
	return delay
}

// Wait blocks for the next delay. It returns the delay that was applied, or the
// context error if ctx ended first.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	delay := p.reserve()
	p.logger.Debug().
		Str("pacer", p.name).
		Dur("delay", delay).
		Msg("pacing upstream call")

	if err := p.clock.Sleep(ctx, delay); err != nil {
		return delay, err
	}
	return delay, nil
}

// Stats returns a copy of the counters.
func (p *Pacer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
