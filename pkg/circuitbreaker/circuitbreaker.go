// Package circuitbreaker stops hammering an upstream that is already failing.
//
// The breaker counts consecutive failures. After FailureThreshold of them it opens and
// rejects calls for Cooldown; then it lets a limited number of probe calls through
// (half-open) and closes again after SuccessThreshold consecutive successes.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

var (
	// ErrOpen is returned while the breaker rejects calls.
	ErrOpen = errors.New("circuit breaker is open")

	// ErrProbeLimit is returned in half-open state when all probe slots are taken.
	ErrProbeLimit = errors.New("circuit breaker probe limit reached")
)

// Config holds breaker settings.
type Config struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
	MaxProbes        int

	// IsFailure decides whether an error counts against the breaker.
	// Context cancellation never counts.
	IsFailure func(error) bool

	// OnStateChange is called with the lock held; keep it cheap.
	OnStateChange func(name string, from, to State)

	// Now is the time source.
	Now func() time.Time
}

// Option mutates Config.
type Option func(*Config)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many probe successes close it again.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open.
func WithCooldown(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Cooldown = d
		}
	}
}

// WithMaxProbes limits concurrent half-open calls.
func WithMaxProbes(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxProbes = n
		}
	}
}

// WithIsFailure overrides failure classification.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

// WithOnStateChange registers a transition hook.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}

// Stats is a point-in-time view of the breaker.
type Stats struct {
	State                State
	Calls                uint64
	Failures             uint64
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	OpenedAt             time.Time
}

// Breaker implements the closed / open / half-open state machine.
type Breaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	stats    Stats
	openedAt time.Time
	probes   int
}

// New creates a breaker.
func New(name string, opts ...Option) *Breaker {
	cfg := Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		MaxProbes:        1,
		Now:              time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Breaker{cfg: cfg}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.cfg.Name }

// Execute runs fn when the breaker admits the call and records the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.Record(err)
	return err
}

// Allow reserves a call slot. Every successful Allow must be followed by Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.probes = 1
		return nil
	case StateHalfOpen:
		if b.probes >= b.cfg.MaxProbes {
			return ErrProbeLimit
		}
		b.probes++
		return nil
	default:
		return nil
	}
}

// Record reports the outcome of a call admitted by Allow.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Calls++
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}

	if !b.countsAsFailure(err) {
		b.stats.ConsecutiveFailures = 0
		b.stats.ConsecutiveSuccesses++
		if b.state == StateHalfOpen && b.stats.ConsecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
		return
	}

	b.stats.Failures++
	b.stats.ConsecutiveSuccesses = 0
	b.stats.ConsecutiveFailures++

	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateClosed:
		if b.stats.ConsecutiveFailures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	}
}

func (b *Breaker) countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if b.cfg.IsFailure != nil {
		return b.cfg.IsFailure(err)
	}
	return true
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.stats.ConsecutiveFailures = 0
	b.stats.ConsecutiveSuccesses = 0
	if to == StateOpen {
		b.openedAt = b.cfg.Now()
	}
	if to != StateHalfOpen {
		b.probes = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a copy of the counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.State = b.state
	s.OpenedAt = b.openedAt
	return s
}

// Reset closes the breaker and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.stats = Stats{}
	b.probes = 0
	b.openedAt = time.Time{}
}

// UpstreamBreaker is tuned for the arena data provider: it tolerates a handful of
// failures and cools down long enough for upstream throttling to lift.
func UpstreamBreaker(onStateChange func(name string, from, to State)) *Breaker {
	return New("arena-upstream",
		WithFailureThreshold(5),
		WithSuccessThreshold(1),
		WithCooldown(time.Minute),
		WithOnStateChange(onStateChange),
	)
}

// TelegramBreaker guards report delivery.
func TelegramBreaker(onStateChange func(name string, from, to State)) *Breaker {
	return New("telegram",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithCooldown(30*time.Second),
		WithOnStateChange(onStateChange),
	)
}
