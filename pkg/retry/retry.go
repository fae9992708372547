// Package retry runs operations with exponential backoff on top of
// github.com/sethvargo/go-retry, adding the error classification used by the
// upstream clients: permanent errors stop immediately, everything else retries
// until the attempt budget runs out.
package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do gives up on it. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Config holds the backoff policy.
type Config struct {
	// MaxAttempts counts the first call. 1 disables retries.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration

	// JitterPercent randomizes each delay by +/- this percentage.
	JitterPercent uint64

	// RetryIf overrides the default classification.
	RetryIf func(error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns three attempts starting at 500ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		JitterPercent: 10,
	}
}

// Option mutates Config.
type Option func(*Config)

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the first backoff delay.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

// WithMaxDelay caps every delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithJitterPercent sets the jitter percentage. 0 disables jitter.
func WithJitterPercent(p uint64) Option {
	return func(c *Config) { c.JitterPercent = p }
}

// WithRetryIf sets a custom retry predicate.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

// WithOnRetry sets the retry hook.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// Retrier executes operations according to a Config.
type Retrier struct {
	cfg Config
}

// New builds a Retrier from DefaultConfig plus opts.
func New(opts ...Option) *Retrier {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Retrier{cfg: cfg}
}

// Config returns the effective configuration.
func (r *Retrier) Config() Config { return r.cfg }

func (r *Retrier) backoff(attempt *int, lastErr *error) goretry.Backoff {
	b := goretry.NewExponential(r.cfg.InitialDelay)
	if r.cfg.JitterPercent > 0 {
		b = goretry.WithJitterPercent(r.cfg.JitterPercent, b)
	}
	if r.cfg.MaxDelay > 0 {
		b = goretry.WithCappedDuration(r.cfg.MaxDelay, b)
	}
	retries := r.cfg.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	b = goretry.WithMaxRetries(uint64(retries), b)

	if r.cfg.OnRetry == nil {
		return b
	}
	return goretry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := b.Next()
		if !stop {
			r.cfg.OnRetry(*attempt, *lastErr, delay)
		}
		return delay, stop
	})
}

func (r *Retrier) shouldRetry(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if r.cfg.RetryIf != nil {
		return r.cfg.RetryIf(err)
	}
	return true
}

// Do runs op until it succeeds, returns a non-retryable error, or the budget is spent.
// The returned error is the last error produced by op, or ctx.Err() when the
// context ends during a wait.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var (
		attempt int
		lastErr error
	)

	err := goretry.Do(ctx, r.backoff(&attempt, &lastErr), func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if r.shouldRetry(err) {
			return goretry.RetryableError(err)
		}
		return err
	})

	var perm *PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// Do is a one-shot helper around New(opts...).Do.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// DoWithData is Do for operations that return a value.
func DoWithData[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// UpstreamRetrier is tuned for the arena data provider. Callers pace each
// retry on top of the backoff; opts are applied after the defaults.
func UpstreamRetrier(opts ...Option) *Retrier {
	return New(append([]Option{
		WithMaxAttempts(3),
		WithInitialDelay(time.Second),
		WithMaxDelay(8 * time.Second),
		WithJitterPercent(20),
	}, opts...)...)
}

// TelegramRetrier is used for report delivery.
func TelegramRetrier(opts ...Option) *Retrier {
	return New(append([]Option{
		WithMaxAttempts(3),
		WithInitialDelay(500 * time.Millisecond),
		WithMaxDelay(5 * time.Second),
	}, opts...)...)
}
