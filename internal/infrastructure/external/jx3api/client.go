package jx3api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"

	"github.com/jianghu-hub/arena-hub/internal/infrastructure/pacing"
	"github.com/jianghu-hub/arena-hub/pkg/circuitbreaker"
	"github.com/jianghu-hub/arena-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrTransport covers connection failures and timeouts.
	ErrTransport = errors.New("jx3api: transport error")

	// ErrHTTPStatus is returned for non-2xx responses.
	ErrHTTPStatus = errors.New("jx3api: unexpected http status")

	// ErrAPICode is returned when the envelope carries a non-zero code.
	ErrAPICode = errors.New("jx3api: provider returned an error code")

	// ErrMalformed is returned when the body does not have the expected shape.
	ErrMalformed = errors.New("jx3api: malformed response")
)

// APIError describes a failed call.
type APIError struct {
	Endpoint   string
	StatusCode int
	Code       int
	Message    string
	Kind       error
}

func (e *APIError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s: code %d: %s", e.Endpoint, e.Code, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d: %s", e.Endpoint, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
	}
}

// Is matches the error kind.
func (e *APIError) Is(target error) bool { return e.Kind == target }

// retryable reports whether another attempt may succeed.
func (e *APIError) retryable() bool {
	switch e.Kind {
	case ErrTransport:
		return true
	case ErrHTTPStatus:
		return e.StatusCode == fasthttp.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains the client settings.
type Config struct {
	BaseURL string

	TimeTagPath   string
	RankingPath   string
	IndicatorPath string
	HistoryPath   string

	// RankingType is the leaderboard type sent with the ranking request.
	RankingType string

	// HistorySize is how many recent matches to request.
	HistorySize int

	Timeout         time.Duration
	UserAgent       string
	MaxConnsPerHost int

	RetryAttempts     int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultConfig returns the provider defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://m.pvp.xoyo.com",
		TimeTagPath:     "/3c/mine/arena/time-tag",
		RankingPath:     "/3c/mine/arena/top200",
		IndicatorPath:   "/role/indicator",
		HistoryPath:     "/mine/match/history",
		RankingType:     "week",
		HistorySize:     20,
		Timeout:         15 * time.Second,
		UserAgent:       "arena-hub/1.0",
		MaxConnsPerHost: 8,

		RetryAttempts:     3,
		RetryInitialDelay: time.Second,
		RetryMaxDelay:     8 * time.Second,

		BreakerThreshold: 5,
		BreakerCooldown:  time.Minute,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Pacer delays a call to the provider.
type Pacer interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// Client talks to the arena data provider.
type Client struct {
	cfg     Config
	http    *fasthttp.Client
	breaker *circuitbreaker.Breaker
	retrier *retry.Retrier
	logger  zerolog.Logger

	// Retries go through the same pacing as first attempts. The caller paces
	// the first attempt.
	rankingPacer Pacer
	rolePacer    Pacer
}

// Option configures the client.
type Option func(*Client)

// WithBreaker replaces the circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithRetrier replaces the retry policy.
func WithRetrier(r *retry.Retrier) Option {
	return func(c *Client) { c.retrier = r }
}

// WithRetryPacers sets the pacers waited on before every retry: ranking for the
// time-tag and leaderboard endpoints, roles for the per-role lookups.
func WithRetryPacers(ranking, roles Pacer) Option {
	return func(c *Client) {
		c.rankingPacer = ranking
		c.rolePacer = roles
	}
}

// New creates a client.
func New(cfg Config, logger zerolog.Logger, opts ...Option) *Client {
	log := logger.With().Str("component", "jx3api").Logger()
	c := &Client{
		cfg: cfg,
		http: &fasthttp.Client{
			Name:                cfg.UserAgent,
			MaxConnsPerHost:     cfg.MaxConnsPerHost,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		logger: log,
	}
	onChange := func(name string, from, to circuitbreaker.State) {
		log.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
	}
	if cfg.BreakerThreshold > 0 {
		c.breaker = circuitbreaker.New("arena-upstream",
			circuitbreaker.WithFailureThreshold(cfg.BreakerThreshold),
			circuitbreaker.WithSuccessThreshold(1),
			circuitbreaker.WithCooldown(cfg.BreakerCooldown),
			circuitbreaker.WithOnStateChange(onChange),
		)
	} else {
		c.breaker = circuitbreaker.UpstreamBreaker(onChange)
	}
	c.rankingPacer = pacing.New("jx3api-ranking-retry", pacing.Fixed(pacing.RankingDelay), nil, pacing.WithLogger(log))
	c.rolePacer = pacing.New("jx3api-role-retry", pacing.Jitter(pacing.ResolveMinDelay, pacing.ResolveMaxDelay), nil, pacing.WithLogger(log))
	c.retrier = retry.UpstreamRetrier(
		retry.WithMaxAttempts(cfg.RetryAttempts),
		retry.WithInitialDelay(cfg.RetryInitialDelay),
		retry.WithMaxDelay(cfg.RetryMaxDelay),
		retry.WithRetryIf(isRetryable),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying upstream call")
		}),
	)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *circuitbreaker.Breaker { return c.breaker }

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.retryable()
	}
	return false
}

func (c *Client) retryPacer(endpoint string) Pacer {
	switch endpoint {
	case "time_tag", "ranking":
		return c.rankingPacer
	default:
		return c.rolePacer
	}
}

// countsAgainstBreaker ignores provider-level rejections, which say nothing about
// the provider's health.
func countsAgainstBreaker(err error) bool {
	return isRetryable(err)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

// TimeTag fetches the currently scored week.
func (c *Client) TimeTag(ctx context.Context) (*TimeTagResponse, error) {
	resp, err := doRequest[TimeTagResponse](ctx, c, "time_tag", c.cfg.TimeTagPath, struct{}{})
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, &APIError{Endpoint: "time_tag", Kind: ErrMalformed, Message: "missing data"}
	}
	return resp, nil
}

// Ranking fetches the leaderboard for the given week tag.
func (c *Client) Ranking(ctx context.Context, tag int) (*RankingResponse, error) {
	body := rankingRequest{TypeName: c.cfg.RankingType, Tag: tag}
	resp, err := doRequest[RankingResponse](ctx, c, "ranking", c.cfg.RankingPath, body)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, &APIError{Endpoint: "ranking", Kind: ErrMalformed, Message: "data is not a list"}
	}
	return resp, nil
}

// RoleIndicator fetches the arena indicator of one role.
func (c *Client) RoleIndicator(ctx context.Context, req IndicatorRequest) (*IndicatorResponse, error) {
	resp, err := doRequest[IndicatorResponse](ctx, c, "role_indicator", c.cfg.IndicatorPath, req)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, &APIError{Endpoint: "role_indicator", Kind: ErrMalformed, Message: "missing data"}
	}
	return resp, nil
}

// MatchHistory fetches the recent matches of one role.
func (c *Client) MatchHistory(ctx context.Context, req HistoryRequest) (*HistoryResponse, error) {
	if req.Size <= 0 {
		req.Size = c.cfg.HistorySize
	}
	resp, err := doRequest[HistoryResponse](ctx, c, "match_history", c.cfg.HistoryPath, req)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, &APIError{Endpoint: "match_history", Kind: ErrMalformed, Message: "missing data"}
	}
	return resp, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// doRequest posts body as JSON and decodes the envelope into T, going through the
// circuit breaker and the retry policy. Every attempt after the first waits on
// the endpoint's pacer.
func doRequest[T any](ctx context.Context, c *Client, endpoint, path string, body any) (*T, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", endpoint, err)
	}

	if err := c.breaker.Allow(); err != nil {
		return nil, &APIError{Endpoint: endpoint, Kind: ErrTransport, Message: err.Error()}
	}

	var (
		result  *T
		attempt int
	)
	pacer := c.retryPacer(endpoint)
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 && pacer != nil {
			if _, err := pacer.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
		}
		raw, err := c.post(ctx, endpoint, path, payload)
		if err != nil {
			return err
		}
		decoded, err := decode[T](endpoint, raw)
		if err != nil {
			return err
		}
		result = decoded
		return nil
	})

	if countsAgainstBreaker(err) {
		c.breaker.Record(err)
	} else {
		c.breaker.Record(nil)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, endpoint, path string, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.TrimRight(c.cfg.BaseURL, "/") + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBody(payload)

	start := time.Now()
	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.DoTimeout(req, resp, c.cfg.Timeout)
	}
	if err != nil {
		return nil, &APIError{Endpoint: endpoint, Kind: ErrTransport, Message: err.Error()}
	}

	status := resp.StatusCode()
	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", status).
		Dur("duration", time.Since(start)).
		Msg("upstream call")

	if status < 200 || status >= 300 {
		return nil, &APIError{
			Endpoint:   endpoint,
			StatusCode: status,
			Kind:       ErrHTTPStatus,
			Message:    truncate(string(resp.Body()), 200),
		}
	}

	// The response buffer goes back to the pool on return.
	return append([]byte(nil), resp.Body()...), nil
}

// decode checks the envelope with gjson before the typed decode so that provider
// errors surface with their own message instead of as a shape mismatch.
func decode[T any](endpoint string, raw []byte) (*T, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &APIError{Endpoint: endpoint, Kind: ErrMalformed, Message: "body is not valid json"}
	}

	if code := gjson.GetBytes(raw, "code"); code.Exists() && code.Int() != 0 {
		msg := gjson.GetBytes(raw, "msg").String()
		if msg == "" {
			msg = gjson.GetBytes(raw, "message").String()
		}
		return nil, &APIError{Endpoint: endpoint, Code: int(code.Int()), Kind: ErrAPICode, Message: msg}
	}

	if !gjson.GetBytes(raw, "data").Exists() {
		return nil, &APIError{Endpoint: endpoint, Kind: ErrMalformed, Message: "missing data"}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &APIError{Endpoint: endpoint, Kind: ErrMalformed, Message: err.Error()}
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
