// Package telegram is a minimal Telegram Bot API client used to push reports to
// chats.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/jianghu-hub/arena-hub/pkg/circuitbreaker"
	"github.com/jianghu-hub/arena-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// MaxMessageLength is the Bot API limit for one text message, in characters.
const MaxMessageLength = 4096

// ClientConfig contains configuration for the Telegram client.
type ClientConfig struct {
	// Token is the Bot API token.
	Token string

	// BaseURL is the Bot API base URL (default: https://api.telegram.org).
	BaseURL string

	// Timeout is the per-request timeout.
	Timeout time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:   token,
		BaseURL: "https://api.telegram.org",
		Timeout: 30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM API TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Message is the subset of a sent message the service looks at.
type Message struct {
	MessageID int64 `json:"message_id"`
	Chat      *Chat `json:"chat"`
	Date      int64 `json:"date"`
}

// Chat is a Telegram chat.
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// User is a Telegram user, as returned by getMe.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// APIResponse is the Bot API envelope.
type APIResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	Description string              `json:"description,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Parameters  *ResponseParameters `json:"parameters,omitempty"`
}

// ResponseParameters contains additional error parameters.
type ResponseParameters struct {
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	RetryAfter      int   `json:"retry_after,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ErrNotConfigured is returned when the client has no token.
var ErrNotConfigured = errors.New("telegram: bot token not configured")

// APIError is a Bot API error or a transport failure (Code 0).
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == 0 || apiErr.Code == fasthttp.StatusTooManyRequests || apiErr.Code >= 500
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Telegram Bot API client.
type Client struct {
	config  ClientConfig
	http    *fasthttp.Client
	breaker *circuitbreaker.Breaker
	retrier *retry.Retrier
	logger  zerolog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithRetrier replaces the retry policy.
func WithRetrier(r *retry.Retrier) Option {
	return func(c *Client) { c.retrier = r }
}

// WithBreaker replaces the circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// NewClient creates a new Telegram client.
func NewClient(config ClientConfig, logger zerolog.Logger, opts ...Option) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	log := logger.With().Str("component", "telegram").Logger()

	c := &Client{
		config: config,
		http: &fasthttp.Client{
			Name:         "arena-hub",
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
		},
		breaker: circuitbreaker.TelegramBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
		}),
		retrier: retry.TelegramRetrier(retry.WithRetryIf(isRetryable)),
		logger: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a token is set.
func (c *Client) Configured() bool { return c.config.Token != "" }

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *circuitbreaker.Breaker { return c.breaker }

// ══════════════════════════════════════════════════════════════════════════════
// SENDING MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

// SendMessageParams contains parameters for sending a message.
type SendMessageParams struct {
	ChatID              int64  `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode,omitempty"` // "HTML", "MarkdownV2"
	DisableNotification bool   `json:"disable_notification,omitempty"`
	DisableWebPreview   bool   `json:"disable_web_page_preview,omitempty"`
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	var message Message
	if err := c.callAPI(ctx, "sendMessage", params, &message); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &message, nil
}

// SendHTML sends html to chatID, split into as many messages as the length limit
// requires.
func (c *Client) SendHTML(ctx context.Context, chatID int64, html string) error {
	for _, part := range SplitText(html, MaxMessageLength) {
		_, err := c.SendMessage(ctx, SendMessageParams{
			ChatID:            chatID,
			Text:              part,
			ParseMode:         "HTML",
			DisableWebPreview: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// GetMe returns the bot account. It doubles as a token check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.callAPI(ctx, "getMe", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SplitText cuts text into chunks of at most limit characters, preferring line
// boundaries.
func SplitText(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
			size = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if size+n > limit {
			flush()
		}
		for n > limit {
			runes := []rune(line)
			parts = append(parts, string(runes[:limit]))
			line = string(runes[limit:])
			n -= limit
		}
		current.WriteString(line)
		size += n
	}
	flush()
	return parts
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

func (c *Client) callAPI(ctx context.Context, method string, body any, result any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if err := c.breaker.Allow(); err != nil {
		return &APIError{Description: err.Error()}
	}

	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		err := c.doAPICall(ctx, method, body, result)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			c.logger.Warn().Int("retry_after", apiErr.RetryAfter).Str("method", method).Msg("rate limited")
		}
		return err
	})

	if isRetryable(err) {
		c.breaker.Record(err)
	} else {
		c.breaker.Record(nil)
	}
	return err
}

// doAPICall performs a single API call.
func (c *Client) doAPICall(ctx context.Context, method string, body any, result any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.config.BaseURL, "/"), c.config.Token, method))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		req.SetBody(payload)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.DoTimeout(req, resp, c.config.Timeout)
	}
	if err != nil {
		return &APIError{Description: err.Error()}
	}

	c.logger.Debug().Str("method", method).Int("status", resp.StatusCode()).Msg("telegram api call")

	var apiResp APIResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return &APIError{Code: resp.StatusCode(), Description: "unreadable response: " + err.Error()}
	}

	if !apiResp.OK {
		apiErr := &APIError{Code: apiResp.ErrorCode, Description: apiResp.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode()
		}
		if apiResp.Parameters != nil {
			apiErr.RetryAfter = apiResp.Parameters.RetryAfter
		}
		return apiErr
	}

	if result != nil && len(apiResp.Result) > 0 {
		if err := json.Unmarshal(apiResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}
