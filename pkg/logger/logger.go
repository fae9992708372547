// Package logger builds the zerolog loggers used across arena-hub.
// It owns level parsing, output format selection and the well-known field names
// so that every component logs the same keys.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the output encoding.
type Format string

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
	// FormatConsole writes human-readable colored lines.
	FormatConsole Format = "console"
)

// Well-known field keys.
const (
	KeyComponent = "component"
	KeyRequestID = "request_id"
	KeyServer    = "server"
	KeyRole      = "role_name"
	KeyKungfu    = "kungfu"
	KeyTier      = "tier"
	KeyWeek      = "week"
	KeyReportID  = "report_id"
	KeyJob       = "job"
)

// Options configures a logger.
type Options struct {
	// Output is the destination, os.Stdout by default.
	Output io.Writer

	// Level is the minimum level that gets written.
	Level zerolog.Level

	// Format is json or console.
	Format Format

	// AddCaller adds file:line to every entry.
	AddCaller bool

	// Service is attached as the "service" field when not empty.
	Service string
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		Output:    os.Stdout,
		Level:     zerolog.InfoLevel,
		Format:    FormatJSON,
		AddCaller: false,
	}
}

// New creates a logger from opts.
func New(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Format == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if opts.AddCaller {
		ctx = ctx.Caller()
	}
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}

	return ctx.Logger().Level(opts.Level)
}

// ParseLevel parses a level name. Unknown values fall back to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warning":
		return zerolog.WarnLevel
	case "":
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// ParseFormat parses an output format name. Anything but "console"/"text" is JSON.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "console", "text", "pretty":
		return FormatConsole
	default:
		return FormatJSON
	}
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str(KeyComponent, name).Logger()
}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or fallback when there is none.
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}

// Nop returns a disabled logger for tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
