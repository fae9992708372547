package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}

	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatConsole, ParseFormat("console"))
	assert.Equal(t, FormatConsole, ParseFormat("TEXT"))
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatJSON, ParseFormat(""))
}

func TestNew_WritesJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Output = &buf
	opts.Service = "arena-hub"

	log := Component(New(opts), "fetcher")
	log.Info().Str(KeyServer, "Meiren").Msg("hello")
	log.Debug().Msg("filtered out")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "fetcher", entry[KeyComponent])
	assert.Equal(t, "Meiren", entry[KeyServer])
	assert.Equal(t, "arena-hub", entry["service"])
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	stored := New(Options{Output: &buf, Level: zerolog.InfoLevel})
	fallback := Nop()

	ctx := WithContext(context.Background(), stored)
	fromCtx := FromContext(ctx, fallback)
	fromCtx.Info().Msg("from ctx")
	assert.Contains(t, buf.String(), "from ctx")

	buf.Reset()
	fromFallback := FromContext(context.Background(), fallback)
	fromFallback.Info().Msg("dropped")
	assert.Empty(t, buf.String())
}
