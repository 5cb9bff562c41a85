package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestFileLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")
	logger := NewLoggerWithConfig(LogConfig{
		Level:    "debug",
		File:     true,
		FilePath: path,
		MaxSize:  1,
	})

	LogGateDecision(logger, false, []string{"VIX 35 above actionable cap (30)"}, 3.6, "extreme")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "environment_gate", entry["event"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, false, entry["passed"])
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), logger)
	got := FromContext(ctx)
	got.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")

	// Missing logger falls back to a no-op logger.
	nop := FromContext(context.Background())
	nop.Info().Msg("dropped")
	assert.NotContains(t, buf.String(), "dropped")
}

func TestMaskCredential(t *testing.T) {
	assert.Equal(t, "", MaskCredential(""))
	assert.Equal(t, "***", MaskCredential("abc"))
	assert.Equal(t, "ab****", MaskCredential("abcdef"))
	assert.Equal(t, "abcd****mnop", MaskCredential("abcdefghmnop"))
}

func TestRedact(t *testing.T) {
	got := Redact(`Get "https://api.massive.com/v2/aggs?apiKey=abcdefghmnop&limit=5": timeout`)
	assert.Contains(t, got, "apiKey=abcd****mnop&limit=5")
	assert.NotContains(t, got, "abcdefghmnop")

	assert.Equal(t, "Bearer abcd****mnop", Redact("Bearer abcdefghmnop"))
	assert.Equal(t, "no secrets here", Redact("no secrets here"))
}

func TestLogProviderFallbackRedactsError(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	LogProviderFallback(logger, "massive", "aggs", "no bars", assert.AnError)
	LogProviderFallback(logger, "massive", "aggs", "no bars",
		errors.New("dial https://x?api_key=supersecretvalue"))

	assert.NotContains(t, buf.String(), "supersecretvalue")
	assert.Contains(t, buf.String(), `"event":"provider_fallback"`)
}
