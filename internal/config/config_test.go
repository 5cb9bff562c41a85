package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spx-engine/internal/errors"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 30.0, cfg.Gate.MaxActionableVIX)
	assert.Equal(t, 945, cfg.Gate.LastActionableMinute)
	assert.Equal(t, 0.9, cfg.Stops.ATRStopMultiplier)
	assert.True(t, cfg.Stops.ATRStopFloorEnabled)
	assert.Equal(t, "SPX", cfg.Contracts.Symbol)
	assert.Equal(t, 10, cfg.Contracts.CacheTTLSeconds)
	assert.Equal(t, 0.02, cfg.Contracts.MaxRiskPct)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 1500*time.Millisecond, cfg.Market.LiveTimeout)
	assert.Equal(t, 5*time.Minute, cfg.News.CacheTTL)
	assert.Equal(t, 8*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, uint32(3), cfg.Provider.Breaker.ConsecutiveFailures)
	assert.Equal(t, 2, cfg.Provider.Retry.MaxAttempts)
}

func TestTemplateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateTemplateConfig(dir, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "engine.toml"), path)

	_, err = CreateTemplateConfig(dir, false)
	assert.Error(t, err)
	_, err = CreateTemplateConfig(dir, true)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 175.0, cfg.Gate.MaxExpectedMoveConsumptionPct)
	assert.Equal(t, 100.0, cfg.Contracts.StrikeWidth)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
	assert.NotContains(t, cfg.Store.Path, "~")
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	body := `
[gate]
max_actionable_vix = 25.0
disable_macro_calendar = true

[contracts]
max_risk_pct = 0.01
iv_timing_enabled = false

[cache]
backend = "redis"

[cache.redis]
addr = "redis:6379"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.toml"), []byte(body), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 25.0, cfg.Gate.MaxActionableVIX)
	assert.True(t, cfg.Gate.DisableMacroCalendar)
	assert.Equal(t, 0.01, cfg.Contracts.MaxRiskPct)
	assert.False(t, cfg.Contracts.IVTimingEnabled)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	// untouched keys keep their defaults
	assert.Equal(t, 60, cfg.Gate.MacroBlackoutMinutes)
}

func TestFeatureFlagsFromEnvironment(t *testing.T) {
	t.Setenv("SPX_EVENT_RISK_GATE_ENABLED", "yes")
	t.Setenv("SPX_NEWS_SENTIMENT_ENABLED", " ON ")
	t.Setenv("SPX_ENVIRONMENT_LIVE_SESSION_ENABLED", "maybe")
	t.Setenv("SPX_API_KEY", "k-123")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.True(t, cfg.Flags.EventRiskGateEnabled)
	assert.True(t, cfg.Flags.NewsSentimentEnabled)
	assert.False(t, cfg.Flags.LiveSessionEnabled)

	assert.True(t, cfg.Gate.EventRiskEnabled)
	assert.True(t, cfg.Gate.NewsEnabled)
	assert.False(t, cfg.SessionConfig().LiveEnabled)
	assert.Equal(t, "k-123", cfg.Provider.APIKey)
}

func TestParseFlag(t *testing.T) {
	for _, v := range []string{"true", "1", "yes", "on", "TRUE"} {
		got, err := parseFlag(v)
		require.NoError(t, err)
		assert.Equal(t, true, got, v)
	}
	for _, v := range []string{"false", "0", "no", "off", "", "garbage"} {
		got, err := parseFlag(v)
		require.NoError(t, err)
		assert.Equal(t, false, got, v)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	cfg.Gate.MaxActionableVIX = 0
	cfg.Contracts.MaxRiskPct = 0.5
	cfg.Cache.Backend = "memcached"

	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 3)
	assert.Equal(t, "gate.max_actionable_vix", verrs[0].Field)
}
