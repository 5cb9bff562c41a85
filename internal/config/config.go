// Package config provides configuration management for the decision engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"

	"spx-engine/internal/cache"
	"spx-engine/internal/contracts"
	"spx-engine/internal/engine"
	"spx-engine/internal/errors"
	"spx-engine/internal/gate"
	"spx-engine/internal/logging"
	"spx-engine/internal/market"
	"spx-engine/internal/news"
	"spx-engine/internal/providers"
	"spx-engine/internal/resilience"
)

// Config holds all engine configuration.
type Config struct {
	Gate      gate.Config       `mapstructure:"gate"`
	Stops     engine.StopConfig `mapstructure:"stops"`
	Contracts ContractsConfig   `mapstructure:"contracts"`
	News      NewsConfig        `mapstructure:"news"`
	Market    MarketConfig      `mapstructure:"market"`
	Cache     CacheConfig       `mapstructure:"cache"`
	Store     StoreConfig       `mapstructure:"store"`
	Provider  ProviderConfig    `mapstructure:"provider"`
	Logging   logging.LogConfig `mapstructure:"logging"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
	Flags     FeatureFlags      `mapstructure:"-"` // Loaded from the environment
}

// ContractsConfig holds selector settings, including the sizing defaults
// applied when an account snapshot leaves them unset.
type ContractsConfig struct {
	contracts.Config `mapstructure:",squash"`
}

// NewsConfig holds news sentiment settings.
type NewsConfig struct {
	Tickers        []string      `mapstructure:"tickers"`
	PerTickerLimit int           `mapstructure:"per_ticker_limit"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// MarketConfig holds market session settings.
type MarketConfig struct {
	LiveTimeout time.Duration `mapstructure:"live_timeout"`
	FOMCDates   []string      `mapstructure:"fomc_dates"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend string            `mapstructure:"backend"` // memory, redis
	Redis   cache.RedisConfig `mapstructure:"redis"`
}

// StoreConfig holds the SQLite store location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ProviderConfig holds the market data adapter settings.
type ProviderConfig struct {
	providers.MassiveConfig `mapstructure:",squash"`
	Breaker                 resilience.CircuitBreakerConfig `mapstructure:"breaker"`
	Retry                   resilience.RetryConfig          `mapstructure:"retry"`
}

// MetricsConfig controls the Prometheus exposition.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// FeatureFlags are read from the environment. Unrecognized boolean values
// leave the flag off.
type FeatureFlags struct {
	EventRiskGateEnabled bool   `env:"SPX_EVENT_RISK_GATE_ENABLED"`
	NewsSentimentEnabled bool   `env:"SPX_NEWS_SENTIMENT_ENABLED"`
	LiveSessionEnabled   bool   `env:"SPX_ENVIRONMENT_LIVE_SESSION_ENABLED"`
	APIKey               string `env:"SPX_API_KEY"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/spx-engine"
	}
	return filepath.Join(home, ".config", "spx-engine")
}

// Load loads configuration. path may name a file or a directory; an empty
// path uses engine.toml in the default config directory. A missing file is
// not an error: defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	switch {
	case path == "":
		v.SetConfigName("engine")
		v.SetConfigType("toml")
		v.AddConfigPath(DefaultConfigDir())
	case isDir(path):
		v.SetConfigName("engine")
		v.SetConfigType("toml")
		v.AddConfigPath(path)
	default:
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Logging.FilePath = expandHome(cfg.Logging.FilePath)

	if err := LoadFlags(&cfg.Flags); err != nil {
		return nil, fmt.Errorf("loading feature flags: %w", err)
	}
	cfg.applyFlags()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func setDefaults(v *viper.Viper) {
	g := gate.DefaultConfig()
	v.SetDefault("gate.max_actionable_vix", g.MaxActionableVIX)
	v.SetDefault("gate.expected_move_atr_multiplier", g.ExpectedMoveATRMultiplier)
	v.SetDefault("gate.min_expected_move_points", g.MinExpectedMovePoints)
	v.SetDefault("gate.max_expected_move_consumption_pct", g.MaxExpectedMoveConsumptionPct)
	v.SetDefault("gate.macro_blackout_minutes", g.MacroBlackoutMinutes)
	v.SetDefault("gate.macro_caution_minutes", g.MacroCautionMinutes)
	v.SetDefault("gate.macro_lookahead_days", g.MacroLookaheadDays)
	v.SetDefault("gate.compression_spread_block_pct", g.CompressionSpreadBlockPct)
	v.SetDefault("gate.compression_spread_caution_pct", g.CompressionSpreadCautionPct)
	v.SetDefault("gate.compression_realized_vol_max_pct", g.CompressionRealizedVolMaxPct)
	v.SetDefault("gate.realized_vol_lookback", g.RealizedVolLookback)
	v.SetDefault("gate.last_actionable_minute", g.LastActionableMinute)
	v.SetDefault("gate.late_session_minute", g.LateSessionMinute)
	v.SetDefault("gate.min_minutes_until_close", g.MinMinutesUntilClose)
	v.SetDefault("gate.vix_cache_ttl_seconds", g.VIXCacheTTLSeconds)
	v.SetDefault("gate.disable_macro_calendar", false)

	v.SetDefault("stops.atr_floor_enabled", true)
	v.SetDefault("stops.atr_multiplier", 0.9)
	v.SetDefault("stops.vix_scaling_enabled", true)
	v.SetDefault("stops.gex_magnitude_scaling_enabled", true)

	c := contracts.DefaultConfig()
	v.SetDefault("contracts.symbol", c.Symbol)
	v.SetDefault("contracts.strike_width", c.StrikeWidth)
	v.SetDefault("contracts.cache_ttl_seconds", c.CacheTTLSeconds)
	v.SetDefault("contracts.expiry_lookahead_days", c.ExpiryLookaheadDays)
	v.SetDefault("contracts.iv_horizon_minutes", c.IVHorizonMinutes)
	v.SetDefault("contracts.iv_timeout_millis", c.IVTimeoutMillis)
	v.SetDefault("contracts.iv_timing_enabled", c.IVTimingEnabled)
	v.SetDefault("contracts.max_risk_pct", c.MaxRiskPct)
	v.SetDefault("contracts.buying_power_utilization_pct", c.BuyingPowerUtilizationPct)

	v.SetDefault("news.tickers", news.DefaultTickers)
	v.SetDefault("news.per_ticker_limit", 25)
	v.SetDefault("news.cache_ttl", "5m")

	v.SetDefault("market.live_timeout", market.DefaultLiveTimeout.String())
	v.SetDefault("market.fomc_dates", []string{})

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "spx-engine:")
	v.SetDefault("cache.redis.pool_size", 10)

	v.SetDefault("store.path", filepath.Join(DefaultConfigDir(), "engine.db"))

	p := providers.DefaultMassiveConfig()
	v.SetDefault("provider.base_url", p.BaseURL)
	v.SetDefault("provider.requests_per_second", p.RequestsPerSecond)
	v.SetDefault("provider.burst", p.Burst)
	v.SetDefault("provider.timeout", p.Timeout.String())
	v.SetDefault("provider.calendar_path", p.CalendarPath)
	v.SetDefault("provider.iv_profile_path", p.IVProfilePath)
	v.SetDefault("provider.expiry_lookahead_days", p.ExpiryLookahead)
	v.SetDefault("provider.expiry_pages", p.ExpiryPages)
	v.SetDefault("provider.chain_pages", p.ChainPages)

	b := resilience.DefaultCircuitBreakerConfig()
	v.SetDefault("provider.breaker.consecutive_failures", b.ConsecutiveFailures)
	v.SetDefault("provider.breaker.failure_ratio", b.FailureRatio)
	v.SetDefault("provider.breaker.min_requests", b.MinRequests)
	v.SetDefault("provider.breaker.half_open_requests", b.HalfOpenRequests)
	v.SetDefault("provider.breaker.interval", b.Interval.String())
	v.SetDefault("provider.breaker.timeout", b.Timeout.String())

	r := resilience.DefaultRetryConfig()
	v.SetDefault("provider.retry.max_attempts", r.MaxAttempts)
	v.SetDefault("provider.retry.initial_delay", r.InitialDelay.String())
	v.SetDefault("provider.retry.max_delay", r.MaxDelay.String())
	v.SetDefault("provider.retry.backoff_factor", r.BackoffFactor)

	l := logging.DefaultLogConfig()
	v.SetDefault("logging.level", l.Level)
	v.SetDefault("logging.console", l.Console)
	v.SetDefault("logging.file", l.File)
	v.SetDefault("logging.file_path", l.FilePath)
	v.SetDefault("logging.max_size", l.MaxSize)
	v.SetDefault("logging.max_backups", l.MaxBackups)
	v.SetDefault("logging.max_age", l.MaxAge)

	v.SetDefault("metrics.enabled", false)
}

// LoadFlags reads the feature flags from the environment.
func LoadFlags(flags *FeatureFlags) error {
	return env.ParseWithOptions(flags, env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(false): parseFlag,
		},
	})
}

// parseFlag accepts true/false, 1/0, yes/no and on/off.
func parseFlag(value string) (interface{}, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	default:
		return false, nil
	}
}

func (c *Config) applyFlags() {
	c.Gate.EventRiskEnabled = c.Flags.EventRiskGateEnabled
	c.Gate.NewsEnabled = c.Flags.NewsSentimentEnabled
	if c.Flags.APIKey != "" {
		c.Provider.APIKey = c.Flags.APIKey
	}
}

// ValidationErrors collects every invalid field.
type ValidationErrors []*errors.ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func (v ValidationErrors) Unwrap() error {
	return errors.ErrInvalidConfig
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs ValidationErrors
	check := func(ok bool, field string, value interface{}, msg string) {
		if !ok {
			errs = append(errs, errors.NewValidationError(field, value, msg))
		}
	}

	// Gate thresholds
	check(c.Gate.MaxActionableVIX > 0, "gate.max_actionable_vix", c.Gate.MaxActionableVIX, "must be positive")
	check(c.Gate.MaxExpectedMoveConsumptionPct > 0, "gate.max_expected_move_consumption_pct", c.Gate.MaxExpectedMoveConsumptionPct, "must be positive")
	check(c.Gate.MacroCautionMinutes >= c.Gate.MacroBlackoutMinutes, "gate.macro_caution_minutes", c.Gate.MacroCautionMinutes, "must not be shorter than the blackout window")
	check(c.Gate.CompressionSpreadCautionPct <= c.Gate.CompressionSpreadBlockPct, "gate.compression_spread_caution_pct", c.Gate.CompressionSpreadCautionPct, "must not exceed the block threshold")
	check(c.Gate.LastActionableMinute > 0 && c.Gate.LastActionableMinute < 24*60, "gate.last_actionable_minute", c.Gate.LastActionableMinute, "must be a minute of the day")
	check(c.Gate.LateSessionMinute <= c.Gate.LastActionableMinute, "gate.late_session_minute", c.Gate.LateSessionMinute, "must not be after the last actionable minute")

	// Stops
	check(c.Stops.ATRStopMultiplier > 0, "stops.atr_multiplier", c.Stops.ATRStopMultiplier, "must be positive")

	// Contracts
	check(c.Contracts.Symbol != "", "contracts.symbol", c.Contracts.Symbol, "is required")
	check(c.Contracts.MaxRiskPct > 0 && c.Contracts.MaxRiskPct <= 0.25, "contracts.max_risk_pct", c.Contracts.MaxRiskPct, "must be in (0, 0.25]")
	check(c.Contracts.BuyingPowerUtilizationPct > 0 && c.Contracts.BuyingPowerUtilizationPct <= 1, "contracts.buying_power_utilization_pct", c.Contracts.BuyingPowerUtilizationPct, "must be in (0, 1]")
	check(c.Contracts.CacheTTLSeconds >= 0, "contracts.cache_ttl_seconds", c.Contracts.CacheTTLSeconds, "must be non-negative")

	// Cache
	check(c.Cache.Backend == "memory" || c.Cache.Backend == "redis", "cache.backend", c.Cache.Backend, "must be 'memory' or 'redis'")
	if c.Cache.Backend == "redis" {
		check(c.Cache.Redis.Addr != "", "cache.redis.addr", c.Cache.Redis.Addr, "is required for the redis backend")
	}

	// Provider
	check(c.Provider.RequestsPerSecond > 0, "provider.requests_per_second", c.Provider.RequestsPerSecond, "must be positive")
	check(c.Provider.Retry.MaxAttempts >= 1, "provider.retry.max_attempts", c.Provider.Retry.MaxAttempts, "must be at least 1")

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SessionConfig returns the market session settings with the live flag applied.
func (c *Config) SessionConfig() market.SessionConfig {
	return market.SessionConfig{LiveEnabled: c.Flags.LiveSessionEnabled, LiveTimeout: c.Market.LiveTimeout}
}

// NewsServiceConfig returns the news sentiment service settings.
func (c *Config) NewsServiceConfig() news.Config {
	return news.Config{Tickers: c.News.Tickers, PerTickerLimit: c.News.PerTickerLimit, CacheTTL: c.News.CacheTTL}
}
