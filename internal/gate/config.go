package gate

import (
	"github.com/creasty/defaults"
)

// Config holds environment gate thresholds and feature flags.
type Config struct {
	MaxActionableVIX              float64 `mapstructure:"max_actionable_vix" default:"30"`
	ExpectedMoveATRMultiplier     float64 `mapstructure:"expected_move_atr_multiplier" default:"6"`
	MinExpectedMovePoints         float64 `mapstructure:"min_expected_move_points" default:"8"`
	MaxExpectedMoveConsumptionPct float64 `mapstructure:"max_expected_move_consumption_pct" default:"175"`
	MacroBlackoutMinutes          int     `mapstructure:"macro_blackout_minutes" default:"60"`
	MacroCautionMinutes           int     `mapstructure:"macro_caution_minutes" default:"120"`
	MacroLookaheadDays            int     `mapstructure:"macro_lookahead_days" default:"7"`
	CompressionSpreadBlockPct     float64 `mapstructure:"compression_spread_block_pct" default:"8"`
	CompressionSpreadCautionPct   float64 `mapstructure:"compression_spread_caution_pct" default:"5"`
	CompressionRealizedVolMaxPct  float64 `mapstructure:"compression_realized_vol_max_pct" default:"14"`
	RealizedVolLookback           int     `mapstructure:"realized_vol_lookback" default:"22"`
	LastActionableMinute          int     `mapstructure:"last_actionable_minute" default:"945"`
	LateSessionMinute             int     `mapstructure:"late_session_minute" default:"930"`
	MinMinutesUntilClose          int     `mapstructure:"min_minutes_until_close" default:"15"`
	VIXCacheTTLSeconds            int     `mapstructure:"vix_cache_ttl_seconds" default:"60"`

	DisableMacroCalendar bool `mapstructure:"disable_macro_calendar"`
	EventRiskEnabled     bool `mapstructure:"-"`
	NewsEnabled          bool `mapstructure:"-"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	var cfg Config
	defaults.MustSet(&cfg)
	return cfg
}

// withDefaults fills zero-valued thresholds.
func (c Config) withDefaults() Config {
	_ = defaults.Set(&c)
	return c
}
