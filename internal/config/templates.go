package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# SPX Decision Engine Configuration
# Feature flags come from the environment:
#   SPX_EVENT_RISK_GATE_ENABLED, SPX_NEWS_SENTIMENT_ENABLED,
#   SPX_ENVIRONMENT_LIVE_SESSION_ENABLED, SPX_API_KEY

[gate]
# VIX at or above this blocks the session
max_actionable_vix = 30.0
# Expected move = ATR x multiplier, floored at min_expected_move_points
expected_move_atr_multiplier = 6.0
min_expected_move_points = 8.0
# Block once the day's range has used this much of the expected move
max_expected_move_consumption_pct = 175.0
# Minutes around high-impact releases
macro_blackout_minutes = 60
macro_caution_minutes = 120
macro_lookahead_days = 7
# Compression: implied (VIX) minus realized volatility spread, in vol points
compression_spread_block_pct = 8.0
compression_spread_caution_pct = 5.0
compression_realized_vol_max_pct = 14.0
realized_vol_lookback = 22
# Minutes after midnight ET
last_actionable_minute = 945
late_session_minute = 930
min_minutes_until_close = 15
vix_cache_ttl_seconds = 60
disable_macro_calendar = false

[stops]
atr_floor_enabled = true
atr_multiplier = 0.9
vix_scaling_enabled = true
gex_magnitude_scaling_enabled = true

[contracts]
symbol = "SPX"
# Strikes within this many points of spot are requested
strike_width = 100.0
cache_ttl_seconds = 10
expiry_lookahead_days = 7
iv_horizon_minutes = 30
iv_timeout_millis = 1500
iv_timing_enabled = true
# Sizing defaults when the account snapshot leaves them unset
max_risk_pct = 0.02
buying_power_utilization_pct = 0.9

[news]
tickers = ["SPX", "SPY", "VIX"]
per_ticker_limit = 25
cache_ttl = "5m"

[market]
live_timeout = "1500ms"
# Extra FOMC decision dates (YYYY-MM-DD) on top of the built-in table
fomc_dates = []

[cache]
# Backend: "memory" or "redis"
backend = "memory"

[cache.redis]
addr = "localhost:6379"
password = ""
db = 0
prefix = "spx-engine:"
pool_size = 10

[store]
# SQLite database holding setups, account snapshots and gate decisions
path = "~/.config/spx-engine/engine.db"

[provider]
base_url = "https://api.massive.com"
# Set SPX_API_KEY instead of storing the key here
api_key = ""
requests_per_second = 5.0
burst = 10
timeout = "8s"
calendar_path = "/v1/calendar/economic"
iv_profile_path = "/v1/volatility/profile"
expiry_lookahead_days = 7
expiry_pages = 2
chain_pages = 4

[provider.breaker]
consecutive_failures = 3
failure_ratio = 0.5
min_requests = 20
half_open_requests = 1
interval = "60s"
timeout = "30s"

[provider.retry]
max_attempts = 2
initial_delay = "150ms"
max_delay = "1s"
backoff_factor = 2.0

[logging]
level = "info"
console = true
file = false
file_path = "~/.config/spx-engine/logs/engine.log"
max_size = 50
max_backups = 5
max_age = 14

[metrics]
enabled = false
`

// CreateTemplateConfig writes engine.toml into configDir and returns its
// path. An existing file is left untouched unless force is set.
func CreateTemplateConfig(configDir string, force bool) (string, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "engine.toml")
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}

	return path, nil
}
