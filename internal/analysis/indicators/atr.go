package indicators

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"spx-engine/internal/cache"
	"spx-engine/internal/logging"
	"spx-engine/internal/models"
	"spx-engine/internal/providers"
)

// DefaultATRPeriod is the ATR(14) lookback.
const DefaultATRPeriod = 14

// CalculateATRFromBars averages the true ranges of the last period bars, each
// measured against the prior close. Returns nil with fewer than period+1 bars.
func CalculateATRFromBars(bars []models.Bar, period int) *float64 {
	if period <= 0 || len(bars) < period+1 {
		return nil
	}
	sorted := models.SortBars(bars)

	n := len(sorted)
	ranges := make([]float64, 0, period)
	for i := n - period; i < n; i++ {
		tr := trueRange(sorted[i], sorted[i-1])
		if !Finite(tr) {
			return nil
		}
		ranges = append(ranges, tr)
	}
	atr := Round(mean(ranges), 4)
	return &atr
}

// ATRService computes intraday ATR from fetched minute bars behind an injected cache.
type ATRService struct {
	bars   providers.BarsProvider
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewATRService creates a new ATR service.
func NewATRService(bars providers.BarsProvider, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *ATRService {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &ATRService{
		bars:   bars,
		cache:  c,
		ttl:    ttl,
		logger: logging.WithComponent(logger, "atr"),
	}
}

type cachedATR struct {
	Value *float64 `json:"value"`
}

// IntradayATR returns ATR(period) for the symbol's session on date, or nil
// when bars are unavailable. Provider errors are logged and answered with nil.
func (s *ATRService) IntradayATR(ctx context.Context, symbol, date string, period int) *float64 {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	key := fmt.Sprintf("spx_command_center:atr:%s:%s:%d", symbol, date, period)
	if hit, ok := cache.Lookup[cachedATR](ctx, s.cache, key); ok {
		return hit.Value
	}

	bars, err := s.bars.GetMinuteAggregates(ctx, symbol, date)
	if err != nil {
		logging.LogProviderFallback(s.logger, "bars", "GetMinuteAggregates", "nil ATR", err)
		return nil
	}

	atr := CalculateATRFromBars(bars, period)
	cache.Store(ctx, s.cache, key, cachedATR{Value: atr}, s.ttl)
	return atr
}
