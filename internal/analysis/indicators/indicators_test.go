package indicators

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spx-engine/internal/cache"
	"spx-engine/internal/models"
)

var sessionStart = time.Date(2026, 2, 20, 14, 30, 0, 0, time.UTC)

func flatBars(n int, rng float64) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: sessionStart.Add(time.Duration(i) * time.Minute),
			Open:      5000,
			High:      5000 + rng/2,
			Low:       5000 - rng/2,
			Close:     5000,
			Volume:    1000,
		}
	}
	return bars
}

func TestCalculateATRFromBars(t *testing.T) {
	atr := CalculateATRFromBars(flatBars(15, 2), 14)
	require.NotNil(t, atr)
	assert.Equal(t, 2.0, *atr)

	assert.Nil(t, CalculateATRFromBars(flatBars(14, 2), 14))
	assert.Nil(t, CalculateATRFromBars(flatBars(20, 2), 0))
}

func TestCalculateATRUsesPriorClose(t *testing.T) {
	bars := flatBars(3, 2)
	// Gap up: prior close 5000, range 5009-5011 => TR = 11.
	bars[2].Open, bars[2].High, bars[2].Low, bars[2].Close = 5010, 5011, 5009, 5010
	atr := CalculateATRFromBars(bars, 2)
	require.NotNil(t, atr)
	assert.Equal(t, 6.5, *atr)
}

func TestCalculateATRSortsUnorderedBars(t *testing.T) {
	bars := flatBars(15, 2)
	bars[0], bars[14] = bars[14], bars[0]
	atr := CalculateATRFromBars(bars, 14)
	require.NotNil(t, atr)
	assert.Equal(t, 2.0, *atr)
}

func TestRealizedVolatility(t *testing.T) {
	assert.Nil(t, CalculateRealizedVolatility(flatBars(22, 1), 22))

	rv := CalculateRealizedVolatility(flatBars(23, 1), 22)
	require.NotNil(t, rv)
	assert.Equal(t, 0.0, *rv)

	bars := flatBars(30, 1)
	for i := range bars {
		if i%2 == 1 {
			bars[i].Close = 5001
		}
	}
	rv = CalculateRealizedVolatility(bars, 22)
	require.NotNil(t, rv)
	assert.Greater(t, *rv, 0.0)
}

func TestClampAndRound(t *testing.T) {
	assert.Equal(t, 0.2, Clamp(math.NaN(), 0.2, 5))
	assert.Equal(t, 5.0, Clamp(math.Inf(1), 0.2, 5))
	assert.Equal(t, 0.2, Clamp(math.Inf(-1), 0.2, 5))
	assert.Equal(t, 1.24, Round(1.2449, 2))
	assert.True(t, math.IsNaN(Round(math.NaN(), 2)))
	assert.False(t, FinitePtr(nil))
	assert.True(t, FinitePtr(Ptr(1.0)))
}

// Property: ATR is non-negative whenever it is defined, and defined exactly
// when there are at least period+1 bars.
func TestProperty_ATRDefinedAndNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ATR non-negative and defined iff enough bars", prop.ForAll(
		func(n, period int, ranges []float64) bool {
			bars := make([]models.Bar, n)
			for i := range bars {
				r := ranges[i%len(ranges)]
				base := 5000 + float64(i%7)
				bars[i] = models.Bar{
					Timestamp: sessionStart.Add(time.Duration(i) * time.Minute),
					Open:      base,
					High:      base + r,
					Low:       base - r,
					Close:     base + r/2,
				}
			}
			atr := CalculateATRFromBars(bars, period)
			if n < period+1 {
				return atr == nil
			}
			return atr != nil && *atr >= 0 && Finite(*atr)
		},
		gen.IntRange(0, 40),
		gen.IntRange(1, 20),
		gen.SliceOfN(5, gen.Float64Range(0, 10)),
	))

	properties.TestingRun(t)
}

type countingBars struct {
	calls int
	bars  []models.Bar
	err   error
}

func (c *countingBars) GetMinuteAggregates(context.Context, string, string) ([]models.Bar, error) {
	c.calls++
	return c.bars, c.err
}

func TestATRServiceCachesResult(t *testing.T) {
	src := &countingBars{bars: flatBars(20, 2)}
	svc := NewATRService(src, cache.NewMemoryCache(), time.Minute, zerolog.Nop())
	ctx := context.Background()

	first := svc.IntradayATR(ctx, "I:SPX", "2026-02-20", 14)
	second := svc.IntradayATR(ctx, "I:SPX", "2026-02-20", 14)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
	assert.Equal(t, 1, src.calls)
}

func TestATRServiceProviderErrorReturnsNil(t *testing.T) {
	src := &countingBars{err: errors.New("timeout")}
	svc := NewATRService(src, cache.NewMemoryCache(), time.Minute, zerolog.Nop())
	assert.Nil(t, svc.IntradayATR(context.Background(), "I:SPX", "2026-02-20", 14))
}
