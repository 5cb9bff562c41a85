package engine

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spx-engine/internal/analysis/indicators"
	"spx-engine/internal/contracts"
	"spx-engine/internal/gate"
	"spx-engine/internal/market"
	"spx-engine/internal/models"
	"spx-engine/internal/providers"
)

var cycleAt = time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC) // 10:00 ET

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func sessionBars(startPrice float64, count int) []models.Bar {
	start := time.Date(2026, 2, 20, 14, 30, 0, 0, time.UTC)
	bars := make([]models.Bar, count)
	for i := range bars {
		wave := math.Sin(float64(i)/3) * 2.2
		open := startPrice + float64(i)*0.12 + wave
		closePx := open - 0.7
		if i%2 == 0 {
			closePx = open + 0.9
		}
		bars[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      round2(open),
			High:      round2(math.Max(open, closePx) + 0.8),
			Low:       round2(math.Min(open, closePx) - 0.8),
			Close:     round2(closePx),
			Volume:    1000,
		}
	}
	return bars
}

func gateInput(vix float64) gate.GateInput {
	return gate.GateInput{
		CurrentPrice:     indicators.Ptr(6001.0),
		SessionOpenPrice: indicators.Ptr(5996.0),
		ATR14:            indicators.Ptr(1.8),
		VixValue:         indicators.Ptr(vix),
		Bars:             sessionBars(5996, 40),
		Regime:           models.RegimeTrending,
		RegimeConfidence: 78,
		MarketSession: &market.SessionStatus{
			Status:            market.StatusOpen,
			MinuteEt:          600,
			MinutesUntilClose: indicators.Ptr(360),
			SessionProgress:   10,
			Source:            market.SourceLocal,
			AsOf:              cycleAt,
		},
	}
}

func readySetup() models.Setup {
	return models.Setup{
		ID:          "orb-1",
		Type:        models.SetupORBBreakout,
		Direction:   models.DirectionBullish,
		EntryZone:   models.PriceRange{Low: 5998, High: 6000},
		Stop:        5995,
		Target1:     models.Target{Price: 6008, Label: "T1"},
		Target2:     models.Target{Price: 6015, Label: "T2"},
		Regime:      models.RegimeTrending,
		Status:      models.StatusReady,
		Tier:        models.TierSniperPrimary,
		Probability: 62,
	}
}

func newEngine(t *testing.T, deps Dependencies) *Engine {
	t.Helper()
	cfg := gate.DefaultConfig()
	cfg.DisableMacroCalendar = true
	deps.Gate = gate.NewEnvironmentGate(gate.Dependencies{}, cfg, zerolog.Nop())

	var stopCfg StopConfig
	require.NoError(t, defaults.Set(&stopCfg))
	return New(deps, stopCfg, zerolog.Nop())
}

func TestEvaluateCyclePassingGate(t *testing.T) {
	eng := newEngine(t, Dependencies{})
	res, err := eng.EvaluateCycle(context.Background(), CycleOptions{
		Now:    cycleAt,
		Setups: []models.Setup{readySetup()},
		Gate:   gateInput(16),
	})
	require.NoError(t, err)
	require.True(t, res.Gate.Passed, "reasons: %v", res.Gate.Reasons)
	assert.Nil(t, res.Standby)
	require.Len(t, res.Setups, 1)

	eval := res.Setups[0]
	assert.Equal(t, models.GateEligible, eval.Setup.GateStatus)
	require.NotNil(t, eval.Stop)
	require.NotNil(t, eval.Stop.Output)
	assert.False(t, eval.Stop.Fallback)
	assert.Equal(t, 5995.0, eval.Stop.Output.Stop)
	assert.Equal(t, 4.0, eval.Stop.Output.RiskPoints)
	require.NotNil(t, eval.Stop.Output.ATRFloorPoints)
	assert.Equal(t, 1.62, *eval.Stop.Output.ATRFloorPoints)

	require.NotNil(t, eval.EV)
	assert.InDelta(t, 1.4065, eval.EV.EvR, 1e-9)
	assert.InDelta(t, 0.65, eval.EV.T1Weight, 1e-9)
	assert.Len(t, res.Actionable(), 1)
}

func TestEvaluateCycleBlockedGateDemotes(t *testing.T) {
	eng := newEngine(t, Dependencies{})
	res, err := eng.EvaluateCycle(context.Background(), CycleOptions{
		Now:    cycleAt,
		Setups: []models.Setup{readySetup()},
		Gate:   gateInput(35),
	})
	require.NoError(t, err)
	assert.False(t, res.Gate.Passed)
	assert.Equal(t, "vix_regime", res.Gate.BlockingCheck())

	require.Len(t, res.Setups, 1)
	eval := res.Setups[0]
	assert.Equal(t, models.StatusForming, eval.Setup.Status)
	assert.Equal(t, models.GateBlocked, eval.Setup.GateStatus)
	assert.Equal(t, models.TierWatchlist, eval.Setup.Tier)
	assert.Nil(t, eval.Stop)
	assert.Nil(t, eval.EV)
	assert.Empty(t, res.Actionable())

	require.NotNil(t, res.Standby)
	assert.Contains(t, res.Standby.WaitingFor, "VIX volatility needs to cool")
	require.NotNil(t, res.Standby.NearestSetup)
}

func TestEvaluateCycleBuildsTriggerContext(t *testing.T) {
	triggered := readySetup()
	triggered.Status = models.StatusTriggered
	at := time.Date(2026, 2, 20, 14, 50, 0, 0, time.UTC)
	triggered.TriggeredAt = &at

	res, err := newEngine(t, Dependencies{}).EvaluateCycle(context.Background(), CycleOptions{
		Now:    cycleAt,
		Setups: []models.Setup{triggered},
		Gate:   gateInput(16),
	})
	require.NoError(t, err)
	require.Len(t, res.Setups, 1)
	tc := res.Setups[0].Setup.TriggerContext
	require.NotNil(t, tc)
	assert.False(t, tc.TriggerBarTimestamp.After(at))
	assert.GreaterOrEqual(t, tc.TriggerLatencyMs, int64(0))
}

func TestEvaluateCycleFallsBackToBaseStop(t *testing.T) {
	broken := readySetup()
	broken.EntryZone.Low = math.NaN()

	res, err := newEngine(t, Dependencies{}).EvaluateCycle(context.Background(), CycleOptions{
		Now:    cycleAt,
		Setups: []models.Setup{broken},
		Gate:   gateInput(16),
	})
	require.NoError(t, err)
	require.Len(t, res.Setups, 1)
	eval := res.Setups[0]
	require.NotNil(t, eval.Stop)
	assert.True(t, eval.Stop.Fallback)
	assert.Equal(t, 5995.0, eval.Setup.Stop)
	require.NotNil(t, eval.EV)
	assert.True(t, eval.EV.Denied)
}

func TestFallbackStopLogsSetupID(t *testing.T) {
	var buf bytes.Buffer
	cfg := gate.DefaultConfig()
	cfg.DisableMacroCalendar = true
	var stopCfg StopConfig
	require.NoError(t, defaults.Set(&stopCfg))
	eng := New(Dependencies{
		Gate: gate.NewEnvironmentGate(gate.Dependencies{}, cfg, zerolog.Nop()),
	}, stopCfg, zerolog.New(&buf))

	broken := readySetup()
	broken.EntryZone.Low = math.NaN()
	_, err := eng.EvaluateCycle(context.Background(), CycleOptions{
		Now:    cycleAt,
		Setups: []models.Setup{broken},
		Gate:   gateInput(16),
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Adaptive stop unavailable")
	assert.Contains(t, buf.String(), `"setup_id":"`+broken.ID+`"`)
}

type setupFeed struct{ setups []models.Setup }

func (f setupFeed) DetectActiveSetups(context.Context, providers.SetupQuery) ([]models.Setup, error) {
	return f.setups, nil
}

func (f setupFeed) GetSetupByID(_ context.Context, id string, _ providers.SetupQuery) (*models.Setup, error) {
	for _, s := range f.setups {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, nil
}

type chainFeed struct{ chain *models.OptionsChain }

func (f chainFeed) FetchExpirationDates(context.Context, string) ([]string, error) {
	return []string{f.chain.Expiry}, nil
}

func (f chainFeed) FetchOptionsChain(context.Context, string, string, providers.StrikeRange) (*models.OptionsChain, error) {
	return f.chain, nil
}

func TestEvaluateCycleSelectsContracts(t *testing.T) {
	chain := &models.OptionsChain{
		Expiry: "2026-02-20",
		Calls: []models.OptionContract{{
			Symbol: "SPX", Strike: 6010, Expiry: "2026-02-20", Type: models.OptionCall,
			Bid: 2.0, Ask: 2.2, Volume: 800, OpenInterest: 2000,
			OptionGreeks: models.OptionGreeks{Delta: 0.28, Gamma: 0.02, Theta: -1.2, Vega: 0.5},
		}},
	}
	selector := contracts.NewSelector(contracts.Dependencies{Chains: chainFeed{chain: chain}}, contracts.DefaultConfig(), zerolog.Nop())
	eng := newEngine(t, Dependencies{
		Selector: selector,
		Setups:   setupFeed{setups: []models.Setup{readySetup()}},
	})

	res, err := eng.EvaluateCycle(context.Background(), CycleOptions{
		Now:             cycleAt,
		Gate:            gateInput(16),
		SelectContracts: true,
		RiskContext:     &models.RiskContext{TotalEquity: indicators.Ptr(50000.0)},
	})
	require.NoError(t, err)
	require.Len(t, res.Setups, 1)
	rec := res.Setups[0].Contract
	require.NotNil(t, rec)
	assert.Equal(t, "SPX 6010C 2026-02-20", rec.Description)
	require.NotNil(t, rec.Sizing)
	assert.Equal(t, 4, rec.Sizing.RecommendedContracts)
}

func TestWinProbability(t *testing.T) {
	assert.Equal(t, 0.62, winProbability(62))
	assert.Equal(t, 0.62, winProbability(0.62))
	assert.Equal(t, 1.0, winProbability(1))
}
