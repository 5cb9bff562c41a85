package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spx-engine/internal/models"
)

func TestStaticSetups(t *testing.T) {
	s := &Static{Setups: []models.Setup{
		{ID: "a", Status: models.StatusReady},
		{ID: "b", Status: models.StatusExpired},
		{ID: "c", Status: models.StatusForming, GateReasons: []string{"x"}},
	}}
	ctx := context.Background()

	active, err := s.DetectActiveSetups(ctx, SetupQuery{})
	require.NoError(t, err)
	require.Len(t, active, 2)
	active[1].GateReasons[0] = "mutated"
	assert.Equal(t, "x", s.Setups[2].GateReasons[0])

	got, err := s.GetSetupByID(ctx, "b", SetupQuery{})
	require.NoError(t, err)
	require.NotNil(t, got)
	missing, err := s.GetSetupByID(ctx, "z", SetupQuery{})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStaticChains(t *testing.T) {
	s := &Static{Chains: []models.OptionsChain{
		{Expiry: "2026-02-23", Calls: []models.OptionContract{{Strike: 6010}}},
		{Expiry: "2026-02-20", Calls: []models.OptionContract{{Strike: 5800}, {Strike: 6010}}, Puts: []models.OptionContract{{Strike: 5990}}},
	}}
	ctx := context.Background()

	exp, err := s.FetchExpirationDates(ctx, "SPX")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-20", "2026-02-23"}, exp)

	chain, err := s.FetchOptionsChain(ctx, "SPX", "2026-02-20", StrikeRange{Center: 6000, Width: 100})
	require.NoError(t, err)
	require.NotNil(t, chain)
	require.Len(t, chain.Calls, 1)
	assert.Equal(t, "2026-02-20", chain.Calls[0].Expiry)
	assert.Len(t, chain.Puts, 1)

	none, err := s.FetchOptionsChain(ctx, "SPX", "2026-03-20", StrikeRange{})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStaticMarketData(t *testing.T) {
	day := time.Date(2026, 2, 20, 14, 30, 0, 0, time.UTC)
	s := &Static{
		Bars: []models.Bar{
			{Timestamp: day.Add(time.Minute), Close: 2},
			{Timestamp: day, Close: 1},
			{Timestamp: day.AddDate(0, 0, -1), Close: 0},
		},
		Ticks: []models.Tick{
			{Symbol: "VIX", Price: 15, Timestamp: day},
			{Symbol: "VIX", Price: 16, Timestamp: day.Add(time.Minute)},
		},
		Events: []models.EconomicEvent{
			{Date: "2026-02-20", Event: "CPI", Impact: models.ImpactHigh},
			{Date: "2026-02-20", Event: "Claims", Impact: models.ImpactMedium},
		},
		Articles: []models.NewsArticle{
			{Title: "old", PublishedAt: day.Add(-time.Hour), Tickers: []string{"SPY"}},
			{Title: "new", PublishedAt: day, Tickers: []string{"spy"}},
			{Title: "other", PublishedAt: day, Tickers: []string{"QQQ"}},
		},
	}
	ctx := context.Background()

	bars, err := s.GetMinuteAggregates(ctx, "I:SPX", "2026-02-20")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.0, bars[0].Close)

	tick, err := s.GetLatestTick(ctx, "vix")
	require.NoError(t, err)
	require.NotNil(t, tick)
	assert.Equal(t, 16.0, tick.Price)

	events, err := s.GetEconomicCalendar(ctx, 7, models.ImpactHigh)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	articles, err := s.GetTickerNews(ctx, "SPY", 1)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "new", articles[0].Title)
}

func TestStaticRiskContextAndIV(t *testing.T) {
	ctx := context.Background()
	empty := &Static{}
	rc, err := empty.LatestRiskContext(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, rc)
	iv, err := empty.AnalyzeIVProfile(ctx, "SPX", IVProfileOptions{})
	require.NoError(t, err)
	assert.Nil(t, iv)

	equity := 50000.0
	s := &Static{
		Risk: &models.RiskContext{TotalEquity: &equity},
		IV:   &models.IVForecast{Direction: models.IVUp, DeltaIV: 1, Confidence: 0.5},
	}
	rc, err = s.LatestRiskContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", rc.UserID)
	iv, err = s.AnalyzeIVProfile(ctx, "SPX", IVProfileOptions{HorizonMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, 30, iv.HorizonMinutes)
}
