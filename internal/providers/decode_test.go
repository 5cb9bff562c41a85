package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spx-engine/internal/errors"
	"spx-engine/internal/models"
)

func TestDecodeMinuteAggregatesDropsInvalidBars(t *testing.T) {
	data := []byte(`{"results":[
		{"t":1771597860000,"o":6001,"h":6002.5,"l":6000.25,"c":6002,"v":1200},
		{"t":1771597800000,"o":6000,"h":6001,"l":5999,"c":6001,"v":900.4},
		{"t":1771597920000,"o":6002,"h":6001,"l":6003,"c":6002,"v":10},
		{"t":0,"o":6002,"h":6003,"l":6001,"c":6002,"v":10}
	]}`)

	decoded, err := DecodeMinuteAggregates(data)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Dropped)
	require.Len(t, decoded.Items, 2)
	assert.True(t, decoded.Items[0].Timestamp.Before(decoded.Items[1].Timestamp))
	assert.Equal(t, int64(900), decoded.Items[0].Volume)
}

func TestDecodeMalformedEnvelope(t *testing.T) {
	_, err := DecodeMinuteAggregates([]byte(`{"results":`))
	var de *errors.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "aggregates", de.Source)
}

func TestDecodeLatestTick(t *testing.T) {
	tick, err := DecodeLatestTick("I:VIX", []byte(`{"results":[{"value":16.42,"last_updated":1771599600000000000}]}`))
	require.NoError(t, err)
	require.NotNil(t, tick)
	assert.Equal(t, 16.42, tick.Price)
	assert.False(t, tick.Timestamp.IsZero())

	tick, err = DecodeLatestTick("SPY", []byte(`{"results":{"p":601.2,"t":1771599600000000000}}`))
	require.NoError(t, err)
	assert.Equal(t, 601.2, tick.Price)

	tick, err = DecodeLatestTick("I:VIX", []byte(`{"results":[]}`))
	require.NoError(t, err)
	assert.Nil(t, tick)

	tick, err = DecodeLatestTick("I:VIX", []byte(`{"results":{"p":0}}`))
	require.NoError(t, err)
	assert.Nil(t, tick)
}

func TestDecodeNews(t *testing.T) {
	data := []byte(`{"results":[
		{"id":"a1","title":"Stocks rally as CPI cools","published_utc":"2026-02-20T14:55:00Z","article_url":"https://example.com/a1","tickers":["SPY"]},
		{"id":"","title":"No id or url","published_utc":"2026-02-20T14:55:00Z"},
		{"id":"a3","title":"","published_utc":"2026-02-20T14:55:00Z"},
		{"id":"a4","title":"Bad time","published_utc":"yesterday"}
	]}`)

	decoded, err := DecodeNews(data)
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.Dropped)
	require.Len(t, decoded.Items, 1)
	assert.Equal(t, time.Date(2026, 2, 20, 14, 55, 0, 0, time.UTC), decoded.Items[0].PublishedAt)
}

func TestDecodeEconomicCalendarDefaultsImpact(t *testing.T) {
	data := []byte(`{"events":[
		{"date":"2026-02-20","event":"FOMC Rate Decision","impact":"HIGH"},
		{"date":"2026-02-21","event":"Existing Home Sales"},
		{"date":"02/21/2026","event":"Bad date","impact":"high"},
		{"date":"2026-02-22","event":"Unknown impact","impact":"extreme"}
	]}`)

	decoded, err := DecodeEconomicCalendar(data)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Dropped)
	require.Len(t, decoded.Items, 2)
	assert.Equal(t, models.ImpactHigh, decoded.Items[0].Impact)
	assert.Equal(t, models.ImpactMedium, decoded.Items[1].Impact)
}

func TestDecodeOptionsChain(t *testing.T) {
	data := []byte(`{"results":[
		{"details":{"strike_price":6010,"expiration_date":"2026-02-20","contract_type":"call"},
		 "last_quote":{"bid":4.1,"ask":4.4},"day":{"volume":1500},"open_interest":2200,
		 "greeks":{"delta":0.31,"gamma":0.02,"theta":-1.1,"vega":0.3},"implied_volatility":0.18,
		 "underlying_asset":{"price":6001}},
		{"details":{"strike_price":5990,"expiration_date":"2026-02-20","contract_type":"put"},
		 "last_quote":{"bid":3.9,"ask":4.2},"day":{"volume":800},"open_interest":1800,
		 "greeks":{"delta":-0.33,"gamma":0.02,"theta":-1.2,"vega":0.3},"implied_volatility":0.19,
		 "underlying_asset":{"price":6001}},
		{"details":{"strike_price":6020,"expiration_date":"2026-02-20","contract_type":"straddle"}}
	],"next_url":"https://api.example.com/next"}`)

	page, err := DecodeOptionsChain("2026-02-20", data)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Dropped)
	require.Len(t, page.Chain.Calls, 1)
	require.Len(t, page.Chain.Puts, 1)
	assert.Equal(t, "https://api.example.com/next", page.NextURL)

	put := page.Chain.Puts[0]
	assert.InDelta(t, 0, put.IntrinsicValue, 1e-9)
	assert.InDelta(t, 4.05, put.ExtrinsicValue, 1e-9)
	assert.Equal(t, int64(1800), put.OpenInterest)
}

func TestDecodeExpirationsDistinctSorted(t *testing.T) {
	data := []byte(`{"results":[
		{"expiration_date":"2026-02-23"},
		{"expiration_date":"2026-02-20"},
		{"expiration_date":"2026-02-20"},
		{"expiration_date":"soon"}
	]}`)
	page, err := DecodeExpirations(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-20", "2026-02-23"}, page.Dates)
}

func TestDecodeIVForecast(t *testing.T) {
	f, err := DecodeIVForecast([]byte(`{"ivForecast":null}`))
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = DecodeIVForecast([]byte(`{"ivForecast":{"horizonMinutes":60,"predictedIV":19.2,"currentIV":18.1,"deltaIV":1.1,"direction":"up","confidence":0.7}}`))
	require.NoError(t, err)
	assert.Equal(t, models.IVUp, f.Direction)

	_, err = DecodeIVForecast([]byte(`{"ivForecast":{"direction":"sideways","confidence":2}}`))
	var de *errors.DecodeError
	assert.True(t, errors.As(err, &de))
}

func TestDecodeMarketStatus(t *testing.T) {
	st, err := DecodeMarketStatus([]byte(`{"market":"Open","earlyHours":false,"afterHours":false,"serverTime":"2026-02-20T10:00:00-05:00"}`))
	require.NoError(t, err)
	assert.Equal(t, "open", st.Market)

	_, err = DecodeMarketStatus([]byte(`{"earlyHours":true}`))
	assert.Error(t, err)
}
