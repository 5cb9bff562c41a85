package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spx-engine/internal/errors"
	"spx-engine/internal/resilience"
)

func newTestClient(t *testing.T, handler http.Handler) *MassiveClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultMassiveConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "test-key"
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 100

	retry := resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffFactor: 1}
	breakers := resilience.NewCircuitBreakerRegistry(resilience.DefaultCircuitBreakerConfig(), zerolog.Nop())
	c := NewMassiveClient(cfg, breakers, retry, zerolog.Nop())
	c.now = func() time.Time { return time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC) }
	return c
}

func TestMassiveClientAggregates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/aggs/ticker/I:SPX/range/1/minute/2026-02-20/2026-02-20", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"results":[{"t":1771597800000,"o":6000,"h":6001,"l":5999,"c":6001,"v":900}]}`)
	})
	c := newTestClient(t, mux)

	bars, err := c.GetMinuteAggregates(context.Background(), "I:SPX", "2026-02-20")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 6001.0, bars[0].Close)
}

func TestMassiveClientRetriesServerErrors(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/snapshot/indices", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "I:VIX", r.URL.Query().Get("ticker.any_of"))
		fmt.Fprint(w, `{"results":[{"value":17.1}]}`)
	})
	c := newTestClient(t, mux)

	tick, err := c.GetLatestTick(context.Background(), "I:VIX")
	require.NoError(t, err)
	assert.Equal(t, 17.1, tick.Price)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMassiveClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/reference/news", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	})
	c := newTestClient(t, mux)

	_, err := c.GetTickerNews(context.Background(), "SPY", 25)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMassiveClientExpirationPagination(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/reference/options/contracts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			assert.Equal(t, "2026-02-20", r.URL.Query().Get("expiration_date.gte"))
			assert.Equal(t, "2026-02-27", r.URL.Query().Get("expiration_date.lte"))
			fmt.Fprintf(w, `{"results":[{"expiration_date":"2026-02-20"},{"expiration_date":"2026-02-23"}],"next_url":"%s/v3/reference/options/contracts?cursor=p2"}`, srvURL)
			return
		}
		fmt.Fprintf(w, `{"results":[{"expiration_date":"2026-02-23"},{"expiration_date":"2026-02-24"}],"next_url":"%s/v3/reference/options/contracts?cursor=p3"}`, srvURL)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	c := newTestClient(t, mux)
	c.cfg.BaseURL = srv.URL

	dates, err := c.FetchExpirationDates(context.Background(), "SPX")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-20", "2026-02-23", "2026-02-24"}, dates)
}

func TestMassiveClientChainStrikeWindow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/snapshot/options/SPX", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "5950.00", q.Get("strike_price.gte"))
		assert.Equal(t, "6050.00", q.Get("strike_price.lte"))
		fmt.Fprint(w, `{"results":[{"details":{"strike_price":6010,"expiration_date":"2026-02-20","contract_type":"call"},"last_quote":{"bid":4.1,"ask":4.4},"open_interest":100,"greeks":{"delta":0.3}}]}`)
	})
	c := newTestClient(t, mux)

	chain, err := c.FetchOptionsChain(context.Background(), "SPX", "2026-02-20", StrikeRange{Center: 6000, Width: 50})
	require.NoError(t, err)
	assert.Len(t, chain.Calls, 1)
	assert.Empty(t, chain.Puts)
}
