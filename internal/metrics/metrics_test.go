package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordGateDecision(false, "vix_regime", 3.4)
	r.RecordGateDecision(true, "", 3.0)
	r.RecordSelectorOutcome(OutcomeRelaxed)
	r.RecordProviderFallback("news", "GetTickerNews")
	r.ObserveCycle(20 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.gateDecisions.WithLabelValues("blocked", "vix_regime")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.gateDecisions.WithLabelValues("passed", "none")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.dynamicThreshold))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.selectorOutcomes.WithLabelValues(OutcomeRelaxed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.providerFallbacks.WithLabelValues("news", "GetTickerNews")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, strings.Join(names, ","), "spx_engine_cycle_duration_seconds")
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordGateDecision(true, "", 3)
		r.RecordSelectorOutcome(OutcomeRecommended)
		r.RecordProviderFallback("x", "y")
		r.ObserveCycle(time.Second)
	})
}
