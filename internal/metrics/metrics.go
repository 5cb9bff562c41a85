// Package metrics exposes Prometheus counters and histograms for the decision engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records engine metrics. A nil *Recorder is a no-op.
type Recorder struct {
	gateDecisions     *prometheus.CounterVec
	selectorOutcomes  *prometheus.CounterVec
	providerFallbacks *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	dynamicThreshold  prometheus.Gauge
}

// Selector outcome labels.
const (
	OutcomeRecommended  = "recommended"
	OutcomeRelaxed      = "relaxed"
	OutcomeNoCandidates = "no_candidates"
	OutcomeNoExpiry     = "no_expiry"
	OutcomeNoSetup      = "no_setup"
	OutcomeCached       = "cached"
)

// New registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		gateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spx_engine_gate_decisions_total",
				Help: "Environment gate evaluations by result and first blocking check",
			},
			[]string{"result", "blocking_check"},
		),
		selectorOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spx_engine_contract_selections_total",
				Help: "Contract selector outcomes",
			},
			[]string{"outcome"},
		),
		providerFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spx_engine_provider_fallbacks_total",
				Help: "Provider failures answered with a fallback value",
			},
			[]string{"provider", "op"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "spx_engine_cycle_duration_seconds",
				Help:    "Duration of one evaluation cycle",
				Buckets: prometheus.DefBuckets,
			},
		),
		dynamicThreshold: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "spx_engine_dynamic_ready_threshold",
				Help: "Most recent dynamic ready threshold",
			},
		),
	}
}

// RecordGateDecision counts a gate evaluation. blockingCheck is empty on pass.
func (r *Recorder) RecordGateDecision(passed bool, blockingCheck string, threshold float64) {
	if r == nil {
		return
	}
	result := "passed"
	if !passed {
		result = "blocked"
	}
	if blockingCheck == "" {
		blockingCheck = "none"
	}
	r.gateDecisions.WithLabelValues(result, blockingCheck).Inc()
	r.dynamicThreshold.Set(threshold)
}

// RecordSelectorOutcome counts a contract selection outcome.
func (r *Recorder) RecordSelectorOutcome(outcome string) {
	if r == nil {
		return
	}
	r.selectorOutcomes.WithLabelValues(outcome).Inc()
}

// RecordProviderFallback counts a provider failure that fell back.
func (r *Recorder) RecordProviderFallback(provider, op string) {
	if r == nil {
		return
	}
	r.providerFallbacks.WithLabelValues(provider, op).Inc()
}

// ObserveCycle records a cycle duration.
func (r *Recorder) ObserveCycle(d time.Duration) {
	if r == nil {
		return
	}
	r.cycleDuration.Observe(d.Seconds())
}
