// Package metrics provides the Prometheus metrics for the reputation core.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the core updates. A nil *Metrics is valid and
// records nothing, which keeps services usable in tests and CLI commands.
type Metrics struct {
	AggregationsTotal   *prometheus.CounterVec
	AggregationDuration prometheus.Histogram
	ViolationsTotal     *prometheus.CounterVec
	LockoutsTotal       prometheus.Counter
	TokensIssuedTotal   prometheus.Counter
	TokenRedemptions    *prometheus.CounterVec
	ReviewsSubmitted    prometheus.Counter
}

// New creates the collectors and registers them on registry.
func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		AggregationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estimate_aggregations_total",
				Help: "Reputation aggregation runs partitioned by result.",
			},
			[]string{"result"},
		),
		AggregationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "estimate_aggregation_duration_seconds",
				Help:    "Time taken to recompute one reviewee's reputation",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
			},
		),
		ViolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estimate_violations_total",
				Help: "Recorded review policy violations partitioned by type.",
			},
			[]string{"type"},
		),
		LockoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "estimate_lockouts_total",
				Help: "Violations that put a user into the locked state.",
			},
		),
		TokensIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "estimate_tokens_issued_total",
				Help: "Review tokens issued.",
			},
		),
		TokenRedemptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estimate_token_redemptions_total",
				Help: "Review token redemption attempts partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		ReviewsSubmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "estimate_reviews_submitted_total",
				Help: "Anonymous reviews accepted.",
			},
		),
	}
	if registry == nil {
		return m, nil
	}
	collectors := []prometheus.Collector{
		m.AggregationsTotal, m.AggregationDuration, m.ViolationsTotal, m.LockoutsTotal,
		m.TokensIssuedTotal, m.TokenRedemptions, m.ReviewsSubmitted,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register estimate metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) ObserveAggregation(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.AggregationsTotal.WithLabelValues(result).Inc()
	m.AggregationDuration.Observe(took.Seconds())
}

func (m *Metrics) RecordViolation(violationType string, locked bool) {
	if m == nil {
		return
	}
	m.ViolationsTotal.WithLabelValues(violationType).Inc()
	if locked {
		m.LockoutsTotal.Inc()
	}
}

func (m *Metrics) TokenIssued() {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.Inc()
}

func (m *Metrics) TokenRedeemed(outcome string) {
	if m == nil {
		return
	}
	m.TokenRedemptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReviewSubmitted() {
	if m == nil {
		return
	}
	m.ReviewsSubmitted.Inc()
}
