package verification

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"attest/internal/anchor"
)

// Metrics holds the verification counters and latency histogram.
type Metrics struct {
	results        *prometheus.CounterVec
	anchorStatus   *prometheus.CounterVec
	accessRequests *prometheus.CounterVec
	duration       prometheus.Histogram
	unavailable    *prometheus.CounterVec
}

// NewMetrics registers the verification collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		results: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_verifications_total",
			Help: "Verification results by terminal state and method",
		}, []string{"state", "method"}),
		anchorStatus: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_anchor_reconciliations_total",
			Help: "Anchor reconciliation outcomes",
		}, []string{"status"}),
		accessRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_access_requests_total",
			Help: "Private access requests by outcome",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_verification_duration_seconds",
			Help:    "Time spent verifying a credential",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		unavailable: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_verification_dependency_failures_total",
			Help: "Storage or ledger failures seen during verification",
		}, []string{"dependency"}),
	}
}

func (m *Metrics) observeResult(r *Result, method Method, d time.Duration) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(string(r.State), string(method)).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) observeAnchor(s anchor.Status) {
	if m == nil {
		return
	}
	m.anchorStatus.WithLabelValues(string(s)).Inc()
}

func (m *Metrics) observeAccess(granted bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if granted {
		outcome = "granted"
	}
	m.accessRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeUnavailable(dependency string) {
	if m == nil {
		return
	}
	m.unavailable.WithLabelValues(dependency).Inc()
}
