package observability

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"riskgate/decision-api/internal/domain"
)

// Metrics records scoring outcomes on a private registry.
type Metrics struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	reasons   *prometheus.CounterVec
	scores    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them, together with the
// Go runtime and process collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskgate",
			Name:      "decisions_total",
			Help:      "Scored transactions by decision and entry point.",
		}, []string{"decision", "source"}),
		reasons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskgate",
			Name:      "rule_hits_total",
			Help:      "Rules that contributed to a score, by rule name.",
		}, []string{"rule"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "riskgate",
			Name:      "risk_score",
			Help:      "Distribution of risk scores.",
			Buckets:   []float64{0, 2, 4, 6, 8, 10, 15, 20, 50, 100},
		}),
	}
	m.registry.MustRegister(
		m.decisions,
		m.reasons,
		m.scores,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe counts one scored transaction.
func (m *Metrics) Observe(source string, result domain.ScoreResult) {
	m.decisions.WithLabelValues(string(result.Decision), source).Inc()
	m.scores.Observe(float64(result.RiskScore))
	for _, r := range result.Reasons {
		m.reasons.WithLabelValues(RuleName(r)).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RuleName extracts the rule identifier from a reason string:
// "geo_mismatch:MX!=US(+2)" -> "geo_mismatch", "frequency_buffer(-1)" -> "frequency_buffer".
func RuleName(reason string) string {
	if i := strings.IndexAny(reason, ":("); i >= 0 {
		return reason[:i]
	}
	return reason
}
