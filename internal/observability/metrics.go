package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/domain/streampool"
)

const metricsNamespace = "live_match"

// PrometheusMetrics exports service counters and the last observed pool
// summary on its own registry.
type PrometheusMetrics struct {
	registry         *prometheus.Registry
	poolEntries      *prometheus.GaugeVec
	poolRecovered    prometheus.Counter
	scoreActions     *prometheus.CounterVec
	autoLivePolls    *prometheus.CounterVec
	matchTransitions *prometheus.CounterVec
}

func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		registry: registry,
		poolEntries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "stream_pool_entries",
			Help:      "Stream pool entries by status at the last summary.",
		}, []string{"status"}),
		poolRecovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stream_pool_recovered_stuck_total",
			Help:      "Stuck stream pool entries returned to available.",
		}),
		scoreActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "score_actions_total",
			Help:      "Score actions applied, by action and outcome.",
		}, []string{"action", "outcome"}),
		autoLivePolls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auto_live_polls_total",
			Help:      "Auto-live polls by reported state.",
		}, []string{"state"}),
		matchTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "match_transitions_total",
			Help:      "Match status transitions.",
		}, []string{"from", "to"}),
	}
}

func (m *PrometheusMetrics) ObservePoolSummary(summary streampool.Summary) {
	m.poolEntries.WithLabelValues(string(streampool.StatusAvailable)).Set(float64(summary.Available))
	m.poolEntries.WithLabelValues(string(streampool.StatusReserved)).Set(float64(summary.Reserved))
	m.poolEntries.WithLabelValues(string(streampool.StatusInUse)).Set(float64(summary.InUse))
	m.poolEntries.WithLabelValues(string(streampool.StatusStuck)).Set(float64(summary.Stuck))
	m.poolEntries.WithLabelValues(string(streampool.StatusDisabled)).Set(float64(summary.Disabled))
	if summary.RecoveredStuck > 0 {
		m.poolRecovered.Add(float64(summary.RecoveredStuck))
	}
}

func (m *PrometheusMetrics) IncScoreAction(action, outcome string) {
	m.scoreActions.WithLabelValues(action, outcome).Inc()
}

func (m *PrometheusMetrics) IncAutoLive(state string) {
	m.autoLivePolls.WithLabelValues(state).Inc()
}

func (m *PrometheusMetrics) IncMatchTransition(from, to match.Status) {
	m.matchTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
