package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/domain/streampool"
	"github.com/riskibarqy/live-match/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ usecase.Metrics = (*PrometheusMetrics)(nil)

func TestPrometheusMetrics_PoolSummary(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.ObservePoolSummary(streampool.Summary{Available: 3, Reserved: 1, InUse: 2, Stuck: 1, Total: 7, RecoveredStuck: 2})
	m.ObservePoolSummary(streampool.Summary{Available: 4, InUse: 2, Total: 6})

	assert.Equal(t, 4.0, testutil.ToFloat64(m.poolEntries.WithLabelValues("available")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.poolEntries.WithLabelValues("reserved")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.poolEntries.WithLabelValues("in_use")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.poolRecovered))
}

func TestPrometheusMetrics_Counters(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.IncScoreAction("home_point", "applied")
	m.IncScoreAction("home_point", "applied")
	m.IncScoreAction("next_set", "rejected")
	m.IncAutoLive("live")
	m.IncMatchTransition(match.StatusReady, match.StatusLive)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scoreActions.WithLabelValues("home_point", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scoreActions.WithLabelValues("next_set", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.autoLivePolls.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.matchTransitions.WithLabelValues("ready", "live")))
}

func TestPrometheusMetrics_Handler(t *testing.T) {
	m := NewPrometheusMetrics(nil)
	m.IncAutoLive("testing")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `live_match_auto_live_polls_total{state="testing"} 1`))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
