package usecase

import (
	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/domain/streampool"
)

// Metrics receives service level counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObservePoolSummary(summary streampool.Summary)
	IncScoreAction(action, outcome string)
	IncAutoLive(state string)
	IncMatchTransition(from, to match.Status)
}

type noopMetrics struct{}

func NewNoopMetrics() Metrics {
	return noopMetrics{}
}

func (noopMetrics) ObservePoolSummary(streampool.Summary)          {}
func (noopMetrics) IncScoreAction(string, string)                  {}
func (noopMetrics) IncAutoLive(string)                             {}
func (noopMetrics) IncMatchTransition(match.Status, match.Status) {}
