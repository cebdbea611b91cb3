package match

import (
	"errors"
	"time"

	"github.com/riskibarqy/live-match/internal/domain/scoring"
)

var ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

// Match is one scheduled game streamed through a pool entry. StreamPoolID is
// the currently bound entry and is cleared once the entry is released.
type Match struct {
	ID             string
	TeamID         string
	OpponentName   string
	TournamentID   string
	TournamentName string
	ScheduledStart *time.Time
	CourtLabel     string
	Status         Status
	BroadcastID    string
	WatchURL       string
	StreamPoolID   string
	IdempotencyKey string
	Rules          *scoring.RulesOverride
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectiveRules merges the per-match override over defaults.
func (m Match) EffectiveRules(defaults scoring.Rules) scoring.Rules {
	return defaults.Merge(m.Rules)
}

// OpponentEditable reports whether the opponent name may still change.
func (m Match) OpponentEditable() bool {
	return m.Status == StatusDraft
}

func (m Match) HasStream() bool {
	return m.StreamPoolID != ""
}
