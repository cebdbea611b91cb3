package httpapi

import (
	"time"

	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/domain/scoring"
	"github.com/riskibarqy/live-match/internal/usecase"
)

type createMatchRequest struct {
	TeamID         string                 `json:"teamId" validate:"required"`
	OpponentName   string                 `json:"opponentName" validate:"required"`
	TournamentID   string                 `json:"tournamentId"`
	TournamentName string                 `json:"tournamentName"`
	ScheduledStart *time.Time             `json:"scheduledStart"`
	CourtLabel     string                 `json:"courtLabel"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	Rules          *scoring.RulesOverride `json:"rules"`
}

type updateMatchRequest struct {
	Status         *string    `json:"status"`
	OpponentName   *string    `json:"opponentName"`
	CourtLabel     *string    `json:"courtLabel"`
	ScheduledStart *time.Time `json:"scheduledStart"`
}

type scoreActionRequest struct {
	Action   string `json:"action" validate:"required"`
	Override bool   `json:"override"`
}

type provisionRequest struct {
	Count int `json:"count" validate:"required,min=1,max=20"`
}

type matchDTO struct {
	ID             string                 `json:"id"`
	TeamID         string                 `json:"teamId"`
	OpponentName   string                 `json:"opponentName"`
	TournamentID   string                 `json:"tournamentId,omitempty"`
	TournamentName string                 `json:"tournamentName,omitempty"`
	ScheduledStart string                 `json:"scheduledStart,omitempty"`
	CourtLabel     string                 `json:"courtLabel,omitempty"`
	Status         match.Status           `json:"status"`
	BroadcastID    string                 `json:"broadcastId,omitempty"`
	WatchURL       string                 `json:"watchUrl,omitempty"`
	StreamPoolID   string                 `json:"streamPoolId,omitempty"`
	Rules          *scoring.RulesOverride `json:"rules,omitempty"`
	AllowedNext    []match.Status         `json:"allowedNext"`
	CreatedAt      string                 `json:"createdAt"`
	UpdatedAt      string                 `json:"updatedAt"`
}

type createMatchResponse struct {
	Match    matchDTO `json:"match"`
	Replayed bool     `json:"replayed"`
}

type matchChangeResponse struct {
	Match    matchDTO                `json:"match"`
	External usecase.ExternalOutcome `json:"external"`
}

type setScoreDTO struct {
	SetNumber int    `json:"setNumber"`
	Home      int    `json:"home"`
	Away      int    `json:"away"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type scoreSnapshotDTO struct {
	MatchID string             `json:"matchId"`
	Status  match.Status       `json:"status"`
	Rules   scoring.Rules      `json:"rules"`
	State   scoring.MatchState `json:"state"`
	Sets    []setScoreDTO      `json:"sets"`
}

type teamDTO struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type cleanupResponse struct {
	Deleted int `json:"deleted"`
}

type provisionResponse struct {
	Requested int                      `json:"requested"`
	Created   int                      `json:"created"`
	EntryIDs  []string                 `json:"entryIds"`
	Errors    []usecase.ProvisionError `json:"errors"`
}

func matchToDTO(m match.Match) matchDTO {
	allowed := match.AllowedFrom(m.Status)
	if allowed == nil {
		allowed = []match.Status{}
	}
	return matchDTO{
		ID:             m.ID,
		TeamID:         m.TeamID,
		OpponentName:   m.OpponentName,
		TournamentID:   m.TournamentID,
		TournamentName: m.TournamentName,
		ScheduledStart: formatOptionalTime(m.ScheduledStart),
		CourtLabel:     m.CourtLabel,
		Status:         m.Status,
		BroadcastID:    m.BroadcastID,
		WatchURL:       m.WatchURL,
		StreamPoolID:   m.StreamPoolID,
		Rules:          m.Rules,
		AllowedNext:    allowed,
		CreatedAt:      formatTime(m.CreatedAt),
		UpdatedAt:      formatTime(m.UpdatedAt),
	}
}

func scoreSnapshotToDTO(s usecase.ScoreSnapshot) scoreSnapshotDTO {
	sets := make([]setScoreDTO, 0, len(s.Sets))
	for _, set := range s.Sets {
		sets = append(sets, setScoreDTO{
			SetNumber: set.SetNumber,
			Home:      set.HomeScore,
			Away:      set.AwayScore,
			UpdatedAt: formatTime(set.UpdatedAt),
		})
	}
	state := s.State
	if state.Sets == nil {
		state.Sets = []scoring.SetState{}
	}
	return scoreSnapshotDTO{
		MatchID: s.MatchID,
		Status:  s.Status,
		Rules:   s.Rules,
		State:   state,
		Sets:    sets,
	}
}

func provisionToDTO(result usecase.ProvisionResult) provisionResponse {
	ids := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		ids = append(ids, entry.ID)
	}
	errs := result.Errors
	if errs == nil {
		errs = []usecase.ProvisionError{}
	}
	return provisionResponse{
		Requested: result.Requested,
		Created:   result.Created,
		EntryIDs:  ids,
		Errors:    errs,
	}
}

func formatTime(v time.Time) string {
	if v.IsZero() {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}

func formatOptionalTime(v *time.Time) string {
	if v == nil || v.IsZero() {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
