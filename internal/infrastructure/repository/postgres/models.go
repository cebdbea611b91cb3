package postgres

import (
	"database/sql"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/domain/scoring"
	"github.com/riskibarqy/live-match/internal/domain/streampool"
	"github.com/riskibarqy/live-match/internal/domain/team"
	"github.com/riskibarqy/live-match/internal/domain/tournament"
	qb "github.com/riskibarqy/live-match/internal/platform/querybuilder"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type teamTableModel struct {
	ID        string    `db:"id"`
	Slug      string    `db:"slug"`
	Name      string    `db:"name"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (m teamTableModel) toDomain() team.Team {
	return team.Team{
		ID:      m.ID,
		Slug:    m.Slug,
		Name:    m.Name,
		Enabled: m.Enabled,
	}
}

type tournamentTableModel struct {
	ID       string       `db:"id"`
	Name     string       `db:"name"`
	StartsOn sql.NullTime `db:"starts_on"`
	EndsOn   sql.NullTime `db:"ends_on"`
}

func (m tournamentTableModel) toDomain() tournament.Tournament {
	return tournament.Tournament{
		ID:       m.ID,
		Name:     m.Name,
		StartsOn: timePtr(m.StartsOn),
		EndsOn:   timePtr(m.EndsOn),
	}
}

type streamPoolTableModel struct {
	ID               string         `db:"id"`
	ExternalStreamID string         `db:"external_stream_id"`
	IngestAddress    string         `db:"ingest_address"`
	StreamCredential string         `db:"stream_credential"`
	Title            string         `db:"title"`
	Status           string         `db:"status"`
	ReservedMatchID  sql.NullString `db:"reserved_match_id"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

var streamPoolColumns = qb.ColumnsOf(streamPoolTableModel{})

func newStreamPoolModel(entry streampool.Entry) streamPoolTableModel {
	return streamPoolTableModel{
		ID:               entry.ID,
		ExternalStreamID: entry.ExternalStreamID,
		IngestAddress:    entry.IngestAddress,
		StreamCredential: entry.StreamCredential,
		Title:            entry.Title,
		Status:           string(entry.Status),
		ReservedMatchID:  nullString(entry.ReservedMatchID),
		CreatedAt:        entry.CreatedAt.UTC(),
		UpdatedAt:        entry.UpdatedAt.UTC(),
	}
}

func (m streamPoolTableModel) toDomain() streampool.Entry {
	return streampool.Entry{
		ID:               m.ID,
		ExternalStreamID: m.ExternalStreamID,
		IngestAddress:    m.IngestAddress,
		StreamCredential: m.StreamCredential,
		Title:            m.Title,
		Status:           streampool.Status(m.Status),
		ReservedMatchID:  m.ReservedMatchID.String,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

type matchTableModel struct {
	ID             string         `db:"id"`
	TeamID         string         `db:"team_id"`
	OpponentName   string         `db:"opponent_name"`
	TournamentID   sql.NullString `db:"tournament_id"`
	TournamentName sql.NullString `db:"tournament_name"`
	ScheduledStart sql.NullTime   `db:"scheduled_start"`
	CourtLabel     string         `db:"court_label"`
	Status         string         `db:"status"`
	BroadcastID    string         `db:"broadcast_id"`
	WatchURL       string         `db:"watch_url"`
	StreamPoolID   sql.NullString `db:"stream_pool_id"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	Rules          []byte         `db:"rules"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

var matchColumns = qb.ColumnsOf(matchTableModel{})

func newMatchModel(m match.Match) (matchTableModel, error) {
	var rules []byte
	if m.Rules != nil && !m.Rules.IsZero() {
		encoded, err := json.Marshal(m.Rules)
		if err != nil {
			return matchTableModel{}, err
		}
		rules = encoded
	}

	return matchTableModel{
		ID:             m.ID,
		TeamID:         m.TeamID,
		OpponentName:   m.OpponentName,
		TournamentID:   nullString(m.TournamentID),
		TournamentName: nullString(m.TournamentName),
		ScheduledStart: nullTime(m.ScheduledStart),
		CourtLabel:     m.CourtLabel,
		Status:         string(m.Status),
		BroadcastID:    m.BroadcastID,
		WatchURL:       m.WatchURL,
		StreamPoolID:   nullString(m.StreamPoolID),
		IdempotencyKey: nullString(m.IdempotencyKey),
		Rules:          rules,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}, nil
}

func (m matchTableModel) toDomain() (match.Match, error) {
	var rules *scoring.RulesOverride
	if len(m.Rules) > 0 {
		rules = &scoring.RulesOverride{}
		if err := json.Unmarshal(m.Rules, rules); err != nil {
			return match.Match{}, err
		}
	}

	return match.Match{
		ID:             m.ID,
		TeamID:         m.TeamID,
		OpponentName:   m.OpponentName,
		TournamentID:   m.TournamentID.String,
		TournamentName: m.TournamentName.String,
		ScheduledStart: timePtr(m.ScheduledStart),
		CourtLabel:     m.CourtLabel,
		Status:         match.Status(m.Status),
		BroadcastID:    m.BroadcastID,
		WatchURL:       m.WatchURL,
		StreamPoolID:   m.StreamPoolID.String,
		IdempotencyKey: m.IdempotencyKey.String,
		Rules:          rules,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}, nil
}

type setScoreTableModel struct {
	MatchID   string    `db:"match_id"`
	SetNumber int       `db:"set_number"`
	HomeScore int       `db:"home_score"`
	AwayScore int       `db:"away_score"`
	UpdatedAt time.Time `db:"updated_at"`
}

var setScoreColumns = qb.ColumnsOf(setScoreTableModel{})

func (m setScoreTableModel) toDomain() scoring.SetScore {
	return scoring.SetScore{
		MatchID:   m.MatchID,
		SetNumber: m.SetNumber,
		HomeScore: m.HomeScore,
		AwayScore: m.AwayScore,
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

type auditTableModel struct {
	ID         string    `db:"id"`
	Action     string    `db:"action"`
	Detail     []byte    `db:"detail"`
	OccurredAt time.Time `db:"occurred_at"`
}
