package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/live-match/internal/domain/match"
	qb "github.com/riskibarqy/live-match/internal/platform/querybuilder"
)

const matchTable = "matches"

type MatchRepository struct {
	db *sqlx.DB
}

func NewMatchRepository(db *sqlx.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) Create(ctx context.Context, m match.Match) error {
	model, err := newMatchModel(m)
	if err != nil {
		return fmt.Errorf("encode match %s: %w", m.ID, err)
	}
	builder, err := qb.InsertModel(matchTable, model)
	if err != nil {
		return fmt.Errorf("build insert match query: %w", err)
	}
	query, args, err := builder.ToSQL()
	if err != nil {
		return fmt.Errorf("build insert match query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err, "matches_idempotency_key_key") {
			return match.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (r *MatchRepository) GetByID(ctx context.Context, matchID string) (match.Match, bool, error) {
	return r.getOne(ctx, "get match", qb.Eq("id", matchID))
}

func (r *MatchRepository) GetByIdempotencyKey(ctx context.Context, key string) (match.Match, bool, error) {
	return r.getOne(ctx, "get match by idempotency key", qb.Eq("idempotency_key", key))
}

// Update never rewrites the idempotency key or creation time.
func (r *MatchRepository) Update(ctx context.Context, m match.Match, expected match.Status) (bool, error) {
	model, err := newMatchModel(m)
	if err != nil {
		return false, fmt.Errorf("encode match %s: %w", m.ID, err)
	}

	query, args, err := qb.Update(matchTable).
		Set("opponent_name", model.OpponentName).
		Set("tournament_id", model.TournamentID).
		Set("tournament_name", model.TournamentName).
		Set("scheduled_start", model.ScheduledStart).
		Set("court_label", model.CourtLabel).
		Set("status", model.Status).
		Set("broadcast_id", model.BroadcastID).
		Set("watch_url", model.WatchURL).
		Set("stream_pool_id", model.StreamPoolID).
		Set("rules", model.Rules).
		Set("updated_at", model.UpdatedAt).
		Where(
			qb.Eq("id", m.ID),
			qb.Eq("status", string(expected)),
		).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build update match query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update match %s: %w", m.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("count updated matches: %w", err)
	}
	return affected > 0, nil
}

func (r *MatchRepository) getOne(ctx context.Context, op string, where qb.Condition) (match.Match, bool, error) {
	query, args, err := qb.Select(matchColumns...).From(matchTable).
		Where(where).
		ToSQL()
	if err != nil {
		return match.Match{}, false, fmt.Errorf("build %s query: %w", op, err)
	}

	var row matchTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return match.Match{}, false, nil
		}
		return match.Match{}, false, fmt.Errorf("%s: %w", op, err)
	}

	item, err := row.toDomain()
	if err != nil {
		return match.Match{}, false, fmt.Errorf("decode match %s: %w", row.ID, err)
	}
	return item, true, nil
}
