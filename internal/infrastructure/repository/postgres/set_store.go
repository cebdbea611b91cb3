package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/live-match/internal/domain/scoring"
	qb "github.com/riskibarqy/live-match/internal/platform/querybuilder"
)

const setScoreTable = "match_sets"

// SetStore persists set rows. WithinMatchTx holds a row lock on the parent
// match for the life of the transaction.
type SetStore struct {
	db *sqlx.DB
}

func NewSetStore(db *sqlx.DB) *SetStore {
	return &SetStore{db: db}
}

func (s *SetStore) ListSets(ctx context.Context, matchID string) ([]scoring.SetScore, error) {
	sets, err := listSets(ctx, s.db, matchID)
	if err != nil {
		return nil, err
	}
	if len(sets) > 0 {
		return sets, nil
	}

	exists, err := matchExists(ctx, s.db, matchID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, scoring.ErrMatchNotFound
	}
	return sets, nil
}

func (s *SetStore) WithinMatchTx(ctx context.Context, matchID string, fn func(ctx context.Context, tx scoring.SetTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for match %s sets: %w", matchID, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	status, exists, err := lockMatch(ctx, tx, matchID)
	if err != nil {
		return err
	}
	if !exists {
		return scoring.ErrMatchNotFound
	}

	if err := fn(ctx, &setTx{tx: tx, matchID: matchID, status: status}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit match %s sets tx: %w", matchID, err)
	}
	return nil
}

type setTx struct {
	tx      *sqlx.Tx
	matchID string
	status  string
}

// MatchStatus is read once with FOR UPDATE, so it cannot change before commit.
func (t *setTx) MatchStatus(context.Context) (string, error) {
	return t.status, nil
}

func (t *setTx) ListSets(ctx context.Context) ([]scoring.SetScore, error) {
	return listSets(ctx, t.tx, t.matchID)
}

func (t *setTx) EnsureSet(ctx context.Context, setNumber int) (scoring.SetScore, error) {
	builder, err := qb.InsertModel(setScoreTable, setScoreTableModel{
		MatchID:   t.matchID,
		SetNumber: setNumber,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return scoring.SetScore{}, fmt.Errorf("build ensure set query: %w", err)
	}
	query, args, err := builder.Suffix("ON CONFLICT (match_id, set_number) DO NOTHING").ToSQL()
	if err != nil {
		return scoring.SetScore{}, fmt.Errorf("build ensure set query: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return scoring.SetScore{}, fmt.Errorf("ensure set %d: %w", setNumber, err)
	}

	query, args, err = qb.Select(setScoreColumns...).From(setScoreTable).
		Where(
			qb.Eq("match_id", t.matchID),
			qb.Eq("set_number", setNumber),
		).
		ToSQL()
	if err != nil {
		return scoring.SetScore{}, fmt.Errorf("build get set query: %w", err)
	}
	var row setScoreTableModel
	if err := t.tx.GetContext(ctx, &row, query, args...); err != nil {
		return scoring.SetScore{}, fmt.Errorf("get set %d: %w", setNumber, err)
	}
	return row.toDomain(), nil
}

func (t *setTx) SaveSet(ctx context.Context, set scoring.SetScore) error {
	updatedAt := set.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	builder, err := qb.InsertModel(setScoreTable, setScoreTableModel{
		MatchID:   t.matchID,
		SetNumber: set.SetNumber,
		HomeScore: set.HomeScore,
		AwayScore: set.AwayScore,
		UpdatedAt: updatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("build save set query: %w", err)
	}
	query, args, err := builder.Suffix(`ON CONFLICT (match_id, set_number)
DO UPDATE SET
    home_score = EXCLUDED.home_score,
    away_score = EXCLUDED.away_score,
    updated_at = EXCLUDED.updated_at`).ToSQL()
	if err != nil {
		return fmt.Errorf("build save set query: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save set %d: %w", set.SetNumber, err)
	}
	return nil
}

func listSets(ctx context.Context, q sqlx.QueryerContext, matchID string) ([]scoring.SetScore, error) {
	query, args, err := qb.Select(setScoreColumns...).From(setScoreTable).
		Where(qb.Eq("match_id", matchID)).
		OrderBy("set_number").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list sets query: %w", err)
	}

	var rows []setScoreTableModel
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list sets for match %s: %w", matchID, err)
	}

	out := make([]scoring.SetScore, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func lockMatch(ctx context.Context, tx *sqlx.Tx, matchID string) (string, bool, error) {
	query, args, err := qb.Select("status").From(matchTable).
		Where(qb.Eq("id", matchID)).
		ForUpdate().
		ToSQL()
	if err != nil {
		return "", false, fmt.Errorf("build lock match query: %w", err)
	}

	var status string
	if err := tx.GetContext(ctx, &status, query, args...); err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lock match %s: %w", matchID, err)
	}
	return status, true, nil
}

func matchExists(ctx context.Context, q sqlx.QueryerContext, matchID string) (bool, error) {
	query, args, err := qb.Select("id").From(matchTable).Where(qb.Eq("id", matchID)).ToSQL()
	if err != nil {
		return false, fmt.Errorf("build match exists query: %w", err)
	}

	var id string
	if err := sqlx.GetContext(ctx, q, &id, query, args...); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("lookup match %s: %w", matchID, err)
	}
	return true, nil
}
