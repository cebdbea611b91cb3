package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/live-match/internal/infrastructure/repository/memory"
	qb "github.com/riskibarqy/live-match/internal/platform/querybuilder"
)

// BootstrapSeed inserts the reference teams and tournaments into an empty
// database. Existing rows are left untouched.
func BootstrapSeed(ctx context.Context, db *sqlx.DB) error {
	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(1) FROM teams`); err != nil {
		return fmt.Errorf("count teams for bootstrap seed: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, t := range memory.SeedTeams() {
		query, args, err := qb.InsertInto("teams").
			Columns("id", "slug", "name", "enabled").
			Values(t.ID, t.Slug, t.Name, t.Enabled).
			Suffix("ON CONFLICT (id) DO NOTHING").
			ToSQL()
		if err != nil {
			return fmt.Errorf("build seed team %s query: %w", t.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("seed team %s: %w", t.ID, err)
		}
	}

	for _, t := range memory.SeedTournaments() {
		query, args, err := qb.InsertInto("tournaments").
			Columns("id", "name", "starts_on", "ends_on").
			Values(t.ID, t.Name, nullTime(t.StartsOn), nullTime(t.EndsOn)).
			Suffix("ON CONFLICT (id) DO NOTHING").
			ToSQL()
		if err != nil {
			return fmt.Errorf("build seed tournament %s query: %w", t.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("seed tournament %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}
	return nil
}
