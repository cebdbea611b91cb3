package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/live-match/internal/domain/streampool"
	qb "github.com/riskibarqy/live-match/internal/platform/querybuilder"
)

const streamPoolTable = "stream_pool"

// StreamPoolRepository stores pool entries. Every state change is one
// conditional UPDATE so concurrent instances never double-book an entry.
type StreamPoolRepository struct {
	db *sqlx.DB
}

func NewStreamPoolRepository(db *sqlx.DB) *StreamPoolRepository {
	return &StreamPoolRepository{db: db}
}

func (r *StreamPoolRepository) ReserveAvailable(ctx context.Context) (streampool.Entry, bool, error) {
	pick := qb.Select("id").From(streamPoolTable).
		Where(qb.Eq("status", string(streampool.StatusAvailable))).
		OrderBy("updated_at", "id").
		Limit(1).
		ForUpdateSkipLocked()

	query, args, err := qb.Update(streamPoolTable).
		Set("status", string(streampool.StatusReserved)).
		SetExpr("reserved_match_id", "NULL").
		SetExpr("updated_at", "NOW()").
		Where(qb.EqSubquery("id", pick)).
		Returning(streamPoolColumns...).
		ToSQL()
	if err != nil {
		return streampool.Entry{}, false, fmt.Errorf("build reserve stream pool entry query: %w", err)
	}

	var row streamPoolTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return streampool.Entry{}, false, nil
		}
		return streampool.Entry{}, false, fmt.Errorf("reserve stream pool entry: %w", err)
	}

	return row.toDomain(), true, nil
}

func (r *StreamPoolRepository) BindToMatch(ctx context.Context, entryID, matchID string) error {
	query, args, err := qb.Update(streamPoolTable).
		Set("reserved_match_id", matchID).
		SetExpr("updated_at", "NOW()").
		Where(
			qb.Eq("id", entryID),
			qb.Eq("status", string(streampool.StatusReserved)),
			qb.Expr("(reserved_match_id IS NULL OR reserved_match_id = ?)", matchID),
		).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build bind stream pool entry query: %w", err)
	}

	changed, err := r.execChanged(ctx, query, args)
	if err != nil {
		return fmt.Errorf("bind stream pool entry %s: %w", entryID, err)
	}
	if changed {
		return nil
	}

	if _, ok, err := r.GetByID(ctx, entryID); err != nil {
		return err
	} else if !ok {
		return streampool.ErrEntryNotFound
	}
	return streampool.ErrEntryNotReserved
}

func (r *StreamPoolRepository) MarkInUse(ctx context.Context, entryID string) (bool, error) {
	query, args, err := qb.Update(streamPoolTable).
		Set("status", string(streampool.StatusInUse)).
		SetExpr("updated_at", "NOW()").
		Where(
			qb.Eq("id", entryID),
			qb.Eq("status", string(streampool.StatusReserved)),
		).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build mark stream pool entry in use query: %w", err)
	}

	changed, err := r.execChanged(ctx, query, args)
	if err != nil {
		return false, fmt.Errorf("mark stream pool entry %s in use: %w", entryID, err)
	}
	if changed {
		return true, nil
	}

	entry, ok, err := r.GetByID(ctx, entryID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, streampool.ErrEntryNotFound
	}
	if entry.Status == streampool.StatusInUse {
		return false, nil
	}
	return false, streampool.ErrEntryNotReserved
}

func (r *StreamPoolRepository) ReleaseByExternalStreamID(ctx context.Context, externalStreamID, matchID string) (bool, error) {
	conditions := []qb.Condition{
		qb.Eq("external_stream_id", externalStreamID),
		qb.In("status", string(streampool.StatusReserved), string(streampool.StatusInUse), string(streampool.StatusStuck)),
	}
	if matchID != "" {
		conditions = append(conditions, qb.Expr("(reserved_match_id = ? OR reserved_match_id IS NULL)", matchID))
	}
	query, args, err := qb.Update(streamPoolTable).
		Set("status", string(streampool.StatusAvailable)).
		SetExpr("reserved_match_id", "NULL").
		SetExpr("updated_at", "NOW()").
		Where(conditions...).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build release stream pool entry query: %w", err)
	}

	changed, err := r.execChanged(ctx, query, args)
	if err != nil {
		return false, fmt.Errorf("release stream %s: %w", externalStreamID, err)
	}
	return changed, nil
}

// releaseStaleQuery returns each row as it was before the release.
const releaseStaleQuery = `
WITH stale AS (
    SELECT id, reserved_match_id, updated_at
    FROM stream_pool
    WHERE status = 'reserved'
      AND reserved_match_id IS NULL
      AND updated_at < $1
    FOR UPDATE SKIP LOCKED
)
UPDATE stream_pool AS p
SET status = 'available',
    reserved_match_id = NULL,
    updated_at = NOW()
FROM stale
WHERE p.id = stale.id
RETURNING p.id, p.external_stream_id, p.ingest_address, p.stream_credential, p.title,
    'reserved' AS status, stale.reserved_match_id, p.created_at, stale.updated_at`

func (r *StreamPoolRepository) ReleaseReservedBefore(ctx context.Context, cutoff time.Time) ([]streampool.Entry, error) {
	var rows []streamPoolTableModel
	if err := r.db.SelectContext(ctx, &rows, releaseStaleQuery, cutoff.UTC()); err != nil {
		return nil, fmt.Errorf("release stale reservations: %w", err)
	}

	out := make([]streampool.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *StreamPoolRepository) GetByID(ctx context.Context, entryID string) (streampool.Entry, bool, error) {
	query, args, err := qb.Select(streamPoolColumns...).From(streamPoolTable).
		Where(qb.Eq("id", entryID)).
		ToSQL()
	if err != nil {
		return streampool.Entry{}, false, fmt.Errorf("build get stream pool entry query: %w", err)
	}

	var row streamPoolTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return streampool.Entry{}, false, nil
		}
		return streampool.Entry{}, false, fmt.Errorf("get stream pool entry: %w", err)
	}
	return row.toDomain(), true, nil
}

func (r *StreamPoolRepository) CountByStatus(ctx context.Context) (map[streampool.Status]int, error) {
	query, args, err := qb.Select("status", "COUNT(1) AS total").From(streamPoolTable).
		GroupBy("status").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build count stream pool query: %w", err)
	}

	var rows []struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count stream pool entries: %w", err)
	}

	counts := make(map[streampool.Status]int, len(rows))
	for _, row := range rows {
		counts[streampool.Status(row.Status)] = row.Total
	}
	return counts, nil
}

func (r *StreamPoolRepository) Insert(ctx context.Context, entry streampool.Entry) error {
	builder, err := qb.InsertModel(streamPoolTable, newStreamPoolModel(entry))
	if err != nil {
		return fmt.Errorf("build insert stream pool entry query: %w", err)
	}
	query, args, err := builder.ToSQL()
	if err != nil {
		return fmt.Errorf("build insert stream pool entry query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err, "stream_pool_external_stream_id_key") {
			return streampool.ErrDuplicateStream
		}
		return fmt.Errorf("insert stream pool entry: %w", err)
	}
	return nil
}

func (r *StreamPoolRepository) DeleteRetiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query, args, err := qb.DeleteFrom(streamPoolTable).
		Where(
			qb.Expr("(status = ? OR (status = ? AND reserved_match_id IS NULL))",
				string(streampool.StatusDisabled), string(streampool.StatusAvailable)),
			qb.Lt("updated_at", cutoff.UTC()),
		).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build delete retired stream pool entries query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete retired stream pool entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted stream pool entries: %w", err)
	}
	return int(affected), nil
}

func (r *StreamPoolRepository) execChanged(ctx context.Context, query string, args []any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
