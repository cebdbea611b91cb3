package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/live-match/internal/domain/audit"
	qb "github.com/riskibarqy/live-match/internal/platform/querybuilder"
)

type AuditWriter struct {
	db *sqlx.DB
}

func NewAuditWriter(db *sqlx.DB) *AuditWriter {
	return &AuditWriter{db: db}
}

func (w *AuditWriter) Write(ctx context.Context, record audit.Record) error {
	detail, err := encodeAuditDetail(record.Detail)
	if err != nil {
		return fmt.Errorf("encode audit detail for %s: %w", record.Action, err)
	}

	builder, err := qb.InsertModel("audit_log", auditTableModel{
		ID:         record.ID,
		Action:     string(record.Action),
		Detail:     detail,
		OccurredAt: record.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("build insert audit record query: %w", err)
	}
	query, args, err := builder.ToSQL()
	if err != nil {
		return fmt.Errorf("build insert audit record query: %w", err)
	}

	if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit record %s: %w", record.Action, err)
	}
	return nil
}

func encodeAuditDetail(detail map[string]any) ([]byte, error) {
	if len(detail) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(detail)
}
