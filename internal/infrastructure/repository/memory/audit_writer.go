package memory

import (
	"context"
	"sync"

	"github.com/riskibarqy/live-match/internal/domain/audit"
)

type AuditWriter struct {
	mu      sync.Mutex
	records []audit.Record
}

func NewAuditWriter() *AuditWriter {
	return &AuditWriter{}
}

func (w *AuditWriter) Write(_ context.Context, record audit.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.records = append(w.records, record)
	return nil
}

func (w *AuditWriter) Records() []audit.Record {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]audit.Record(nil), w.records...)
}
