package audit

import (
	"context"
	"time"
)

type Action string

const (
	ActionMatchCreated    Action = "match.created"
	ActionMatchCanceled   Action = "match.canceled"
	ActionMatchEnded      Action = "match.ended"
	ActionMatchUpdated    Action = "match.updated"
	ActionMatchWentLive   Action = "match.went_live"
	ActionMatchRollback   Action = "match.create_rolled_back"
	ActionPoolProvisioned Action = "stream_pool.provisioned"
	ActionPoolRecovered   Action = "stream_pool.recovered_stuck"
	ActionPoolCleanedUp   Action = "stream_pool.cleaned_up"
	ActionScoreCorrected  Action = "score.override_applied"
)

// Record is one persisted audit line.
type Record struct {
	ID         string
	Action     Action
	Detail     map[string]any
	OccurredAt time.Time
}

// Sink accepts audit events. Record never blocks the caller on storage and
// never reports storage failures.
type Sink interface {
	Record(ctx context.Context, action Action, detail map[string]any)
}

// Writer stores audit records.
type Writer interface {
	Write(ctx context.Context, record Record) error
}

type NopSink struct{}

func (NopSink) Record(context.Context, Action, map[string]any) {}
