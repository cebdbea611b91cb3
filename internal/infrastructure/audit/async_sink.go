package audit

import (
	"context"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/live-match/internal/domain/audit"
	"github.com/riskibarqy/live-match/internal/platform/id"
	"github.com/riskibarqy/live-match/internal/platform/logging"
)

const defaultWriteTimeout = 5 * time.Second

type AsyncSinkConfig struct {
	Workers      int
	WriteTimeout time.Duration
}

// AsyncSink hands audit records to a bounded worker pool. Record never
// blocks the caller: when every worker is busy the record is dropped and
// counted.
type AsyncSink struct {
	pool         *ants.Pool
	writer       audit.Writer
	ids          id.Generator
	writeTimeout time.Duration
	logger       *logging.Logger
	now          func() time.Time
	dropped      atomic.Int64
}

var _ audit.Sink = (*AsyncSink)(nil)

func NewAsyncSink(writer audit.Writer, ids id.Generator, cfg AsyncSinkConfig, logger *logging.Logger) (*AsyncSink, error) {
	if logger == nil {
		logger = logging.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create audit worker pool: %w", err)
	}

	return &AsyncSink{
		pool:         pool,
		writer:       writer,
		ids:          ids,
		writeTimeout: timeout,
		logger:       logger.Named("audit"),
		now:          time.Now,
	}, nil
}

func (s *AsyncSink) Record(ctx context.Context, action audit.Action, detail map[string]any) {
	recordID, err := s.ids.NewID()
	if err != nil {
		s.logger.WarnContext(ctx, "audit record dropped: id generation failed", "action", action, "error", err)
		return
	}
	record := audit.Record{
		ID:         recordID,
		Action:     action,
		Detail:     maps.Clone(detail),
		OccurredAt: s.now().UTC(),
	}

	writeCtx := context.WithoutCancel(ctx)
	err = s.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(writeCtx, s.writeTimeout)
		defer cancel()
		if err := s.writer.Write(ctx, record); err != nil {
			s.logger.WarnContext(ctx, "audit write failed", "action", record.Action, "record_id", record.ID, "error", err)
		}
	})
	if err != nil {
		s.dropped.Add(1)
		s.logger.WarnContext(ctx, "audit record dropped", "action", action, "error", err)
	}
}

// Dropped reports how many records were discarded because the pool was saturated or closed.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close waits up to timeout for in-flight writes and stops the pool.
func (s *AsyncSink) Close(timeout time.Duration) error {
	if err := s.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("release audit worker pool: %w", err)
	}
	return nil
}

// LogSink writes audit records to the structured log only.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Record(ctx context.Context, action audit.Action, detail map[string]any) {
	s.logger.InfoContext(ctx, "audit", "action", action, "detail", detail)
}
