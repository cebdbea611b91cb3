package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/live-match/internal/domain/audit"
	"github.com/riskibarqy/live-match/internal/domain/broadcast"
	"github.com/riskibarqy/live-match/internal/domain/streampool"
	"github.com/riskibarqy/live-match/internal/platform/id"
	"github.com/riskibarqy/live-match/internal/platform/logging"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
)

const (
	minProvisionBatch = 1
	maxProvisionBatch = 20
)

type StreamPoolConfig struct {
	StuckThreshold       time.Duration
	Retention            time.Duration
	ProvisionConcurrency int
	ProvisionTitlePrefix string
	OverlayBaseURL       string
}

type ProvisionError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// ProvisionResult is a partial result: one failed stream never aborts the others.
type ProvisionResult struct {
	Requested int                `json:"requested"`
	Created   int                `json:"created"`
	Entries   []streampool.Entry `json:"-"`
	Errors    []ProvisionError   `json:"errors"`
}

type StreamPoolService struct {
	repo     streampool.Repository
	provider broadcast.Provider
	ids      id.Generator
	audit    audit.Sink
	metrics  Metrics
	cfg      StreamPoolConfig
	logger   *logging.Logger
	now      func() time.Time
}

func NewStreamPoolService(
	repo streampool.Repository,
	provider broadcast.Provider,
	ids id.Generator,
	sink audit.Sink,
	metrics Metrics,
	cfg StreamPoolConfig,
	logger *logging.Logger,
) *StreamPoolService {
	if ids == nil {
		ids = id.NewUUIDGenerator()
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = 6 * time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.ProvisionConcurrency <= 0 {
		cfg.ProvisionConcurrency = 4
	}
	if strings.TrimSpace(cfg.ProvisionTitlePrefix) == "" {
		cfg.ProvisionTitlePrefix = "Live Match Pool"
	}

	return &StreamPoolService{
		repo:     repo,
		provider: provider,
		ids:      ids,
		audit:    sink,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger.Named("stream_pool"),
		now:      time.Now,
	}
}

// Reserve claims one available entry. ok is false when the pool is exhausted.
func (s *StreamPoolService) Reserve(ctx context.Context) (streampool.Entry, bool, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.StreamPoolService.Reserve")
	defer span.End()

	entry, ok, err := s.repo.ReserveAvailable(ctx)
	if err != nil {
		return streampool.Entry{}, false, fmt.Errorf("reserve stream pool entry: %w", err)
	}
	if !ok {
		s.logger.WarnContext(ctx, "stream pool exhausted")
		return streampool.Entry{}, false, nil
	}

	span.SetAttributes(attribute.String("stream_pool.entry_id", entry.ID))
	s.logger.DebugContext(ctx, "stream pool entry reserved", "entry_id", entry.ID)
	return entry, true, nil
}

func (s *StreamPoolService) BindToMatch(ctx context.Context, entryID, matchID string) error {
	entryID = strings.TrimSpace(entryID)
	matchID = strings.TrimSpace(matchID)
	if entryID == "" || matchID == "" {
		return fmt.Errorf("%w: entry id and match id are required", ErrInvalidInput)
	}

	if err := s.repo.BindToMatch(ctx, entryID, matchID); err != nil {
		return fmt.Errorf("bind entry=%s to match=%s: %w", entryID, matchID, err)
	}
	return nil
}

// Release returns the entry to available whoever holds it. Releasing an entry
// that is already available is a no-op.
func (s *StreamPoolService) Release(ctx context.Context, externalStreamID string) error {
	externalStreamID = strings.TrimSpace(externalStreamID)
	if externalStreamID == "" {
		return fmt.Errorf("%w: external stream id is required", ErrInvalidInput)
	}
	return s.release(ctx, externalStreamID, "")
}

func (s *StreamPoolService) release(ctx context.Context, externalStreamID, matchID string) error {
	changed, err := s.repo.ReleaseByExternalStreamID(ctx, externalStreamID, matchID)
	if err != nil {
		return fmt.Errorf("release external stream=%s: %w", externalStreamID, err)
	}
	if changed {
		s.logger.InfoContext(ctx, "stream pool entry released", "external_stream_id", externalStreamID, "match_id", matchID)
	}
	return nil
}

// ReleaseEntry releases the entry on behalf of matchID. An entry already
// bound to a different match is left alone. Unknown entries are ignored.
func (s *StreamPoolService) ReleaseEntry(ctx context.Context, entryID, matchID string) error {
	entry, exists, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get stream pool entry=%s: %w", entryID, err)
	}
	if !exists {
		s.logger.WarnContext(ctx, "release skipped, stream pool entry missing", "entry_id", entryID)
		return nil
	}
	if entry.ReservedMatchID != "" && entry.ReservedMatchID != matchID {
		s.logger.WarnContext(ctx, "release skipped, stream pool entry held by another match",
			"entry_id", entryID,
			"match_id", matchID,
			"reserved_match_id", entry.ReservedMatchID,
		)
		return nil
	}
	return s.release(ctx, entry.ExternalStreamID, matchID)
}

func (s *StreamPoolService) MarkInUse(ctx context.Context, entryID string) error {
	changed, err := s.repo.MarkInUse(ctx, entryID)
	if err != nil {
		return fmt.Errorf("mark entry=%s in use: %w", entryID, err)
	}
	if changed {
		s.logger.InfoContext(ctx, "stream pool entry in use", "entry_id", entryID)
	}
	return nil
}

func (s *StreamPoolService) Get(ctx context.Context, entryID string) (streampool.Entry, error) {
	entry, exists, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return streampool.Entry{}, fmt.Errorf("get stream pool entry=%s: %w", entryID, err)
	}
	if !exists {
		return streampool.Entry{}, fmt.Errorf("%w: stream pool entry=%s", ErrNotFound, entryID)
	}
	return entry, nil
}

// Summary runs the stuck sweep first so counts never include stale reservations.
func (s *StreamPoolService) Summary(ctx context.Context) (streampool.Summary, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.StreamPoolService.Summary")
	defer span.End()

	recovered, err := s.RecoverStuck(ctx, 0)
	if err != nil {
		return streampool.Summary{}, err
	}

	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return streampool.Summary{}, fmt.Errorf("count stream pool entries: %w", err)
	}

	summary := streampool.SummaryFromCounts(counts)
	summary.RecoveredStuck = recovered
	s.metrics.ObservePoolSummary(summary)
	return summary, nil
}

// RecoverStuck force-releases unbound reservations older than threshold. A
// zero threshold uses the configured one. Reservations bound to a match are
// released by that match's own close. Detected entries are reported as stuck
// in logs and audit before they return to available.
func (s *StreamPoolService) RecoverStuck(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = s.cfg.StuckThreshold
	}
	cutoff := s.now().UTC().Add(-threshold)

	released, err := s.repo.ReleaseReservedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("recover stuck stream pool entries: %w", err)
	}
	if len(released) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(released))
	for _, entry := range released {
		ids = append(ids, entry.ID)
		s.logger.WarnContext(ctx, "stuck stream pool entry released",
			"entry_id", entry.ID,
			"status", streampool.StatusStuck,
			"reserved_match_id", entry.ReservedMatchID,
			"reserved_since", entry.UpdatedAt,
		)
	}
	s.audit.Record(ctx, audit.ActionPoolRecovered, map[string]any{
		"entryIds":  ids,
		"threshold": threshold.String(),
	})
	return len(released), nil
}

// ProvisionBatch creates count physical streams and stores each as an
// available entry. count must be within 1..20.
func (s *StreamPoolService) ProvisionBatch(ctx context.Context, count int) (ProvisionResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.StreamPoolService.ProvisionBatch")
	defer span.End()

	if count < minProvisionBatch || count > maxProvisionBatch {
		return ProvisionResult{}, fmt.Errorf("%w: count must be between %d and %d", ErrInvalidInput, minProvisionBatch, maxProvisionBatch)
	}
	span.SetAttributes(attribute.Int("stream_pool.provision_count", count))

	var (
		mu     sync.Mutex
		result = ProvisionResult{Requested: count}
	)

	workers := pool.New().WithMaxGoroutines(s.cfg.ProvisionConcurrency)
	for i := 0; i < count; i++ {
		index := i
		workers.Go(func() {
			entry, err := s.provisionOne(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.WarnContext(ctx, "provision stream failed", "index", index, "error", err)
				result.Errors = append(result.Errors, ProvisionError{Index: index, Message: err.Error()})
				return
			}
			result.Entries = append(result.Entries, entry)
		})
	}
	workers.Wait()

	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Index < result.Errors[j].Index })
	result.Created = len(result.Entries)
	if result.Errors == nil {
		result.Errors = []ProvisionError{}
	}

	s.logger.InfoContext(ctx, "stream pool provisioned", "requested", count, "created", result.Created, "failed", len(result.Errors))
	s.audit.Record(ctx, audit.ActionPoolProvisioned, map[string]any{
		"requested": count,
		"created":   result.Created,
		"failed":    len(result.Errors),
	})
	return result, nil
}

func (s *StreamPoolService) provisionOne(ctx context.Context) (streampool.Entry, error) {
	entryID, err := s.ids.NewID()
	if err != nil {
		return streampool.Entry{}, err
	}
	title := fmt.Sprintf("%s %s", s.cfg.ProvisionTitlePrefix, shortID(entryID))

	stream, err := s.provider.CreatePhysicalStream(ctx, title)
	if err != nil {
		return streampool.Entry{}, fmt.Errorf("%w: %w", ErrDependencyUnavailable, crerr.Wrapf(err, "create physical stream %q", title))
	}

	now := s.now().UTC()
	entry := streampool.Entry{
		ID:               entryID,
		ExternalStreamID: stream.ExternalStreamID,
		IngestAddress:    stream.IngestAddress,
		StreamCredential: stream.StreamCredential,
		Title:            title,
		Status:           streampool.StatusAvailable,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := entry.Validate(); err != nil {
		return streampool.Entry{}, fmt.Errorf("%w: provider returned incomplete stream: %v", ErrDependencyUnavailable, err)
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return streampool.Entry{}, fmt.Errorf("insert stream pool entry: %w", err)
	}
	return entry, nil
}

// CleanupRetired deletes disabled and idle available entries untouched for
// longer than olderThan. A zero olderThan uses the configured retention.
func (s *StreamPoolService) CleanupRetired(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = s.cfg.Retention
	}
	deleted, err := s.repo.DeleteRetiredBefore(ctx, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup retired stream pool entries: %w", err)
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "retired stream pool entries deleted", "count", deleted)
		s.audit.Record(ctx, audit.ActionPoolCleanedUp, map[string]any{"deleted": deleted})
	}
	return deleted, nil
}

// Connection returns what a streaming client needs to push to the entry.
// matchID, when set, is used to build the overlay link.
func (s *StreamPoolService) Connection(ctx context.Context, entryID, matchID string) (streampool.Connection, error) {
	entry, err := s.Get(ctx, entryID)
	if err != nil {
		return streampool.Connection{}, err
	}
	conn := entry.Connection()
	if base := strings.TrimRight(s.cfg.OverlayBaseURL, "/"); base != "" && matchID != "" {
		conn.OverlayURL = base + "/overlay/" + matchID
	}
	return conn, nil
}

func shortID(v string) string {
	v = strings.ReplaceAll(v, "-", "")
	if len(v) > 8 {
		return v[:8]
	}
	return v
}
