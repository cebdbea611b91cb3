package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/live-match/internal/domain/streampool"
)

// StreamPoolRepository keeps entries in process. A single mutex makes every
// state change atomic, mirroring the conditional updates of the SQL store.
type StreamPoolRepository struct {
	mu      sync.Mutex
	entries map[string]streampool.Entry
	now     func() time.Time
}

func NewStreamPoolRepository(entries ...streampool.Entry) *StreamPoolRepository {
	r := &StreamPoolRepository{
		entries: make(map[string]streampool.Entry, len(entries)),
		now:     time.Now,
	}
	for _, entry := range entries {
		r.entries[entry.ID] = entry
	}
	return r
}

// SetClock overrides the timestamp source for tests.
func (r *StreamPoolRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *StreamPoolRepository) ReserveAvailable(_ context.Context) (streampool.Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var picked *streampool.Entry
	for _, entry := range r.entries {
		if entry.Status != streampool.StatusAvailable {
			continue
		}
		if picked == nil || entry.UpdatedAt.Before(picked.UpdatedAt) ||
			(entry.UpdatedAt.Equal(picked.UpdatedAt) && entry.ID < picked.ID) {
			candidate := entry
			picked = &candidate
		}
	}
	if picked == nil {
		return streampool.Entry{}, false, nil
	}

	picked.Status = streampool.StatusReserved
	picked.ReservedMatchID = ""
	picked.UpdatedAt = r.now().UTC()
	r.entries[picked.ID] = *picked
	return *picked, true, nil
}

func (r *StreamPoolRepository) BindToMatch(_ context.Context, entryID, matchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[entryID]
	if !ok {
		return streampool.ErrEntryNotFound
	}
	if entry.Status != streampool.StatusReserved || (entry.ReservedMatchID != "" && entry.ReservedMatchID != matchID) {
		return streampool.ErrEntryNotReserved
	}

	entry.ReservedMatchID = matchID
	entry.UpdatedAt = r.now().UTC()
	r.entries[entryID] = entry
	return nil
}

func (r *StreamPoolRepository) MarkInUse(_ context.Context, entryID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[entryID]
	if !ok {
		return false, streampool.ErrEntryNotFound
	}
	switch entry.Status {
	case streampool.StatusInUse:
		return false, nil
	case streampool.StatusReserved:
	default:
		return false, streampool.ErrEntryNotReserved
	}

	entry.Status = streampool.StatusInUse
	entry.UpdatedAt = r.now().UTC()
	r.entries[entryID] = entry
	return true, nil
}

func (r *StreamPoolRepository) ReleaseByExternalStreamID(_ context.Context, externalStreamID, matchID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for entryID, entry := range r.entries {
		if entry.ExternalStreamID != externalStreamID {
			continue
		}
		if !entry.Releasable() {
			return false, nil
		}
		if matchID != "" && entry.ReservedMatchID != "" && entry.ReservedMatchID != matchID {
			return false, nil
		}
		entry.Status = streampool.StatusAvailable
		entry.ReservedMatchID = ""
		entry.UpdatedAt = r.now().UTC()
		r.entries[entryID] = entry
		return true, nil
	}
	return false, nil
}

func (r *StreamPoolRepository) ReleaseReservedBefore(_ context.Context, cutoff time.Time) ([]streampool.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var released []streampool.Entry
	now := r.now().UTC()
	for entryID, entry := range r.entries {
		if entry.Status != streampool.StatusReserved || entry.ReservedMatchID != "" || !entry.UpdatedAt.Before(cutoff) {
			continue
		}
		released = append(released, entry)

		entry.Status = streampool.StatusAvailable
		entry.ReservedMatchID = ""
		entry.UpdatedAt = now
		r.entries[entryID] = entry
	}
	sort.Slice(released, func(i, j int) bool { return released[i].ID < released[j].ID })
	return released, nil
}

func (r *StreamPoolRepository) GetByID(_ context.Context, entryID string) (streampool.Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[entryID]
	return entry, ok, nil
}

func (r *StreamPoolRepository) CountByStatus(_ context.Context) (map[streampool.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[streampool.Status]int)
	for _, entry := range r.entries {
		counts[entry.Status]++
	}
	return counts, nil
}

func (r *StreamPoolRepository) Insert(_ context.Context, entry streampool.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.entries {
		if existing.ExternalStreamID == entry.ExternalStreamID {
			return streampool.ErrDuplicateStream
		}
	}
	r.entries[entry.ID] = entry
	return nil
}

func (r *StreamPoolRepository) DeleteRetiredBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for entryID, entry := range r.entries {
		idle := entry.Status == streampool.StatusAvailable && entry.ReservedMatchID == ""
		if (entry.Status == streampool.StatusDisabled || idle) && entry.UpdatedAt.Before(cutoff) {
			delete(r.entries, entryID)
			deleted++
		}
	}
	return deleted, nil
}
