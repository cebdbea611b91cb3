package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/live-match/internal/domain/streampool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(id string, status streampool.Status, updated time.Time) streampool.Entry {
	return streampool.Entry{
		ID:               id,
		ExternalStreamID: "ext-" + id,
		IngestAddress:    "rtmp://ingest.example/live2",
		StreamCredential: "key-" + id,
		Status:           status,
		CreatedAt:        updated,
		UpdatedAt:        updated,
	}
}

func TestStreamPoolRepository_ConcurrentReserveNeverDoubleBooks(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	const poolSize = 5
	entries := make([]streampool.Entry, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		entries = append(entries, newEntry(fmt.Sprintf("e%d", i), streampool.StatusAvailable, base))
	}
	repo := NewStreamPoolRepository(entries...)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[string]int)
		misses  int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, ok, err := repo.ReserveAvailable(context.Background())
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			if !ok {
				misses++
				return
			}
			claimed[entry.ID]++
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, poolSize)
	for entryID, n := range claimed {
		assert.Equal(t, 1, n, "entry %s reserved more than once", entryID)
	}
	assert.Equal(t, 15, misses)
}

func TestStreamPoolRepository_ReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	repo := NewStreamPoolRepository(newEntry("e1", streampool.StatusAvailable, base))
	repo.SetClock(func() time.Time { return base.Add(time.Hour) })

	changed, err := repo.ReleaseByExternalStreamID(context.Background(), "ext-e1", "")
	require.NoError(t, err)
	assert.False(t, changed)

	entry, _, _ := repo.GetByID(context.Background(), "e1")
	assert.Equal(t, streampool.StatusAvailable, entry.Status)
	assert.Equal(t, base, entry.UpdatedAt, "no-op release must not touch the row")

	changed, err = repo.ReleaseByExternalStreamID(context.Background(), "ext-unknown", "")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStreamPoolRepository_BindAndMarkInUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewStreamPoolRepository(newEntry("e1", streampool.StatusAvailable, time.Now()))

	entry, ok, err := repo.ReserveAvailable(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.BindToMatch(ctx, entry.ID, "m1"))
	require.NoError(t, repo.BindToMatch(ctx, entry.ID, "m1"))
	assert.ErrorIs(t, repo.BindToMatch(ctx, entry.ID, "m2"), streampool.ErrEntryNotReserved)

	changed, err := repo.MarkInUse(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.MarkInUse(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.ReleaseByExternalStreamID(ctx, entry.ExternalStreamID, "m2")
	require.NoError(t, err)
	assert.False(t, changed, "m2 does not hold the entry")

	changed, err = repo.ReleaseByExternalStreamID(ctx, entry.ExternalStreamID, "m1")
	require.NoError(t, err)
	assert.True(t, changed)

	stored, _, _ := repo.GetByID(ctx, entry.ID)
	assert.Equal(t, streampool.StatusAvailable, stored.Status)
	assert.Empty(t, stored.ReservedMatchID)
}

func TestStreamPoolRepository_ReleaseReservedBefore(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 20, 0, 0, 0, time.UTC)
	bound := newEntry("bound", streampool.StatusReserved, now.Add(-7*time.Hour))
	bound.ReservedMatchID = "m-scheduled"
	repo := NewStreamPoolRepository(
		newEntry("old", streampool.StatusReserved, now.Add(-7*time.Hour)),
		newEntry("fresh", streampool.StatusReserved, now.Add(-time.Hour)),
		newEntry("live", streampool.StatusInUse, now.Add(-10*time.Hour)),
		bound,
	)
	repo.SetClock(func() time.Time { return now })

	released, err := repo.ReleaseReservedBefore(context.Background(), now.Add(-6*time.Hour))
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, "old", released[0].ID)
	assert.Equal(t, streampool.StatusReserved, released[0].Status)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[streampool.StatusAvailable])
	assert.Equal(t, 2, counts[streampool.StatusReserved])
	assert.Equal(t, 1, counts[streampool.StatusInUse])
}

func TestStreamPoolRepository_InsertRejectsDuplicateStream(t *testing.T) {
	t.Parallel()

	repo := NewStreamPoolRepository(newEntry("e1", streampool.StatusAvailable, time.Now()))
	dup := newEntry("e2", streampool.StatusAvailable, time.Now())
	dup.ExternalStreamID = "ext-e1"

	assert.ErrorIs(t, repo.Insert(context.Background(), dup), streampool.ErrDuplicateStream)
}
