package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/live-match/internal/domain/scoring"
)

// MatchLookup is the slice of the match store the set store depends on.
// LockRow serializes against match status updates and returns the unlock.
type MatchLookup interface {
	Exists(matchID string) bool
	Status(matchID string) (string, bool)
	LockRow(matchID string) func()
}

// SetStore keeps set rows per match. Writes inside WithinMatchTx are staged
// and applied only when fn succeeds.
type SetStore struct {
	matches MatchLookup

	mu   sync.RWMutex
	sets map[string]map[int]scoring.SetScore
	now  func() time.Time
}

func NewSetStore(matches MatchLookup) *SetStore {
	return &SetStore{
		matches: matches,
		sets:    make(map[string]map[int]scoring.SetScore),
		now:     time.Now,
	}
}

func (s *SetStore) ListSets(_ context.Context, matchID string) ([]scoring.SetScore, error) {
	if !s.matches.Exists(matchID) {
		return nil, scoring.ErrMatchNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedSets(s.sets[matchID]), nil
}

func (s *SetStore) WithinMatchTx(ctx context.Context, matchID string, fn func(ctx context.Context, tx scoring.SetTx) error) error {
	unlock := s.matches.LockRow(matchID)
	defer unlock()

	if !s.matches.Exists(matchID) {
		return scoring.ErrMatchNotFound
	}

	s.mu.RLock()
	staged := make(map[int]scoring.SetScore, len(s.sets[matchID]))
	for number, set := range s.sets[matchID] {
		staged[number] = set
	}
	s.mu.RUnlock()

	tx := &setTx{matchID: matchID, rows: staged, matches: s.matches, now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.sets[matchID] = tx.rows
	s.mu.Unlock()
	return nil
}

type setTx struct {
	matchID string
	rows    map[int]scoring.SetScore
	matches MatchLookup
	now     func() time.Time
}

func (t *setTx) MatchStatus(context.Context) (string, error) {
	status, ok := t.matches.Status(t.matchID)
	if !ok {
		return "", scoring.ErrMatchNotFound
	}
	return status, nil
}

func (t *setTx) ListSets(context.Context) ([]scoring.SetScore, error) {
	return sortedSets(t.rows), nil
}

func (t *setTx) EnsureSet(_ context.Context, setNumber int) (scoring.SetScore, error) {
	if set, ok := t.rows[setNumber]; ok {
		return set, nil
	}
	set := scoring.SetScore{MatchID: t.matchID, SetNumber: setNumber, UpdatedAt: t.now().UTC()}
	t.rows[setNumber] = set
	return set, nil
}

func (t *setTx) SaveSet(_ context.Context, set scoring.SetScore) error {
	set.MatchID = t.matchID
	t.rows[set.SetNumber] = set
	return nil
}

func sortedSets(rows map[int]scoring.SetScore) []scoring.SetScore {
	out := make([]scoring.SetScore, 0, len(rows))
	for _, set := range rows {
		out = append(out, set)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SetNumber < out[j].SetNumber })
	return out
}
