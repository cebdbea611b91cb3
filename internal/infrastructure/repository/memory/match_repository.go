package memory

import (
	"context"
	"sync"

	"github.com/riskibarqy/live-match/internal/domain/match"
)

type MatchRepository struct {
	mu      sync.RWMutex
	matches map[string]match.Match
	byKey   map[string]string

	rowsMu sync.Mutex
	rows   map[string]*sync.Mutex
}

func NewMatchRepository() *MatchRepository {
	return &MatchRepository{
		matches: make(map[string]match.Match),
		byKey:   make(map[string]string),
		rows:    make(map[string]*sync.Mutex),
	}
}

func (r *MatchRepository) Create(_ context.Context, m match.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.IdempotencyKey != "" {
		if _, taken := r.byKey[m.IdempotencyKey]; taken {
			return match.ErrDuplicateIdempotencyKey
		}
		r.byKey[m.IdempotencyKey] = m.ID
	}
	r.matches[m.ID] = cloneMatch(m)
	return nil
}

func (r *MatchRepository) GetByID(_ context.Context, matchID string) (match.Match, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.matches[matchID]
	if !ok {
		return match.Match{}, false, nil
	}
	return cloneMatch(item), true, nil
}

func (r *MatchRepository) GetByIdempotencyKey(_ context.Context, key string) (match.Match, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matchID, ok := r.byKey[key]
	if !ok {
		return match.Match{}, false, nil
	}
	item, ok := r.matches[matchID]
	if !ok {
		return match.Match{}, false, nil
	}
	return cloneMatch(item), true, nil
}

func (r *MatchRepository) Update(_ context.Context, m match.Match, expected match.Status) (bool, error) {
	unlock := r.LockRow(m.ID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.matches[m.ID]
	if !ok || current.Status != expected {
		return false, nil
	}

	m.IdempotencyKey = current.IdempotencyKey
	m.CreatedAt = current.CreatedAt
	r.matches[m.ID] = cloneMatch(m)
	return true, nil
}

// Exists is used by the set store to reject writes for unknown matches.
func (r *MatchRepository) Exists(matchID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.matches[matchID]
	return ok
}

func (r *MatchRepository) Status(matchID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.matches[matchID]
	return string(item.Status), ok
}

// LockRow holds the match row the way SELECT ... FOR UPDATE does: status
// updates wait until the returned func is called.
func (r *MatchRepository) LockRow(matchID string) func() {
	r.rowsMu.Lock()
	lock, ok := r.rows[matchID]
	if !ok {
		lock = &sync.Mutex{}
		r.rows[matchID] = lock
	}
	r.rowsMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func cloneMatch(m match.Match) match.Match {
	if m.ScheduledStart != nil {
		start := *m.ScheduledStart
		m.ScheduledStart = &start
	}
	if m.Rules != nil {
		rules := *m.Rules
		m.Rules = &rules
	}
	return m
}
