package cache

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/riskibarqy/live-match/internal/platform/resilience"
)

// Store holds encoded values by key. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store with a fixed TTL. A zero TTL never expires.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, nil
	}

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(s.now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	return append([]byte(nil), e.value...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return nil
	}

	e := memoryEntry{value: append([]byte(nil), value...)}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	return nil
}

// NopStore never holds anything; every Get is a miss.
type NopStore struct{}

func (NopStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NopStore) Set(context.Context, string, []byte) error         { return nil }
func (NopStore) Delete(context.Context, ...string) error           { return nil }

// ReadThrough serves values from a Store and loads misses once per key even
// under concurrent callers. Store read failures are treated as misses.
//
// Every write through Store or Invalidate bumps a generation for the key. A
// load that started under an older generation returns its value to its own
// callers but never writes it back, so it cannot overwrite a newer commit.
type ReadThrough struct {
	store   Store
	flight  resilience.Group[[]byte]
	stripes [generationStripes]generationStripe
}

const generationStripes = 64

// generationStripe guards a generation counter and the store writes made
// against it, so checking the generation and writing happen as one step.
type generationStripe struct {
	mu  sync.Mutex
	gen uint64
}

func NewReadThrough(store Store) *ReadThrough {
	if store == nil {
		store = NopStore{}
	}
	return &ReadThrough{store: store}
}

func (r *ReadThrough) stripe(key string) *generationStripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &r.stripes[h.Sum32()%generationStripes]
}

func (r *ReadThrough) GetOrLoad(ctx context.Context, key string, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if key == "" {
		return loader(ctx)
	}

	if value, ok, err := r.store.Get(ctx, key); err == nil && ok {
		return value, nil
	}

	stripe := r.stripe(key)
	value, err, _ := r.flight.Do(key, func() ([]byte, error) {
		stripe.mu.Lock()
		startedAt := stripe.gen
		stripe.mu.Unlock()

		if cached, ok, getErr := r.store.Get(ctx, key); getErr == nil && ok {
			return cached, nil
		}
		loaded, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		stripe.mu.Lock()
		if stripe.gen == startedAt {
			_ = r.store.Set(ctx, key, loaded)
		}
		stripe.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Store replaces the cached value for key with a freshly committed one.
func (r *ReadThrough) Store(ctx context.Context, key string, value []byte) error {
	stripe := r.stripe(key)
	stripe.mu.Lock()
	defer stripe.mu.Unlock()

	stripe.gen++
	r.flight.Forget(key)
	return r.store.Set(ctx, key, value)
}

func (r *ReadThrough) Invalidate(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		stripe := r.stripe(key)
		stripe.mu.Lock()
		stripe.gen++
		r.flight.Forget(key)
		err := r.store.Delete(ctx, key)
		stripe.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}
