package cache

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/riskibarqy/live-match/internal/domain/scoring"
	"github.com/riskibarqy/live-match/internal/domain/team"
	"github.com/riskibarqy/live-match/internal/domain/tournament"
	basecache "github.com/riskibarqy/live-match/internal/platform/cache"
)

type cachedLookup[T any] struct {
	Value  T    `json:"value"`
	Exists bool `json:"exists"`
}

// loadJSON serves key from cache, encoding loader results with sonic.
func loadJSON[T any](ctx context.Context, cache *basecache.ReadThrough, key string, loader func(context.Context) (T, error)) (T, error) {
	var out T
	raw, err := cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		return sonic.Marshal(value)
	})
	if err != nil {
		return out, err
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		_ = cache.Invalidate(ctx, key)
		return loader(ctx)
	}
	return out, nil
}

type TeamRepository struct {
	next  team.Repository
	cache *basecache.ReadThrough
}

func NewTeamRepository(next team.Repository, cache *basecache.ReadThrough) *TeamRepository {
	return &TeamRepository{next: next, cache: cache}
}

func (r *TeamRepository) GetByID(ctx context.Context, teamID string) (team.Team, bool, error) {
	cached, err := loadJSON(ctx, r.cache, "team:id:"+teamID, func(ctx context.Context) (cachedLookup[team.Team], error) {
		item, exists, err := r.next.GetByID(ctx, teamID)
		return cachedLookup[team.Team]{Value: item, Exists: exists}, err
	})
	if err != nil {
		return team.Team{}, false, err
	}
	return cached.Value, cached.Exists, nil
}

func (r *TeamRepository) ListEnabled(ctx context.Context) ([]team.Team, error) {
	return loadJSON(ctx, r.cache, "team:enabled", r.next.ListEnabled)
}

type TournamentRepository struct {
	next  tournament.Repository
	cache *basecache.ReadThrough
}

func NewTournamentRepository(next tournament.Repository, cache *basecache.ReadThrough) *TournamentRepository {
	return &TournamentRepository{next: next, cache: cache}
}

func (r *TournamentRepository) GetByID(ctx context.Context, tournamentID string) (tournament.Tournament, bool, error) {
	cached, err := loadJSON(ctx, r.cache, "tournament:id:"+tournamentID, func(ctx context.Context) (cachedLookup[tournament.Tournament], error) {
		item, exists, err := r.next.GetByID(ctx, tournamentID)
		return cachedLookup[tournament.Tournament]{Value: item, Exists: exists}, err
	})
	if err != nil {
		return tournament.Tournament{}, false, err
	}
	return cached.Value, cached.Exists, nil
}

// SetStore caches set lists per match. A successful WithinMatchTx writes
// the committed rows back under the same key, replacing anything a read that
// started before the commit could still produce.
type SetStore struct {
	next  scoring.SetStore
	cache *basecache.ReadThrough
}

func NewSetStore(next scoring.SetStore, cache *basecache.ReadThrough) *SetStore {
	return &SetStore{next: next, cache: cache}
}

func (s *SetStore) ListSets(ctx context.Context, matchID string) ([]scoring.SetScore, error) {
	sets, err := loadJSON(ctx, s.cache, setsKey(matchID), func(ctx context.Context) ([]scoring.SetScore, error) {
		return s.next.ListSets(ctx, matchID)
	})
	if err != nil {
		return nil, err
	}
	if sets == nil {
		sets = []scoring.SetScore{}
	}
	return sets, nil
}

func (s *SetStore) WithinMatchTx(ctx context.Context, matchID string, fn func(ctx context.Context, tx scoring.SetTx) error) error {
	var committed []scoring.SetScore
	err := s.next.WithinMatchTx(ctx, matchID, func(ctx context.Context, tx scoring.SetTx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		rows, err := tx.ListSets(ctx)
		if err != nil {
			return err
		}
		committed = rows
		return nil
	})
	if err != nil {
		return err
	}

	writeCtx := context.WithoutCancel(ctx)
	key := setsKey(matchID)
	if committed == nil {
		committed = []scoring.SetScore{}
	}
	raw, err := sonic.Marshal(committed)
	if err == nil {
		err = s.cache.Store(writeCtx, key, raw)
	}
	if err != nil {
		_ = s.cache.Invalidate(writeCtx, key)
	}
	return nil
}

func setsKey(matchID string) string {
	return "sets:match:" + matchID
}
