package memory

import (
	"context"
	"sync"

	"github.com/riskibarqy/live-match/internal/domain/tournament"
)

type TournamentRepository struct {
	mu          sync.RWMutex
	tournaments map[string]tournament.Tournament
}

func NewTournamentRepository(items []tournament.Tournament) *TournamentRepository {
	byID := make(map[string]tournament.Tournament, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	return &TournamentRepository{tournaments: byID}
}

func (r *TournamentRepository) GetByID(_ context.Context, tournamentID string) (tournament.Tournament, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.tournaments[tournamentID]
	return item, ok, nil
}
