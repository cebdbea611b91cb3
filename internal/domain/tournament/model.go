package tournament

import (
	"context"
	"time"
)

type Tournament struct {
	ID       string
	Name     string
	StartsOn *time.Time
	EndsOn   *time.Time
}

// Repository describes tournament lookups from use cases.
type Repository interface {
	GetByID(ctx context.Context, tournamentID string) (Tournament, bool, error)
}
