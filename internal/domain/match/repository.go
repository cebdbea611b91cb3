package match

import "context"

type Repository interface {
	// Create inserts m. Returns ErrDuplicateIdempotencyKey when another match
	// already carries m.IdempotencyKey.
	Create(ctx context.Context, m Match) error
	GetByID(ctx context.Context, matchID string) (Match, bool, error)
	GetByIdempotencyKey(ctx context.Context, key string) (Match, bool, error)
	// Update writes m only while the stored status still equals expected.
	// updated is false when a concurrent writer changed the status first.
	Update(ctx context.Context, m Match, expected Status) (updated bool, err error)
}
