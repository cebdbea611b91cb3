package scoring

import (
	"context"
	"errors"
)

var ErrMatchNotFound = errors.New("match not found")

// SetStore persists set rows per match.
type SetStore interface {
	ListSets(ctx context.Context, matchID string) ([]SetScore, error)

	// WithinMatchTx runs fn while holding an exclusive lock on the match, so
	// concurrent mutations of the same match serialize. Returning an error
	// from fn discards every write made through tx.
	WithinMatchTx(ctx context.Context, matchID string, fn func(ctx context.Context, tx SetTx) error) error
}

// SetTx is the write view of a match's sets inside WithinMatchTx.
type SetTx interface {
	// MatchStatus reads the parent match status under the transaction's lock.
	MatchStatus(ctx context.Context) (string, error)
	ListSets(ctx context.Context) ([]SetScore, error)
	// EnsureSet creates the set at 0-0 when missing and returns the stored row.
	EnsureSet(ctx context.Context, setNumber int) (SetScore, error)
	SaveSet(ctx context.Context, set SetScore) error
}
