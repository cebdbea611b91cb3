package streampool

import (
	"context"
	"time"
)

// Repository owns durable pool state. Every state change is a single
// conditional write so concurrent service instances cannot double-book.
type Repository interface {
	// ReserveAvailable flips one available entry to reserved. ok is false
	// when no entry is available.
	ReserveAvailable(ctx context.Context) (entry Entry, ok bool, err error)
	// BindToMatch records matchID on a reserved entry. Returns ErrEntryNotReserved
	// when the entry is not reserved or already bound to another match.
	BindToMatch(ctx context.Context, entryID, matchID string) error
	// MarkInUse moves a reserved entry to in_use. changed is false when the
	// entry was already in_use.
	MarkInUse(ctx context.Context, entryID string) (changed bool, err error)
	// ReleaseByExternalStreamID returns the entry to available and clears the
	// match back-reference. A non-empty matchID limits the release to entries
	// bound to that match or to none. changed is false when nothing matched.
	ReleaseByExternalStreamID(ctx context.Context, externalStreamID, matchID string) (changed bool, err error)
	// ReleaseReservedBefore releases reservations not bound to a match and not
	// touched since cutoff. Returns the entries as they were before release.
	ReleaseReservedBefore(ctx context.Context, cutoff time.Time) ([]Entry, error)

	GetByID(ctx context.Context, entryID string) (Entry, bool, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	Insert(ctx context.Context, entry Entry) error
	// DeleteRetiredBefore removes disabled entries and unbound available
	// entries not touched since cutoff.
	DeleteRetiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}
