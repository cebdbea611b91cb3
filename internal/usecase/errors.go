package usecase

import (
	"errors"
	"fmt"

	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/domain/scoring"
	"github.com/riskibarqy/live-match/internal/domain/streampool"
	"github.com/riskibarqy/live-match/internal/platform/resilience"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrConflict              = errors.New("state conflict")
	ErrNoStreamsAvailable    = errors.New("no streams available")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Kind classifies an error for callers that must decide between retrying,
// fixing the request, or escalating.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindStateConflict Kind = "state_conflict"
	KindExhausted     Kind = "exhausted"
	KindDependency    Kind = "dependency"
	KindUnauthorized  Kind = "unauthorized"
	KindFatal         Kind = "fatal"
)

// Retryable reports whether the same request may succeed later unchanged.
func (k Kind) Retryable() bool {
	return k == KindExhausted || k == KindDependency
}

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput), errors.Is(err, scoring.ErrInvalidRules):
		return KindValidation
	case errors.Is(err, ErrNotFound),
		errors.Is(err, scoring.ErrMatchNotFound),
		errors.Is(err, streampool.ErrEntryNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict),
		errors.Is(err, match.ErrIllegalTransition),
		errors.Is(err, streampool.ErrEntryNotReserved),
		errors.Is(err, streampool.ErrDuplicateStream):
		return KindStateConflict
	case errors.Is(err, ErrNoStreamsAvailable):
		return KindExhausted
	case errors.Is(err, ErrDependencyUnavailable), errors.Is(err, resilience.ErrCircuitOpen):
		return KindDependency
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	default:
		return KindFatal
	}
}

// PoolExhaustedError carries the pool counts observed when no entry could be
// reserved.
type PoolExhaustedError struct {
	Summary streampool.Summary
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("%s: available=%d reserved=%d in_use=%d total=%d",
		ErrNoStreamsAvailable, e.Summary.Available, e.Summary.Reserved, e.Summary.InUse, e.Summary.Total)
}

func (e *PoolExhaustedError) Unwrap() error {
	return ErrNoStreamsAvailable
}
