package match

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusReady     Status = "ready"
	StatusLive      Status = "live"
	StatusEnded     Status = "ended"
	StatusCanceled  Status = "canceled"
	StatusError     Status = "error"
)

var ErrIllegalTransition = errors.New("illegal match status transition")

// transitions lists, per source status, every status it may move to.
var transitions = map[Status]map[Status]struct{}{
	StatusDraft:     set(StatusScheduled, StatusReady, StatusLive, StatusEnded, StatusCanceled),
	StatusScheduled: set(StatusReady, StatusLive, StatusEnded, StatusCanceled),
	StatusReady:     set(StatusLive, StatusEnded),
	StatusLive:      set(StatusEnded),
	StatusEnded:     {},
	StatusCanceled:  {},
	StatusError:     {},
}

func set(statuses ...Status) map[Status]struct{} {
	out := make(map[Status]struct{}, len(statuses))
	for _, s := range statuses {
		out[s] = struct{}{}
	}
	return out
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := transitions[s]; !ok {
		return "", fmt.Errorf("unknown match status %q", raw)
	}
	return s, nil
}

func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// ValidateTransition returns an error wrapping ErrIllegalTransition that names
// both statuses when from may not move to to.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: cannot move match from %s to %s", ErrIllegalTransition, from, to)
}

// AllowedFrom lists the destinations of from in a stable order.
func AllowedFrom(from Status) []Status {
	out := make([]Status, 0, len(transitions[from]))
	for to := range transitions[from] {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsTerminal reports statuses with no outbound transitions.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Cancelable covers the statuses the cancel operation accepts. This is wider
// than the generic table: a ready match may be canceled explicitly even
// though a plain status patch from ready to canceled is rejected.
func (s Status) Cancelable() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusReady:
		return true
	default:
		return false
	}
}
