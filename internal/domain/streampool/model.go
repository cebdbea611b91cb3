package streampool

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusInUse     Status = "in_use"
	StatusStuck     Status = "stuck"
	StatusDisabled  Status = "disabled"
)

var (
	ErrEntryNotFound    = errors.New("stream pool entry not found")
	ErrEntryNotReserved = errors.New("stream pool entry is not reserved")
	ErrDuplicateStream  = errors.New("external stream already registered")
)

// Entry is one provisioned ingest endpoint. ReservedMatchID is a
// back-reference to the match holding the reservation, empty when unbound.
type Entry struct {
	ID               string
	ExternalStreamID string
	IngestAddress    string
	StreamCredential string
	Title            string
	Status           Status
	ReservedMatchID  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Connection is what a streaming client needs to push video to the entry.
type Connection struct {
	EntryID          string `json:"entryId"`
	ExternalStreamID string `json:"externalStreamId"`
	IngestAddress    string `json:"ingestAddress"`
	StreamCredential string `json:"streamCredential"`
	Title            string `json:"title"`
	OverlayURL       string `json:"overlayUrl,omitempty"`
}

func (e Entry) Connection() Connection {
	return Connection{
		EntryID:          e.ID,
		ExternalStreamID: e.ExternalStreamID,
		IngestAddress:    e.IngestAddress,
		StreamCredential: e.StreamCredential,
		Title:            e.Title,
	}
}

// Releasable reports whether release moves the entry back to available.
// Available entries are already released; disabled entries stay disabled.
func (e Entry) Releasable() bool {
	switch e.Status {
	case StatusReserved, StatusInUse, StatusStuck:
		return true
	default:
		return false
	}
}

func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("stream pool entry id is required")
	}
	if e.ExternalStreamID == "" {
		return fmt.Errorf("external stream id is required")
	}
	if e.IngestAddress == "" {
		return fmt.Errorf("ingest address is required")
	}
	if e.StreamCredential == "" {
		return fmt.Errorf("stream credential is required")
	}
	switch e.Status {
	case StatusAvailable, StatusReserved, StatusInUse, StatusStuck, StatusDisabled:
	default:
		return fmt.Errorf("unknown stream pool status %q", e.Status)
	}
	return nil
}

// Summary counts entries per status. RecoveredStuck is the number of stale
// reservations the recovery sweep released while producing this summary.
type Summary struct {
	Available      int `json:"available"`
	Reserved       int `json:"reserved"`
	InUse          int `json:"inUse"`
	Stuck          int `json:"stuck"`
	Disabled       int `json:"disabled"`
	Total          int `json:"total"`
	RecoveredStuck int `json:"recoveredStuck"`
}

func SummaryFromCounts(counts map[Status]int) Summary {
	s := Summary{
		Available: counts[StatusAvailable],
		Reserved:  counts[StatusReserved],
		InUse:     counts[StatusInUse],
		Stuck:     counts[StatusStuck],
		Disabled:  counts[StatusDisabled],
	}
	for _, n := range counts {
		s.Total += n
	}
	return s
}
