package streampool

import "testing"

func TestSummaryFromCounts(t *testing.T) {
	s := SummaryFromCounts(map[Status]int{
		StatusAvailable: 3,
		StatusReserved:  1,
		StatusInUse:     2,
		StatusDisabled:  4,
	})
	if s.Total != 10 {
		t.Fatalf("expected total 10, got %d", s.Total)
	}
	if s.Available != 3 || s.InUse != 2 || s.Stuck != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestEntryReleasable(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusAvailable: false,
		StatusReserved:  true,
		StatusInUse:     true,
		StatusStuck:     true,
		StatusDisabled:  false,
	} {
		if got := (Entry{Status: status}).Releasable(); got != want {
			t.Fatalf("status %s releasable=%v want=%v", status, got, want)
		}
	}
}
