package scoring

import (
	"sort"
	"time"
)

type Side string

const (
	SideNone Side = ""
	SideHome Side = "home"
	SideAway Side = "away"
)

// SetScore is one persisted set row.
type SetScore struct {
	MatchID   string
	SetNumber int
	HomeScore int
	AwayScore int
	UpdatedAt time.Time
}

// SetState is a set annotated with its target and outcome.
type SetState struct {
	SetNumber int  `json:"setNumber"`
	Home      int  `json:"home"`
	Away      int  `json:"away"`
	Target    int  `json:"target"`
	Complete  bool `json:"complete"`
	Winner    Side `json:"winner,omitempty"`
}

// MatchState is the derived view of a series.
type MatchState struct {
	Sets             []SetState `json:"sets"`
	HomeSetsWon      int        `json:"homeSetsWon"`
	AwaySetsWon      int        `json:"awaySetsWon"`
	SetsToWin        int        `json:"setsToWin"`
	CurrentSetNumber int        `json:"currentSetNumber"`
	Complete         bool       `json:"matchComplete"`
	Winner           Side       `json:"winner,omitempty"`
}

// TargetPointsFor returns the points needed to win the given set. The last
// possible set of the series plays to FinalSetPoints.
func TargetPointsFor(r Rules, setNumber int) int {
	if setNumber == r.BestOf {
		return r.FinalSetPoints
	}
	return r.PointsToWin
}

// IsSetComplete reports whether the leader has reached target with at least
// winBy points of margin. Below target a set is never complete.
func IsSetComplete(home, away, target, winBy int) bool {
	lead := max(home, away)
	if lead < target {
		return false
	}
	margin := home - away
	if margin < 0 {
		margin = -margin
	}
	return margin >= winBy
}

func WinnerOf(home, away int, complete bool) Side {
	if !complete || home == away {
		return SideNone
	}
	if home > away {
		return SideHome
	}
	return SideAway
}

// DeriveMatchState computes the series state from raw set rows. Input order is
// irrelevant; when a set number repeats, the later row in input order wins.
func DeriveMatchState(sets []SetScore, r Rules) MatchState {
	state := MatchState{
		Sets:             make([]SetState, 0, len(sets)),
		SetsToWin:        r.SetsToWin(),
		CurrentSetNumber: 1,
	}

	ordered := dedupeSets(sets)
	for _, set := range ordered {
		target := TargetPointsFor(r, set.SetNumber)
		complete := IsSetComplete(set.HomeScore, set.AwayScore, target, r.WinBy)
		winner := WinnerOf(set.HomeScore, set.AwayScore, complete)

		state.Sets = append(state.Sets, SetState{
			SetNumber: set.SetNumber,
			Home:      set.HomeScore,
			Away:      set.AwayScore,
			Target:    target,
			Complete:  complete,
			Winner:    winner,
		})

		if state.Complete {
			continue
		}
		switch winner {
		case SideHome:
			state.HomeSetsWon++
		case SideAway:
			state.AwaySetsWon++
		}
		if state.SetsToWin > 0 && state.HomeSetsWon >= state.SetsToWin {
			state.Complete = true
			state.Winner = SideHome
		} else if state.SetsToWin > 0 && state.AwaySetsWon >= state.SetsToWin {
			state.Complete = true
			state.Winner = SideAway
		}
	}

	if len(state.Sets) == 0 {
		return state
	}

	last := state.Sets[len(state.Sets)-1]
	if state.Complete || !last.Complete {
		state.CurrentSetNumber = last.SetNumber
	} else {
		state.CurrentSetNumber = last.SetNumber + 1
	}
	if r.BestOf >= 1 && state.CurrentSetNumber > r.BestOf {
		state.CurrentSetNumber = r.BestOf
	}
	if state.CurrentSetNumber < 1 {
		state.CurrentSetNumber = 1
	}

	return state
}

func dedupeSets(sets []SetScore) []SetScore {
	byNumber := make(map[int]SetScore, len(sets))
	for _, set := range sets {
		byNumber[set.SetNumber] = set
	}

	out := make([]SetScore, 0, len(byNumber))
	for _, set := range byNumber {
		out = append(out, set)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SetNumber < out[j].SetNumber })
	return out
}
