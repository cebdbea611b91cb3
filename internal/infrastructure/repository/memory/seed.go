package memory

import (
	"time"

	"github.com/riskibarqy/live-match/internal/domain/team"
	"github.com/riskibarqy/live-match/internal/domain/tournament"
)

const (
	TeamIDNorthFalcons    = "team-north-falcons"
	TeamIDHarborSharks    = "team-harbor-sharks"
	TournamentIDSpringCup = "tournament-spring-cup-2026"
)

func SeedTeams() []team.Team {
	return []team.Team{
		{ID: TeamIDNorthFalcons, Slug: "north-falcons", Name: "North Falcons", Enabled: true},
		{ID: TeamIDHarborSharks, Slug: "harbor-sharks", Name: "Harbor Sharks", Enabled: true},
		{ID: "team-old-rivals", Slug: "old-rivals", Name: "Old Rivals", Enabled: false},
	}
}

func SeedTournaments() []tournament.Tournament {
	starts := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	ends := time.Date(2026, time.May, 31, 0, 0, 0, 0, time.UTC)
	return []tournament.Tournament{
		{ID: TournamentIDSpringCup, Name: "Spring Cup 2026", StartsOn: &starts, EndsOn: &ends},
	}
}
