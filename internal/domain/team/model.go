package team

import (
	"fmt"
	"regexp"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Team is the club a match is played for. Disabled teams stay referenced by
// existing matches but are hidden from new match creation.
type Team struct {
	ID      string
	Slug    string
	Name    string
	Enabled bool
}

func (t Team) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("team id is required")
	}
	if !slugPattern.MatchString(t.Slug) {
		return fmt.Errorf("team slug %q must be lowercase url-safe", t.Slug)
	}
	if t.Name == "" {
		return fmt.Errorf("team name is required")
	}

	return nil
}
