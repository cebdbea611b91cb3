package scoring

import (
	"errors"
	"fmt"
)

const (
	MinBestOf = 1
	MaxBestOf = 7

	// maxFinalSetOverhang bounds how far the deciding set target may exceed a regulation set.
	maxFinalSetOverhang = 10
)

var ErrInvalidRules = errors.New("invalid match rules")

// Rules configures a best-of-N series scored with a win-by margin.
type Rules struct {
	BestOf         int `json:"bestOf"`
	PointsToWin    int `json:"pointsToWin"`
	FinalSetPoints int `json:"finalSetPoints"`
	WinBy          int `json:"winBy"`
}

// RulesOverride carries per-match overrides. Nil fields keep the default.
type RulesOverride struct {
	BestOf         *int `json:"bestOf,omitempty"`
	PointsToWin    *int `json:"pointsToWin,omitempty"`
	FinalSetPoints *int `json:"finalSetPoints,omitempty"`
	WinBy          *int `json:"winBy,omitempty"`
}

func DefaultRules() Rules {
	return Rules{
		BestOf:         3,
		PointsToWin:    25,
		FinalSetPoints: 15,
		WinBy:          2,
	}
}

func (o RulesOverride) IsZero() bool {
	return o.BestOf == nil && o.PointsToWin == nil && o.FinalSetPoints == nil && o.WinBy == nil
}

// Merge applies the override on top of r field by field.
func (r Rules) Merge(o *RulesOverride) Rules {
	if o == nil {
		return r
	}
	out := r
	if o.BestOf != nil {
		out.BestOf = *o.BestOf
	}
	if o.PointsToWin != nil {
		out.PointsToWin = *o.PointsToWin
	}
	if o.FinalSetPoints != nil {
		out.FinalSetPoints = *o.FinalSetPoints
	}
	if o.WinBy != nil {
		out.WinBy = *o.WinBy
	}
	return out
}

// SetsToWin is the number of sets a side needs to take the series.
func (r Rules) SetsToWin() int {
	return (r.BestOf + 1) / 2
}

// ValidateRules returns nil for usable rules, otherwise an error wrapping
// ErrInvalidRules whose message describes the first problem found.
func ValidateRules(r Rules) error {
	if msg := RulesProblem(r); msg != "" {
		return fmt.Errorf("%w: %s", ErrInvalidRules, msg)
	}
	return nil
}

// RulesProblem returns a human readable description of what is wrong with r,
// or an empty string when r is valid.
func RulesProblem(r Rules) string {
	switch {
	case r.BestOf < MinBestOf || r.BestOf > MaxBestOf:
		return fmt.Sprintf("bestOf must be between %d and %d, got %d", MinBestOf, MaxBestOf, r.BestOf)
	case r.BestOf%2 == 0:
		return fmt.Sprintf("bestOf must be odd, got %d", r.BestOf)
	case r.PointsToWin < 1:
		return fmt.Sprintf("pointsToWin must be >= 1, got %d", r.PointsToWin)
	case r.FinalSetPoints < 1:
		return fmt.Sprintf("finalSetPoints must be >= 1, got %d", r.FinalSetPoints)
	case r.WinBy < 1:
		return fmt.Sprintf("winBy must be >= 1, got %d", r.WinBy)
	case r.FinalSetPoints > r.PointsToWin+maxFinalSetOverhang:
		return fmt.Sprintf("finalSetPoints must be <= pointsToWin+%d (%d), got %d",
			maxFinalSetOverhang, r.PointsToWin+maxFinalSetOverhang, r.FinalSetPoints)
	default:
		return ""
	}
}
