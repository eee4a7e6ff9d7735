package score

import "math"

// Level is the coarse threat bucket derived from a numeric score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Shared thresholds for both scorers.
const (
	highThreshold   = 70
	mediumThreshold = 40
)

// LevelFor buckets a 0-100 score into a threat level.
func LevelFor(score int) Level {
	switch {
	case score >= highThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Direct is the quick preview scorer used for manual checks against raw
// aggregation counters. It intentionally uses a different model than
// Composite and the two may disagree on the same source. Inputs are not
// validated; only the output is clamped.
func Direct(failedLogins, repeatedAccess, extraPoints int) int {
	var score int

	switch {
	case failedLogins >= 5:
		score += 70
	case failedLogins >= 3:
		score += 30
	case failedLogins >= 1:
		score += 10
	}

	repeated := int(math.Round(float64(repeatedAccess) * 0.5))
	if repeated > 30 {
		repeated = 30
	}
	score += repeated

	score += extraPoints

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
