package services

import "math"

// Level thresholds on the 0..3 raw score scale.
const (
	thresholdVeryHigh = 2.5
	thresholdStrong   = 1.75
	thresholdModerate = 1.0
)

// LevelFor maps a rounded raw score onto the fixed level ladder.
func LevelFor(rawScore float64) Level {
	switch {
	case rawScore >= thresholdVeryHigh:
		return LevelVeryHigh
	case rawScore >= thresholdStrong:
		return LevelStrong
	case rawScore >= thresholdModerate:
		return LevelModerate
	default:
		return LevelDeveloping
	}
}

// PercentileBand returns the fixed "top X%" band for a level. These bands are
// constants, not population statistics.
func PercentileBand(l Level) (low, high int) {
	switch l {
	case LevelVeryHigh:
		return 5, 15
	case LevelStrong:
		return 15, 31
	case LevelModerate:
		return 31, 59
	default:
		return 59, 87
	}
}

// PercentileFor is the midpoint of the level's band. It depends on the level only.
func PercentileFor(l Level) int {
	low, high := PercentileBand(l)
	return (low + high) / 2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
