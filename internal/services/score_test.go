package services

import (
	"math"
	"testing"
)

func TestLevelFor(t *testing.T) {
	cases := []struct {
		raw  float64
		want Level
	}{
		{3, LevelVeryHigh},
		{2.5, LevelVeryHigh},
		{2.49, LevelStrong},
		{1.75, LevelStrong},
		{1.74, LevelModerate},
		{1.0, LevelModerate},
		{0.99, LevelDeveloping},
		{0, LevelDeveloping},
	}
	for _, c := range cases {
		if got := LevelFor(c.raw); got != c.want {
			t.Fatalf("LevelFor(%v)=%s, want %s", c.raw, got, c.want)
		}
	}
}

func TestPercentileFor(t *testing.T) {
	cases := []struct {
		level Level
		want  int
	}{
		{LevelVeryHigh, 10},
		{LevelStrong, 23},
		{LevelModerate, 45},
		{LevelDeveloping, 73},
	}
	for _, c := range cases {
		if got := PercentileFor(c.level); got != c.want {
			t.Fatalf("PercentileFor(%s)=%d, want %d", c.level, got, c.want)
		}
		low, high := PercentileBand(c.level)
		if got := PercentileFor(c.level); got < low || got > high {
			t.Fatalf("percentile %d outside band [%d,%d]", got, low, high)
		}
	}
}

func TestClampFloatNaN(t *testing.T) {
	if got := clampFloat(math.NaN(), 0, 10); got != 0 {
		t.Fatalf("NaN clamp = %v", got)
	}
	if got := clampFloat(12, 0, 10); got != 10 {
		t.Fatalf("upper clamp = %v", got)
	}
	if got := clampFloat(-1, 0, 10); got != 0 {
		t.Fatalf("lower clamp = %v", got)
	}
}

func TestRound2(t *testing.T) {
	if got := round2(2.0 / 3.0); got != 0.67 {
		t.Fatalf("round2 = %v", got)
	}
	if got := round2(1.666); got != 1.67 {
		t.Fatalf("round2 = %v", got)
	}
}
