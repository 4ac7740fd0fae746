package services

import "math"

type accumulator struct {
	sum   float64
	count int
}

// Aggregate folds reviews into per-dimension scores. Dimensions without samples
// are omitted. Same input set, same output.
func Aggregate(revieweeID string, reviews []RawReview) map[Dimension]DimensionScore {
	acc := make(map[Dimension]*accumulator, len(AllDimensions))
	for _, r := range reviews {
		for _, s := range Normalize(r).Dimensions {
			a := acc[s.Dimension]
			if a == nil {
				a = &accumulator{}
				acc[s.Dimension] = a
			}
			a.sum += s.Value
			a.count++
		}
	}
	out := make(map[Dimension]DimensionScore, len(acc))
	for _, d := range AllDimensions {
		a := acc[d]
		if a == nil || a.count == 0 {
			continue
		}
		raw := round2(a.sum / float64(a.count))
		level := LevelFor(raw)
		out[d] = DimensionScore{
			RevieweeID:  revieweeID,
			Dimension:   d,
			RawScore:    raw,
			Level:       level,
			Percentile:  PercentileFor(level),
			ReviewCount: a.count,
		}
	}
	return out
}

// ComputeHeadline derives the headline percentages from the same review set
// used by Aggregate.
//
// startup_hire and harder_job share the wouldPromote signal and are equal
// whenever any review supplied it. The per-metric high-signal sums are only
// consulted for a metric when no review supplied the scalar field.
func ComputeHeadline(reviews []RawReview) HeadlinePercentages {
	var (
		workAgain, promote accumulator
		signal             = map[HeadlineMetric]*accumulator{}
	)
	for _, r := range reviews {
		h := Normalize(r).Headline
		if h.WouldWorkAgain != nil {
			workAgain.sum += float64(*h.WouldWorkAgain)
			workAgain.count++
		}
		if h.WouldPromote != nil {
			promote.sum += float64(*h.WouldPromote)
			promote.count++
		}
		for m, v := range h.HighSignal {
			a := signal[m]
			if a == nil {
				a = &accumulator{}
				signal[m] = a
			}
			a.sum += v
			a.count++
		}
	}

	var out HeadlinePercentages
	if workAgain.count > 0 {
		out.WorkAgainAbsolutelyPct = pct(workAgain.sum / float64(workAgain.count) * 20)
	} else {
		out.WorkAgainAbsolutelyPct = signalPct(signal[MetricWorkAgain], MetricWorkAgain)
	}
	if promote.count > 0 {
		harder := pct(promote.sum / float64(promote.count) / 4 * 100)
		startup := *harder
		out.HarderJobPct = harder
		out.StartupHirePct = &startup
	} else {
		out.HarderJobPct = signalPct(signal[MetricHarderJob], MetricHarderJob)
		out.StartupHirePct = signalPct(signal[MetricStartupHire], MetricStartupHire)
	}
	return out
}

func signalPct(a *accumulator, m HeadlineMetric) *int {
	if a == nil || a.count == 0 {
		return nil
	}
	return pct(a.sum / (float64(a.count) * m.Max()) * 100)
}

func pct(v float64) *int {
	p := int(math.Round(v))
	return &p
}

// ClassifyBadge derives the qualitative badge. A missing startup-hire percentage
// never satisfies the highly_adaptable threshold.
func ClassifyBadge(scores map[Dimension]DimensionScore, headline HeadlinePercentages) Badge {
	var veryHigh, strong int
	for _, s := range scores {
		switch s.Level {
		case LevelVeryHigh:
			veryHigh++
		case LevelStrong:
			strong++
		}
	}
	if veryHigh >= 3 && headline.StartupHirePct != nil && *headline.StartupHirePct >= 70 {
		return BadgeHighlyAdaptable
	}
	if veryHigh >= 1 || strong >= 2 {
		return BadgeSolidContributor
	}
	return BadgeGrowing
}
