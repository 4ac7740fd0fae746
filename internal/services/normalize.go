package services

// HeadlineSample is the per-review input of the headline calculator.
type HeadlineSample struct {
	WouldWorkAgain *int
	WouldPromote   *int
	HighSignal     map[HeadlineMetric]float64
}

// NormalizedReview is the output of Normalize for a single review.
type NormalizedReview struct {
	Dimensions []DimensionSample
	Headline   HeadlineSample
}

// Normalize converts a stored review of either schema into canonical samples.
// It is a pure function of its input.
func Normalize(r RawReview) NormalizedReview {
	var out NormalizedReview
	if r.Body != nil {
		out.Dimensions = r.Body.samples()
		for metric, v := range r.Body.highSignal() {
			if v == nil || !metric.Valid() {
				continue
			}
			if out.Headline.HighSignal == nil {
				out.Headline.HighSignal = map[HeadlineMetric]float64{}
			}
			out.Headline.HighSignal[metric] = clampFloat(*v, 0, metric.Max())
		}
	}
	if r.WouldWorkAgain != nil && *r.WouldWorkAgain >= 1 && *r.WouldWorkAgain <= 5 {
		v := *r.WouldWorkAgain
		out.Headline.WouldWorkAgain = &v
	}
	if r.WouldPromote != nil {
		// legacy rows occasionally carry 5 on the 1..4 scale
		v := clampInt(*r.WouldPromote, 1, 4)
		out.Headline.WouldPromote = &v
	}
	return out
}
