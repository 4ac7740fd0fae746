package services

import (
	"encoding/json"
	"time"
)

// ReviewSource records which physical table a review row was read from.
type ReviewSource string

const (
	SourceLegacy    ReviewSource = "legacy"
	SourceAnonymous ReviewSource = "anonymous"
)

// ReviewMeta holds the fields shared by both review schema generations.
type ReviewMeta struct {
	ID              string
	Source          ReviewSource
	RevieweeID      string
	InteractionType string
	WouldWorkAgain  *int // 1..5
	WouldPromote    *int // 1..4
	StrengthTags    []string
	FreeText        map[string]*string
	CreatedAt       time.Time
}

// RawReview is an immutable review as stored. Body selects the schema generation.
type RawReview struct {
	ReviewMeta
	Body ReviewBody
}

// SchemaVersion is 1 for legacy score maps and 2 for behavioral answers.
func (r RawReview) SchemaVersion() int {
	if r.Body == nil {
		return 0
	}
	return r.Body.schemaVersion()
}

// ReviewBody is implemented by LegacyScores and BehavioralAnswers only.
type ReviewBody interface {
	schemaVersion() int
	samples() []DimensionSample
	highSignal() map[HeadlineMetric]*float64
}

// LegacyScores is the schema 1 body: named scores on a 0..10 scale.
type LegacyScores map[string]float64

func (LegacyScores) schemaVersion() int { return 1 }

// UnmarshalJSON drops null entries, so a null score is treated as absent.
func (s *LegacyScores) UnmarshalJSON(data []byte) error {
	var raw map[string]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	out := make(LegacyScores, len(raw))
	for name, v := range raw {
		if v != nil {
			out[name] = *v
		}
	}
	*s = out
	return nil
}

func (LegacyScores) highSignal() map[HeadlineMetric]*float64 { return nil }

func (s LegacyScores) samples() []DimensionSample {
	out := make([]DimensionSample, 0, len(legacyMappings))
	for _, m := range legacyMappings {
		if v, ok := m.convert(s); ok {
			out = append(out, DimensionSample{Dimension: m.target, Value: v})
		}
	}
	return out
}

// BehavioralAnswers is the schema 2 body.
type BehavioralAnswers struct {
	Answers    map[Dimension]*int
	HighSignal map[HeadlineMetric]*float64
}

func (BehavioralAnswers) schemaVersion() int { return 2 }

func (b BehavioralAnswers) highSignal() map[HeadlineMetric]*float64 { return b.HighSignal }

func (b BehavioralAnswers) samples() []DimensionSample {
	out := make([]DimensionSample, 0, len(b.Answers))
	for _, d := range AllDimensions {
		v, ok := b.Answers[d]
		if !ok || v == nil || *v < 0 || *v > 3 {
			continue
		}
		out = append(out, DimensionSample{Dimension: d, Value: float64(*v)})
	}
	return out
}

const legacyNeutral = 5.0

// legacyMapping converts one or two 0..10 legacy fields into a 0..3 dimension value.
type legacyMapping struct {
	target Dimension
	fields []string
}

// legacyMappings is the fixed cross-mapping from schema 1 score names.
var legacyMappings = []legacyMapping{
	{target: DimensionLearnsFast, fields: []string{"adaptability"}},
	{target: DimensionFiguresOut, fields: []string{"problem_solving"}},
	{target: DimensionAIReady, fields: []string{"technical_skills"}},
	{target: DimensionGetsBuyIn, fields: []string{"communication", "teamwork"}},
	{target: DimensionOwnsIt, fields: []string{"reliability"}},
}

func (m legacyMapping) convert(scores LegacyScores) (float64, bool) {
	if len(m.fields) == 1 {
		v, ok := scores[m.fields[0]]
		if !ok {
			return 0, false
		}
		return clampFloat(v, 0, 10) * 0.3, true
	}
	present := false
	var sum float64
	for _, f := range m.fields {
		v, ok := scores[f]
		if !ok {
			// missing members count as neutral so the average is not dragged down
			sum += legacyNeutral
			continue
		}
		present = true
		sum += clampFloat(v, 0, 10)
	}
	if !present {
		return 0, false
	}
	avg := sum / float64(len(m.fields))
	return avg / 10 * 3, true
}
