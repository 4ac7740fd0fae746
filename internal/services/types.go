package services

import "time"

// Dimension is one of the five behavioral skill categories reviewers rate.
type Dimension string

const (
	DimensionLearnsFast Dimension = "learns_fast"
	DimensionFiguresOut Dimension = "figures_out"
	DimensionAIReady    Dimension = "ai_ready"
	DimensionGetsBuyIn  Dimension = "gets_buyin"
	DimensionOwnsIt     Dimension = "owns_it"
)

// AllDimensions lists the canonical dimensions in display order.
var AllDimensions = []Dimension{
	DimensionLearnsFast,
	DimensionFiguresOut,
	DimensionAIReady,
	DimensionGetsBuyIn,
	DimensionOwnsIt,
}

func (d Dimension) Valid() bool {
	switch d {
	case DimensionLearnsFast, DimensionFiguresOut, DimensionAIReady, DimensionGetsBuyIn, DimensionOwnsIt:
		return true
	}
	return false
}

// Level is the discrete bucket derived from a dimension's averaged raw score.
type Level string

const (
	LevelDeveloping Level = "developing"
	LevelModerate   Level = "moderate"
	LevelStrong     Level = "strong"
	LevelVeryHigh   Level = "very_high"
)

func (l Level) Valid() bool {
	switch l {
	case LevelDeveloping, LevelModerate, LevelStrong, LevelVeryHigh:
		return true
	}
	return false
}

// Badge is the qualitative label shown on a profile.
type Badge string

const (
	BadgeHighlyAdaptable  Badge = "highly_adaptable"
	BadgeSolidContributor Badge = "solid_contributor"
	BadgeGrowing          Badge = "growing"
)

// HeadlineMetric names one of the high-signal percentages.
type HeadlineMetric string

const (
	MetricStartupHire HeadlineMetric = "startup_hire"
	MetricHarderJob   HeadlineMetric = "harder_job"
	MetricWorkAgain   HeadlineMetric = "work_again"
)

// Max is the top of the answer scale for the metric.
func (m HeadlineMetric) Max() float64 {
	switch m {
	case MetricStartupHire:
		return 3
	case MetricHarderJob:
		return 4
	case MetricWorkAgain:
		return 5
	}
	return 0
}

func (m HeadlineMetric) Valid() bool { return m.Max() > 0 }

// DimensionSample is the normalized unit the aggregator folds. Never persisted.
type DimensionSample struct {
	Dimension Dimension
	Value     float64
}

// DimensionScore is the persisted per (reviewee, dimension) aggregate.
type DimensionScore struct {
	RevieweeID  string    `json:"-"`
	Dimension   Dimension `json:"dimension"`
	RawScore    float64   `json:"raw_score"`
	Level       Level     `json:"level"`
	Percentile  int       `json:"percentile"`
	ReviewCount int       `json:"review_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HeadlinePercentages are the three headline metrics. A nil field means
// "not yet available", never zero.
type HeadlinePercentages struct {
	StartupHirePct         *int `json:"startup_hire_pct"`
	HarderJobPct           *int `json:"harder_job_pct"`
	WorkAgainAbsolutelyPct *int `json:"work_again_absolutely_pct"`
}

// UserScoreSummary is overwritten wholesale on every recomputation.
type UserScoreSummary struct {
	UserID                 string    `json:"user_id"`
	QualitativeBadge       Badge     `json:"qualitative_badge"`
	StartupHirePct         *int      `json:"startup_hire_pct"`
	HarderJobPct           *int      `json:"harder_job_pct"`
	WorkAgainAbsolutelyPct *int      `json:"work_again_absolutely_pct"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Reputation is the result of one aggregation pass. NoData is a normal,
// displayable state: the reviewee has no reviews yet.
type Reputation struct {
	RevieweeID  string                       `json:"reviewee_id"`
	NoData      bool                         `json:"no_data"`
	Dimensions  map[Dimension]DimensionScore `json:"dimensions,omitempty"`
	Headline    HeadlinePercentages          `json:"headline"`
	Badge       Badge                        `json:"badge,omitempty"`
	ReviewCount int                          `json:"review_count"`
}

// User is the slice of the user entity this core reads and mutates.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Trust     UserTrustState
}

// UserTrustState lives on the user entity and is only mutated by ViolationService.
type UserTrustState struct {
	ViolationCount  int
	LastViolationAt *time.Time
	LockedUntil     *time.Time
}

// ViolationRecord is append-only.
type ViolationRecord struct {
	ID               string
	UserID           string
	ViolationType    ViolationType
	ReviewSessionID  string
	TimeSpentSeconds *int
	OccurredAt       time.Time
}

// ReviewToken never carries a reviewer foreign key. IssuerHash is a keyed hash of
// the issuing identity held only while the token is pending.
type ReviewToken struct {
	TokenHash  string
	RevieweeID string
	IssuerHash string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Burned     bool
}

// CounterRole distinguishes the two rolling daily review counters.
type CounterRole string

const (
	CounterGiven    CounterRole = "given"
	CounterReceived CounterRole = "received"
)
