package services

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/liran1305/Estimate-sub000/internal/metrics"
)

// ScoreService recomputes and serves reputation aggregates.
type ScoreService struct {
	store Store
	cache *cache.Cache
	// gens counts cache writes per reviewee so a read that raced a recompute
	// cannot store rows older than the ones the recompute cached.
	cacheMu sync.Mutex
	gens    map[string]uint64
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// ProfileScores is what profile-rendering collaborators read.
type ProfileScores struct {
	RevieweeID string                       `json:"reviewee_id"`
	Available  bool                         `json:"available"`
	Dimensions map[Dimension]DimensionScore `json:"dimensions,omitempty"`
	Summary    *UserScoreSummary            `json:"summary,omitempty"`
}

// NewScoreService wires the service. cacheTTL <= 0 disables read caching.
func NewScoreService(store Store, m *metrics.Metrics, log *slog.Logger, cacheTTL time.Duration) *ScoreService {
	if log == nil {
		log = slog.Default()
	}
	var c *cache.Cache
	if cacheTTL > 0 {
		c = cache.New(cacheTTL, 2*cacheTTL)
	}
	return &ScoreService{
		store:   store,
		cache:   c,
		gens:    map[string]uint64{},
		metrics: m,
		log:     log.With("component", "score"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeAndAggregate rebuilds a reviewee's dimension scores, headline
// percentages and badge from every stored review, and persists them in one
// transaction. Re-running it on an unchanged review set rewrites identical rows.
func (s *ScoreService) NormalizeAndAggregate(ctx context.Context, revieweeID string) (*Reputation, error) {
	revieweeID = strings.TrimSpace(revieweeID)
	if revieweeID == "" {
		return nil, NewInvalidError("reviewee id required")
	}
	started := time.Now()
	var rep *Reputation
	err := s.store.InTx(ctx, func(tx Tx) error {
		u, err := tx.GetUser(ctx, revieweeID)
		if err != nil {
			return NewTransientError("load reviewee", err)
		}
		if u == nil {
			return ErrUserNotFound
		}
		reviews, err := tx.ListReviews(ctx, revieweeID)
		if err != nil {
			return NewTransientError("list reviews", err)
		}
		rep = buildReputation(revieweeID, reviews)
		if rep.NoData {
			return nil
		}
		now := s.now()
		for d, sc := range rep.Dimensions {
			sc.UpdatedAt = now
			rep.Dimensions[d] = sc
		}
		if err := tx.UpsertDimensionScores(ctx, revieweeID, sortedScores(rep.Dimensions)); err != nil {
			return NewTransientError("upsert dimension scores", err)
		}
		summary := UserScoreSummary{
			UserID:                 revieweeID,
			QualitativeBadge:       rep.Badge,
			StartupHirePct:         rep.Headline.StartupHirePct,
			HarderJobPct:           rep.Headline.HarderJobPct,
			WorkAgainAbsolutelyPct: rep.Headline.WorkAgainAbsolutelyPct,
			UpdatedAt:              now,
		}
		if err := tx.UpsertScoreSummary(ctx, summary); err != nil {
			return NewTransientError("upsert score summary", err)
		}
		return nil
	})
	took := time.Since(started)
	if err != nil {
		s.metrics.ObserveAggregation("error", took)
		return nil, err
	}
	if rep.NoData {
		s.metrics.ObserveAggregation("no_data", took)
		return rep, nil
	}
	s.metrics.ObserveAggregation("ok", took)
	s.storeCached(revieweeID, copyScores(rep.Dimensions))
	s.log.Debug("reputation recomputed", "reviewee_id", revieweeID, "reviews", rep.ReviewCount, "badge", rep.Badge)
	return rep, nil
}

func buildReputation(revieweeID string, reviews []RawReview) *Reputation {
	if len(reviews) == 0 {
		return &Reputation{RevieweeID: revieweeID, NoData: true}
	}
	dims := Aggregate(revieweeID, reviews)
	headline := ComputeHeadline(reviews)
	return &Reputation{
		RevieweeID:  revieweeID,
		Dimensions:  dims,
		Headline:    headline,
		Badge:       ClassifyBadge(dims, headline),
		ReviewCount: len(reviews),
	}
}

func sortedScores(m map[Dimension]DimensionScore) []DimensionScore {
	out := make([]DimensionScore, 0, len(m))
	for _, d := range AllDimensions {
		if sc, ok := m[d]; ok {
			out = append(out, sc)
		}
	}
	return out
}

// GetDimensionScores returns the persisted scores, or nil when none exist yet.
func (s *ScoreService) GetDimensionScores(ctx context.Context, revieweeID string) (map[Dimension]DimensionScore, error) {
	if strings.TrimSpace(revieweeID) == "" {
		return nil, NewInvalidError("reviewee id required")
	}
	if s.cache != nil {
		if v, ok := s.cache.Get(revieweeID); ok {
			return v.(map[Dimension]DimensionScore), nil
		}
	}
	gen := s.generation(revieweeID)
	rows, err := s.store.GetDimensionScores(ctx, revieweeID)
	if err != nil {
		return nil, NewTransientError("get dimension scores", err)
	}
	var out map[Dimension]DimensionScore
	if len(rows) > 0 {
		out = make(map[Dimension]DimensionScore, len(rows))
		for _, r := range rows {
			out[r.Dimension] = r
		}
	}
	s.fillCache(revieweeID, gen, out)
	return out, nil
}

func (s *ScoreService) generation(revieweeID string) uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.gens[revieweeID]
}

// storeCached installs freshly committed scores.
func (s *ScoreService) storeCached(revieweeID string, dims map[Dimension]DimensionScore) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gens[revieweeID]++
	s.cache.SetDefault(revieweeID, dims)
}

// fillCache stores rows read at generation gen, unless a recompute cached
// newer rows in the meantime.
func (s *ScoreService) fillCache(revieweeID string, gen uint64, dims map[Dimension]DimensionScore) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.gens[revieweeID] != gen {
		return
	}
	s.cache.SetDefault(revieweeID, dims)
}

func copyScores(m map[Dimension]DimensionScore) map[Dimension]DimensionScore {
	out := make(map[Dimension]DimensionScore, len(m))
	for d, sc := range m {
		out[d] = sc
	}
	return out
}

// GetProfileScores combines dimension scores with the persisted summary row.
func (s *ScoreService) GetProfileScores(ctx context.Context, revieweeID string) (*ProfileScores, error) {
	dims, err := s.GetDimensionScores(ctx, revieweeID)
	if err != nil {
		return nil, err
	}
	summary, err := s.store.GetScoreSummary(ctx, revieweeID)
	if err != nil {
		return nil, NewTransientError("get score summary", err)
	}
	return &ProfileScores{
		RevieweeID: revieweeID,
		Available:  len(dims) > 0,
		Dimensions: dims,
		Summary:    summary,
	}, nil
}

// RecomputeResult reports one reviewee of a RecomputeAll pass.
type RecomputeResult struct {
	RevieweeID string
	NoData     bool
	Err        error
}

// RecomputeAll re-aggregates every reviewee that has at least one review. One
// failing reviewee does not stop the pass.
func (s *ScoreService) RecomputeAll(ctx context.Context) ([]RecomputeResult, error) {
	ids, err := s.store.ListRevieweeIDs(ctx)
	if err != nil {
		return nil, NewTransientError("list reviewees", err)
	}
	sort.Strings(ids)
	out := make([]RecomputeResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rep, err := s.NormalizeAndAggregate(ctx, id)
		res := RecomputeResult{RevieweeID: id, Err: err}
		if err == nil {
			res.NoData = rep.NoData
		} else {
			s.log.Warn("recompute failed", "reviewee_id", id, "error", err)
		}
		out = append(out, res)
	}
	return out, nil
}

// ExportScores returns every persisted dimension score ordered by reviewee and
// canonical dimension order.
func (s *ScoreService) ExportScores(ctx context.Context) ([]DimensionScore, error) {
	rows, err := s.store.ListAllDimensionScores(ctx)
	if err != nil {
		return nil, NewTransientError("list dimension scores", err)
	}
	order := make(map[Dimension]int, len(AllDimensions))
	for i, d := range AllDimensions {
		order[d] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].RevieweeID != rows[j].RevieweeID {
			return rows[i].RevieweeID < rows[j].RevieweeID
		}
		return order[rows[i].Dimension] < order[rows[j].Dimension]
	})
	return rows, nil
}
