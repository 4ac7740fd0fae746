package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/liran1305/Estimate-sub000/internal/metrics"
)

const (
	DefaultMinReviewSeconds = 20
	maxStrengthTags         = 10
	maxFreeTextRunes        = 2000
)

// TurnstileVerifier checks a bot-challenge token with the external widget provider.
type TurnstileVerifier func(token string) (bool, error)

// SubmitReviewRequest is the sanitized handler input for one review.
type SubmitReviewRequest struct {
	Token             string
	RevieweeID        string
	InteractionType   string
	BehavioralAnswers map[Dimension]*int
	HighSignalAnswers map[HeadlineMetric]*float64
	WouldWorkAgain    *int
	WouldPromote      *int
	StrengthTags      []string
	FreeText          map[string]*string
	SessionID         string
	TimeSpentSeconds  *int
	TurnstileToken    string
}

// SubmitReviewResult intentionally carries no review id: the reviewer gets no
// handle on the stored row.
type SubmitReviewResult struct {
	Accepted   bool   `json:"accepted"`
	RevieweeID string `json:"reviewee_id"`
}

// SubmissionService gates and writes anonymous reviews: lockout pre-check,
// abuse post-check, then token burn, counters and review insert in one
// transaction, followed by re-aggregation.
type SubmissionService struct {
	store      Store
	tokens     *TokenService
	violations *ViolationService
	scores     *ScoreService
	metrics    *metrics.Metrics
	log        *slog.Logger
	verify     TurnstileVerifier
	minSeconds int
	now        func() time.Time
	idGen      func() string
}

func NewSubmissionService(store Store, tokens *TokenService, violations *ViolationService, scores *ScoreService, m *metrics.Metrics, log *slog.Logger) *SubmissionService {
	if log == nil {
		log = slog.Default()
	}
	return &SubmissionService{
		store:      store,
		tokens:     tokens,
		violations: violations,
		scores:     scores,
		metrics:    m,
		log:        log.With("component", "submission"),
		minSeconds: DefaultMinReviewSeconds,
		now:        func() time.Time { return time.Now().UTC() },
		idGen:      uuid.NewString,
	}
}

// WithTurnstile enables the bot check.
func (s *SubmissionService) WithTurnstile(v TurnstileVerifier) *SubmissionService {
	s.verify = v
	return s
}

// WithMinSeconds sets the fastest plausible completion time. Zero disables the check.
func (s *SubmissionService) WithMinSeconds(n int) *SubmissionService {
	if n >= 0 {
		s.minSeconds = n
	}
	return s
}

// Submit accepts one anonymous review from reviewerID.
func (s *SubmissionService) Submit(ctx context.Context, reviewerID string, req SubmitReviewRequest) (*SubmitReviewResult, error) {
	if s.store == nil {
		return nil, errors.New("submission service store is nil")
	}
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return nil, NewUnauthorizedError("reviewer identity required")
	}
	if err := validateSubmission(&req); err != nil {
		return nil, err
	}
	if s.verify != nil {
		ok, err := s.verify(req.TurnstileToken)
		if err != nil || !ok {
			return nil, ErrTurnstileVerificationFailed
		}
	}
	if err := s.violations.RequireNotLocked(ctx, reviewerID); err != nil {
		return nil, err
	}
	if err := s.detectAbuse(ctx, reviewerID, req); err != nil {
		return nil, err
	}

	now := s.now()
	revieweeID := strings.TrimSpace(req.RevieweeID)
	err := s.store.InTx(ctx, func(tx Tx) error {
		tok, err := s.tokens.RedeemInTx(ctx, tx, req.Token, reviewerID, now)
		if err != nil {
			return err
		}
		if revieweeID == "" {
			revieweeID = tok.RevieweeID
		}
		if tok.RevieweeID != revieweeID {
			return NewInvalidError("token was issued for a different reviewee")
		}
		if revieweeID == reviewerID {
			return NewInvalidError("cannot review yourself")
		}
		if err := s.tokens.CountSubmission(ctx, tx, reviewerID, revieweeID, now); err != nil {
			return err
		}
		review := RawReview{
			ReviewMeta: ReviewMeta{
				ID:              s.idGen(),
				Source:          SourceAnonymous,
				RevieweeID:      revieweeID,
				InteractionType: strings.TrimSpace(req.InteractionType),
				WouldWorkAgain:  req.WouldWorkAgain,
				WouldPromote:    req.WouldPromote,
				StrengthTags:    req.StrengthTags,
				FreeText:        req.FreeText,
				CreatedAt:       now,
			},
			Body: BehavioralAnswers{Answers: req.BehavioralAnswers, HighSignal: req.HighSignalAnswers},
		}
		if err := tx.InsertAnonymousReview(ctx, review); err != nil {
			return NewTransientError("insert review", err)
		}
		return nil
	})
	s.metrics.TokenRedeemed(redeemOutcome(err))
	if err != nil {
		return nil, err
	}
	s.metrics.ReviewSubmitted()

	if s.scores != nil {
		// the review is committed; a failed recompute is repaired by the next run
		if _, err := s.scores.NormalizeAndAggregate(ctx, revieweeID); err != nil {
			s.log.Error("aggregation after submit failed", "reviewee_id", revieweeID, "error", err)
		}
	}
	return &SubmitReviewResult{Accepted: true, RevieweeID: revieweeID}, nil
}

func (s *SubmissionService) detectAbuse(ctx context.Context, reviewerID string, req SubmitReviewRequest) error {
	if s.minSeconds <= 0 || req.TimeSpentSeconds == nil || *req.TimeSpentSeconds >= s.minSeconds {
		return nil
	}
	res, err := s.violations.RecordViolation(ctx, RecordViolationRequest{
		UserID:           reviewerID,
		Type:             ViolationTooFast,
		SessionID:        req.SessionID,
		TimeSpentSeconds: req.TimeSpentSeconds,
	})
	if err != nil {
		return err
	}
	if res.IsLockedOut {
		return newLockedOutError(*res.LockedUntil, s.now())
	}
	return NewInvalidError("review was completed too quickly")
}

func validateSubmission(req *SubmitReviewRequest) error {
	if strings.TrimSpace(req.Token) == "" {
		return NewInvalidError("review token required")
	}
	if strings.TrimSpace(req.InteractionType) == "" {
		return NewInvalidError("interaction type required")
	}
	answered := 0
	for d, v := range req.BehavioralAnswers {
		if !d.Valid() {
			return NewInvalidError("unknown dimension " + string(d))
		}
		if v == nil {
			continue
		}
		if *v < 0 || *v > 3 {
			return NewInvalidError("answer for " + string(d) + " must be 0..3")
		}
		answered++
	}
	if answered == 0 {
		return NewInvalidError("at least one behavioral answer required")
	}
	for m, v := range req.HighSignalAnswers {
		if !m.Valid() {
			return NewInvalidError("unknown metric " + string(m))
		}
		if v != nil && (*v < 0 || *v > m.Max()) {
			return NewInvalidError("answer for " + string(m) + " out of range")
		}
	}
	if req.WouldWorkAgain != nil && (*req.WouldWorkAgain < 1 || *req.WouldWorkAgain > 5) {
		return NewInvalidError("would_work_again must be 1..5")
	}
	if req.WouldPromote != nil && (*req.WouldPromote < 1 || *req.WouldPromote > 4) {
		return NewInvalidError("would_promote must be 1..4")
	}
	if req.TimeSpentSeconds != nil && *req.TimeSpentSeconds < 0 {
		return NewInvalidError("time spent must not be negative")
	}
	tags := make([]string, 0, len(req.StrengthTags))
	for _, t := range req.StrengthTags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) > maxStrengthTags {
		return NewInvalidError("too many strength tags")
	}
	req.StrengthTags = tags
	for k, v := range req.FreeText {
		if v != nil && utf8.RuneCountInString(*v) > maxFreeTextRunes {
			return NewInvalidError("free text field " + k + " is too long")
		}
	}
	return nil
}
