package services

import (
	"context"
	"time"
)

// Store is the data-access handle the core is constructed with. InTx runs fn in
// one transaction that serializes with other writers; any error from fn rolls
// the whole transaction back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// Reads that do not need a transaction.
	GetUser(ctx context.Context, userID string) (*User, error)
	GetDimensionScores(ctx context.Context, revieweeID string) ([]DimensionScore, error)
	GetScoreSummary(ctx context.Context, userID string) (*UserScoreSummary, error)
	ListRevieweeIDs(ctx context.Context) ([]string, error)
	ListAllDimensionScores(ctx context.Context) ([]DimensionScore, error)
}

// Tx is the transactional surface. Methods returning a pointer return nil, nil
// when the row does not exist.
type Tx interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	SaveTrustState(ctx context.Context, userID string, st UserTrustState) error

	InsertViolation(ctx context.Context, v ViolationRecord) error
	DeleteViolations(ctx context.Context, userID string) (int, error)

	// ListReviews returns the union of legacy and anonymous rows for a reviewee.
	ListReviews(ctx context.Context, revieweeID string) ([]RawReview, error)
	InsertAnonymousReview(ctx context.Context, r RawReview) error

	UpsertDimensionScores(ctx context.Context, revieweeID string, scores []DimensionScore) error
	UpsertScoreSummary(ctx context.Context, s UserScoreSummary) error

	InsertToken(ctx context.Context, t ReviewToken) error
	GetToken(ctx context.Context, tokenHash string) (*ReviewToken, error)
	// BurnToken marks the token burned and drops its issuer hash. It reports
	// false if the token was already burned.
	BurnToken(ctx context.Context, tokenHash string) (bool, error)
	CountPendingTokens(ctx context.Context, issuerHash string, now time.Time) (int, error)
	ForgetExpiredIssuers(ctx context.Context, now time.Time) (int, error)

	GetDailyCount(ctx context.Context, subjectHash string, role CounterRole, day string) (int, error)
	IncrementDailyCount(ctx context.Context, subjectHash string, role CounterRole, day string) error
}
