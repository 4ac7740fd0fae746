package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/liran1305/Estimate-sub000/internal/metrics"
)

const (
	MaxReviewsPerDayReviewer = 10
	MaxReviewsPerDayReviewee = 20
	DefaultTokenTTL          = time.Hour
	DefaultMaxPendingTokens  = 5

	dayLayout = "2006-01-02"
)

// TokenLimits bounds token issuance.
type TokenLimits struct {
	TTL            time.Duration
	MaxPending     int
	ReviewerPerDay int
	RevieweePerDay int
}

func DefaultTokenLimits() TokenLimits {
	return TokenLimits{
		TTL:            DefaultTokenTTL,
		MaxPending:     DefaultMaxPendingTokens,
		ReviewerPerDay: MaxReviewsPerDayReviewer,
		RevieweePerDay: MaxReviewsPerDayReviewee,
	}
}

// Hasher computes keyed BLAKE2b-256 digests. Tokens and rate-limit subjects are
// only ever stored in this form.
type Hasher struct {
	key []byte
}

func NewHasher(secret string) (*Hasher, error) {
	if secret == "" {
		return nil, errors.New("hash secret required")
	}
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &Hasher{key: key}, nil
}

// Hash digests value under a domain label so the same id hashes differently per use.
func (h *Hasher) Hash(domain, value string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is bounded in NewHasher
		panic(err)
	}
	mac.Write([]byte(domain))
	mac.Write([]byte{0})
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// LockGate is satisfied by ViolationService.
type LockGate interface {
	RequireNotLocked(ctx context.Context, userID string) error
}

// IssuedToken is returned to the caller exactly once; the plaintext is never stored.
type IssuedToken struct {
	Token      string    `json:"token"`
	RevieweeID string    `json:"reviewee_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// TokenService implements the ISSUED -> BURNED | EXPIRED lifecycle.
type TokenService struct {
	store    Store
	hasher   *Hasher
	limits   TokenLimits
	gate     LockGate
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
	generate func() (string, error)
}

func NewTokenService(store Store, hasher *Hasher, limits TokenLimits, gate LockGate, m *metrics.Metrics, log *slog.Logger) *TokenService {
	if log == nil {
		log = slog.Default()
	}
	if limits.TTL <= 0 {
		limits.TTL = DefaultTokenTTL
	}
	return &TokenService{
		store:    store,
		hasher:   hasher,
		limits:   limits,
		gate:     gate,
		metrics:  m,
		log:      log.With("component", "tokens"),
		now:      func() time.Time { return time.Now().UTC() },
		generate: generateToken,
	}
}

func generateToken() (string, error) {
	rb := make([]byte, 32)
	if _, err := rand.Read(rb); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(rb), nil
}

func (s *TokenService) tokenHash(plaintext string) string {
	return s.hasher.Hash("review-token", plaintext)
}

func (s *TokenService) issuerHash(userID string) string {
	return s.hasher.Hash("issuer", userID)
}

func (s *TokenService) counterSubject(role CounterRole, userID string) string {
	return s.hasher.Hash("counter:"+string(role), userID)
}

// Issue creates a single-use review token for reviewing revieweeID.
func (s *TokenService) Issue(ctx context.Context, issuerID, revieweeID string) (*IssuedToken, error) {
	issuerID = strings.TrimSpace(issuerID)
	revieweeID = strings.TrimSpace(revieweeID)
	if issuerID == "" || revieweeID == "" {
		return nil, NewInvalidError("issuer and reviewee required")
	}
	if issuerID == revieweeID {
		return nil, NewInvalidError("cannot review yourself")
	}
	if s.gate != nil {
		if err := s.gate.RequireNotLocked(ctx, issuerID); err != nil {
			return nil, err
		}
	}
	var issued *IssuedToken
	err := s.store.InTx(ctx, func(tx Tx) error {
		u, err := tx.GetUser(ctx, revieweeID)
		if err != nil {
			return NewTransientError("load reviewee", err)
		}
		if u == nil {
			return ErrUserNotFound
		}
		now := s.now()
		if _, err := tx.ForgetExpiredIssuers(ctx, now); err != nil {
			return NewTransientError("forget expired issuers", err)
		}
		issuer := s.issuerHash(issuerID)
		if s.limits.MaxPending > 0 {
			pending, err := tx.CountPendingTokens(ctx, issuer, now)
			if err != nil {
				return NewTransientError("count pending tokens", err)
			}
			if pending >= s.limits.MaxPending {
				return NewTooManyRequestsError("too many pending review tokens")
			}
		}
		if err := s.checkDailyLimits(ctx, tx, issuerID, revieweeID, now); err != nil {
			return err
		}
		plain, err := s.generate()
		if err != nil {
			return NewTransientError("generate token", err)
		}
		t := ReviewToken{
			TokenHash:  s.tokenHash(plain),
			RevieweeID: revieweeID,
			IssuerHash: issuer,
			IssuedAt:   now,
			ExpiresAt:  now.Add(s.limits.TTL),
		}
		if err := tx.InsertToken(ctx, t); err != nil {
			return NewTransientError("insert token", err)
		}
		issued = &IssuedToken{Token: plain, RevieweeID: revieweeID, ExpiresAt: t.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.TokenIssued()
	return issued, nil
}

func (s *TokenService) checkDailyLimits(ctx context.Context, tx Tx, reviewerID, revieweeID string, now time.Time) error {
	day := now.Format(dayLayout)
	if s.limits.ReviewerPerDay > 0 {
		given, err := tx.GetDailyCount(ctx, s.counterSubject(CounterGiven, reviewerID), CounterGiven, day)
		if err != nil {
			return NewTransientError("read reviewer counter", err)
		}
		if given >= s.limits.ReviewerPerDay {
			return NewTooManyRequestsError("daily review limit reached")
		}
	}
	if s.limits.RevieweePerDay > 0 {
		received, err := tx.GetDailyCount(ctx, s.counterSubject(CounterReceived, revieweeID), CounterReceived, day)
		if err != nil {
			return NewTransientError("read reviewee counter", err)
		}
		if received >= s.limits.RevieweePerDay {
			return NewTooManyRequestsError("this person has received too many reviews today")
		}
	}
	return nil
}

// CountSubmission enforces and bumps both daily counters inside the caller's
// transaction. No reviewer/reviewee pair is ever written.
func (s *TokenService) CountSubmission(ctx context.Context, tx Tx, reviewerID, revieweeID string, now time.Time) error {
	if err := s.checkDailyLimits(ctx, tx, reviewerID, revieweeID, now); err != nil {
		return err
	}
	day := now.Format(dayLayout)
	if err := tx.IncrementDailyCount(ctx, s.counterSubject(CounterGiven, reviewerID), CounterGiven, day); err != nil {
		return NewTransientError("bump reviewer counter", err)
	}
	if err := tx.IncrementDailyCount(ctx, s.counterSubject(CounterReceived, revieweeID), CounterReceived, day); err != nil {
		return NewTransientError("bump reviewee counter", err)
	}
	return nil
}

// RedeemInTx burns the token inside the caller's transaction, so the burn and
// the review write it authorizes commit or roll back together. Only the user the
// token was issued to may redeem it.
func (s *TokenService) RedeemInTx(ctx context.Context, tx Tx, plaintext, redeemerID string, now time.Time) (*ReviewToken, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return nil, ErrTokenNotFound
	}
	hash := s.tokenHash(plaintext)
	t, err := tx.GetToken(ctx, hash)
	if err != nil {
		return nil, NewTransientError("load token", err)
	}
	if t == nil {
		return nil, ErrTokenNotFound
	}
	if t.Burned {
		return nil, ErrTokenBurned
	}
	if !now.Before(t.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	if t.IssuerHash != "" && t.IssuerHash != s.issuerHash(strings.TrimSpace(redeemerID)) {
		return nil, ErrTokenNotYours
	}
	ok, err := tx.BurnToken(ctx, hash)
	if err != nil {
		return nil, NewTransientError("burn token", err)
	}
	if !ok {
		return nil, ErrTokenBurned
	}
	burned := *t
	burned.Burned = true
	burned.IssuerHash = ""
	return &burned, nil
}

// Redeem burns a token in its own transaction.
func (s *TokenService) Redeem(ctx context.Context, redeemerID, plaintext string) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		_, err := s.RedeemInTx(ctx, tx, plaintext, redeemerID, s.now())
		return err
	})
	s.metrics.TokenRedeemed(redeemOutcome(err))
	return err
}

func redeemOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenBurned):
		return "already_burned"
	case errors.Is(err, ErrTokenNotYours):
		return "not_yours"
	default:
		return "error"
	}
}
