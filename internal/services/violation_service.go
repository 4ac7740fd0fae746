package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liran1305/Estimate-sub000/internal/metrics"
)

// ViolationType names the kind of review-policy abuse that was detected.
type ViolationType string

const (
	ViolationTooFast        ViolationType = "too_fast"
	ViolationStraightLining ViolationType = "straight_lining"
	ViolationTabSwitching   ViolationType = "tab_switching"
	ViolationCopyPaste      ViolationType = "copy_paste"
	ViolationBotSuspected   ViolationType = "bot_suspected"
	ViolationOther          ViolationType = "other"
)

func (t ViolationType) Valid() bool {
	switch t {
	case ViolationTooFast, ViolationStraightLining, ViolationTabSwitching,
		ViolationCopyPaste, ViolationBotSuspected, ViolationOther:
		return true
	}
	return false
}

const (
	// ViolationDecay is the quiet period after which the counter resets.
	ViolationDecay = 24 * time.Hour
	// LockoutDuration is how long the third strike locks a user.
	LockoutDuration = 24 * time.Hour
	// LockoutThreshold is the violation count that triggers a lockout.
	LockoutThreshold = 3
)

// LockoutStatus is the result of CheckLockout.
type LockoutStatus struct {
	IsLockedOut    bool       `json:"is_locked_out"`
	ViolationCount int        `json:"violation_count"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	RemainingHours int        `json:"remaining_hours,omitempty"`
}

// ViolationResult is the result of RecordViolation.
type ViolationResult struct {
	ViolationCount int        `json:"violation_count"`
	IsLockedOut    bool       `json:"is_locked_out"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

// RecordViolationRequest carries the optional context of a violation.
type RecordViolationRequest struct {
	UserID           string
	Type             ViolationType
	SessionID        string
	TimeSpentSeconds *int
}

// ViolationService owns the per-user trust state: CLEAR (count 0), WARNED
// (1..2) and LOCKED (count >= 3 with lockedUntil in the future). Decay is
// evaluated lazily on access.
type ViolationService struct {
	store   Store
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
	idGen   func() string
}

func NewViolationService(store Store, m *metrics.Metrics, log *slog.Logger) *ViolationService {
	if log == nil {
		log = slog.Default()
	}
	return &ViolationService{
		store:   store,
		metrics: m,
		log:     log.With("component", "violations"),
		now:     func() time.Time { return time.Now().UTC() },
		idGen:   uuid.NewString,
	}
}

// RecordViolation appends a violation and advances the counter in a single
// transaction, so concurrent violations for one user never read the same
// stale count.
func (s *ViolationService) RecordViolation(ctx context.Context, req RecordViolationRequest) (*ViolationResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, NewInvalidError("user id required")
	}
	if !req.Type.Valid() {
		return nil, NewInvalidError("unknown violation type")
	}
	if req.TimeSpentSeconds != nil && *req.TimeSpentSeconds < 0 {
		return nil, NewInvalidError("time spent must not be negative")
	}
	var res *ViolationResult
	err := s.store.InTx(ctx, func(tx Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return NewTransientError("load user", err)
		}
		if u == nil {
			return ErrUserNotFound
		}
		now := s.now()
		rec := ViolationRecord{
			ID:               s.idGen(),
			UserID:           userID,
			ViolationType:    req.Type,
			ReviewSessionID:  strings.TrimSpace(req.SessionID),
			TimeSpentSeconds: req.TimeSpentSeconds,
			OccurredAt:       now,
		}
		if err := tx.InsertViolation(ctx, rec); err != nil {
			return NewTransientError("insert violation", err)
		}
		next := advanceTrust(u.Trust, now)
		if err := tx.SaveTrustState(ctx, userID, next); err != nil {
			return NewTransientError("save trust state", err)
		}
		res = &ViolationResult{
			ViolationCount: next.ViolationCount,
			IsLockedOut:    next.LockedUntil != nil,
			LockedUntil:    next.LockedUntil,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordViolation(string(req.Type), res.IsLockedOut)
	if res.IsLockedOut {
		s.log.Info("user locked out", "user_id", userID, "violations", res.ViolationCount, "locked_until", res.LockedUntil)
	} else {
		s.log.Info("violation recorded", "user_id", userID, "type", req.Type, "violations", res.ViolationCount)
	}
	return res, nil
}

// advanceTrust is the RecordViolation transition. A count whose last violation
// is older than the decay window restarts from zero; lockedUntil is set exactly
// when the new count reaches the threshold.
func advanceTrust(cur UserTrustState, now time.Time) UserTrustState {
	count := cur.ViolationCount
	if cur.LastViolationAt != nil && now.Sub(*cur.LastViolationAt) > ViolationDecay {
		count = 0
	}
	count++
	last := now
	next := UserTrustState{ViolationCount: count, LastViolationAt: &last}
	if count >= LockoutThreshold {
		until := now.Add(LockoutDuration)
		next.LockedUntil = &until
	}
	return next
}

// CheckLockout reports the current state and clears a decayed counter. Only
// the clear takes a write transaction.
func (s *ViolationService) CheckLockout(ctx context.Context, userID string) (*LockoutStatus, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, NewInvalidError("user id required")
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, NewTransientError("load user", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	st, decayed := lockoutStatus(u.Trust, s.now())
	if !decayed {
		return st, nil
	}
	err = s.store.InTx(ctx, func(tx Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return NewTransientError("load user", err)
		}
		if u == nil {
			return ErrUserNotFound
		}
		// a violation may have landed since the read above
		st, decayed = lockoutStatus(u.Trust, s.now())
		if !decayed {
			return nil
		}
		if err := tx.SaveTrustState(ctx, userID, UserTrustState{}); err != nil {
			return NewTransientError("clear trust state", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// lockoutStatus evaluates t at now. decayed reports a counter that should be
// reset; the returned status already reflects the reset.
func lockoutStatus(t UserTrustState, now time.Time) (st *LockoutStatus, decayed bool) {
	if t.LockedUntil != nil && t.LockedUntil.After(now) {
		until := *t.LockedUntil
		return &LockoutStatus{
			IsLockedOut:    true,
			ViolationCount: t.ViolationCount,
			LockedUntil:    &until,
			RemainingHours: remainingHours(until, now),
		}, false
	}
	if t.LastViolationAt != nil && now.Sub(*t.LastViolationAt) > ViolationDecay {
		return &LockoutStatus{}, true
	}
	return &LockoutStatus{ViolationCount: t.ViolationCount}, false
}

// RequireNotLocked gates an action: it returns a *LockedOutError while the user
// is locked.
func (s *ViolationService) RequireNotLocked(ctx context.Context, userID string) error {
	st, err := s.CheckLockout(ctx, userID)
	if err != nil {
		return err
	}
	if st.IsLockedOut {
		return newLockedOutError(*st.LockedUntil, s.now())
	}
	return nil
}

// AdminClear resets the trust state and deletes the user's violation records.
// The caller is responsible for the admin credential check.
func (s *ViolationService) AdminClear(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, NewInvalidError("user id required")
	}
	var removed int
	err := s.store.InTx(ctx, func(tx Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return NewTransientError("load user", err)
		}
		if u == nil {
			return ErrUserNotFound
		}
		if err := tx.SaveTrustState(ctx, userID, UserTrustState{}); err != nil {
			return NewTransientError("clear trust state", err)
		}
		removed, err = tx.DeleteViolations(ctx, userID)
		if err != nil {
			return NewTransientError("delete violations", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("violations cleared by admin", "user_id", userID, "removed", removed)
	return removed, nil
}
