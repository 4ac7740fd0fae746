package services

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminService gates operator actions behind a static admin credential whose
// bcrypt hash is configured at startup.
type AdminService struct {
	keyHash    []byte
	violations *ViolationService
	scores     *ScoreService
}

func NewAdminService(keyHash string, violations *ViolationService, scores *ScoreService) *AdminService {
	return &AdminService{keyHash: []byte(strings.TrimSpace(keyHash)), violations: violations, scores: scores}
}

// HashAdminKey produces the value to configure as admin.key_hash.
func HashAdminKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", NewInvalidError("admin key required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authorize checks key against the configured hash. With no hash configured
// every key is rejected.
func (s *AdminService) Authorize(key string) error {
	if len(s.keyHash) == 0 || strings.TrimSpace(key) == "" {
		return NewUnauthorizedError("admin credential required")
	}
	if err := bcrypt.CompareHashAndPassword(s.keyHash, []byte(key)); err != nil {
		return NewUnauthorizedError("invalid admin credential")
	}
	return nil
}

// ClearViolations resets a user's trust state after checking the admin key.
func (s *AdminService) ClearViolations(ctx context.Context, key, userID string) (int, error) {
	if err := s.Authorize(key); err != nil {
		return 0, err
	}
	return s.violations.AdminClear(ctx, userID)
}

// Recompute forces an aggregation pass for one reviewee after checking the admin key.
func (s *AdminService) Recompute(ctx context.Context, key, revieweeID string) (*Reputation, error) {
	if err := s.Authorize(key); err != nil {
		return nil, err
	}
	return s.scores.NormalizeAndAggregate(ctx, revieweeID)
}
