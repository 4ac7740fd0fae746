package services

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory Store whose transactions are serialized and roll back
// by restoring a snapshot.
type memStore struct {
	mu    sync.Mutex
	state memState
	// fail makes the named Tx method return the error.
	fail map[string]error
	txs  int
	// afterScoreRead runs once GetDimensionScores has copied its rows, with
	// the store unlocked.
	afterScoreRead func()
}

type memState struct {
	users      map[string]User
	violations []ViolationRecord
	reviews    []RawReview
	scores     map[string]map[Dimension]DimensionScore
	summaries  map[string]UserScoreSummary
	tokens     map[string]ReviewToken
	counters   map[string]int
}

func newMemStore(userIDs ...string) *memStore {
	s := &memStore{
		state: memState{
			users:     map[string]User{},
			scores:    map[string]map[Dimension]DimensionScore{},
			summaries: map[string]UserScoreSummary{},
			tokens:    map[string]ReviewToken{},
			counters:  map[string]int{},
		},
		fail: map[string]error{},
	}
	for _, id := range userIDs {
		s.state.users[id] = User{ID: id, Name: id}
	}
	return s
}

func (st memState) clone() memState {
	c := memState{
		users:      make(map[string]User, len(st.users)),
		violations: append([]ViolationRecord(nil), st.violations...),
		reviews:    append([]RawReview(nil), st.reviews...),
		scores:     make(map[string]map[Dimension]DimensionScore, len(st.scores)),
		summaries:  make(map[string]UserScoreSummary, len(st.summaries)),
		tokens:     make(map[string]ReviewToken, len(st.tokens)),
		counters:   make(map[string]int, len(st.counters)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.scores {
		m := make(map[Dimension]DimensionScore, len(v))
		for d, sc := range v {
			m[d] = sc
		}
		c.scores[k] = m
	}
	for k, v := range st.summaries {
		c.summaries[k] = v
	}
	for k, v := range st.tokens {
		c.tokens[k] = v
	}
	for k, v := range st.counters {
		c.counters[k] = v
	}
	return c
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs++
	snapshot := s.state.clone()
	if err := fn(&memTx{s: s}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *memStore) GetDimensionScores(ctx context.Context, revieweeID string) ([]DimensionScore, error) {
	s.mu.Lock()
	var out []DimensionScore
	for _, d := range AllDimensions {
		if sc, ok := s.state.scores[revieweeID][d]; ok {
			out = append(out, sc)
		}
	}
	hook := s.afterScoreRead
	s.afterScoreRead = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *memStore) GetUser(ctx context.Context, userID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.state.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *memStore) txCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs
}

func (s *memStore) GetScoreSummary(ctx context.Context, userID string) (*UserScoreSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.state.summaries[userID]
	if !ok {
		return nil, nil
	}
	return &sum, nil
}

func (s *memStore) ListRevieweeIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, r := range s.state.reviews {
		if !seen[r.RevieweeID] {
			seen[r.RevieweeID] = true
			out = append(out, r.RevieweeID)
		}
	}
	return out, nil
}

func (s *memStore) ListAllDimensionScores(ctx context.Context) ([]DimensionScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DimensionScore
	for _, m := range s.state.scores {
		for _, sc := range m {
			out = append(out, sc)
		}
	}
	return out, nil
}

// addReview seeds a stored review outside any transaction.
func (s *memStore) addReview(r RawReview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.reviews = append(s.state.reviews, r)
}

func (s *memStore) user(id string) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.users[id]
}

func (s *memStore) setTrust(id string, t UserTrustState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.state.users[id]
	u.Trust = t
	s.state.users[id] = u
}

type memTx struct{ s *memStore }

func (t *memTx) err(op string) error { return t.s.fail[op] }

func (t *memTx) GetUser(ctx context.Context, userID string) (*User, error) {
	if err := t.err("GetUser"); err != nil {
		return nil, err
	}
	u, ok := t.s.state.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (t *memTx) SaveTrustState(ctx context.Context, userID string, st UserTrustState) error {
	if err := t.err("SaveTrustState"); err != nil {
		return err
	}
	u := t.s.state.users[userID]
	u.Trust = st
	t.s.state.users[userID] = u
	return nil
}

func (t *memTx) InsertViolation(ctx context.Context, v ViolationRecord) error {
	if err := t.err("InsertViolation"); err != nil {
		return err
	}
	t.s.state.violations = append(t.s.state.violations, v)
	return nil
}

func (t *memTx) DeleteViolations(ctx context.Context, userID string) (int, error) {
	kept := t.s.state.violations[:0:0]
	removed := 0
	for _, v := range t.s.state.violations {
		if v.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	t.s.state.violations = kept
	return removed, nil
}

func (t *memTx) ListReviews(ctx context.Context, revieweeID string) ([]RawReview, error) {
	if err := t.err("ListReviews"); err != nil {
		return nil, err
	}
	var out []RawReview
	for _, r := range t.s.state.reviews {
		if r.RevieweeID == revieweeID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) InsertAnonymousReview(ctx context.Context, r RawReview) error {
	if err := t.err("InsertAnonymousReview"); err != nil {
		return err
	}
	t.s.state.reviews = append(t.s.state.reviews, r)
	return nil
}

func (t *memTx) UpsertDimensionScores(ctx context.Context, revieweeID string, scores []DimensionScore) error {
	if err := t.err("UpsertDimensionScores"); err != nil {
		return err
	}
	m := t.s.state.scores[revieweeID]
	if m == nil {
		m = map[Dimension]DimensionScore{}
		t.s.state.scores[revieweeID] = m
	}
	for _, sc := range scores {
		m[sc.Dimension] = sc
	}
	return nil
}

func (t *memTx) UpsertScoreSummary(ctx context.Context, sum UserScoreSummary) error {
	if err := t.err("UpsertScoreSummary"); err != nil {
		return err
	}
	t.s.state.summaries[sum.UserID] = sum
	return nil
}

func (t *memTx) InsertToken(ctx context.Context, tok ReviewToken) error {
	if err := t.err("InsertToken"); err != nil {
		return err
	}
	t.s.state.tokens[tok.TokenHash] = tok
	return nil
}

func (t *memTx) GetToken(ctx context.Context, tokenHash string) (*ReviewToken, error) {
	tok, ok := t.s.state.tokens[tokenHash]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (t *memTx) BurnToken(ctx context.Context, tokenHash string) (bool, error) {
	tok, ok := t.s.state.tokens[tokenHash]
	if !ok || tok.Burned {
		return false, nil
	}
	tok.Burned = true
	tok.IssuerHash = ""
	t.s.state.tokens[tokenHash] = tok
	return true, nil
}

func (t *memTx) CountPendingTokens(ctx context.Context, issuerHash string, now time.Time) (int, error) {
	n := 0
	for _, tok := range t.s.state.tokens {
		if tok.IssuerHash == issuerHash && !tok.Burned && now.Before(tok.ExpiresAt) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ForgetExpiredIssuers(ctx context.Context, now time.Time) (int, error) {
	n := 0
	for h, tok := range t.s.state.tokens {
		if tok.IssuerHash != "" && !now.Before(tok.ExpiresAt) {
			tok.IssuerHash = ""
			t.s.state.tokens[h] = tok
			n++
		}
	}
	return n, nil
}

func counterKey(subject string, role CounterRole, day string) string {
	return subject + "|" + string(role) + "|" + day
}

func (t *memTx) GetDailyCount(ctx context.Context, subjectHash string, role CounterRole, day string) (int, error) {
	return t.s.state.counters[counterKey(subjectHash, role, day)], nil
}

func (t *memTx) IncrementDailyCount(ctx context.Context, subjectHash string, role CounterRole, day string) error {
	if err := t.err("IncrementDailyCount"); err != nil {
		return err
	}
	t.s.state.counters[counterKey(subjectHash, role, day)]++
	return nil
}

// fixedClock returns a controllable now func.
type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fixedClock {
	return &fixedClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}
