package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liran1305/Estimate-sub000/internal/db"
	"github.com/liran1305/Estimate-sub000/internal/metrics"
	"github.com/liran1305/Estimate-sub000/internal/middleware"
	"github.com/liran1305/Estimate-sub000/internal/services"
	"github.com/liran1305/Estimate-sub000/internal/utils"
)

const testAdminKey = "let-me-in"

type testServer struct {
	t        *testing.T
	srv      *httptest.Server
	store    *db.SQLiteStore
	sessions *middleware.Sessions
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	sqlDB, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	_, err = db.RunMigrations(context.Background(), sqlDB, "")
	require.NoError(t, err)
	store, err := db.NewSQLiteStore(sqlDB, log)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	hasher, err := services.NewHasher("token-secret")
	require.NoError(t, err)
	keyHash, err := services.HashAdminKey(testAdminKey)
	require.NoError(t, err)

	scores := services.NewScoreService(store, m, log, 0)
	violations := services.NewViolationService(store, m, log)
	tokens := services.NewTokenService(store, hasher, services.DefaultTokenLimits(), violations, m, log)
	submissions := services.NewSubmissionService(store, tokens, violations, scores, m, log)
	sessions, err := middleware.NewSessions("jwt-secret")
	require.NoError(t, err)

	rt := NewRouter(Deps{
		Scores:      scores,
		Violations:  violations,
		Tokens:      tokens,
		Submissions: submissions,
		Admin:       services.NewAdminService(keyHash, violations, scores),
		Sessions:    sessions,
		Gatherer:    reg,
		Build:       utils.BuildInfo{Version: "test", Commit: "c", BuildTime: "b"},
		Log:         log,
	})
	srv := httptest.NewServer(rt.Handler())
	t.Cleanup(srv.Close)

	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, store.AddUser(context.Background(), services.User{ID: id, Name: id}))
	}
	return &testServer{t: t, srv: srv, store: store, sessions: sessions}
}

type call struct {
	method string
	path   string
	as     string
	admin  string
	body   any
	lang   string
}

func (ts *testServer) do(c call) (int, map[string]any) {
	ts.t.Helper()
	var rdr io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(ts.t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(c.method, ts.srv.URL+c.path, rdr)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.as != "" {
		tok, err := ts.sessions.SignToken(c.as, time.Hour)
		require.NoError(ts.t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if c.admin != "" {
		req.Header.Set(middleware.AdminKeyHeader, c.admin)
	}
	if c.lang != "" {
		req.Header.Set("Accept-Language", c.lang)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(ts.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (ts *testServer) issue(as, reviewee string) string {
	ts.t.Helper()
	status, body := ts.do(call{method: http.MethodPost, path: "/api/review-tokens", as: as, body: map[string]string{"reviewee_id": reviewee}})
	require.Equal(ts.t, http.StatusCreated, status, body)
	return body["token"].(string)
}

func reviewBody(token string, answer int) map[string]any {
	return map[string]any{
		"token":            token,
		"interaction_type": "worked_together",
		"behavioral_answers": map[string]any{
			"learns_fast": answer, "figures_out": answer, "ai_ready": answer,
			"gets_buyin": answer, "owns_it": answer,
		},
		"high_signal_answers": map[string]any{"startup_hire": 3, "harder_job": 3},
		"would_work_again":    5,
		"would_promote":       4,
		"strength_tags":       []string{"ownership"},
		"time_spent_seconds":  120,
	}
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(call{method: http.MethodGet, path: "/health", lang: "zh-CN"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "好的", body["message"])

	status, body = ts.do(call{method: http.MethodGet, path: "/version"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "test", body["version"])
}

func TestReviewJourney(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(call{method: http.MethodGet, path: "/api/users/bob/scores"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["available"])

	token := ts.issue("alice", "bob")
	assert.Len(t, token, 43)

	status, body = ts.do(call{method: http.MethodPost, path: "/api/reviews", as: "alice", body: reviewBody(token, 3)})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, "bob", body["reviewee_id"])
	assert.NotContains(t, body, "id")
	assert.NotContains(t, body, "review_id")

	status, body = ts.do(call{method: http.MethodGet, path: "/api/users/bob/scores"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["available"])
	assert.Equal(t, "highly_adaptable", body["badge"])
	dims := body["dimensions"].(map[string]any)
	require.Len(t, dims, 5)
	owns := dims["owns_it"].(map[string]any)
	assert.Equal(t, "very_high", owns["level"])
	assert.EqualValues(t, 10, owns["percentile"])
	headline := body["headline"].(map[string]any)
	assert.EqualValues(t, 100, headline["work_again_absolutely_pct"])
	assert.EqualValues(t, 100, headline["startup_hire_pct"])

	// token is single use
	status, body = ts.do(call{method: http.MethodPost, path: "/api/reviews", as: "alice", body: reviewBody(token, 2)})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_burned", body["code"])
}

func TestSessionRequired(t *testing.T) {
	ts := newTestServer(t)
	for _, c := range []call{
		{method: http.MethodPost, path: "/api/review-tokens", body: map[string]string{"reviewee_id": "bob"}},
		{method: http.MethodPost, path: "/api/reviews", body: reviewBody("x", 1)},
		{method: http.MethodGet, path: "/api/me/lockout"},
		{method: http.MethodPost, path: "/api/me/violations", body: map[string]string{"violation_type": "other"}},
	} {
		status, body := ts.do(c)
		assert.Equal(t, http.StatusUnauthorized, status, c.path)
		assert.Equal(t, "unauthorized", body["code"], c.path)
	}
}

func TestIssueErrors(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(call{method: http.MethodPost, path: "/api/review-tokens", as: "alice", body: map[string]string{"reviewee_id": "alice"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid", body["code"])

	status, _ = ts.do(call{method: http.MethodPost, path: "/api/review-tokens", as: "alice", body: map[string]string{"reviewee_id": "nobody"}})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = ts.do(call{method: http.MethodPost, path: "/api/review-tokens", as: "alice", body: map[string]any{"reviewee": 1}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "malformed request body", body["error"])

	for i := 0; i < services.DefaultMaxPendingTokens; i++ {
		ts.issue("carol", "bob")
	}
	status, body = ts.do(call{method: http.MethodPost, path: "/api/review-tokens", as: "carol", body: map[string]string{"reviewee_id": "bob"}})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "too_many_requests", body["code"])
}

func TestRedeemEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := ts.issue("alice", "bob")

	status, body := ts.do(call{method: http.MethodPost, path: "/api/review-tokens/redeem", as: "carol", body: map[string]string{"token": token}})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["code"])

	status, body = ts.do(call{method: http.MethodPost, path: "/api/review-tokens/redeem", as: "alice", body: map[string]string{"token": token}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])

	status, body = ts.do(call{method: http.MethodPost, path: "/api/review-tokens/redeem", as: "alice", body: map[string]string{"token": token}})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_burned", body["code"])

	status, body = ts.do(call{method: http.MethodPost, path: "/api/review-tokens/redeem", as: "alice", body: map[string]string{"token": "unknown"}})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["code"])

	status, _ = ts.do(call{method: http.MethodPost, path: "/api/review-tokens/redeem", as: "alice", body: map[string]string{"token": " "}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTooFastLocksOut(t *testing.T) {
	ts := newTestServer(t)

	for i := 1; i <= 3; i++ {
		token := ts.issue("alice", "bob")
		body := reviewBody(token, 2)
		body["time_spent_seconds"] = 3
		status, resp := ts.do(call{method: http.MethodPost, path: "/api/reviews", as: "alice", body: body, lang: "zh"})
		if i < 3 {
			assert.Equal(t, http.StatusBadRequest, status, resp)
			continue
		}
		assert.Equal(t, http.StatusLocked, status, resp)
		assert.Equal(t, "locked_out", resp["code"])
		assert.EqualValues(t, 24, resp["remaining_hours"])
		assert.Equal(t, "您的账户暂时无法提交评价。", resp["message"])
	}

	status, body := ts.do(call{method: http.MethodGet, path: "/api/me/lockout", as: "alice"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_locked_out"])
	assert.EqualValues(t, 3, body["violation_count"])

	// locked users cannot issue tokens either
	status, _ = ts.do(call{method: http.MethodPost, path: "/api/review-tokens", as: "alice", body: map[string]string{"reviewee_id": "bob"}})
	assert.Equal(t, http.StatusLocked, status)

	// nothing reached bob
	status, body = ts.do(call{method: http.MethodGet, path: "/api/users/bob/scores"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["available"])
}

func TestRecordViolationEndpoint(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(call{method: http.MethodPost, path: "/api/me/violations", as: "carol", body: map[string]any{"violation_type": "tab_switching", "session_id": "s1"}})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["violation_count"])
	assert.Equal(t, false, body["is_locked_out"])

	status, _ = ts.do(call{method: http.MethodPost, path: "/api/me/violations", as: "carol", body: map[string]any{"violation_type": "sneezing"}})
	assert.Equal(t, http.StatusBadRequest, status)

	recs, err := ts.store.ListViolations(context.Background(), "carol")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, services.ViolationTabSwitching, recs[0].ViolationType)
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 2; i++ {
		status, _ := ts.do(call{method: http.MethodPost, path: "/api/me/violations", as: "carol", body: map[string]any{"violation_type": "copy_paste"}})
		require.Equal(t, http.StatusOK, status)
	}

	status, body := ts.do(call{method: http.MethodDelete, path: "/api/admin/users/carol/violations"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["code"])

	status, _ = ts.do(call{method: http.MethodDelete, path: "/api/admin/users/carol/violations", admin: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = ts.do(call{method: http.MethodDelete, path: "/api/admin/users/carol/violations", admin: testAdminKey})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["removed"])

	status, body = ts.do(call{method: http.MethodGet, path: "/api/me/lockout", as: "carol"})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["violation_count"])

	status, _ = ts.do(call{method: http.MethodPost, path: "/api/users/bob/scores/recompute"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = ts.do(call{method: http.MethodPost, path: "/api/users/bob/scores/recompute", admin: testAdminKey})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["no_data"])

	status, _ = ts.do(call{method: http.MethodPost, path: "/api/users/nobody/scores/recompute", admin: testAdminKey})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.issue("alice", "bob")

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "estimate_tokens_issued_total 1")
}

func TestStatusFor(t *testing.T) {
	tests := map[services.ErrorCode]int{
		services.ErrorInvalid:         http.StatusBadRequest,
		services.ErrorNotFound:        http.StatusNotFound,
		services.ErrorExpired:         http.StatusGone,
		services.ErrorAlreadyBurned:   http.StatusConflict,
		services.ErrorLockedOut:       http.StatusLocked,
		services.ErrorTransient:       http.StatusServiceUnavailable,
		services.ErrorUnauthorized:    http.StatusUnauthorized,
		services.ErrorForbidden:       http.StatusForbidden,
		services.ErrorTooManyRequests: http.StatusTooManyRequests,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), code)
	}
}
