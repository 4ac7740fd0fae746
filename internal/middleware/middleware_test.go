package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := UserIDFromContext(r.Context())
		w.Header().Set("X-Uid", uid)
		w.Header().Set("X-Locale", LocaleFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestSessionsRoundTrip(t *testing.T) {
	s, err := NewSessions("secret")
	require.NoError(t, err)
	tok, err := s.SignToken("u1", time.Hour)
	require.NoError(t, err)

	h := s.WithAuth(RequireAuth(nil)(okHandler()))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Header().Get("X-Uid"))
}

func TestSessionsRejects(t *testing.T) {
	s, err := NewSessions("secret")
	require.NoError(t, err)
	other, err := NewSessions("other")
	require.NoError(t, err)

	foreign, err := other.SignToken("u1", time.Hour)
	require.NoError(t, err)
	expired, err := s.SignToken("u1", -time.Minute)
	require.NoError(t, err)

	h := s.WithAuth(RequireAuth(nil)(okHandler()))
	for name, header := range map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"wrong secret": "Bearer " + foreign,
		"expired":      "Bearer " + expired,
		"garbage":      "Bearer x.y.z",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireAuthCustomReject(t *testing.T) {
	s, err := NewSessions("secret")
	require.NoError(t, err)
	tok, err := s.SignToken("u1", time.Hour)
	require.NoError(t, err)

	reject := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rejected", "yes")
		w.WriteHeader(http.StatusTeapot)
	}
	h := s.WithAuth(RequireAuth(reject)(okHandler()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-Rejected"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Rejected"))
}

func TestNewSessionsRequiresSecret(t *testing.T) {
	_, err := NewSessions("")
	require.Error(t, err)
}

func TestSignTokenRequiresUID(t *testing.T) {
	s, err := NewSessions("secret")
	require.NoError(t, err)
	_, err = s.SignToken(" ", time.Hour)
	require.Error(t, err)
}

func TestUserIDFromEmptyContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)
}

func TestAdminKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	assert.Empty(t, AdminKey(req))
	req.Header.Set(AdminKeyHeader, " k ")
	assert.Equal(t, "k", AdminKey(req))
}

func TestLocaleMiddleware(t *testing.T) {
	h := LocaleMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/?lang=zh", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "zh", rec.Header().Get("X-Locale"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "zh", rec.Header().Get("X-Locale"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "fr-FR")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "en", rec.Header().Get("X-Locale"))
}

func TestHeaders(t *testing.T) {
	h := CORS(NoStore(SecureHeaders(okHandler())))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), AdminKeyHeader)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(0.001, 2)
	h := l.Middleware(okHandler())

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1002"))
	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000"))
	l.Prune()
}

func TestRateLimiterDisabled(t *testing.T) {
	l := NewRateLimiter(0, 0)
	assert.Nil(t, l)
	assert.True(t, l.Allow("x"))
	l.Prune()

	h := l.Middleware(okHandler())
	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
