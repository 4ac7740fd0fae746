// Package api exposes the reputation core over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liran1305/Estimate-sub000/internal/middleware"
	"github.com/liran1305/Estimate-sub000/internal/services"
	"github.com/liran1305/Estimate-sub000/internal/utils"
)

// Deps are the collaborators the router serves. Limiter and Gatherer may be nil.
type Deps struct {
	Scores      *services.ScoreService
	Violations  *services.ViolationService
	Tokens      *services.TokenService
	Submissions *services.SubmissionService
	Admin       *services.AdminService
	Sessions    *middleware.Sessions
	Limiter     *middleware.RateLimiter
	Gatherer    prometheus.Gatherer
	Build       utils.BuildInfo
	CORS        bool
	Log         *slog.Logger
}

type Router struct {
	deps Deps
	log  *slog.Logger
}

func NewRouter(deps Deps) *Router {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Router{deps: deps, log: log.With("component", "http")}
}

// Handler builds the chi mux with the full middleware chain.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(rt.logRequests)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecureHeaders)
	if rt.deps.CORS {
		r.Use(middleware.CORS)
	}
	r.Use(middleware.LocaleMiddleware)

	r.Get("/health", rt.handleHealth)
	r.Get("/version", rt.handleVersion)
	if rt.deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(rt.deps.Limiter.Middleware)
		r.Use(middleware.NoStore)
		r.Use(rt.deps.Sessions.WithAuth)

		r.Get("/users/{id}/scores", rt.handleGetScores)
		r.Post("/users/{id}/scores/recompute", rt.handleRecompute)
		r.Delete("/admin/users/{id}/violations", rt.handleClearViolations)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(rt.rejectUnauthenticated))
			r.Post("/review-tokens", rt.handleIssueToken)
			r.Post("/review-tokens/redeem", rt.handleRedeemToken)
			r.Post("/reviews", rt.handleSubmitReview)
			r.Get("/me/lockout", rt.handleLockout)
			r.Post("/me/violations", rt.handleRecordViolation)
		})
	})
	return r
}

func (rt *Router) rejectUnauthenticated(w http.ResponseWriter, r *http.Request) {
	rt.writeError(w, r, services.NewUnauthorizedError("session required"))
}

func (rt *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		// path only; query strings may carry tokens
		rt.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": utils.T(middleware.LocaleFromContext(r.Context()), "health.ok"),
	})
}

func (rt *Router) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.deps.Build)
}
