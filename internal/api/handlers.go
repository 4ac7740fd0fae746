package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/liran1305/Estimate-sub000/internal/middleware"
	"github.com/liran1305/Estimate-sub000/internal/services"
)

func sessionUser(r *http.Request) string {
	uid, _ := middleware.UserIDFromContext(r.Context())
	return uid
}

// POST /api/review-tokens {reviewee_id}
func (rt *Router) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RevieweeID string `json:"reviewee_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	tok, err := rt.deps.Tokens.Issue(r.Context(), sessionUser(r), req.RevieweeID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

// POST /api/review-tokens/redeem {token}
func (rt *Router) handleRedeemToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		rt.writeError(w, r, services.NewInvalidError("review token required"))
		return
	}
	uid, _ := middleware.UserIDFromContext(r.Context())
	if err := rt.deps.Tokens.Redeem(r.Context(), uid, req.Token); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type submitReviewBody struct {
	Token             string              `json:"token"`
	RevieweeID        string              `json:"reviewee_id"`
	InteractionType   string              `json:"interaction_type"`
	BehavioralAnswers map[string]*int     `json:"behavioral_answers"`
	HighSignalAnswers map[string]*float64 `json:"high_signal_answers"`
	WouldWorkAgain    *int                `json:"would_work_again"`
	WouldPromote      *int                `json:"would_promote"`
	StrengthTags      []string            `json:"strength_tags"`
	FreeText          map[string]*string  `json:"free_text"`
	SessionID         string              `json:"session_id"`
	TimeSpentSeconds  *int                `json:"time_spent_seconds"`
	TurnstileToken    string              `json:"turnstile_token"`
}

func (b submitReviewBody) toRequest() services.SubmitReviewRequest {
	answers := make(map[services.Dimension]*int, len(b.BehavioralAnswers))
	for k, v := range b.BehavioralAnswers {
		answers[services.Dimension(k)] = v
	}
	var signals map[services.HeadlineMetric]*float64
	if len(b.HighSignalAnswers) > 0 {
		signals = make(map[services.HeadlineMetric]*float64, len(b.HighSignalAnswers))
		for k, v := range b.HighSignalAnswers {
			signals[services.HeadlineMetric(k)] = v
		}
	}
	return services.SubmitReviewRequest{
		Token:             b.Token,
		RevieweeID:        b.RevieweeID,
		InteractionType:   b.InteractionType,
		BehavioralAnswers: answers,
		HighSignalAnswers: signals,
		WouldWorkAgain:    b.WouldWorkAgain,
		WouldPromote:      b.WouldPromote,
		StrengthTags:      b.StrengthTags,
		FreeText:          b.FreeText,
		SessionID:         b.SessionID,
		TimeSpentSeconds:  b.TimeSpentSeconds,
		TurnstileToken:    b.TurnstileToken,
	}
}

// POST /api/reviews
func (rt *Router) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	var body submitReviewBody
	if err := decodeJSON(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.deps.Submissions.Submit(r.Context(), sessionUser(r), body.toRequest())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type scoresResponse struct {
	RevieweeID string                                         `json:"reviewee_id"`
	Available  bool                                           `json:"available"`
	Dimensions map[services.Dimension]services.DimensionScore `json:"dimensions"`
	Headline   services.HeadlinePercentages                   `json:"headline"`
	Badge      services.Badge                                 `json:"badge,omitempty"`
}

// GET /api/users/{id}/scores
func (rt *Router) handleGetScores(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ps, err := rt.deps.Scores.GetProfileScores(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	out := scoresResponse{
		RevieweeID: ps.RevieweeID,
		Available:  ps.Available,
		Dimensions: ps.Dimensions,
	}
	if out.Dimensions == nil {
		out.Dimensions = map[services.Dimension]services.DimensionScore{}
	}
	if ps.Summary != nil {
		out.Badge = ps.Summary.QualitativeBadge
		out.Headline = services.HeadlinePercentages{
			StartupHirePct:         ps.Summary.StartupHirePct,
			HarderJobPct:           ps.Summary.HarderJobPct,
			WorkAgainAbsolutelyPct: ps.Summary.WorkAgainAbsolutelyPct,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/users/{id}/scores/recompute (admin)
func (rt *Router) handleRecompute(w http.ResponseWriter, r *http.Request) {
	rep, err := rt.deps.Admin.Recompute(r.Context(), middleware.AdminKey(r), chi.URLParam(r, "id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// DELETE /api/admin/users/{id}/violations (admin)
func (rt *Router) handleClearViolations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := rt.deps.Admin.ClearViolations(r.Context(), middleware.AdminKey(r), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.log.Info("violations cleared by admin", "user_id", id, "removed", n)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "removed": n})
}

// GET /api/me/lockout
func (rt *Router) handleLockout(w http.ResponseWriter, r *http.Request) {
	st, err := rt.deps.Violations.CheckLockout(r.Context(), sessionUser(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// POST /api/me/violations {violation_type, session_id?, time_spent_seconds?}
func (rt *Router) handleRecordViolation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ViolationType    string `json:"violation_type"`
		SessionID        string `json:"session_id"`
		TimeSpentSeconds *int   `json:"time_spent_seconds"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.deps.Violations.RecordViolation(r.Context(), services.RecordViolationRequest{
		UserID:           sessionUser(r),
		Type:             services.ViolationType(req.ViolationType),
		SessionID:        req.SessionID,
		TimeSpentSeconds: req.TimeSpentSeconds,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
