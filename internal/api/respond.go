package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/liran1305/Estimate-sub000/internal/middleware"
	"github.com/liran1305/Estimate-sub000/internal/services"
	"github.com/liran1305/Estimate-sub000/internal/utils"
)

const maxBodyBytes = 64 << 10

type errorBody struct {
	Error          string     `json:"error"`
	Code           string     `json:"code"`
	Message        string     `json:"message"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	RemainingHours int        `json:"remaining_hours,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorExpired:
		return http.StatusGone
	case services.ErrorAlreadyBurned:
		return http.StatusConflict
	case services.ErrorLockedOut:
		return http.StatusLocked
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

// writeError maps the service taxonomy to a status and a localized message.
// Transient causes are logged, never echoed.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := services.CodeOf(err)
	status := statusFor(code)
	body := errorBody{
		Code:    string(code),
		Message: utils.T(middleware.LocaleFromContext(r.Context()), "error."+string(code)),
	}
	if se, ok := services.AsServiceError(err); ok && code != services.ErrorTransient {
		body.Error = se.Message
	} else {
		body.Error = "temporarily unavailable"
		rt.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	var locked *services.LockedOutError
	if errors.As(err, &locked) {
		until := locked.LockedUntil
		body.LockedUntil = &until
		body.RemainingHours = locked.RemainingHours
		body.Error = locked.Error()
		w.Header().Set("Retry-After", strconv.Itoa(locked.RemainingHours*3600))
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a bounded JSON body and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return services.NewInvalidError("request body required")
		}
		return services.NewInvalidError("malformed request body")
	}
	return nil
}
