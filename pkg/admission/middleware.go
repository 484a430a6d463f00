package admission

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// denialBody is the machine-readable payload returned on quota denial.
// Denial is an expected steady-state outcome under load, not an error.
type denialBody struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Limit             int    `json:"limit"`
	Remaining         int    `json:"remaining"`
	ResetAt           int64  `json:"reset_at"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

type serviceErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Middleware wraps next with an admission check. Rate-limit headers are
// set on every response; denied requests get a 429 with a structured
// body, and requests that fail on both backends get a 503.
func (c *Controller) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dec, err := c.Admit(r.Context(), Identity(r), r.URL.Path)
		if err != nil {
			slog.Error("admission: both backends failed", "path", r.URL.Path, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, serviceErrorBody{
				Error:   "service_unavailable",
				Message: "admission check could not be completed",
			})
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))

		if !dec.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(dec.RetryAfter.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, denialBody{
				Error:             "quota_exceeded",
				Message:           "request quota exceeded for this window",
				Limit:             dec.Limit,
				Remaining:         0,
				ResetAt:           dec.ResetAt.Unix(),
				RetryAfterSeconds: int(dec.RetryAfter.Seconds()),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
