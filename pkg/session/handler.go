package session

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the session lifecycle over HTTP.
type Handler struct {
	mgr *Manager
}

// NewHandler creates a session HTTP handler.
func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

// Register mounts the session routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions", h.create)
	r.Get("/sessions/{id}", h.get)
	r.Patch("/sessions/{id}", h.update)
	r.Delete("/sessions/{id}", h.end)
}

// createRequest is the optional client metadata for a new session.
type createRequest struct {
	UserAgent     string          `json:"user_agent"`
	Platform      string          `json:"platform"`
	Language      string          `json:"language"`
	Accessibility map[string]bool `json:"accessibility"`
	Preferences   map[string]any  `json:"preferences"`
}

// updateRequest is a partial session update. Pointer and map fields
// distinguish "absent" from "zero".
type updateRequest struct {
	Accessibility map[string]bool `json:"accessibility"`
	Preferences   map[string]any  `json:"preferences"`
	LastActiveAt  *time.Time      `json:"last_active_at"`
	AddRequests   int64           `json:"add_requests"`
	AddGestures   int64           `json:"add_gestures"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	rec, err := h.mgr.Start(r.Context(), Metadata{
		UserAgent:     req.UserAgent,
		Platform:      req.Platform,
		Language:      req.Language,
		Accessibility: req.Accessibility,
		Preferences:   req.Preferences,
	})
	if err != nil {
		slog.Error("session: create failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "session could not be created")
		return
	}

	writeRecord(w, http.StatusCreated, rec)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.mgr.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		slog.Error("session: get failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "session could not be read")
		return
	}
	if rec == nil {
		writeNotFound(w)
		return
	}
	writeRecord(w, http.StatusOK, rec)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	rec, err := h.mgr.Update(r.Context(), chi.URLParam(r, "id"), Update{
		Accessibility: req.Accessibility,
		Preferences:   req.Preferences,
		LastActiveAt:  req.LastActiveAt,
		AddRequests:   req.AddRequests,
		AddGestures:   req.AddGestures,
	})
	if err != nil {
		slog.Error("session: update failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "session could not be updated")
		return
	}
	if rec == nil {
		writeNotFound(w)
		return
	}
	writeRecord(w, http.StatusOK, rec)
}

func (h *Handler) end(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.End(r.Context(), chi.URLParam(r, "id")); err != nil {
		slog.Error("session: end failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "session could not be ended")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeRecord(w http.ResponseWriter, code int, rec *Record) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rec)
}

// writeNotFound is the single not-found shape: absent and expired
// sessions are observationally identical.
func writeNotFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "session_not_found", "session not found")
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errCode, Message: msg})
}
