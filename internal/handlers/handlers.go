// Package handlers exposes the core over HTTP: request, challenge, session
// persistence, and stats.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/trose/ice-locator-go/internal/core"
	"github.com/trose/ice-locator-go/internal/types"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Handler serves the HTTP API.
type Handler struct {
	core *core.Core
}

// New creates the API handler.
func New(c *core.Core) *Handler {
	return &Handler{core: c}
}

// Router assembles the route table.
func (h *Handler) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /v1/request", h.handleRequest)
	mux.HandleFunc("POST /v1/challenge", h.handleChallenge)
	mux.HandleFunc("GET /v1/sessions", h.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", h.handleSessionInfo)
	mux.HandleFunc("POST /v1/sessions/{id}/save", h.handleSaveSession)
	mux.HandleFunc("POST /v1/sessions/{id}/restore", h.handleRestoreSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.handleDeleteSession)
	mux.HandleFunc("GET /v1/stats", h.handleStats)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.APIResponse{Status: types.StatusOK})
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	var payload types.RequestPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	if payload.SessionID == "" || payload.URL == "" {
		writeError(w, http.StatusBadRequest, types.NewErrorRecord(types.KindTransient, payload.SessionID, types.ErrInvalidRequest))
		return
	}

	html, err := h.core.Request(r.Context(), payload.SessionID, payload.URL)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, types.APIResponse{
		Status: types.StatusOK,
		Data: types.RequestResult{
			SessionID: payload.SessionID,
			URL:       payload.URL,
			HTML:      html,
		},
	})
}

func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var payload types.ChallengePayload
	if !decodeBody(w, r, &payload) {
		return
	}
	if payload.SessionID == "" {
		writeError(w, http.StatusBadRequest, types.NewErrorRecord(types.KindTransient, "", types.ErrInvalidRequest))
		return
	}

	result, err := h.core.Challenge(r.Context(), payload.SessionID, payload.Variant, payload.MaxAttempts)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Status: types.StatusOK, Data: result})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.APIResponse{Status: types.StatusOK, Data: h.core.ListSessions()})
}

func (h *Handler) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info := h.core.SessionInfo(id)
	if info == nil {
		writeError(w, http.StatusNotFound, types.NewErrorRecord(types.KindPersistence, id, types.ErrSessionNotFound))
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Status: types.StatusOK, Data: info})
}

func (h *Handler) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.core.SaveSession(r.Context(), id) {
		writeError(w, http.StatusInternalServerError, types.NewErrorRecord(types.KindPersistence, id, errors.New("session save failed")))
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Status: types.StatusOK})
}

func (h *Handler) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.core.RestoreSession(r.Context(), id); err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Status: types.StatusOK})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.core.DeleteSession(id); err != nil {
		writeError(w, http.StatusInternalServerError, types.NewErrorRecord(types.KindPersistence, id, err))
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Status: types.StatusOK})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.APIResponse{Status: types.StatusOK, Data: h.core.Stats()})
}

// decodeBody parses a JSON body, reporting 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, types.NewErrorRecord(types.KindTransient, "", types.ErrInvalidRequest))
		return false
	}
	return true
}

// writeCoreError maps a core error record to an HTTP status.
func writeCoreError(w http.ResponseWriter, err error) {
	var record *types.ErrorRecord
	if !errors.As(err, &record) {
		record = types.NewErrorRecord(types.KindTransient, "", err)
	}

	status := http.StatusInternalServerError
	switch record.Kind {
	case types.KindNoCapacity:
		status = http.StatusServiceUnavailable
	case types.KindRateLimited:
		status = http.StatusTooManyRequests
	case types.KindBlocked, types.KindCaptchaUnsolvable:
		status = http.StatusConflict
	case types.KindPersistence:
		status = http.StatusNotFound
	case types.KindTransient:
		if strings.Contains(record.Detail, "invalid") || strings.Contains(record.Detail, "not allowed") {
			status = http.StatusBadRequest
		} else {
			status = http.StatusBadGateway
		}
	}
	writeError(w, status, record)
}

func writeError(w http.ResponseWriter, status int, record *types.ErrorRecord) {
	writeJSON(w, status, types.APIResponse{
		Status:  types.StatusError,
		Message: record.Error(),
		Error:   record,
	})
}

func writeJSON(w http.ResponseWriter, status int, body types.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}
