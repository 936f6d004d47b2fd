package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/cocagne-tracker/internal/middleware"
	"github.com/ukydev/cocagne-tracker/internal/session"
)

// SessionHandler exposes tracking sessions to the driver app.
type SessionHandler struct {
	sessions *session.Manager
}

func NewSessionHandler(sessions *session.Manager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type startRequest struct {
	TourID   string `json:"tour_id"`
	City     string `json:"city"`
	DeviceID string `json:"device_id"`
}

type scanRequest struct {
	Payload string `json:"payload"`
}

// Start handles POST /api/sessions.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = r.Header.Get(middleware.DeviceHeader)
	}

	s, err := h.sessions.Start(r.Context(), req.DeviceID, session.Lookup{TourID: req.TourID, City: req.City})
	if err != nil {
		writeStartError(w, err)
		return
	}
	view, err := s.CurrentView()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func writeStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidTour):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrAlreadyDelivered), errors.Is(err, session.ErrTourInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrBadLookup), errors.Is(err, session.ErrDeviceRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.WithError(err).Error("Failed to start tracking session")
		writeError(w, http.StatusInternalServerError, "Failed to start tracking session")
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusGone, "Session closed")
	default:
		log.WithError(err).Error("Session request failed")
		writeError(w, http.StatusInternalServerError, "Session request failed")
	}
}

// Scan handles POST /api/sessions/{id}/scans.
func (h *SessionHandler) Scan(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeSessionError(w, err)
		return
	}
	var req scanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.Payload) == "" {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	res, err := s.HandleScan(r.Context(), req.Payload)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Get handles GET /api/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeSessionError(w, err)
		return
	}
	view, err := s.CurrentView()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Close handles DELETE /api/sessions/{id}.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(mux.Vars(r)["id"]); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
