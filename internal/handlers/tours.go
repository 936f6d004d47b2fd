package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/cocagne-tracker/internal/db"
	"github.com/ukydev/cocagne-tracker/internal/models"
	"github.com/ukydev/cocagne-tracker/internal/route"
)

// TourHandler serves the tour catalogue.
type TourHandler struct {
	tours db.TourCollection
}

func NewTourHandler(tours db.TourCollection) *TourHandler {
	return &TourHandler{tours: tours}
}

func summarize(t models.Tour) models.TourSummary {
	status := t.Status
	if status == "" {
		status = models.TourStatusPlanned
	}
	return models.TourSummary{
		ID:         t.ID.Hex(),
		City:       t.City,
		Day:        t.Day,
		Depots:     len(t.Depots),
		DistanceKm: route.PathKm(t.Path()),
		Status:     string(status),
	}
}

// List handles GET /api/tours?city=&date=YYYY-MM-DD.
func (h *TourHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := db.TourFilter{City: r.URL.Query().Get("city")}
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
			return
		}
		filter.Date = date
	}

	tours, err := h.tours.FindTours(r.Context(), filter)
	if err != nil {
		log.WithError(err).Error("Failed to list tours")
		writeError(w, http.StatusInternalServerError, "Failed to list tours")
		return
	}
	out := make([]models.TourSummary, 0, len(tours))
	for _, t := range tours {
		out = append(out, summarize(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/tours/{id}.
func (h *TourHandler) Get(w http.ResponseWriter, r *http.Request) {
	tour, err := h.tours.FindTourByID(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, db.ErrTourNotFound) {
		writeError(w, http.StatusNotFound, "Tour not found")
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to load tour")
		writeError(w, http.StatusInternalServerError, "Failed to load tour")
		return
	}
	writeJSON(w, http.StatusOK, tour)
}

// ValidateDepot handles PUT /api/tours/validate/{tourId}/{depotId}.
func (h *TourHandler) ValidateDepot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tour, err := h.tours.ValidateDepot(r.Context(), vars["tourId"], vars["depotId"])
	switch {
	case errors.Is(err, db.ErrTourNotFound):
		writeError(w, http.StatusNotFound, "Tour not found")
	case errors.Is(err, db.ErrDepotNotFound):
		writeError(w, http.StatusNotFound, "Depot not found")
	case err != nil:
		log.WithError(err).Error("Failed to validate depot")
		writeError(w, http.StatusInternalServerError, "Failed to validate depot")
	default:
		log.WithFields(log.Fields{"tour_id": vars["tourId"], "depot_id": vars["depotId"]}).Info("Depot validated")
		writeJSON(w, http.StatusOK, tour)
	}
}
