package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/cocagne-tracker/internal/db"
	"github.com/ukydev/cocagne-tracker/internal/models"
	"github.com/ukydev/cocagne-tracker/internal/session"
	"github.com/ukydev/cocagne-tracker/internal/storage"
)

const maxPhotoSize = 10 << 20

// Uploader stores a photo and returns its public URL.
type Uploader interface {
	UploadFile(ctx context.Context, file io.Reader, objectKey string) (string, error)
}

// PhotoHandler receives proof-of-delivery photos for the current stop.
type PhotoHandler struct {
	sessions *session.Manager
	uploader Uploader
	proofs   db.ProofCollection
}

func NewPhotoHandler(sessions *session.Manager, uploader Uploader, proofs db.ProofCollection) *PhotoHandler {
	return &PhotoHandler{sessions: sessions, uploader: uploader, proofs: proofs}
}

// Upload handles POST /api/sessions/{id}/photos with a multipart "photo" field.
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "Photo storage is not configured")
		return
	}
	s, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeSessionError(w, err)
		return
	}
	stop, ok := s.CurrentStop()
	if !ok {
		writeError(w, http.StatusConflict, "Tour already completed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, _, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	url, err := h.uploader.UploadFile(r.Context(), file, storage.ProofKey(s.TourID(), stop.Address))
	if err != nil {
		log.WithError(err).WithField("tour_id", s.TourID()).Error("Failed to upload proof photo")
		writeError(w, http.StatusBadGateway, "Failed to upload photo")
		return
	}

	proof, err := h.proofs.InsertProof(r.Context(), models.DeliveryProof{
		TourID:   s.TourID(),
		Address:  stop.Address,
		PhotoURL: url,
		DeviceID: s.DeviceID(),
	})
	if err != nil {
		log.WithError(err).WithField("tour_id", s.TourID()).Error("Failed to store proof")
		writeError(w, http.StatusInternalServerError, "Failed to store proof")
		return
	}
	writeJSON(w, http.StatusCreated, proof)
}

// ListByTour handles GET /api/tours/{id}/proofs.
func (h *PhotoHandler) ListByTour(w http.ResponseWriter, r *http.Request) {
	proofs, err := h.proofs.FindProofsByTour(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		log.WithError(err).Error("Failed to list proofs")
		writeError(w, http.StatusInternalServerError, "Failed to list proofs")
		return
	}
	writeJSON(w, http.StatusOK, proofs)
}

