package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ukydev/cocagne-tracker/internal/middleware"
)

// RateLimit bounds scan intake per device.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Router holds the handlers mounted by NewRouter.
type Router struct {
	Tours         *TourHandler
	Sessions      *SessionHandler
	Photos        *PhotoHandler
	Notifications *NotificationHandler
	ScanLimit     RateLimit
}

// NewRouter wires every route of the API.
func NewRouter(h Router) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/tours", h.Tours.List).Methods(http.MethodGet)
	api.HandleFunc("/tours/{id}", h.Tours.Get).Methods(http.MethodGet)
	api.HandleFunc("/tours/validate/{tourId}/{depotId}", h.Tours.ValidateDepot).Methods(http.MethodPut)

	api.HandleFunc("/sessions", h.Sessions.Start).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.Sessions.Get).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.Sessions.Close).Methods(http.MethodDelete)

	scan := http.Handler(http.HandlerFunc(h.Sessions.Scan))
	if h.ScanLimit.Requests > 0 && h.ScanLimit.Window > 0 {
		scan = middleware.NewRateLimitMiddleware().RateLimit(h.ScanLimit.Requests, h.ScanLimit.Window)(scan)
	}
	api.Handle("/sessions/{id}/scans", scan).Methods(http.MethodPost)

	if h.Photos != nil {
		api.HandleFunc("/sessions/{id}/photos", h.Photos.Upload).Methods(http.MethodPost)
		api.HandleFunc("/tours/{id}/proofs", h.Photos.ListByTour).Methods(http.MethodGet)
	}

	api.HandleFunc("/notifications", h.Notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications", h.Notifications.DeleteAll).Methods(http.MethodDelete)
	api.HandleFunc("/notifications/{id}", h.Notifications.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/push-tokens", h.Notifications.RegisterPushToken).Methods(http.MethodPost)

	r.HandleFunc("/ws/notifications", h.Notifications.ServeWs).Methods(http.MethodGet)
	return r
}
