package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/cocagne-tracker/internal/models"
)

var (
	ErrTourNotFound         = errors.New("tour not found")
	ErrDepotNotFound        = errors.New("depot not found")
	ErrAlreadyDelivered     = errors.New("tour already delivered")
	ErrNotificationNotFound = errors.New("notification not found")
	errNilCollection        = errors.New("mongo collection is nil")
)

// TourFilter narrows a tour listing. Zero values match everything.
type TourFilter struct {
	City string
	Date time.Time
}

// TourCollection defines the interface for tour data operations.
type TourCollection interface {
	FindTours(ctx context.Context, filter TourFilter) ([]models.Tour, error)
	FindTourByID(ctx context.Context, id string) (*models.Tour, error)
	FindTourByCity(ctx context.Context, city string) (*models.Tour, error)
	MarkDelivered(ctx context.Context, id string) error
	ValidateDepot(ctx context.Context, tourID, depotID string) (*models.Tour, error)
	InsertTours(ctx context.Context, tours []models.Tour) (int, error)
}

// NotificationCollection defines the interface for the client notification feed.
type NotificationCollection interface {
	InsertNotification(ctx context.Context, n models.Notification) (models.Notification, error)
	FindNotifications(ctx context.Context, limit int64) ([]models.Notification, error)
	DeleteNotification(ctx context.Context, id string) error
	DeleteAllNotifications(ctx context.Context) (int64, error)
}

// PushTokenCollection stores device push tokens.
type PushTokenCollection interface {
	UpsertPushToken(ctx context.Context, token models.PushToken) error
	FindPushTokens(ctx context.Context) ([]models.PushToken, error)
	DeletePushToken(ctx context.Context, token string) error
}

// ProofCollection stores proof-of-delivery records.
type ProofCollection interface {
	InsertProof(ctx context.Context, proof models.DeliveryProof) (models.DeliveryProof, error)
	FindProofsByTour(ctx context.Context, tourID string) ([]models.DeliveryProof, error)
}
