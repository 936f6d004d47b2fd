package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/cocagne-tracker/internal/db"
)

// PersistenceError reports that the delivered status could not be saved.
type PersistenceError struct {
	TourID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist delivered status of tour %s: %v", e.TourID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotificationError reports that at least one sink failed.
type NotificationError struct {
	TourID string
	Err    error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify delivery of tour %s: %v", e.TourID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// StatusUpdater persists the delivered status of a tour.
type StatusUpdater interface {
	MarkDelivered(ctx context.Context, tourID string) error
}

// Delivery describes a completed tour.
type Delivery struct {
	TourID string
	City   string
	Day    string
}

// Message renders the delivery as a client notification.
func (d Delivery) Message() Message {
	body := fmt.Sprintf("La tournée de %s a été livrée.", d.City)
	if d.Day != "" {
		body = fmt.Sprintf("La tournée de %s du %s a été livrée.", d.City, d.Day)
	}
	return Message{
		Title: "Livraison terminée",
		Body:  body,
		Data: map[string]string{
			DataTourID: d.TourID,
			DataCity:   d.City,
			DataDay:    d.Day,
		},
	}
}

// Completion persists and announces tour completions. Both steps are best
// effort and never retried.
type Completion struct {
	Tours   StatusUpdater
	Sink    Sink
	Timeout time.Duration
}

// NewCompletion returns a notifier with a 10s timeout per step.
func NewCompletion(tours StatusUpdater, sink Sink) *Completion {
	return &Completion{Tours: tours, Sink: sink, Timeout: 10 * time.Second}
}

func (c *Completion) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}

// Persist marks the tour delivered. A failure is returned as *PersistenceError;
// it wraps db.ErrAlreadyDelivered when another session completed the tour first.
func (c *Completion) Persist(ctx context.Context, tourID string) error {
	if c.Tours == nil {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.Tours.MarkDelivered(ctx, tourID); err != nil {
		if errors.Is(err, db.ErrAlreadyDelivered) {
			log.WithField("tour_id", tourID).Info("Tour was already marked as delivered")
			return &PersistenceError{TourID: tourID, Err: err}
		}
		log.WithError(err).WithField("tour_id", tourID).Warn("Failed to persist delivered status")
		return &PersistenceError{TourID: tourID, Err: err}
	}
	log.WithField("tour_id", tourID).Info("Tour marked as delivered")
	return nil
}

// Announce sends the completion message. A failure is returned as *NotificationError.
func (c *Completion) Announce(ctx context.Context, d Delivery) error {
	if c.Sink == nil {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.Sink.Notify(ctx, d.Message()); err != nil {
		log.WithError(err).WithField("tour_id", d.TourID).Warn("Failed to send delivery notification")
		return &NotificationError{TourID: d.TourID, Err: err}
	}
	return nil
}
