package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ukydev/cocagne-tracker/internal/models"
)

// NotificationStore persists the client feed.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n models.Notification) (models.Notification, error)
}

// Broadcaster pushes raw messages to live clients.
type Broadcaster interface {
	Broadcast(message []byte)
}

// FeedSink records the notification in the client feed and broadcasts it to
// connected clients. The broadcast happens even if storing fails.
type FeedSink struct {
	store NotificationStore
	hub   Broadcaster
	now   func() time.Time
}

func NewFeedSink(store NotificationStore, hub Broadcaster) *FeedSink {
	return &FeedSink{store: store, hub: hub, now: time.Now}
}

func (s *FeedSink) Notify(ctx context.Context, msg Message) error {
	n := models.Notification{
		TourID:      msg.Data[DataTourID],
		City:        msg.Data[DataCity],
		Day:         msg.Data[DataDay],
		Title:       msg.Title,
		Body:        msg.Body,
		DeliveredAt: s.now().UTC(),
	}
	var storeErr error
	if s.store != nil {
		stored, err := s.store.InsertNotification(ctx, n)
		if err != nil {
			storeErr = fmt.Errorf("store notification: %w", err)
		} else {
			n = stored
		}
	}
	if s.hub != nil {
		payload, err := json.Marshal(n)
		if err != nil {
			return err
		}
		s.hub.Broadcast(payload)
	}
	return storeErr
}
