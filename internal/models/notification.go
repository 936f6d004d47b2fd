package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification is a delivered-tour entry of the client feed.
type Notification struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TourID      string             `bson:"tour_id" json:"tour_id"`
	City        string             `bson:"city" json:"city"`
	Day         string             `bson:"day" json:"day"`
	Title       string             `bson:"title" json:"title"`
	Body        string             `bson:"body" json:"body"`
	DeliveredAt time.Time          `bson:"delivered_at" json:"delivered_at"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

// PushToken is a device token registered for remote push notifications.
type PushToken struct {
	Token        string    `bson:"_id" json:"token"`
	DeviceID     string    `bson:"device_id" json:"device_id"`
	RegisteredAt time.Time `bson:"registered_at" json:"registered_at"`
}
