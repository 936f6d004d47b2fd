package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeliveryProof is a photo taken by the driver at a depot.
type DeliveryProof struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TourID    string             `bson:"tour_id" json:"tour_id"`
	Address   string             `bson:"address" json:"address"`
	PhotoURL  string             `bson:"photo_url" json:"photo_url"`
	DeviceID  string             `bson:"device_id" json:"device_id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
