package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/cocagne-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoNotificationCollection implements NotificationCollection for MongoDB.
type MongoNotificationCollection struct {
	Collection *mongo.Collection
}

// InsertNotification stores n and returns it with its ID and creation time set.
func (c *MongoNotificationCollection) InsertNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	if c.Collection == nil {
		return n, errNilCollection
	}
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	n.CreatedAt = time.Now().UTC()
	if n.DeliveredAt.IsZero() {
		n.DeliveredAt = n.CreatedAt
	}
	if _, err := c.Collection.InsertOne(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// FindNotifications returns the most recent notifications first.
// A limit of zero or less returns all of them.
func (c *MongoNotificationCollection) FindNotifications(ctx context.Context, limit int64) ([]models.Notification, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	opts := options.Find().SetSort(bson.D{{Key: "delivered_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := c.Collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []models.Notification{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteNotification removes one notification from the feed.
func (c *MongoNotificationCollection) DeleteNotification(ctx context.Context, id string) error {
	if c.Collection == nil {
		return errNilCollection
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: invalid id %q", ErrNotificationNotFound, id)
	}
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// DeleteAllNotifications clears the feed and reports how many entries were removed.
func (c *MongoNotificationCollection) DeleteAllNotifications(ctx context.Context) (int64, error) {
	if c.Collection == nil {
		return 0, errNilCollection
	}
	result, err := c.Collection.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// MongoPushTokenCollection implements PushTokenCollection for MongoDB.
type MongoPushTokenCollection struct {
	Collection *mongo.Collection
}

// UpsertPushToken registers a token, refreshing its device and time when it exists.
func (c *MongoPushTokenCollection) UpsertPushToken(ctx context.Context, token models.PushToken) error {
	if c.Collection == nil {
		return errNilCollection
	}
	if token.Token == "" {
		return errors.New("push token is empty")
	}
	if token.RegisteredAt.IsZero() {
		token.RegisteredAt = time.Now().UTC()
	}
	_, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": token.Token}, token, options.Replace().SetUpsert(true))
	return err
}

func (c *MongoPushTokenCollection) FindPushTokens(ctx context.Context) ([]models.PushToken, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	cursor, err := c.Collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []models.PushToken{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeletePushToken forgets a token. Unknown tokens are ignored.
func (c *MongoPushTokenCollection) DeletePushToken(ctx context.Context, token string) error {
	if c.Collection == nil {
		return errNilCollection
	}
	_, err := c.Collection.DeleteOne(ctx, bson.M{"_id": token})
	return err
}

// MongoProofCollection implements ProofCollection for MongoDB.
type MongoProofCollection struct {
	Collection *mongo.Collection
}

func (c *MongoProofCollection) InsertProof(ctx context.Context, proof models.DeliveryProof) (models.DeliveryProof, error) {
	if c.Collection == nil {
		return proof, errNilCollection
	}
	if proof.ID.IsZero() {
		proof.ID = primitive.NewObjectID()
	}
	if proof.CreatedAt.IsZero() {
		proof.CreatedAt = time.Now().UTC()
	}
	if _, err := c.Collection.InsertOne(ctx, proof); err != nil {
		return proof, err
	}
	return proof, nil
}

// FindProofsByTour lists the proofs of a tour in the order they were taken.
func (c *MongoProofCollection) FindProofsByTour(ctx context.Context, tourID string) ([]models.DeliveryProof, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := c.Collection.Find(ctx, bson.M{"tour_id": tourID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []models.DeliveryProof{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
