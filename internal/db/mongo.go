package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names in the tracker database.
const (
	ToursCollection         = "tours"
	NotificationsCollection = "notifications"
	PushTokensCollection    = "push_tokens"
	ProofsCollection        = "delivery_proofs"
)

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// Store bundles the collections used by the service.
type Store struct {
	Tours         *MongoTourCollection
	Notifications *MongoNotificationCollection
	PushTokens    *MongoPushTokenCollection
	Proofs        *MongoProofCollection
}

// NewStore binds every collection of database dbName.
func NewStore(client *mongo.Client, dbName string) *Store {
	database := client.Database(dbName)
	return &Store{
		Tours:         &MongoTourCollection{Collection: database.Collection(ToursCollection)},
		Notifications: &MongoNotificationCollection{Collection: database.Collection(NotificationsCollection)},
		PushTokens:    &MongoPushTokenCollection{Collection: database.Collection(PushTokensCollection)},
		Proofs:        &MongoProofCollection{Collection: database.Collection(ProofsCollection)},
	}
}
