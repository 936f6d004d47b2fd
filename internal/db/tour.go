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

// MongoTourCollection implements TourCollection for MongoDB.
type MongoTourCollection struct {
	Collection *mongo.Collection
}

// cityCollation makes city lookups case and accent insensitive.
var cityCollation = &options.Collation{Locale: "fr", Strength: 1}

func parseTourID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid id %q", ErrTourNotFound, id)
	}
	return oid, nil
}

// FindTours lists tours ordered by date, then city.
func (c *MongoTourCollection) FindTours(ctx context.Context, filter TourFilter) ([]models.Tour, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	query := bson.M{}
	if filter.City != "" {
		query["city"] = filter.City
	}
	if !filter.Date.IsZero() {
		y, m, d := filter.Date.Date()
		start := time.Date(y, m, d, 0, 0, 0, 0, filter.Date.Location())
		query["date"] = bson.M{"$gte": start, "$lt": start.AddDate(0, 0, 1)}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "city", Value: 1}}).
		SetCollation(cityCollation)

	cursor, err := c.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	tours := []models.Tour{}
	if err := cursor.All(ctx, &tours); err != nil {
		return nil, err
	}
	return tours, nil
}

// FindTourByID finds a tour by its ID.
func (c *MongoTourCollection) FindTourByID(ctx context.Context, id string) (*models.Tour, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	oid, err := parseTourID(id)
	if err != nil {
		return nil, err
	}
	var tour models.Tour
	err = c.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&tour)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrTourNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tour, nil
}

// FindTourByCity returns the latest tour planned for a city.
func (c *MongoTourCollection) FindTourByCity(ctx context.Context, city string) (*models.Tour, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetCollation(cityCollation)

	var tour models.Tour
	err := c.Collection.FindOne(ctx, bson.M{"city": city}, opts).Decode(&tour)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: city %q", ErrTourNotFound, city)
	}
	if err != nil {
		return nil, err
	}
	return &tour, nil
}

// MarkDelivered sets the tour status to delivered, validates every depot and
// lets the server assign updated_at. Only the first call for a tour writes;
// later ones return ErrAlreadyDelivered.
func (c *MongoTourCollection) MarkDelivered(ctx context.Context, id string) error {
	if c.Collection == nil {
		return errNilCollection
	}
	oid, err := parseTourID(id)
	if err != nil {
		return err
	}
	update := bson.M{
		"$set": bson.M{
			"status":                        models.TourStatusDelivered,
			"depots.$[].delivery_validated": true,
		},
		"$currentDate": bson.M{"updated_at": true},
	}
	filter := bson.M{"_id": oid, "status": bson.M{"$ne": models.TourStatusDelivered}}
	result, err := c.Collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount > 0 {
		return nil
	}
	n, err := c.Collection.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTourNotFound
	}
	return ErrAlreadyDelivered
}

// ValidateDepot marks one depot of a tour as delivered and returns the updated tour.
func (c *MongoTourCollection) ValidateDepot(ctx context.Context, tourID, depotID string) (*models.Tour, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	tid, err := parseTourID(tourID)
	if err != nil {
		return nil, err
	}
	did, err := primitive.ObjectIDFromHex(depotID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", ErrDepotNotFound, depotID)
	}

	update := bson.M{
		"$set":         bson.M{"depots.$.delivery_validated": true},
		"$currentDate": bson.M{"updated_at": true},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var tour models.Tour
	err = c.Collection.FindOneAndUpdate(ctx, bson.M{"_id": tid, "depots._id": did}, update, opts).Decode(&tour)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, countErr := c.Collection.CountDocuments(ctx, bson.M{"_id": tid})
		if countErr != nil {
			return nil, countErr
		}
		if n == 0 {
			return nil, ErrTourNotFound
		}
		return nil, ErrDepotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tour, nil
}

// InsertTours validates and inserts tours, assigning missing depot IDs.
// It returns the number of inserted tours.
func (c *MongoTourCollection) InsertTours(ctx context.Context, tours []models.Tour) (int, error) {
	if c.Collection == nil {
		return 0, errNilCollection
	}
	if len(tours) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, 0, len(tours))
	for i := range tours {
		t := tours[i]
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("tour %d (%s): %w", i, t.City, err)
		}
		if t.Status == "" {
			t.Status = models.TourStatusPlanned
		}
		depots := make([]models.Depot, len(t.Depots))
		copy(depots, t.Depots)
		for j := range depots {
			if depots[j].ID.IsZero() {
				depots[j].ID = primitive.NewObjectID()
			}
		}
		t.Depots = depots
		docs = append(docs, t)
	}
	result, err := c.Collection.InsertMany(ctx, docs)
	if err != nil {
		return 0, err
	}
	return len(result.InsertedIDs), nil
}
