package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TourStatus is the persisted delivery status of a tour.
type TourStatus string

const (
	TourStatusPlanned   TourStatus = "planned"
	TourStatusDelivered TourStatus = "delivered"
)

var (
	ErrEmptyTour        = errors.New("tour has no depots")
	ErrDuplicateAddress = errors.New("duplicate depot address")
	ErrNoBaskets        = errors.New("depot has no baskets to deliver")
)

// Basket is one line of goods to drop at a depot.
type Basket struct {
	Type     string `bson:"type" json:"type"`
	Quantity int    `bson:"quantity" json:"quantity"`
}

// Depot is a delivery point of a tour.
type Depot struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name              string             `bson:"name" json:"name"`
	Address           string             `bson:"address" json:"address"`
	Coordinates       Location           `bson:"coordinates" json:"coordinates"`
	Baskets           []Basket           `bson:"baskets" json:"baskets"`
	DeliveryValidated bool               `bson:"delivery_validated" json:"delivery_validated"`
}

// BasketCount is the number of baskets the driver has to scan at the depot.
func (d Depot) BasketCount() int {
	total := 0
	for _, b := range d.Baskets {
		total += b.Quantity
	}
	return total
}

// Tour is a driver's ordered set of depots for one day and city.
type Tour struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	City      string             `bson:"city" json:"city"`
	Day       string             `bson:"day" json:"day"`
	Date      time.Time          `bson:"date" json:"date"`
	Driver    string             `bson:"driver" json:"driver"`
	Depots    []Depot            `bson:"depots" json:"depots"`
	Status    TourStatus         `bson:"status" json:"status"`
	UpdatedAt *time.Time         `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// IsDelivered reports whether the tour was already marked as delivered.
func (t *Tour) IsDelivered() bool {
	return t.Status == TourStatusDelivered
}

// Validate checks the invariants the tracker relies on: at least one depot,
// unique addresses, a positive basket count and valid coordinates per depot.
func (t *Tour) Validate() error {
	if len(t.Depots) == 0 {
		return ErrEmptyTour
	}
	seen := make(map[string]struct{}, len(t.Depots))
	for i, d := range t.Depots {
		addr := strings.TrimSpace(d.Address)
		if addr == "" {
			return fmt.Errorf("depot %d: empty address", i)
		}
		if _, ok := seen[addr]; ok {
			return fmt.Errorf("depot %d: %w: %q", i, ErrDuplicateAddress, addr)
		}
		seen[addr] = struct{}{}
		if d.BasketCount() <= 0 {
			return fmt.Errorf("depot %d (%s): %w", i, addr, ErrNoBaskets)
		}
		if err := d.Coordinates.Validate(); err != nil {
			return fmt.Errorf("depot %d (%s): %w", i, addr, err)
		}
	}
	return nil
}

// Path returns the depot coordinates in tour order.
func (t *Tour) Path() []Location {
	out := make([]Location, 0, len(t.Depots))
	for _, d := range t.Depots {
		out = append(out, d.Coordinates)
	}
	return out
}

// FindDepot returns the depot with the given ID.
func (t *Tour) FindDepot(id primitive.ObjectID) (*Depot, bool) {
	for i := range t.Depots {
		if t.Depots[i].ID == id {
			return &t.Depots[i], true
		}
	}
	return nil, false
}

// TourSummary is the list-screen projection of a tour.
type TourSummary struct {
	ID         string  `json:"id"`
	City       string  `json:"city"`
	Day        string  `json:"day"`
	Depots     int     `json:"depots"`
	DistanceKm float64 `json:"distance_km"`
	Status     string  `json:"status"`
}
