package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/cocagne-tracker/internal/config"
	"github.com/ukydev/cocagne-tracker/internal/db"
	"github.com/ukydev/cocagne-tracker/internal/models"
)

// tourRecord is one entry of the import file. Date is YYYY-MM-DD.
type tourRecord struct {
	City   string         `json:"city"`
	Day    string         `json:"day"`
	Date   string         `json:"date"`
	Driver string         `json:"driver"`
	Depots []models.Depot `json:"depots"`
}

// TourInserter stores a batch of tours.
type TourInserter interface {
	InsertTours(ctx context.Context, tours []models.Tour) (int, error)
}

func readTours(r io.Reader) ([]models.Tour, error) {
	var records []tourRecord
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode tours: %w", err)
	}
	tours := make([]models.Tour, 0, len(records))
	for i, rec := range records {
		if strings.TrimSpace(rec.City) == "" {
			return nil, fmt.Errorf("tour %d: city is required", i)
		}
		t := models.Tour{City: rec.City, Day: rec.Day, Driver: rec.Driver, Depots: rec.Depots}
		if rec.Date != "" {
			date, err := time.Parse("2006-01-02", rec.Date)
			if err != nil {
				return nil, fmt.Errorf("tour %d (%s): date must be YYYY-MM-DD: %w", i, rec.City, err)
			}
			t.Date = date
		}
		tours = append(tours, t)
	}
	return tours, nil
}

func importFile(ctx context.Context, path string, store TourInserter) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	tours, err := readTours(f)
	if err != nil {
		return 0, err
	}
	if len(tours) == 0 {
		return 0, nil
	}
	return store.InsertTours(ctx, tours)
}

func main() {
	path := "tours.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	} else if v := os.Getenv("TOURS_FILE"); v != "" {
		path = v
	}

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.ConfigureLogging(cfg.Log); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	client, err := db.ConnectMongo(cfg.Mongo.URI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := importFile(ctx, path, db.NewStore(client, cfg.Mongo.DBName).Tours)
	if err != nil {
		log.WithError(err).WithField("file", path).Fatal("Import failed")
	}
	log.WithFields(log.Fields{"file": path, "tours": n}).Info("Import completed")
}
