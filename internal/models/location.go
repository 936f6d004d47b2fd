package models

import "fmt"

// Location is a latitude/longitude pair in decimal degrees.
type Location struct {
	Lat float64 `bson:"latitude" json:"latitude"`
	Lon float64 `bson:"longitude" json:"longitude"`
}

// Validate reports whether the location lies within WGS84 bounds.
func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("latitude %f out of range", l.Lat)
	}
	if l.Lon < -180 || l.Lon > 180 {
		return fmt.Errorf("longitude %f out of range", l.Lon)
	}
	return nil
}
