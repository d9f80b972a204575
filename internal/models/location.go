package models

import "math"

// Coordinate is a point in decimal degrees.
type Coordinate struct {
	Lat float64 `bson:"lat" json:"lat" validate:"latitude"`
	Lon float64 `bson:"lon" json:"lon" validate:"longitude"`
}

// SentinelCoordinate is stored when an address could not be resolved.
var SentinelCoordinate = Coordinate{Lat: 0, Lon: 0}

// Valid reports whether both components are finite and inside their ranges.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Location pairs the human readable address with its resolved coordinate.
//
// A nil Coordinate means the entry has no location at all. Resolved is false
// when the coordinate is the geocoding sentinel, which keeps an unresolved
// address distinguishable from a real point at (0,0).
type Location struct {
	Address    string      `bson:"address" json:"address" validate:"required"`
	Coordinate *Coordinate `bson:"coordinate,omitempty" json:"coordinate,omitempty"`
	Resolved   bool        `bson:"resolved" json:"resolved"`
}

// ResolvedLocation builds a location for a successfully geocoded address.
func ResolvedLocation(address string, c Coordinate) Location {
	return Location{Address: address, Coordinate: &c, Resolved: true}
}

// UnresolvedLocation builds a location carrying the sentinel coordinate.
func UnresolvedLocation(address string) Location {
	c := SentinelCoordinate
	return Location{Address: address, Coordinate: &c, Resolved: false}
}
