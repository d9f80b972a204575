// Package proximity filters entries by their planar distance to an origin.
//
// Distances are Euclidean in the (lat, lon) number plane, measured in decimal
// degrees. This is not a geodesic distance: it stretches east-west near the
// poles and drifts at large radii, which is acceptable for city-scale queries.
package proximity

import (
	"math"

	"github.com/ukydev/eventual/internal/models"
)

// DefaultRadius is the search radius used by the retrieval endpoint, in degrees.
const DefaultRadius = 0.2

// Distance returns the planar distance between a and b.
func Distance(a, b models.Coordinate) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lon-b.Lon)
}

// Within reports whether c lies strictly closer than radius to origin.
func Within(c, origin models.Coordinate, radius float64) bool {
	return Distance(c, origin) < radius
}

// FilterByProximity keeps the entries strictly closer than radius to origin.
// Input order is preserved and entries without a coordinate are dropped.
func FilterByProximity(entries []models.Entry, origin models.Coordinate, radius float64) []models.Entry {
	out := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Location.Coordinate == nil {
			continue
		}
		if Within(*e.Location.Coordinate, origin, radius) {
			out = append(out, e)
		}
	}
	return out
}
