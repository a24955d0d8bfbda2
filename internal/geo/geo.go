// Package geo holds the spherical geometry used to move vehicles along roads.
package geo

import (
	"math"

	"github.com/ukydev/ambulance-sim/internal/models"
)

// EarthRadiusKm is the mean earth radius used by every calculation here.
const EarthRadiusKm = 6371.0

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceKm returns the haversine great-circle distance between a and b.
func DistanceKm(a, b models.Location) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if s > 1 {
		s = 1
	}
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return EarthRadiusKm * c
}

// BearingDeg returns the initial compass bearing from a to b in [0,360).
func BearingDeg(a, b models.Location) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLon := toRad(b.Lon - a.Lon)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeDeg(toDeg(math.Atan2(y, x)))
}

// NormalizeDeg wraps any angle into [0,360).
func NormalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// Lerp interpolates linearly between a and b; t is clamped to [0,1].
func Lerp(a, b models.Location, t float64) models.Location {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return models.Location{Lat: a.Lat + (b.Lat-a.Lat)*t, Lon: a.Lon + (b.Lon-a.Lon)*t}
}

// Destination projects p along bearingDeg by distanceKm on the sphere.
func Destination(p models.Location, bearingDeg, distanceKm float64) models.Location {
	delta := distanceKm / EarthRadiusKm
	theta := toRad(bearingDeg)
	lat1 := toRad(p.Lat)
	lon1 := toRad(p.Lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	lon := toDeg(lon2)
	if lon > 180 || lon < -180 {
		lon = math.Mod(lon+540, 360) - 180
	}
	return models.Location{Lat: toDeg(lat2), Lon: lon}
}

// Nearest returns the index of the candidate closest to p, or -1 for an empty list.
func Nearest(p models.Location, candidates []models.Location) int {
	best := -1
	bestKm := math.Inf(1)
	for i, c := range candidates {
		if d := DistanceKm(p, c); d < bestKm {
			best, bestKm = i, d
		}
	}
	return best
}
