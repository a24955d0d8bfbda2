// Package route represents a drivable path and a vehicle's progress along it.
package route

import (
	"errors"
	"math"

	"github.com/ukydev/ambulance-sim/internal/geo"
	"github.com/ukydev/ambulance-sim/internal/models"
)

// ErrTooFewPoints is returned when a path cannot form a single segment.
var ErrTooFewPoints = errors.New("route needs at least two points")

// boundaryEpsilonKm absorbs float drift when a step lands on a segment boundary.
const boundaryEpsilonKm = 1e-9

// Cursor marks progress within a route.
type Cursor struct {
	SegmentIndex    int
	SegmentOffsetKm float64 // km along the current segment
}

// Step is the outcome of one Advance call.
type Step struct {
	Position   models.Location
	Heading    float64
	AtEnd      bool
	Moved      bool
	DistanceKm float64 // distance actually covered
}

// Route is an ordered path of at least two points with an optional per-segment
// target speed profile. It is not safe for concurrent use.
type Route struct {
	points []models.Location
	speeds []float64 // km/h per segment, 0 when unknown
	cursor Cursor
	atEnd  bool
}

// New builds a route positioned at its first point. speedsKmh is kept only when
// it has exactly one entry per segment.
func New(points []models.Location, speedsKmh []float64) (*Route, error) {
	if len(points) < 2 {
		return nil, ErrTooFewPoints
	}
	for _, p := range points {
		if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
			return nil, errors.New("route contains a non-finite coordinate")
		}
	}
	r := &Route{points: append([]models.Location(nil), points...)}
	if len(speedsKmh) == len(points)-1 {
		r.speeds = append([]float64(nil), speedsKmh...)
	}
	return r, nil
}

// Valid reports whether the route can be traversed at all.
func (r *Route) Valid() bool {
	return r != nil && len(r.points) >= 2
}

// Points returns a copy of the full path.
func (r *Route) Points() []models.Location {
	return append([]models.Location(nil), r.points...)
}

// Cursor returns the current progress marker.
func (r *Route) Cursor() Cursor { return r.cursor }

// AtEnd reports whether the final point has been reached.
func (r *Route) AtEnd() bool { return r.atEnd }

func (r *Route) segment(i int) (models.Location, models.Location) {
	return r.points[i], r.points[i+1]
}

// Position returns the interpolated location of the cursor.
func (r *Route) Position() models.Location {
	if len(r.points) == 0 {
		return models.Location{}
	}
	if len(r.points) == 1 || r.atEnd {
		return r.points[len(r.points)-1]
	}
	a, b := r.segment(r.cursor.SegmentIndex)
	segLen := geo.DistanceKm(a, b)
	if segLen == 0 {
		return a
	}
	return geo.Lerp(a, b, r.cursor.SegmentOffsetKm/segLen)
}

// Heading returns the bearing of the current segment.
func (r *Route) Heading() float64 {
	if len(r.points) < 2 {
		return 0
	}
	a, b := r.segment(r.cursor.SegmentIndex)
	return geo.BearingDeg(a, b)
}

// Advance moves the cursor forward by distanceKm. Non-positive distances, invalid
// routes and finished routes are no-ops that report the unchanged position.
func (r *Route) Advance(distanceKm float64) Step {
	if !(distanceKm > 0) || len(r.points) < 2 || r.atEnd {
		return Step{Position: r.Position(), Heading: r.Heading(), AtEnd: r.atEnd}
	}

	last := len(r.points) - 2
	remaining := distanceKm
	for {
		a, b := r.segment(r.cursor.SegmentIndex)
		segLen := geo.DistanceKm(a, b)
		left := segLen - r.cursor.SegmentOffsetKm

		if remaining < left-boundaryEpsilonKm {
			r.cursor.SegmentOffsetKm += remaining
			return Step{
				Position:   geo.Lerp(a, b, r.cursor.SegmentOffsetKm/segLen),
				Heading:    geo.BearingDeg(a, b),
				Moved:      true,
				DistanceKm: distanceKm,
			}
		}

		remaining -= left
		if r.cursor.SegmentIndex == last {
			r.cursor.SegmentOffsetKm = segLen
			r.atEnd = true
			return Step{
				Position:   b,
				Heading:    geo.BearingDeg(a, b),
				AtEnd:      true,
				Moved:      true,
				DistanceKm: distanceKm - math.Max(remaining, 0),
			}
		}

		r.cursor.SegmentIndex++
		r.cursor.SegmentOffsetKm = 0
		if remaining <= boundaryEpsilonKm {
			na, nb := r.segment(r.cursor.SegmentIndex)
			return Step{Position: na, Heading: geo.BearingDeg(na, nb), Moved: true, DistanceKm: distanceKm}
		}
	}
}

// TargetSpeed returns the speed hint for the current segment, or 0.
func (r *Route) TargetSpeed() float64 {
	if r.atEnd || r.cursor.SegmentIndex >= len(r.speeds) {
		return 0
	}
	return r.speeds[r.cursor.SegmentIndex]
}

// LengthKm returns the total path length.
func (r *Route) LengthKm() float64 {
	total := 0.0
	for i := 0; i+1 < len(r.points); i++ {
		total += geo.DistanceKm(r.points[i], r.points[i+1])
	}
	return total
}

// Remaining returns the path still ahead, starting at the current position.
func (r *Route) Remaining() []models.Location {
	if len(r.points) < 2 {
		return append([]models.Location(nil), r.points...)
	}
	if r.atEnd {
		return []models.Location{r.points[len(r.points)-1]}
	}
	out := make([]models.Location, 0, len(r.points)-r.cursor.SegmentIndex)
	out = append(out, r.Position())
	return append(out, r.points[r.cursor.SegmentIndex+1:]...)
}

// View renders the route for callers, reduced to its remaining path.
func (r *Route) View() *models.RouteView {
	return &models.RouteView{
		Points:          r.Remaining(),
		SegmentIndex:    r.cursor.SegmentIndex,
		SegmentOffsetKm: r.cursor.SegmentOffsetKm,
		AtEnd:           r.atEnd,
		TargetSpeed:     ClassifyLimit(r.TargetSpeed()),
	}
}
