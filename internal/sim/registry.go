package sim

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/ambulance-sim/internal/models"
	"github.com/ukydev/ambulance-sim/internal/route"
)

func (v *vehicle) snapshot(withHistory bool) models.Vehicle {
	out := models.Vehicle{
		ID:          v.id,
		Name:        v.name,
		State:       v.phase.Current(),
		StateSince:  v.phase.since,
		CurrentData: v.current,
	}
	if withHistory {
		out.HistoricalData = v.history.Slice()
	}
	if v.route != nil {
		out.Route = v.route.View()
	}
	if !v.nextAttemptAt.IsZero() {
		if out.Route == nil {
			out.Route = &models.RouteView{Points: []models.Location{}}
		}
		next := v.nextAttemptAt
		out.Route.NextAttemptAt = &next
	}
	return out
}

// Vehicles returns a snapshot of the whole fleet in seeding order.
func (e *Engine) Vehicles() []models.Vehicle {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Vehicle, 0, len(e.vehicles))
	for _, v := range e.vehicles {
		out = append(out, v.snapshot(true))
	}
	return out
}

// Statuses is Vehicles without telemetry history.
func (e *Engine) Statuses() []models.Vehicle {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Vehicle, 0, len(e.vehicles))
	for _, v := range e.vehicles {
		out = append(out, v.snapshot(false))
	}
	return out
}

// Vehicle returns a snapshot of one vehicle.
func (e *Engine) Vehicle(id string) (models.Vehicle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.byID[id]
	if !ok {
		return models.Vehicle{}, false
	}
	return v.snapshot(true), true
}

// Telemetry returns the history of a vehicle, limited to samples at or after
// since when it is non-nil.
func (e *Engine) Telemetry(id string, since *time.Time) ([]models.TelemetryData, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.byID[id]
	if !ok {
		return nil, false
	}
	if since == nil {
		return v.history.Slice(), true
	}
	return v.history.Since(*since), true
}

// SetVehicleRoute replaces a vehicle's route and moves it to the first point.
// It reports false for unknown vehicles and paths of fewer than two points,
// leaving the vehicle untouched.
func (e *Engine) SetVehicleRoute(id string, points []models.Location) bool {
	r, err := route.New(points, nil)
	if err != nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.byID[id]
	if !ok {
		return false
	}
	v.gen++
	e.assign(v, r, e.clock.Now())

	log.WithFields(log.Fields{
		"vehicle_id": id,
		"points":     len(points),
		"length_km":  r.LengthKm(),
	}).Info("Route assigned")
	return true
}
