package models

import "time"

// Vehicle phases reported to callers.
const (
	StateMoving        = "moving"
	StateAwaitingRoute = "awaiting_route"
	StateStuck         = "stuck"
)

// Vehicle represents a simulated ambulance as seen by the delivery layer.
type Vehicle struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	State          string          `json:"state"`
	StateSince     time.Time       `json:"state_since"`
	CurrentData    CurrentData     `json:"current_data"`
	HistoricalData []TelemetryData `json:"historical_data,omitempty"`
	Route          *RouteView      `json:"route,omitempty"`
}

// RouteView is the renderable part of a vehicle's route: the path still ahead
// of the vehicle plus its cursor.
type RouteView struct {
	Points          []Location `json:"points"`
	SegmentIndex    int        `json:"segment_index"`
	SegmentOffsetKm float64    `json:"segment_offset_km"`
	AtEnd           bool       `json:"at_end"`
	TargetSpeed     float64    `json:"target_speed,omitempty"` // km/h, 0 when no profile
	NextAttemptAt   *time.Time `json:"next_attempt_at,omitempty"`
}

// RouteRequest is the body accepted when assigning a route to a vehicle.
type RouteRequest struct {
	Points []Location `json:"points"`
}

// VehicleStatus is the live-feed form of a vehicle, without history.
type VehicleStatus struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	State       string      `json:"state"`
	StateSince  time.Time   `json:"state_since"`
	CurrentData CurrentData `json:"current_data"`
	Route       *RouteView  `json:"route,omitempty"`
}
