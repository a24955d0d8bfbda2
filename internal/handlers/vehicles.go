package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/ambulance-sim/internal/models"
)

// Fleet is the read and command surface of the simulation engine.
type Fleet interface {
	Running() bool
	Vehicles() []models.Vehicle
	Statuses() []models.Vehicle
	Vehicle(id string) (models.Vehicle, bool)
	Telemetry(id string, since *time.Time) ([]models.TelemetryData, bool)
	SetVehicleRoute(id string, points []models.Location) bool
}

// VehicleHandler serves fleet snapshots and accepts route assignments
type VehicleHandler struct {
	fleet Fleet
}

// NewVehicleHandler creates a vehicle handler over fleet
func NewVehicleHandler(fleet Fleet) *VehicleHandler {
	return &VehicleHandler{fleet: fleet}
}

// List returns every vehicle.
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.fleet.Vehicles())
}

// Get returns one vehicle.
func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, ok := h.fleet.Vehicle(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Vehicle not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Telemetry returns a vehicle's recorded samples, optionally those at or
// after the RFC 3339 "since" query parameter.
func (h *VehicleHandler) Telemetry(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid since, expected RFC3339", http.StatusBadRequest)
			return
		}
		since = &t
	}

	samples, ok := h.fleet.Telemetry(mux.Vars(r)["id"], since)
	if !ok {
		http.Error(w, "Vehicle not found", http.StatusNotFound)
		return
	}
	if samples == nil {
		samples = []models.TelemetryData{}
	}
	writeJSON(w, http.StatusOK, samples)
}

// SetRoute replaces a vehicle's route with the posted path.
func (h *VehicleHandler) SetRoute(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	var req models.RouteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(req.Points) < 2 {
		http.Error(w, "Route needs at least two points", http.StatusBadRequest)
		return
	}
	for _, p := range req.Points {
		if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
			http.Error(w, "Route point out of range", http.StatusBadRequest)
			return
		}
	}

	if !h.fleet.SetVehicleRoute(id, req.Points) {
		http.Error(w, "Vehicle not found", http.StatusNotFound)
		return
	}

	fields := log.Fields{"vehicle_id": id, "points": len(req.Points)}
	if claims, ok := userFromRequest(r); ok {
		fields["username"] = claims.Username
	}
	log.WithFields(fields).Info("Route set by operator")

	v, _ := h.fleet.Vehicle(id)
	writeJSON(w, http.StatusOK, v)
}

// Health reports liveness and fleet size.
func (h *VehicleHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"running":  h.fleet.Running(),
		"vehicles": len(h.fleet.Statuses()),
	})
}
