// Package telemetry derives fuel and engine readings from vehicle motion.
package telemetry

import (
	"math"
	"math/rand"
	"time"

	"github.com/ukydev/ambulance-sim/internal/models"
)

// Config tunes the fuel and thermal model.
type Config struct {
	TankCapacityL float64
	IdleSpeedKmh  float64 // below this the engine is idling
	IdleBurnLph   float64
	IdleJitterLph float64

	BaseConsumption   float64 // L/100km at OptimumSpeedKmh
	OptimumSpeedKmh   float64
	ConsumptionCurve  float64 // extra L/100km per (km/h)^2 away from the optimum
	LightsConsumption float64 // fractional penalty while emergency lights run

	BaselineSpeedKmh    float64 // thermal targets rise above this speed
	CoolantBaseC        float64
	CoolantPerKmh       float64
	CoolantMinC         float64
	CoolantMaxC         float64
	OilBaseC            float64
	OilPerKmh           float64
	OilMinC             float64
	OilMaxC             float64
	TempJitterC         float64
	ThermalTimeConstant time.Duration
}

// DefaultConfig returns values for a diesel box ambulance.
func DefaultConfig() Config {
	return Config{
		TankCapacityL: 80,
		IdleSpeedKmh:  2,
		IdleBurnLph:   1.1,
		IdleJitterLph: 0.2,

		BaseConsumption:   13,
		OptimumSpeedKmh:   60,
		ConsumptionCurve:  0.0025,
		LightsConsumption: 0.1,

		BaselineSpeedKmh:    40,
		CoolantBaseC:        88,
		CoolantPerKmh:       0.08,
		CoolantMinC:         70,
		CoolantMaxC:         100,
		OilBaseC:            94,
		OilPerKmh:           0.15,
		OilMinC:             75,
		OilMaxC:             115,
		TempJitterC:         0.15,
		ThermalTimeConstant: 60 * time.Second,
	}
}

// Input describes one tick of motion.
type Input struct {
	Now             time.Time
	Elapsed         time.Duration
	DistanceKm      float64
	SpeedKmh        float64
	ConsumptionRate float64 // L/100km
}

// Model computes telemetry updates. A nil rng disables jitter.
type Model struct {
	cfg Config
	rng *rand.Rand
}

// NewModel creates a telemetry model.
func NewModel(cfg Config, rng *rand.Rand) *Model {
	return &Model{cfg: cfg, rng: rng}
}

// Config returns the model configuration.
func (m *Model) Config() Config { return m.cfg }

// ConsumptionRate returns the instantaneous L/100km at the given speed.
func (m *Model) ConsumptionRate(speedKmh float64, lights bool) float64 {
	d := speedKmh - m.cfg.OptimumSpeedKmh
	rate := m.cfg.BaseConsumption + m.cfg.ConsumptionCurve*d*d
	if lights {
		rate *= 1 + m.cfg.LightsConsumption
	}
	return rate
}

func (m *Model) jitter(amplitude float64) float64 {
	if m.rng == nil || amplitude == 0 {
		return 0
	}
	return (m.rng.Float64()*2 - 1) * amplitude
}

// Step returns cur advanced by one tick. Position, heading and speed are left
// to the caller.
func (m *Model) Step(cur models.CurrentData, in Input) models.CurrentData {
	next := cur
	next.Timestamp = in.Now
	if in.DistanceKm > 0 {
		next.Odometer += in.DistanceKm
	}

	dt := in.Elapsed.Seconds()
	if dt < 0 {
		dt = 0
	}

	var liters float64
	if in.SpeedKmh < m.cfg.IdleSpeedKmh {
		burn := math.Max(0, m.cfg.IdleBurnLph+m.jitter(m.cfg.IdleJitterLph))
		liters = burn * dt / 3600
		next.FuelConsumption = 0
	} else {
		liters = in.ConsumptionRate * math.Max(0, in.DistanceKm) / 100
		next.FuelConsumption = in.ConsumptionRate
	}
	if m.cfg.TankCapacityL > 0 {
		next.FuelLevel = clamp(cur.FuelLevel-liters/m.cfg.TankCapacityL*100, 0, 100)
	}

	alpha := 1.0
	if tau := m.cfg.ThermalTimeConstant.Seconds(); tau > 0 {
		alpha = 1 - math.Exp(-dt/tau)
	}
	above := math.Max(0, in.SpeedKmh-m.cfg.BaselineSpeedKmh)

	coolantTarget := m.cfg.CoolantBaseC + m.cfg.CoolantPerKmh*above
	next.EngineCoolantTemp = clamp(
		cur.EngineCoolantTemp+alpha*(coolantTarget-cur.EngineCoolantTemp)+m.jitter(m.cfg.TempJitterC),
		m.cfg.CoolantMinC, m.cfg.CoolantMaxC,
	)

	oilTarget := m.cfg.OilBaseC + m.cfg.OilPerKmh*above
	next.EngineOilTemp = clamp(
		cur.EngineOilTemp+alpha*(oilTarget-cur.EngineOilTemp)+m.jitter(m.cfg.TempJitterC),
		m.cfg.OilMinC, m.cfg.OilMaxC,
	)

	return next
}

// Record steps cur and appends the resulting sample to h.
func (m *Model) Record(cur models.CurrentData, h *History, in Input) models.CurrentData {
	next := m.Step(cur, in)
	if h != nil {
		h.Append(next.Sample())
	}
	return next
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}
