// Package sim runs the ambulance fleet: it advances every vehicle along its
// route once per tick, derives telemetry and requests replacement routes
// without ever blocking the tick.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/ambulance-sim/internal/geo"
	"github.com/ukydev/ambulance-sim/internal/metrics"
	"github.com/ukydev/ambulance-sim/internal/models"
	"github.com/ukydev/ambulance-sim/internal/route"
	"github.com/ukydev/ambulance-sim/internal/routing"
	"github.com/ukydev/ambulance-sim/internal/telemetry"
	"github.com/ukydev/ambulance-sim/internal/timeutil"
)

// Config tunes vehicle behaviour.
type Config struct {
	MaxHistory     int
	RetryBackoff   time.Duration // minimum wait after a failed acquisition
	StuckTimeout   time.Duration // awaiting a route longer than this marks the vehicle stuck
	MaxSpeedKmh    float64
	MinCruiseKmh   float64 // speed regained on routes without a speed profile
	WanderKmh      float64 // per-tick random speed change bound
	AccelKmhPerSec float64
	DecelKmhPerSec float64
	RefuelBelowPct float64
	MaxTickGap     time.Duration // elapsed time credited to one tick is capped here
	Lights         LightsConfig
	Telemetry      telemetry.Config
	Stations       []models.Location
}

// DefaultConfig returns the settings used by the simulator binary.
func DefaultConfig() Config {
	return Config{
		MaxHistory:     300,
		RetryBackoff:   15 * time.Second,
		StuckTimeout:   2 * time.Minute,
		MaxSpeedKmh:    110,
		MinCruiseKmh:   25,
		WanderKmh:      3,
		AccelKmhPerSec: 2.5,
		DecelKmhPerSec: 6,
		RefuelBelowPct: 8,
		MaxTickGap:     10 * time.Second,
		Lights: LightsConfig{
			HoldMin:    45 * time.Second,
			HoldMax:    4 * time.Minute,
			ToggleProb: 0.15,
			RetryDelay: 10 * time.Second,
		},
		Telemetry: telemetry.DefaultConfig(),
		Stations:  Stations,
	}
}

// RouteSource acquires a new drivable route starting at a point.
type RouteSource interface {
	Acquire(ctx context.Context, from models.Location) (routing.Path, error)
}

// acquisition is the resolved result of one route request. gen ties it to
// the route generation it was requested for.
type acquisition struct {
	gen  uint64
	path routing.Path
	err  error
}

type vehicle struct {
	id      string
	name    string
	phase   *phase
	current models.CurrentData
	history *telemetry.History
	route   *route.Route

	// gen is bumped whenever the route is replaced from outside the
	// acquisition pipeline; results for an older gen are discarded.
	gen           uint64
	pending       chan acquisition
	nextAttemptAt time.Time
	lights        lights
}

// Engine is the simulation context. All vehicle mutation happens under mu,
// either on the tick driver or in SetVehicleRoute.
type Engine struct {
	cfg     Config
	source  RouteSource
	clock   timeutil.Clock
	metrics *metrics.Metrics

	mu       sync.RWMutex
	rng      *rand.Rand
	model    *telemetry.Model
	vehicles []*vehicle
	byID     map[string]*vehicle
	lastTick time.Time
	ctx      context.Context // parent of route acquisitions

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an engine with an empty fleet.
func New(cfg Config, source RouteSource, clock timeutil.Clock, m *metrics.Metrics, rng *rand.Rand) *Engine {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(clock.Now().UnixNano()))
	}
	return &Engine{
		cfg:     cfg,
		source:  source,
		clock:   clock,
		metrics: m,
		rng:     rng,
		model:   telemetry.NewModel(cfg.Telemetry, rng),
		byID:    make(map[string]*vehicle),
		ctx:     context.Background(),
	}
}

// Start seeds count vehicles, unless a fleet already exists, and starts the
// tick driver. It reports false if the driver was already running.
func (e *Engine) Start(ctx context.Context, count int, interval time.Duration) bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.cancel != nil {
		return false
	}
	if interval <= 0 {
		interval = time.Second
	}

	now := e.clock.Now()
	e.mu.Lock()
	e.ctx = ctx
	e.lastTick = now
	if len(e.vehicles) == 0 {
		e.seed(count, now)
	}
	size := len(e.vehicles)
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel, e.done = cancel, done
	go func() {
		defer close(done)
		e.drive(runCtx, interval)
	}()

	log.WithFields(log.Fields{
		"fleet_size": size,
		"interval":   interval,
	}).Info("Simulation started")
	return true
}

// Stop halts the tick driver and waits for it to exit. In-flight route
// requests are left to resolve; their results are applied after a restart.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel, e.done = nil, nil
	log.Info("Simulation stopped")
}

// Running reports whether the tick driver is active.
func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.cancel != nil
}

func (e *Engine) drive(ctx context.Context, interval time.Duration) {
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			e.Tick(now)
		}
	}
}

func (e *Engine) seed(count int, now time.Time) {
	if e.lastTick.IsZero() {
		e.lastTick = now
	}
	for i := 0; i < count; i++ {
		var start models.Location
		if n := len(e.cfg.Stations); n > 0 {
			start = e.cfg.Stations[i%n]
		}

		v := &vehicle{
			id:      uuid.NewString(),
			name:    fmt.Sprintf("Ambulance %02d", len(e.vehicles)+1),
			phase:   newPhase(models.StateAwaitingRoute, now),
			history: telemetry.NewHistory(e.cfg.MaxHistory),
			current: models.CurrentData{
				Timestamp:         now,
				Location:          start,
				Heading:           e.rng.Float64() * 360,
				Odometer:          5000 + e.rng.Float64()*55000,
				FuelLevel:         40 + e.rng.Float64()*60,
				EngineOilTemp:     85 + e.rng.Float64()*10,
				EngineCoolantTemp: 80 + e.rng.Float64()*10,
			},
		}
		v.lights.on = e.rng.Float64() < 0.3
		v.current.EmergencyLights = v.lights.on

		e.vehicles = append(e.vehicles, v)
		e.byID[v.id] = v
		e.request(v, now)
	}
}

// Tick advances every vehicle to now. Elapsed time is measured from the
// previous tick.
func (e *Engine) Tick(now time.Time) {
	started := time.Now()
	states := map[string]int{
		models.StateMoving:        0,
		models.StateAwaitingRoute: 0,
		models.StateStuck:         0,
	}

	e.mu.Lock()
	dt := now.Sub(e.lastTick)
	if e.lastTick.IsZero() || dt < 0 {
		dt = 0
	}
	if e.cfg.MaxTickGap > 0 && dt > e.cfg.MaxTickGap {
		dt = e.cfg.MaxTickGap
	}
	e.lastTick = now

	for _, v := range e.vehicles {
		e.step(v, now, dt)
		states[v.phase.Current()]++
	}
	e.mu.Unlock()

	e.metrics.ObserveTick(time.Since(started), states)
	log.WithFields(log.Fields{
		"elapsed": dt,
		"moving":  states[models.StateMoving],
		"waiting": states[models.StateAwaitingRoute],
		"stuck":   states[models.StateStuck],
	}).Debug("Tick")
}

func (e *Engine) step(v *vehicle, now time.Time, dt time.Duration) {
	v.current.EmergencyLights = v.lights.update(now, e.rng, e.cfg.Lights)
	e.poll(v, now)

	if v.phase.is(models.StateStuck) {
		e.relocate(v, now)
	}
	if v.phase.is(models.StateMoving) && (!v.route.Valid() || v.route.AtEnd()) {
		e.arrive(v, now)
	}

	distance := 0.0
	if v.phase.is(models.StateMoving) && v.route.Valid() {
		distance = e.move(v, dt)
		if v.route.AtEnd() {
			e.arrive(v, now)
		}
	} else {
		e.await(v, now, dt)
	}
	e.record(v, now, dt, distance)
}

// move advances a moving vehicle and returns the distance covered.
func (e *Engine) move(v *vehicle, dt time.Duration) float64 {
	secs := dt.Seconds()
	v.current.Speed = e.nextSpeed(v.current.Speed, v.route.TargetSpeed(), secs)

	step := v.route.Advance(v.current.Speed * secs / 3600)
	if step.Moved {
		v.current.Location = step.Position
		v.current.Heading = step.Heading
	}
	return step.DistanceKm
}

func (e *Engine) nextSpeed(speed, target, secs float64) float64 {
	if target > 0 {
		limit := math.Min(route.ClassifyLimit(target), e.cfg.MaxSpeedKmh)
		speed = approach(speed, limit, e.cfg.AccelKmhPerSec*secs, e.cfg.DecelKmhPerSec*secs)
	} else if speed < e.cfg.MinCruiseKmh {
		speed = math.Min(e.cfg.MinCruiseKmh, speed+e.cfg.AccelKmhPerSec*secs)
	}
	if e.cfg.WanderKmh > 0 {
		speed += (e.rng.Float64()*2 - 1) * e.cfg.WanderKmh
	}
	return math.Min(e.cfg.MaxSpeedKmh, math.Max(0, speed))
}

func approach(v, target, up, down float64) float64 {
	if v < target {
		return math.Min(target, v+up)
	}
	return math.Max(target, v-down)
}

// arrive moves a vehicle whose route is finished or unusable to awaiting a
// new one and asks for it straight away.
func (e *Engine) arrive(v *vehicle, now time.Time) {
	e.transition(v, eventArrive, now)
	e.request(v, now)
}

func (e *Engine) await(v *vehicle, now time.Time, dt time.Duration) {
	v.current.Speed = math.Max(0, v.current.Speed-e.cfg.DecelKmhPerSec*dt.Seconds())
	if !v.phase.is(models.StateAwaitingRoute) {
		return
	}
	if e.cfg.StuckTimeout > 0 && now.Sub(v.phase.since) > e.cfg.StuckTimeout {
		log.WithFields(log.Fields{
			"vehicle_id": v.id,
			"waiting":    now.Sub(v.phase.since),
		}).Warn("Vehicle stuck without a route")
		e.transition(v, eventStall, now)
		return
	}
	e.request(v, now)
}

// request starts a route acquisition unless one is already in flight or the
// vehicle is still backing off.
func (e *Engine) request(v *vehicle, now time.Time) {
	if v.pending != nil || now.Before(v.nextAttemptAt) || e.source == nil {
		return
	}
	ch := make(chan acquisition, 1)
	v.pending = ch
	gen, from, ctx := v.gen, v.current.Location, e.ctx

	go func() {
		path, err := e.source.Acquire(ctx, from)
		ch <- acquisition{gen: gen, path: path, err: err}
	}()
}

// poll applies a resolved acquisition, if any.
func (e *Engine) poll(v *vehicle, now time.Time) {
	if v.pending == nil {
		return
	}
	var res acquisition
	select {
	case res = <-v.pending:
	default:
		return
	}
	v.pending = nil

	if res.gen != v.gen {
		e.metrics.ObserveAcquisition("dropped")
		log.WithField("vehicle_id", v.id).Debug("Discarding route for a replaced route generation")
		return
	}
	if res.err == nil {
		r, err := route.New(res.path.Points, res.path.SpeedsKmh)
		if err == nil {
			e.assign(v, r, now)
			e.metrics.ObserveAcquisition("success")
			log.WithFields(log.Fields{
				"vehicle_id": v.id,
				"points":     len(res.path.Points),
				"length_km":  r.LengthKm(),
			}).Debug("Route acquired")
			return
		}
		res.err = err
	}

	v.nextAttemptAt = now.Add(e.cfg.RetryBackoff)
	e.metrics.ObserveAcquisition("no_route")
	log.WithFields(log.Fields{
		"vehicle_id": v.id,
		"retry_at":   v.nextAttemptAt,
		"error":      res.err,
	}).Warn("Route acquisition failed, vehicle stays stationary")
}

func (e *Engine) assign(v *vehicle, r *route.Route, now time.Time) {
	v.route = r
	v.current.Location = r.Position()
	v.current.Heading = r.Heading()
	v.nextAttemptAt = time.Time{}
	e.transition(v, eventAssign, now)
}

// relocate moves a stuck vehicle to the nearest other station and clears
// its route so a fresh one is requested.
func (e *Engine) relocate(v *vehicle, now time.Time) {
	from := v.current.Location
	to, ok := routing.NearestFallback(e.cfg.Stations, from, from, routing.MinFallbackSeparationKm)
	if !ok {
		if i := geo.Nearest(from, e.cfg.Stations); i >= 0 {
			to, ok = e.cfg.Stations[i], true
		}
	}
	if ok {
		v.current.Location = to
	}

	v.current.Speed = 0
	v.route = nil
	v.gen++
	v.nextAttemptAt = time.Time{}
	e.transition(v, eventRelocate, now)
	e.metrics.ObserveRelocation()

	log.WithFields(log.Fields{
		"vehicle_id": v.id,
		"from":       from,
		"to":         v.current.Location,
	}).Warn("Relocated stuck vehicle")
}

func (e *Engine) record(v *vehicle, now time.Time, dt time.Duration, distanceKm float64) {
	if v.current.FuelLevel < e.cfg.RefuelBelowPct {
		v.current.FuelLevel = 100
		e.metrics.ObserveRefuel()
		log.WithField("vehicle_id", v.id).Info("Vehicle refuelled")
	}
	rate := e.model.ConsumptionRate(v.current.Speed, v.current.EmergencyLights)
	v.current = e.model.Record(v.current, v.history, telemetry.Input{
		Now:             now,
		Elapsed:         dt,
		DistanceKm:      distanceKm,
		SpeedKmh:        v.current.Speed,
		ConsumptionRate: rate,
	})
}

func (e *Engine) transition(v *vehicle, event string, now time.Time) {
	from := v.phase.Current()
	if err := v.phase.fire(event, now); err != nil {
		log.WithFields(log.Fields{
			"vehicle_id": v.id,
			"event":      event,
			"state":      from,
		}).WithError(err).Error("Invalid vehicle phase transition")
		return
	}
	if to := v.phase.Current(); to != from {
		log.WithFields(log.Fields{
			"vehicle_id": v.id,
			"from":       from,
			"to":         to,
		}).Debug("Vehicle phase changed")
	}
}
