// Package metrics holds the Prometheus collectors of the simulator.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// TicksTotal counts completed simulation ticks.
	TicksTotal prometheus.Counter
	// TickDuration records how long one tick takes to process the fleet.
	TickDuration prometheus.Histogram
	// VehiclesByState reports the fleet split by phase.
	VehiclesByState *prometheus.GaugeVec

	// RoutingCalls counts upstream routing calls.
	RoutingCalls *prometheus.CounterVec // op: snap/directions, status: success/failed
	// RoutingLatency records upstream call latency.
	RoutingLatency *prometheus.HistogramVec
	QueueDepth     prometheus.Gauge
	QueuePenalty   prometheus.Gauge

	// Acquisitions counts finished route acquisitions by result.
	Acquisitions *prometheus.CounterVec // result: success/no_route/dropped
	Relocations  prometheus.Counter
	Refuels      prometheus.Counter

	FeedPublished *prometheus.CounterVec // status: success/failed
	HTTPRequests  *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ambulance_sim_ticks_total",
			Help: "Total number of simulation ticks processed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ambulance_sim_tick_duration_seconds",
			Help:    "Time spent advancing the whole fleet in one tick.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		VehiclesByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ambulance_sim_vehicles",
			Help: "Number of vehicles per phase.",
		}, []string{"state"}),
		RoutingCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ambulance_sim_routing_calls_total",
			Help: "Total number of calls made to the routing provider.",
		}, []string{"op", "status"}),
		RoutingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ambulance_sim_routing_latency_seconds",
			Help:    "Latency of routing provider calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ambulance_sim_routing_queue_depth",
			Help: "Jobs waiting in the routing queue.",
		}),
		QueuePenalty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ambulance_sim_routing_queue_penalty_seconds",
			Help: "Extra spacing applied between routing calls after failures.",
		}),
		Acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ambulance_sim_route_acquisitions_total",
			Help: "Finished route acquisitions by result.",
		}, []string{"result"}),
		Relocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ambulance_sim_relocations_total",
			Help: "Vehicles relocated to a fallback location after being stuck.",
		}),
		Refuels: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ambulance_sim_refuels_total",
			Help: "Vehicles refuelled after running low.",
		}),
		FeedPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ambulance_sim_feed_messages_total",
			Help: "Vehicle snapshots published to the live feed.",
		}, []string{"status"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ambulance_sim_http_requests_total",
			Help: "HTTP requests served by status code.",
		}, []string{"method", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TicksTotal,
		m.TickDuration,
		m.VehiclesByState,
		m.RoutingCalls,
		m.RoutingLatency,
		m.QueueDepth,
		m.QueuePenalty,
		m.Acquisitions,
		m.Relocations,
		m.Refuels,
		m.FeedPublished,
		m.HTTPRequests,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// ObserveTick records one processed tick.
func (m *Metrics) ObserveTick(d time.Duration, states map[string]int) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.TickDuration.Observe(d.Seconds())
	for state, n := range states {
		m.VehiclesByState.WithLabelValues(state).Set(float64(n))
	}
}

// ObserveRoutingCall records an upstream routing call.
func (m *Metrics) ObserveRoutingCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RoutingCalls.WithLabelValues(op, status(err)).Inc()
	m.RoutingLatency.WithLabelValues(op).Observe(d.Seconds())
}

// SetQueue reports the queue depth and current penalty.
func (m *Metrics) SetQueue(depth int, penalty time.Duration) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
	m.QueuePenalty.Set(penalty.Seconds())
}

// ObserveAcquisition counts a finished acquisition.
func (m *Metrics) ObserveAcquisition(result string) {
	if m == nil {
		return
	}
	m.Acquisitions.WithLabelValues(result).Inc()
}

// ObserveRelocation counts a stuck vehicle relocation.
func (m *Metrics) ObserveRelocation() {
	if m == nil {
		return
	}
	m.Relocations.Inc()
}

// ObserveRefuel counts a refuel.
func (m *Metrics) ObserveRefuel() {
	if m == nil {
		return
	}
	m.Refuels.Inc()
}

// ObservePublish counts a live feed message.
func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	m.FeedPublished.WithLabelValues(status(err)).Inc()
}

// ObserveHTTP counts a served request.
func (m *Metrics) ObserveHTTP(method string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
