package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Routing providers understood by ROUTING_PROVIDER.
const (
	ProviderOSRM = "osrm"
	ProviderORS  = "ors"
)

// Config holds every runtime setting of the simulator process.
type Config struct {
	FleetSize    int
	TickInterval time.Duration
	HTTPAddr     string
	MaxHistory   int

	RouteMinKm        float64
	RouteMaxKm        float64
	RouteMaxAttempts  int
	RouteRetryBackoff time.Duration
	StuckTimeout      time.Duration

	RoutingProvider   string
	OSRMBaseURL       string
	ORSBaseURL        string
	ORSAPIKey         string
	RoutingMinSpacing time.Duration
	RoutingTimeout    time.Duration
	RoutingQueueSize  int

	MQTTBrokerURL       string
	MQTTTopicPrefix     string
	MQTTPublishInterval time.Duration

	MongoURI      string
	MongoDB       string
	JWTSecret     string
	JWTExpiry     time.Duration
	AdminUsername string
	AdminPassword string

	RateLimitPerMinute int

	LogLevel  string
	LogFormat string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		FleetSize:           10,
		TickInterval:        time.Second,
		HTTPAddr:            ":8081",
		MaxHistory:          300,
		RouteMinKm:          2,
		RouteMaxKm:          8,
		RouteMaxAttempts:    3,
		RouteRetryBackoff:   15 * time.Second,
		StuckTimeout:        2 * time.Minute,
		RoutingProvider:     ProviderOSRM,
		OSRMBaseURL:         "https://router.project-osrm.org",
		ORSBaseURL:          "https://api.openrouteservice.org",
		RoutingMinSpacing:   1100 * time.Millisecond,
		RoutingTimeout:      10 * time.Second,
		RoutingQueueSize:    256,
		MQTTTopicPrefix:     "fleet/vehicles",
		MQTTPublishInterval: 2 * time.Second,
		MongoDB:             "fleet",
		JWTExpiry:           24 * time.Hour,
		RateLimitPerMinute:  600,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// Load reads an optional .env file from the working directory and then the
// process environment. Values that fail to parse keep their defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("Failed to read .env file")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) Config {
	c := Default()
	e := env{getenv: getenv}

	c.FleetSize = e.int("FLEET_SIZE", c.FleetSize, 0)
	if n := e.int("SIM_TICK_SECONDS", 0, 1); n > 0 {
		c.TickInterval = time.Duration(n) * time.Second
	}
	c.TickInterval = e.duration("SIM_TICK_INTERVAL", c.TickInterval)
	c.HTTPAddr = e.str("HTTP_ADDR", c.HTTPAddr)
	c.MaxHistory = e.int("MAX_HISTORY", c.MaxHistory, 1)

	c.RouteMinKm = e.float("ROUTE_MIN_KM", c.RouteMinKm)
	c.RouteMaxKm = e.float("ROUTE_MAX_KM", c.RouteMaxKm)
	if c.RouteMaxKm < c.RouteMinKm {
		log.WithFields(log.Fields{
			"route_min_km": c.RouteMinKm,
			"route_max_km": c.RouteMaxKm,
		}).Warn("ROUTE_MAX_KM below ROUTE_MIN_KM, using defaults")
		d := Default()
		c.RouteMinKm, c.RouteMaxKm = d.RouteMinKm, d.RouteMaxKm
	}
	c.RouteMaxAttempts = e.int("ROUTE_MAX_ATTEMPTS", c.RouteMaxAttempts, 1)
	c.RouteRetryBackoff = e.duration("ROUTE_RETRY_BACKOFF", c.RouteRetryBackoff)
	c.StuckTimeout = e.duration("STUCK_TIMEOUT", c.StuckTimeout)

	switch p := strings.ToLower(e.str("ROUTING_PROVIDER", c.RoutingProvider)); p {
	case ProviderOSRM, ProviderORS:
		c.RoutingProvider = p
	default:
		log.WithField("routing_provider", p).Warn("Unknown routing provider, using osrm")
	}
	c.OSRMBaseURL = e.str("OSRM_BASE_URL", c.OSRMBaseURL)
	c.ORSBaseURL = e.str("ORS_BASE_URL", c.ORSBaseURL)
	c.ORSAPIKey = e.str("ORS_API_KEY", c.ORSAPIKey)
	c.RoutingMinSpacing = e.duration("ROUTING_MIN_SPACING", c.RoutingMinSpacing)
	c.RoutingTimeout = e.duration("ROUTING_TIMEOUT", c.RoutingTimeout)
	c.RoutingQueueSize = e.int("ROUTING_QUEUE_SIZE", c.RoutingQueueSize, 1)

	c.MQTTBrokerURL = e.str("MQTT_BROKER_URL", c.MQTTBrokerURL)
	c.MQTTTopicPrefix = e.str("MQTT_TOPIC_PREFIX", c.MQTTTopicPrefix)
	c.MQTTPublishInterval = e.duration("MQTT_PUBLISH_INTERVAL", c.MQTTPublishInterval)

	c.MongoURI = e.str("MONGO_URI", c.MongoURI)
	c.MongoDB = e.str("MONGO_DB", c.MongoDB)
	c.JWTSecret = e.str("JWT_SECRET", c.JWTSecret)
	c.JWTExpiry = e.duration("JWT_EXPIRY", c.JWTExpiry)
	c.AdminUsername = e.str("ADMIN_USERNAME", c.AdminUsername)
	c.AdminPassword = e.str("ADMIN_PASSWORD", c.AdminPassword)

	c.RateLimitPerMinute = e.int("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute, 1)

	c.LogLevel = e.str("LOG_LEVEL", c.LogLevel)
	c.LogFormat = e.str("LOG_FORMAT", c.LogFormat)
	return c
}

// AuthEnabled reports whether operator accounts are backed by MongoDB.
func (c Config) AuthEnabled() bool {
	return c.MongoURI != ""
}

// FeedEnabled reports whether the MQTT live feed should run.
func (c Config) FeedEnabled() bool {
	return c.MQTTBrokerURL != ""
}

// SetupLogging configures the global logrus logger.
func SetupLogging(level, format string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stdout)
}

type env struct {
	getenv func(string) string
}

func (e env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e env) int(key string, def, min int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		e.invalid(key, v)
		return def
	}
	return n
}

func (e env) float(key string, def float64) float64 {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		e.invalid(key, v)
		return def
	}
	return f
}

func (e env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.invalid(key, v)
		return def
	}
	return d
}

func (e env) invalid(key, value string) {
	log.WithFields(log.Fields{"key": key, "value": value}).Warn("Invalid configuration value, using default")
}
