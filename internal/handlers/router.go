package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ukydev/ambulance-sim/internal/metrics"
	"github.com/ukydev/ambulance-sim/internal/middleware"
	"github.com/ukydev/ambulance-sim/internal/models"
)

// RouterConfig wires the HTTP surface. Auth and AuthMiddleware are both nil
// when operator accounts are disabled.
type RouterConfig struct {
	Fleet              Fleet
	Auth               *AuthHandler
	AuthMiddleware     *middleware.AuthMiddleware
	RateLimiter        *middleware.RateLimitMiddleware
	RateLimitPerMinute int
	Metrics            *metrics.Metrics
}

// NewRouter builds the gorilla/mux router of the simulator.
func NewRouter(cfg RouterConfig) *mux.Router {
	vehicles := NewVehicleHandler(cfg.Fleet)

	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.Use(mux.MiddlewareFunc(middleware.RequestLogger(cfg.Metrics)))

	r.HandleFunc("/health", vehicles.Health).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	// without its own handler a method mismatch inside the subrouter ends as 404
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	if cfg.RateLimiter != nil && cfg.RateLimitPerMinute > 0 {
		api.Use(mux.MiddlewareFunc(cfg.RateLimiter.RateLimit(cfg.RateLimitPerMinute, time.Minute)))
	}

	var setRoute http.Handler = http.HandlerFunc(vehicles.SetRoute)
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.Authenticate)
		setRoute = cfg.AuthMiddleware.RequirePermission(models.PermissionAssignRoute)(setRoute)
	}
	if cfg.Auth != nil {
		api.HandleFunc("/auth/login", cfg.Auth.Login).Methods(http.MethodPost)
	}

	api.HandleFunc("/vehicles", vehicles.List).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}", vehicles.Get).Methods(http.MethodGet)
	api.HandleFunc("/vehicles/{id}/telemetry", vehicles.Telemetry).Methods(http.MethodGet)
	api.Handle("/vehicles/{id}/route", setRoute).Methods(http.MethodPut)

	return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

func userFromRequest(r *http.Request) (*models.Claims, bool) {
	return middleware.GetUserFromContext(r.Context())
}
