package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/ambulance-sim/internal/auth"
	"github.com/ukydev/ambulance-sim/internal/metrics"
	"github.com/ukydev/ambulance-sim/internal/middleware"
	"github.com/ukydev/ambulance-sim/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockFleet is a mock implementation of Fleet
type MockFleet struct {
	mock.Mock
}

func (m *MockFleet) Running() bool {
	return m.Called().Bool(0)
}

func (m *MockFleet) Vehicles() []models.Vehicle {
	return m.Called().Get(0).([]models.Vehicle)
}

func (m *MockFleet) Statuses() []models.Vehicle {
	return m.Called().Get(0).([]models.Vehicle)
}

func (m *MockFleet) Vehicle(id string) (models.Vehicle, bool) {
	args := m.Called(id)
	return args.Get(0).(models.Vehicle), args.Bool(1)
}

func (m *MockFleet) Telemetry(id string, since *time.Time) ([]models.TelemetryData, bool) {
	args := m.Called(id, since)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).([]models.TelemetryData), args.Bool(1)
}

func (m *MockFleet) SetVehicleRoute(id string, points []models.Location) bool {
	return m.Called(id, points).Bool(0)
}

var ambulance = models.Vehicle{
	ID:    "veh-1",
	Name:  "Ambulance 01",
	State: models.StateMoving,
	CurrentData: models.CurrentData{
		Location: models.Location{Lat: 51.4988, Lon: -0.1181},
		Speed:    42,
	},
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func routeBody(t *testing.T, points ...models.Location) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(models.RouteRequest{Points: points})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestVehicleRoutes(t *testing.T) {
	fleet := new(MockFleet)
	router := NewRouter(RouterConfig{Fleet: fleet})

	t.Run("list", func(t *testing.T) {
		fleet.On("Vehicles").Return([]models.Vehicle{ambulance}).Once()

		w := serve(router, httptest.NewRequest("GET", "/api/vehicles", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var got []models.Vehicle
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "Ambulance 01", got[0].Name)
	})

	t.Run("get", func(t *testing.T) {
		fleet.On("Vehicle", "veh-1").Return(ambulance, true).Once()
		fleet.On("Vehicle", "missing").Return(models.Vehicle{}, false).Once()

		w := serve(router, httptest.NewRequest("GET", "/api/vehicles/veh-1", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = serve(router, httptest.NewRequest("GET", "/api/vehicles/missing", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("telemetry", func(t *testing.T) {
		since := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
		samples := []models.TelemetryData{{Timestamp: since, FuelLevel: 80}}

		fleet.On("Telemetry", "veh-1", (*time.Time)(nil)).Return(samples, true).Once()
		fleet.On("Telemetry", "veh-1", mock.MatchedBy(func(s *time.Time) bool {
			return s != nil && s.Equal(since)
		})).Return(nil, true).Once()
		fleet.On("Telemetry", "missing", (*time.Time)(nil)).Return(nil, false).Once()

		w := serve(router, httptest.NewRequest("GET", "/api/vehicles/veh-1/telemetry", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var got []models.TelemetryData
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Len(t, got, 1)

		w = serve(router, httptest.NewRequest("GET", "/api/vehicles/veh-1/telemetry?since=2024-03-01T09:30:00Z", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())

		w = serve(router, httptest.NewRequest("GET", "/api/vehicles/veh-1/telemetry?since=yesterday", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = serve(router, httptest.NewRequest("GET", "/api/vehicles/missing/telemetry", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("set route", func(t *testing.T) {
		a := models.Location{Lat: 51.50, Lon: -0.12}
		b := models.Location{Lat: 51.51, Lon: -0.10}
		fleet.On("SetVehicleRoute", "veh-1", []models.Location{a, b}).Return(true).Once()
		fleet.On("Vehicle", "veh-1").Return(ambulance, true).Once()
		fleet.On("SetVehicleRoute", "missing", []models.Location{a, b}).Return(false).Once()

		w := serve(router, httptest.NewRequest("PUT", "/api/vehicles/veh-1/route", routeBody(t, a, b)))
		assert.Equal(t, http.StatusOK, w.Code)

		w = serve(router, httptest.NewRequest("PUT", "/api/vehicles/missing/route", routeBody(t, a, b)))
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = serve(router, httptest.NewRequest("PUT", "/api/vehicles/veh-1/route", routeBody(t, a)))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = serve(router, httptest.NewRequest("PUT", "/api/vehicles/veh-1/route", routeBody(t, a, models.Location{Lat: 95, Lon: 0})))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = serve(router, httptest.NewRequest("PUT", "/api/vehicles/veh-1/route", bytes.NewBufferString("not json")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("health", func(t *testing.T) {
		fleet.On("Running").Return(true).Once()
		fleet.On("Statuses").Return([]models.Vehicle{ambulance, ambulance}).Once()

		w := serve(router, httptest.NewRequest("GET", "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok","running":true,"vehicles":2}`, w.Body.String())
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := serve(router, httptest.NewRequest("DELETE", "/api/vehicles/veh-1", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

		w = serve(router, httptest.NewRequest("POST", "/api/vehicles/veh-1/telemetry", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

		w = serve(router, httptest.NewRequest("POST", "/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

		w = serve(router, httptest.NewRequest("GET", "/api/unknown", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	fleet.AssertExpectations(t)
}

func TestRouterWithAuth(t *testing.T) {
	fleet := new(MockFleet)
	authService := auth.NewService("test-secret", time.Hour)
	m := metrics.New()
	router := NewRouter(RouterConfig{
		Fleet:          fleet,
		Auth:           NewAuthHandler(authService, new(MockUserCollection)),
		AuthMiddleware: middleware.NewAuthMiddleware(authService),
		Metrics:        m,
	})

	token := func(role models.Role) string {
		tok, _, err := authService.GenerateToken(&models.User{ID: primitive.NewObjectID(), Username: "op", Role: role})
		require.NoError(t, err)
		return "Bearer " + tok
	}
	a := models.Location{Lat: 51.50, Lon: -0.12}
	b := models.Location{Lat: 51.51, Lon: -0.10}

	w := serve(router, httptest.NewRequest("GET", "/api/vehicles", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	fleet.On("Vehicles").Return([]models.Vehicle{}).Once()
	req := httptest.NewRequest("GET", "/api/vehicles", nil)
	req.Header.Set("Authorization", token(models.RoleViewer))
	w = serve(router, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("PUT", "/api/vehicles/veh-1/route", routeBody(t, a, b))
	req.Header.Set("Authorization", token(models.RoleViewer))
	w = serve(router, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	fleet.On("SetVehicleRoute", "veh-1", []models.Location{a, b}).Return(true).Once()
	fleet.On("Vehicle", "veh-1").Return(ambulance, true).Once()
	req = httptest.NewRequest("PUT", "/api/vehicles/veh-1/route", routeBody(t, a, b))
	req.Header.Set("Authorization", token(models.RoleDispatcher))
	w = serve(router, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// login is reachable without a token
	w = serve(router, httptest.NewRequest("POST", "/api/auth/login", bytes.NewBufferString("{}")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ambulance_sim_http_requests_total")

	fleet.AssertExpectations(t)
}

func TestRouterRateLimit(t *testing.T) {
	fleet := new(MockFleet)
	fleet.On("Vehicles").Return([]models.Vehicle{})
	router := NewRouter(RouterConfig{
		Fleet:              fleet,
		RateLimiter:        middleware.NewRateLimitMiddleware(nil),
		RateLimitPerMinute: 2,
	})

	for i := 0; i < 2; i++ {
		w := serve(router, httptest.NewRequest("GET", "/api/vehicles", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := serve(router, httptest.NewRequest("GET", "/api/vehicles", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// health is outside the limited prefix
	fleet.On("Running").Return(true)
	fleet.On("Statuses").Return([]models.Vehicle{})
	w = serve(router, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
