package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/ambulance-sim/internal/config"
	"github.com/ukydev/ambulance-sim/internal/models"
	"github.com/ukydev/ambulance-sim/internal/routing"
	"github.com/ukydev/ambulance-sim/internal/sim"
)

// fakeOSRM snaps every point onto itself and routes in a straight line.
func fakeOSRM(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/nearest/v1/driving/"):
			coord := strings.TrimPrefix(r.URL.Path, "/nearest/v1/driving/")
			fmt.Fprintf(w, `{"code":"Ok","waypoints":[{"location":[%s]}]}`, coord)
		case strings.HasPrefix(r.URL.Path, "/route/v1/driving/"):
			coords := strings.Split(strings.TrimPrefix(r.URL.Path, "/route/v1/driving/"), ";")
			fmt.Fprintf(w, `{"code":"Ok","routes":[{"geometry":{"coordinates":[[%s],[%s]]},"legs":[{"annotation":{"distance":[1000],"duration":[72]}}]}]}`,
				coords[0], coords[1])
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(osrmURL string) config.Config {
	cfg := config.Default()
	cfg.FleetSize = 3
	cfg.TickInterval = 20 * time.Millisecond
	cfg.OSRMBaseURL = osrmURL
	cfg.RoutingMinSpacing = time.Millisecond
	cfg.RoutingTimeout = 2 * time.Second
	cfg.RateLimitPerMinute = 10000
	return cfg
}

func TestRun(t *testing.T) {
	cfg := testConfig(fakeOSRM(t).URL)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, cfg, ln) }()

	fleet := func() []models.Vehicle {
		resp, err := http.Get(base + "/api/vehicles")
		if err != nil {
			return nil
		}
		defer resp.Body.Close()
		var out []models.Vehicle
		if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&out) != nil {
			return nil
		}
		return out
	}

	require.Eventually(t, func() bool {
		vehicles := fleet()
		if len(vehicles) != cfg.FleetSize {
			return false
		}
		for _, v := range vehicles {
			if v.State == models.StateMoving && v.CurrentData.Odometer > 0 {
				return true
			}
		}
		return false
	}, 10*time.Second, 50*time.Millisecond)

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestNewProvider(t *testing.T) {
	cfg := config.Default()
	_, ok := newProvider(cfg, nil).(*routing.OSRMClient)
	assert.True(t, ok)

	cfg.RoutingProvider = config.ProviderORS
	cfg.ORSAPIKey = "key"
	_, ok = newProvider(cfg, nil).(*routing.ORSClient)
	assert.True(t, ok)
}

func TestComponentConfigs(t *testing.T) {
	cfg := config.Default()
	cfg.RouteMinKm = 1
	cfg.RouteMaxKm = 3
	cfg.RouteMaxAttempts = 5
	cfg.MaxHistory = 42
	cfg.RouteRetryBackoff = time.Minute
	cfg.StuckTimeout = 5 * time.Minute

	a := acquirerConfig(cfg)
	assert.Equal(t, 1.0, a.MinKm)
	assert.Equal(t, 3.0, a.MaxKm)
	assert.Equal(t, 5, a.Attempts)
	assert.Equal(t, sim.Stations, a.Fallbacks)

	e := engineConfig(cfg)
	assert.Equal(t, 42, e.MaxHistory)
	assert.Equal(t, time.Minute, e.RetryBackoff)
	assert.Equal(t, 5*time.Minute, e.StuckTimeout)
}
