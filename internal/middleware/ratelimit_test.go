package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ukydev/ambulance-sim/internal/timeutil"
)

func TestRateLimitMiddleware(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	middleware := NewRateLimitMiddleware(clock)
	handler := middleware.RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/vehicles", nil)
		req.RemoteAddr = ip + ":12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1").Code)
	clock.Advance(10 * time.Second)
	assert.Equal(t, http.StatusOK, call("10.0.0.1").Code)

	w := call("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "50", w.Header().Get("Retry-After"))

	// other clients are independent
	assert.Equal(t, http.StatusOK, call("10.0.0.2").Code)

	// first request leaves the window
	clock.Advance(51 * time.Second)
	assert.Equal(t, http.StatusOK, call("10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1").Code)
}

func TestRateLimitMiddleware_Sweep(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	middleware := NewRateLimitMiddleware(clock)

	for i := 0; i <= sweepThreshold; i++ {
		_, ok := middleware.allow(fmt.Sprintf("10.1.%d.%d", i/256, i%256), clock.Now(), 1, time.Minute)
		assert.True(t, ok)
	}
	assert.Equal(t, sweepThreshold+1, middleware.tracked())

	clock.Advance(2 * time.Minute)
	_, ok := middleware.allow("10.9.9.9", clock.Now(), 1, time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 1, middleware.tracked())
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	assert.Equal(t, "192.0.2.1", getClientIP(req))

	req.RemoteAddr = "[2001:db8::1]:4000"
	assert.Equal(t, "2001:db8::1", getClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", getClientIP(req))
}
