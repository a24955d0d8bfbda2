package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/ambulance-sim/internal/timeutil"
)

// sweepThreshold is the number of tracked clients above which idle entries
// are dropped.
const sweepThreshold = 1024

// RateLimitMiddleware limits requests per client IP over a sliding window
type RateLimitMiddleware struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	clock    timeutil.Clock
}

// NewRateLimitMiddleware creates a new rate limiting middleware
func NewRateLimitMiddleware(clock timeutil.Clock) *RateLimitMiddleware {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RateLimitMiddleware{
		requests: make(map[string][]time.Time),
		clock:    clock,
	}
}

// RateLimit allows at most maxRequests per client within window.
func (m *RateLimitMiddleware) RateLimit(maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			now := m.clock.Now()

			if retry, ok := m.allow(clientIP, now, maxRequests, window); !ok {
				log.WithFields(log.Fields{"client_ip": clientIP, "path": r.URL.Path}).Warn("Rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds()+0.999)))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allow records a request from ip at now. When the limit is hit it returns
// the time until the oldest request leaves the window.
func (m *RateLimitMiddleware) allow(ip string, now time.Time, maxRequests int, window time.Duration) (time.Duration, bool) {
	windowStart := now.Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.requests) > sweepThreshold {
		m.sweep(windowStart)
	}

	valid := prune(m.requests[ip], windowStart)
	if len(valid) >= maxRequests {
		m.requests[ip] = valid
		return valid[0].Sub(windowStart), false
	}
	m.requests[ip] = append(valid, now)
	return 0, true
}

func (m *RateLimitMiddleware) sweep(windowStart time.Time) {
	for ip, timestamps := range m.requests {
		if valid := prune(timestamps, windowStart); len(valid) == 0 {
			delete(m.requests, ip)
		} else {
			m.requests[ip] = valid
		}
	}
}

// tracked returns the number of clients currently held.
func (m *RateLimitMiddleware) tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func prune(timestamps []time.Time, windowStart time.Time) []time.Time {
	i := 0
	for i < len(timestamps) && !timestamps[i].After(windowStart) {
		i++
	}
	return timestamps[i:]
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
