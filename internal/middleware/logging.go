package middleware

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/ambulance-sim/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs every request and counts it in m, which may be nil.
func RequestLogger(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			m.ObserveHTTP(r.Method, rec.status)

			entry := log.WithFields(log.Fields{
				"method":    r.Method,
				"path":      r.URL.Path,
				"status":    rec.status,
				"latency":   time.Since(start),
				"client_ip": getClientIP(r),
			})
			switch {
			case rec.status >= 500:
				entry.Error("Request failed")
			case rec.status >= 400:
				entry.Warn("Request rejected")
			default:
				entry.Info("Request served")
			}
		})
	}
}
