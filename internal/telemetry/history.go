package telemetry

import (
	"time"

	"github.com/ukydev/ambulance-sim/internal/models"
)

// History is a fixed-capacity ring buffer of samples, oldest evicted first.
type History struct {
	buf   []models.TelemetryData
	start int
	n     int
}

// NewHistory creates a buffer holding at most capacity samples (minimum 1).
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]models.TelemetryData, capacity)}
}

// Len returns the number of stored samples.
func (h *History) Len() int { return h.n }

// Cap returns the capacity.
func (h *History) Cap() int { return len(h.buf) }

// Append stores s. A sample older than the newest one is stamped with the
// newest timestamp so the buffer stays ordered.
func (h *History) Append(s models.TelemetryData) {
	if h.n > 0 {
		if last := h.at(h.n - 1); s.Timestamp.Before(last.Timestamp) {
			s.Timestamp = last.Timestamp
		}
	}
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = s
		h.n++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

func (h *History) at(i int) models.TelemetryData {
	return h.buf[(h.start+i)%len(h.buf)]
}

// Slice returns a copy of all samples, oldest first.
func (h *History) Slice() []models.TelemetryData {
	out := make([]models.TelemetryData, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.at(i)
	}
	return out
}

// Since returns samples stamped at or after t, oldest first.
func (h *History) Since(t time.Time) []models.TelemetryData {
	out := make([]models.TelemetryData, 0, h.n)
	for i := 0; i < h.n; i++ {
		if s := h.at(i); !s.Timestamp.Before(t) {
			out = append(out, s)
		}
	}
	return out
}
