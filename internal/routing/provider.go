// Package routing acquires drivable routes from an external routing service
// through a single rate-limited queue.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ukydev/ambulance-sim/internal/models"
)

var (
	// ErrNoRoute means no drivable path could be obtained.
	ErrNoRoute = errors.New("no route")
	// ErrSnapFailed means a point could not be matched to the road network.
	ErrSnapFailed = errors.New("snap to road failed")
	// ErrQueueFull is returned when the routing queue has no free slot.
	ErrQueueFull = errors.New("routing queue full")
	// ErrQueueClosed is returned once the queue worker has stopped.
	ErrQueueClosed = errors.New("routing queue closed")
	// ErrUpstream wraps transport and protocol failures of the provider.
	ErrUpstream = errors.New("routing upstream error")
)

// Speed hints outside this band are clamped.
const (
	MinSpeedKmh = 5.0
	MaxSpeedKmh = 130.0
)

// Path is a computed route. SpeedsKmh has one entry per segment, or is nil;
// zero entries mean no hint for that segment.
type Path struct {
	Points    []models.Location
	SpeedsKmh []float64
}

// Provider is an external routing service.
type Provider interface {
	// Snap returns the nearest drivable point to p.
	Snap(ctx context.Context, p models.Location) (models.Location, error)
	// Directions computes a drivable path between two points.
	Directions(ctx context.Context, from, to models.Location) (Path, error)
}

// HTTPClient is the part of *http.Client the providers use.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func speedKmh(distanceM, durationS float64) float64 {
	if durationS <= 0 || distanceM < 0 {
		return 0
	}
	v := distanceM / durationS * 3.6
	if v < MinSpeedKmh {
		return MinSpeedKmh
	}
	if v > MaxSpeedKmh {
		return MaxSpeedKmh
	}
	return v
}

// lonLatPoints converts [lon,lat] pairs. ok is false if any pair is malformed.
func lonLatPoints(coords [][]float64) (pts []models.Location, ok bool) {
	pts = make([]models.Location, 0, len(coords))
	ok = true
	for _, c := range coords {
		if len(c) < 2 {
			ok = false
			continue
		}
		pts = append(pts, models.Location{Lat: c[1], Lon: c[0]})
	}
	return pts, ok
}

func doJSON(client HTTPClient, req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return nil
}
