package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/ambulance-sim/internal/geo"
	"github.com/ukydev/ambulance-sim/internal/models"
)

const (
	// snapToleranceFactor rejects snapped points this many band-widths away
	// from the candidate.
	snapToleranceFactor = 1.8
	// MinFallbackSeparationKm keeps fallbacks from producing zero-length routes.
	MinFallbackSeparationKm = 0.2
)

// AcquirerConfig tunes random route generation.
type AcquirerConfig struct {
	MinKm     float64
	MaxKm     float64
	Attempts  int
	Shrink    float64 // radius multiplier per failed attempt
	FloorKm   float64 // radius never shrinks below this
	Fallbacks []models.Location
}

// DefaultAcquirerConfig returns a 2-8 km band with three attempts.
func DefaultAcquirerConfig(fallbacks []models.Location) AcquirerConfig {
	return AcquirerConfig{
		MinKm:     2,
		MaxKm:     8,
		Attempts:  3,
		Shrink:    0.6,
		FloorKm:   0.5,
		Fallbacks: fallbacks,
	}
}

// Acquirer generates random nearby routes.
type Acquirer struct {
	provider Provider
	cfg      AcquirerConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewAcquirer creates an acquirer drawing endpoints from rng.
func NewAcquirer(p Provider, cfg AcquirerConfig, rng *rand.Rand) *Acquirer {
	if cfg.MaxKm < cfg.MinKm {
		cfg.MinKm, cfg.MaxKm = cfg.MaxKm, cfg.MinKm
	}
	if cfg.Shrink <= 0 || cfg.Shrink > 1 {
		cfg.Shrink = 0.6
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Acquirer{provider: p, cfg: cfg, rng: rng}
}

// band returns the [min, max] km band for a radius scale.
func (a *Acquirer) band(scale float64) (float64, float64) {
	maxKm := math.Max(a.cfg.MaxKm*scale, a.cfg.FloorKm)
	minKm := math.Min(math.Max(a.cfg.MinKm*scale, 0), maxKm)
	return minKm, maxKm
}

func (a *Acquirer) pick(minKm, maxKm float64) (bearing, km float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Float64() * 360, minKm + a.rng.Float64()*(maxKm-minKm)
}

// Acquire returns a drivable path starting at from. When every attempt fails
// the error wraps ErrNoRoute.
func (a *Acquirer) Acquire(ctx context.Context, from models.Location) (Path, error) {
	var path Path
	err := RetryShrinking(ctx, a.cfg.Attempts, a.cfg.Shrink, func(ctx context.Context, attempt int, scale float64) error {
		minKm, maxKm := a.band(scale)
		bearing, km := a.pick(minKm, maxKm)
		candidate := geo.Destination(from, bearing, km)

		end, err := a.endpoint(ctx, from, candidate, maxKm)
		if err != nil {
			return err
		}

		p, err := a.provider.Directions(ctx, from, end)
		if err == nil && len(p.Points) < 2 {
			err = fmt.Errorf("%w: path has %d points", ErrNoRoute, len(p.Points))
		}
		if err != nil {
			log.WithFields(log.Fields{
				"attempt": attempt + 1,
				"radius":  maxKm,
				"error":   err,
			}).Warn("Route attempt failed")
			return err
		}
		path = p
		return nil
	})
	if err != nil {
		if isTerminal(err) {
			return Path{}, err
		}
		return Path{}, fmt.Errorf("%w: %v", ErrNoRoute, err)
	}
	return path, nil
}

// endpoint snaps candidate to the road network, substituting the nearest
// curated fallback when snapping fails or lands implausibly far away.
func (a *Acquirer) endpoint(ctx context.Context, from, candidate models.Location, maxKm float64) (models.Location, error) {
	snapped, err := a.provider.Snap(ctx, candidate)
	if err != nil && isTerminal(err) {
		return models.Location{}, err
	}
	if err == nil && geo.DistanceKm(snapped, candidate) <= snapToleranceFactor*maxKm {
		return snapped, nil
	}

	fallback, ok := NearestFallback(a.cfg.Fallbacks, candidate, from, MinFallbackSeparationKm)
	if !ok {
		if err != nil {
			return models.Location{}, err
		}
		return models.Location{}, errors.New("snapped point too far and no fallback available")
	}
	log.WithFields(log.Fields{
		"candidate": candidate,
		"fallback":  fallback,
		"snap_error": err,
	}).Debug("Using fallback endpoint")
	return fallback, nil
}

// NearestFallback returns the candidate closest to near that lies more than
// minSepKm from avoid.
func NearestFallback(candidates []models.Location, near, avoid models.Location, minSepKm float64) (models.Location, bool) {
	eligible := make([]models.Location, 0, len(candidates))
	for _, c := range candidates {
		if geo.DistanceKm(c, avoid) > minSepKm {
			eligible = append(eligible, c)
		}
	}
	i := geo.Nearest(near, eligible)
	if i < 0 {
		return models.Location{}, false
	}
	return eligible[i], true
}
