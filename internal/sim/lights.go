package sim

import (
	"math/rand"
	"time"
)

// LightsConfig tunes the emergency-light toggler.
type LightsConfig struct {
	HoldMin    time.Duration // a state is kept at least this long
	HoldMax    time.Duration
	ToggleProb float64       // chance of switching once a hold expires
	RetryDelay time.Duration // wait before deciding again after not switching
}

// lights holds the emergency-light state for a random period and then
// switches it with a small probability, so changes stay infrequent.
type lights struct {
	on     bool
	decide time.Time
}

func (l *lights) hold(now time.Time, rng *rand.Rand, cfg LightsConfig) {
	d := cfg.HoldMin
	if span := cfg.HoldMax - cfg.HoldMin; span > 0 {
		d += time.Duration(rng.Int63n(int64(span)))
	}
	l.decide = now.Add(d)
}

// update returns the light state at now.
func (l *lights) update(now time.Time, rng *rand.Rand, cfg LightsConfig) bool {
	if l.decide.IsZero() {
		l.hold(now, rng, cfg)
		return l.on
	}
	if now.Before(l.decide) {
		return l.on
	}
	if rng.Float64() < cfg.ToggleProb {
		l.on = !l.on
		l.hold(now, rng, cfg)
	} else {
		l.decide = now.Add(cfg.RetryDelay)
	}
	return l.on
}
