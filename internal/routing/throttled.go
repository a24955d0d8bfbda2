package routing

import (
	"context"

	"github.com/ukydev/ambulance-sim/internal/models"
)

// Throttled is a Provider whose calls all pass through a Queue.
type Throttled struct {
	provider Provider
	queue    *Queue
}

// NewThrottled wraps p so every call is serialized by q.
func NewThrottled(p Provider, q *Queue) *Throttled {
	return &Throttled{provider: p, queue: q}
}

// Snap queues a snap call and waits for it.
func (t *Throttled) Snap(ctx context.Context, p models.Location) (models.Location, error) {
	var out models.Location
	err := t.queue.Do(ctx, OpSnap, func(ctx context.Context) error {
		var err error
		out, err = t.provider.Snap(ctx, p)
		return err
	})
	if err != nil {
		return models.Location{}, err
	}
	return out, nil
}

// Directions queues a directions call and waits for it.
func (t *Throttled) Directions(ctx context.Context, from, to models.Location) (Path, error) {
	var out Path
	err := t.queue.Do(ctx, OpDirections, func(ctx context.Context) error {
		var err error
		out, err = t.provider.Directions(ctx, from, to)
		return err
	})
	if err != nil {
		return Path{}, err
	}
	return out, nil
}
