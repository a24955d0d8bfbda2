package routing

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
)

// RetryShrinking calls fn up to attempts times until it succeeds. fn receives
// the zero-based attempt number and a search-radius scale that starts at 1 and
// is multiplied by shrink after every failure. Context cancellation and a
// closed or full queue end the retries early. Spacing between attempts is left
// to the routing queue.
func RetryShrinking(ctx context.Context, attempts int, shrink float64, fn func(ctx context.Context, attempt int, scale float64) error) error {
	if attempts < 1 {
		attempts = 1
	}
	attempt := 0
	scale := 1.0

	op := func() error {
		err := fn(ctx, attempt, scale)
		attempt++
		scale *= shrink
		if err != nil && isTerminal(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(attempts-1)), ctx)
	return backoff.Retry(op, b)
}

func isTerminal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrQueueClosed) ||
		errors.Is(err, ErrQueueFull)
}
