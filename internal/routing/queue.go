package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/ambulance-sim/internal/metrics"
	"github.com/ukydev/ambulance-sim/internal/timeutil"
)

// Operation names used for spacing decisions and metrics.
const (
	OpSnap       = "snap"
	OpDirections = "directions"
)

// QueueConfig tunes the routing queue.
type QueueConfig struct {
	Size       int           // pending jobs before Submit fails with ErrQueueFull
	MinSpacing time.Duration // minimum gap between call starts
	MaxPenalty time.Duration // cap on the extra gap added after failures
}

// DefaultQueueConfig returns spacing suited to the public demo servers.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Size:       256,
		MinSpacing: 1100 * time.Millisecond,
		MaxPenalty: 30 * time.Second,
	}
}

type job struct {
	ctx    context.Context
	op     string
	fn     func(ctx context.Context) error
	result chan error
}

// Queue runs routing calls one at a time in FIFO order with a minimum spacing
// between them. Consecutive directions failures widen the spacing; the first
// success resets it.
type Queue struct {
	jobs       chan *job
	clock      timeutil.Clock
	minSpacing time.Duration
	penaltyBo  *backoff.ExponentialBackOff // worker goroutine only
	penalty    atomic.Int64
	metrics    *metrics.Metrics

	running   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue. Run must be called for jobs to execute.
func NewQueue(cfg QueueConfig, clock timeutil.Clock, m *metrics.Metrics) *Queue {
	if cfg.Size < 1 {
		cfg.Size = 1
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.MaxPenalty <= 0 {
		cfg.MaxPenalty = DefaultQueueConfig().MaxPenalty
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = cfg.MaxPenalty
	bo.MaxElapsedTime = 0
	bo.Reset()

	return &Queue{
		jobs:       make(chan *job, cfg.Size),
		clock:      clock,
		minSpacing: cfg.MinSpacing,
		penaltyBo:  bo,
		metrics:    m,
		done:       make(chan struct{}),
	}
}

// Len reports the number of jobs waiting to run.
func (q *Queue) Len() int { return len(q.jobs) }

// Penalty reports the extra spacing currently applied.
func (q *Queue) Penalty() time.Duration { return time.Duration(q.penalty.Load()) }

// Submit enqueues fn without blocking. The returned channel receives the
// result of fn exactly once.
func (q *Queue) Submit(ctx context.Context, op string, fn func(ctx context.Context) error) (<-chan error, error) {
	select {
	case <-q.done:
		return nil, ErrQueueClosed
	default:
	}

	j := &job{ctx: ctx, op: op, fn: fn, result: make(chan error, 1)}
	select {
	case q.jobs <- j:
		q.metrics.SetQueue(len(q.jobs), q.Penalty())
		return j.result, nil
	default:
		return nil, ErrQueueFull
	}
}

// Do enqueues fn and waits for its result.
func (q *Queue) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	result, err := q.Submit(ctx, op, fn)
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

// Run processes jobs until ctx is done. It may only be called once.
func (q *Queue) Run(ctx context.Context) error {
	if !q.running.CompareAndSwap(false, true) {
		return errors.New("routing queue already running")
	}
	defer q.closeOnce.Do(func() { close(q.done) })

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-q.jobs:
			q.metrics.SetQueue(len(q.jobs), q.Penalty())
			if err := j.ctx.Err(); err != nil {
				j.result <- err
				continue
			}

			if !last.IsZero() {
				if wait := q.minSpacing + q.Penalty() - q.clock.Since(last); wait > 0 {
					timer := q.clock.NewTimer(wait)
					select {
					case <-ctx.Done():
						timer.Stop()
						j.result <- ErrQueueClosed
						return nil
					case <-timer.C():
					}
				}
			}

			last = q.clock.Now()
			err := j.fn(j.ctx)
			q.metrics.ObserveRoutingCall(j.op, q.clock.Since(last), err)
			q.adjust(j, err)
			j.result <- err
		}
	}
}

func (q *Queue) adjust(j *job, err error) {
	if j.op != OpDirections {
		return
	}
	switch {
	case err == nil:
		if q.Penalty() > 0 {
			log.Debug("Routing calls recovered, resetting spacing penalty")
		}
		q.penaltyBo.Reset()
		q.penalty.Store(0)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
	default:
		next := q.penaltyBo.NextBackOff()
		q.penalty.Store(int64(next))
		log.WithFields(log.Fields{
			"penalty": next,
			"error":   err,
		}).Warn("Directions call failed, widening routing call spacing")
	}
	q.metrics.SetQueue(len(q.jobs), q.Penalty())
}
