package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryShrinking_ShrinksUntilSuccess(t *testing.T) {
	var scales []float64
	err := RetryShrinking(context.Background(), 5, 0.5, func(ctx context.Context, attempt int, scale float64) error {
		assert.Equal(t, len(scales), attempt)
		scales = append(scales, scale)
		if attempt < 2 {
			return errors.New("try again")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []float64{1, 0.5, 0.25}, scales)
}

func TestRetryShrinking_BoundedAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := RetryShrinking(context.Background(), 3, 0.6, func(ctx context.Context, attempt int, scale float64) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetryShrinking_AtLeastOneAttempt(t *testing.T) {
	calls := 0
	RetryShrinking(context.Background(), 0, 0.6, func(ctx context.Context, attempt int, scale float64) error {
		calls++
		return errors.New("boom")
	})
	assert.Equal(t, 1, calls)
}

func TestRetryShrinking_TerminalErrorsStopEarly(t *testing.T) {
	for _, terminal := range []error{ErrQueueFull, ErrQueueClosed, context.Canceled} {
		calls := 0
		err := RetryShrinking(context.Background(), 4, 0.6, func(ctx context.Context, attempt int, scale float64) error {
			calls++
			return terminal
		})
		assert.ErrorIs(t, err, terminal)
		assert.Equal(t, 1, calls, terminal.Error())
	}
}
