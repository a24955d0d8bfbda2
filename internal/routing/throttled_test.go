package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/ambulance-sim/internal/models"
)

func TestThrottled_PassesThroughQueue(t *testing.T) {
	q, _ := startQueue(t, QueueConfig{Size: 4})
	p := new(MockProvider)
	to := models.Location{Lat: 51.52, Lon: -0.10}
	path := Path{Points: []models.Location{origin, to}}

	p.On("Snap", mock.Anything, origin).Return(to, nil).Once()
	p.On("Directions", mock.Anything, origin, to).Return(path, nil).Once()

	th := NewThrottled(p, q)
	got, err := th.Snap(context.Background(), origin)
	require.NoError(t, err)
	assert.Equal(t, to, got)

	gotPath, err := th.Directions(context.Background(), origin, to)
	require.NoError(t, err)
	assert.Equal(t, path, gotPath)
	p.AssertExpectations(t)
}

func TestThrottled_QueueFull(t *testing.T) {
	q := NewQueue(QueueConfig{Size: 1}, nil, nil)
	_, err := q.Submit(context.Background(), OpSnap, func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	p := new(MockProvider)
	_, err = NewThrottled(p, q).Directions(context.Background(), origin, origin)
	assert.ErrorIs(t, err, ErrQueueFull)
	p.AssertNotCalled(t, "Directions", mock.Anything, mock.Anything, mock.Anything)
}
