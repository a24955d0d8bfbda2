package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/ambulance-sim/internal/models"
)

func TestPhase_Transitions(t *testing.T) {
	p := newPhase(models.StateMoving, t0)
	assert.Equal(t, t0, p.since)

	tests := []struct {
		event string
		want  string
	}{
		{eventArrive, models.StateAwaitingRoute},
		{eventStall, models.StateStuck},
		{eventRelocate, models.StateMoving},
		{eventArrive, models.StateAwaitingRoute},
		{eventAssign, models.StateMoving},
	}
	for i, tt := range tests {
		at := t0.Add(time.Duration(i+1) * time.Minute)
		require.NoError(t, p.fire(tt.event, at), tt.event)
		assert.Equal(t, tt.want, p.Current())
		assert.Equal(t, at, p.since, tt.event)
	}
}

func TestPhase_ReassignRestartsSince(t *testing.T) {
	p := newPhase(models.StateMoving, t0)
	later := t0.Add(time.Minute)
	require.NoError(t, p.fire(eventAssign, later))
	assert.True(t, p.is(models.StateMoving))
	assert.Equal(t, later, p.since)
}

func TestPhase_RejectsInvalidEvents(t *testing.T) {
	p := newPhase(models.StateMoving, t0)
	assert.Error(t, p.fire(eventStall, t0.Add(time.Second)))
	assert.Error(t, p.fire(eventRelocate, t0.Add(time.Second)))
	assert.True(t, p.is(models.StateMoving))
	assert.Equal(t, t0, p.since)
}
