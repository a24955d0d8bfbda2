package sim

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"

	"github.com/ukydev/ambulance-sim/internal/models"
)

const (
	eventArrive   = "arrive"   // route finished or unusable
	eventAssign   = "assign"   // a new route was applied
	eventStall    = "stall"    // waited too long for a route
	eventRelocate = "relocate" // moved to a station after stalling
)

// phase is the per-vehicle state machine. Transitions carry the time they
// happened at so since stays on the simulation clock.
type phase struct {
	*fsm.FSM
	since time.Time
}

func newPhase(initial string, now time.Time) *phase {
	p := &phase{since: now}

	events := fsm.Events{
		{Name: eventArrive, Src: []string{models.StateMoving}, Dst: models.StateAwaitingRoute},
		{Name: eventAssign, Src: []string{models.StateMoving, models.StateAwaitingRoute, models.StateStuck}, Dst: models.StateMoving},
		{Name: eventStall, Src: []string{models.StateAwaitingRoute}, Dst: models.StateStuck},
		{Name: eventRelocate, Src: []string{models.StateStuck}, Dst: models.StateMoving},
	}

	callbacks := fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			if len(e.Args) > 0 {
				if t, ok := e.Args[0].(time.Time); ok {
					p.since = t
				}
			}
		},
	}

	p.FSM = fsm.NewFSM(initial, events, callbacks)
	return p
}

// fire triggers event at now. Re-entering the current state restarts since.
func (p *phase) fire(event string, now time.Time) error {
	err := p.Event(context.Background(), event, now)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		p.since = now
		return nil
	}
	return err
}

// is reports whether the machine is in state.
func (p *phase) is(state string) bool { return p.Current() == state }
