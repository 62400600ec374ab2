package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/looplab/fsm"
)

// State is the connectivity state reported to the presentation layer.
// Connecting is a transitional display state set while the first poll after
// a connect is still unresolved; the machine itself only tracks the other
// three.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StateDisconnected State = "disconnected"
)

const (
	eventRecover = "event_recover"
	eventDrop    = "event_drop"
	eventLose    = "event_lose"
)

// disconnectThreshold is how many consecutive failures are tolerated before
// the link is declared lost. The hysteresis keeps a single dropped request
// from flickering the status indicator.
const disconnectThreshold = 3

// connTracker owns the connectivity state machine and the consecutive
// failure counter that drives it. Not safe for concurrent use; the session
// serializes access under its own lock.
type connTracker struct {
	machine  *fsm.FSM
	failures int
	log      *slog.Logger
}

func newConnTracker(log *slog.Logger) *connTracker {
	t := &connTracker{log: log}
	t.machine = fsm.NewFSM(
		string(StateConnected),
		fsm.Events{
			{Name: eventRecover, Src: []string{string(StateConnected), string(StateDegraded), string(StateDisconnected)}, Dst: string(StateConnected)},
			{Name: eventDrop, Src: []string{string(StateConnected), string(StateDegraded)}, Dst: string(StateDegraded)},
			{Name: eventLose, Src: []string{string(StateDegraded), string(StateDisconnected)}, Dst: string(StateDisconnected)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				t.log.Debug("connectivity changed", "from", e.Src, "to", e.Dst)
			},
		},
	)
	return t
}

// Success resets the failure counter and returns to Connected from any
// state. There is no gradual recovery.
func (t *connTracker) Success() (State, int) {
	t.failures = 0
	t.fire(eventRecover)
	return t.State(), 0
}

// Failure counts one failed request. The 4th consecutive failure crosses
// into Disconnected.
func (t *connTracker) Failure() (State, int) {
	t.failures++
	if t.failures > disconnectThreshold {
		t.fire(eventLose)
	} else {
		t.fire(eventDrop)
	}
	return t.State(), t.failures
}

// State returns the machine's current state.
func (t *connTracker) State() State {
	return State(t.machine.Current())
}

// Failures returns the consecutive failure count.
func (t *connTracker) Failures() int {
	return t.failures
}

// fire drives the machine, tolerating self-transitions (repeated failures
// while degraded, successes while already connected).
func (t *connTracker) fire(name string) {
	err := t.machine.Event(context.Background(), name)
	if err == nil {
		return
	}
	var noop fsm.NoTransitionError
	if errors.As(err, &noop) {
		return
	}
	t.log.Warn("connectivity event rejected", "event", name, "error", err)
}
