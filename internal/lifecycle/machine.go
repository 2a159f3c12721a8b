// Package lifecycle implements the concentrator's Stopped/Started/Disposed
// state machine on top of looplab/fsm.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

// Lifecycle events.
const (
	EventStart   = "start"
	EventStop    = "stop"
	EventDispose = "dispose"
)

// TransitionFunc observes a completed transition.
type TransitionFunc func(ctx context.Context, from, to types.State)

// Machine validates lifecycle transitions.
//
//	Stopped --start--> Started --stop--> Stopped
//	Stopped|Started --dispose--> Disposed
//
// Machine is safe for concurrent use, but callers that pair a transition with
// side effects should serialize Fire themselves.
type Machine struct {
	fsm *fsm.FSM
}

// New creates a machine in StateStopped.
//
// Parameters:
//   - onTransition: Called after every successful transition (may be nil)
func New(onTransition TransitionFunc) *Machine {
	m := &Machine{}

	m.fsm = fsm.NewFSM(
		types.StateStopped.String(),
		fsm.Events{
			{Name: EventStart, Src: []string{types.StateStopped.String()}, Dst: types.StateStarted.String()},
			{Name: EventStop, Src: []string{types.StateStarted.String()}, Dst: types.StateStopped.String()},
			{
				Name: EventDispose,
				Src:  []string{types.StateStopped.String(), types.StateStarted.String()},
				Dst:  types.StateDisposed.String(),
			},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				if onTransition == nil {
					return
				}
				from, _ := types.ParseState(e.Src)
				to, _ := types.ParseState(e.Dst)
				onTransition(ctx, from, to)
			},
		},
	)

	return m
}

// Current returns the current state.
func (m *Machine) Current() types.State {
	s, _ := types.ParseState(m.fsm.Current())
	return s
}

// Fire applies a lifecycle event.
//
// Returns:
//   - error: ErrDisposed after disposal, ErrAlreadyStarted for start while
//     started, ErrNotStarted for stop while stopped
func (m *Machine) Fire(ctx context.Context, event string) error {
	current := m.Current()

	switch {
	case current == types.StateDisposed:
		return types.ErrDisposed
	case event == EventStart && current == types.StateStarted:
		return types.ErrAlreadyStarted
	case event == EventStop && current == types.StateStopped:
		return types.ErrNotStarted
	}

	if err := m.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("lifecycle %s from %s: %w", event, current, err)
	}

	return nil
}
