// Package recorder drives the recording lifecycle: countdown, capture,
// pause and resume, drain and finalize.
package recorder

import (
	"errors"
	"fmt"
)

// State is the recorder's lifecycle state. Exactly one holds at a time.
type State int

const (
	Idle State = iota
	CountingDown
	Recording
	Paused
	Stopping
	Finalizing
	Error
)

var stateNames = [...]string{"idle", "counting_down", "recording", "paused", "stopping", "finalizing", "error"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Event drives a transition.
type Event int

const (
	EventStart Event = iota
	EventStartDenied
	EventCountdownElapsed
	EventPause
	EventResume
	EventStop
	EventDurationElapsed
	EventEncoderDrained
	EventFinalized
	EventFinalizeFailed
	EventEncoderFailed
	EventReset
	EventDispose
	// EventCountdownTick only labels notices; it never changes state.
	EventCountdownTick
)

var eventNames = [...]string{
	"start", "start_denied", "countdown_elapsed", "pause", "resume", "stop",
	"duration_elapsed", "encoder_drained", "finalized", "finalize_failed",
	"encoder_failed", "reset", "dispose", "countdown_tick",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return eventNames[e]
}

// ErrInvalidStateTransition is matched by every TransitionError.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// TransitionError names the rejected state and event.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s in state %s", e.Event, e.From)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidStateTransition }

var transitions = map[State]map[Event]State{
	Idle: {
		EventStart:       CountingDown,
		EventStartDenied: Idle,
	},
	CountingDown: {
		EventCountdownElapsed: Recording,
		EventStop:             Idle,
		EventEncoderFailed:    Error,
	},
	Recording: {
		EventPause:           Paused,
		EventStop:            Stopping,
		EventDurationElapsed: Stopping,
		EventEncoderFailed:   Error,
	},
	Paused: {
		EventResume:        Recording,
		EventStop:          Stopping,
		EventEncoderFailed: Error,
	},
	Stopping: {
		EventEncoderDrained: Finalizing,
		EventEncoderFailed:  Error,
	},
	Finalizing: {
		EventFinalized:      Idle,
		EventFinalizeFailed: Error,
	},
	Error: {
		EventReset: Idle,
	},
}

// Transition is the pure lifecycle table. Dispose is accepted everywhere.
func Transition(from State, ev Event) (State, error) {
	if ev == EventDispose {
		return Idle, nil
	}
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, &TransitionError{From: from, Event: ev}
}

// Replay folds events over the table starting at from. Rejected events
// leave the state unchanged.
func Replay(from State, events []Event) State {
	s := from
	for _, ev := range events {
		if to, err := Transition(s, ev); err == nil {
			s = to
		}
	}
	return s
}

// HoldsBuffer reports whether a recording buffer may exist in s.
func (s State) HoldsBuffer() bool {
	switch s {
	case CountingDown, Recording, Paused, Stopping, Finalizing:
		return true
	}
	return false
}
