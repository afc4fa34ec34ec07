// Package state defines the lifecycle of the pipeline.
package state

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned if pipeline operation cannot be executed
// in current state.
var ErrInvalidState = errors.New("invalid state")

// State identifies one of the possible states pipeline can be in.
type State interface {
	// transition returns the state pipeline ends up in when event
	// succeeds.
	transition(Event) (State, error)
	fmt.Stringer
}

// states
type (
	unconfigured struct{}
	configured   struct{}
	streaming    struct{}
)

// states variables
var (
	// Unconfigured means that modules can be added and no device is bound.
	Unconfigured unconfigured
	// Configured means that device is bound and modules have their
	// configs.
	Configured configured
	// Streaming means that device delivers samples to consumers.
	Streaming streaming
)

// Transition returns the target state of event e in state s. If event is
// not allowed, ErrInvalidState is returned.
func Transition(s State, e Event) (State, error) {
	if e == Reset {
		return Unconfigured, nil
	}
	t, err := s.transition(e)
	if err != nil {
		return s, fmt.Errorf("%v in %v: %w", e, s, err)
	}
	return t, nil
}

func (s unconfigured) transition(e Event) (State, error) {
	switch e {
	case AddModule:
		return s, nil
	case Configure:
		return Configured, nil
	case Start:
		// configuration is done implicitly.
		return Streaming, nil
	}
	return s, ErrInvalidState
}

func (s configured) transition(e Event) (State, error) {
	switch e {
	case Configure, Query:
		return Configured, nil
	case Start:
		return Streaming, nil
	}
	return s, ErrInvalidState
}

func (s streaming) transition(e Event) (State, error) {
	switch e {
	case Stop:
		return Configured, nil
	case Query:
		return s, nil
	}
	return s, ErrInvalidState
}

func (unconfigured) String() string {
	return "state.Unconfigured"
}

func (configured) String() string {
	return "state.Configured"
}

func (streaming) String() string {
	return "state.Streaming"
}
