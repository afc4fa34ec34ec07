package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/cvpipe/internal/state"
)

func TestTransitions(t *testing.T) {
	cases := []struct {
		state    state.State
		event    state.Event
		expected state.State
		err      error
	}{
		{state.Unconfigured, state.AddModule, state.Unconfigured, nil},
		{state.Unconfigured, state.Configure, state.Configured, nil},
		{state.Unconfigured, state.Start, state.Streaming, nil},
		{state.Unconfigured, state.Stop, state.Unconfigured, state.ErrInvalidState},
		{state.Unconfigured, state.Query, state.Unconfigured, state.ErrInvalidState},
		{state.Unconfigured, state.Reset, state.Unconfigured, nil},

		{state.Configured, state.AddModule, state.Configured, state.ErrInvalidState},
		{state.Configured, state.Configure, state.Configured, nil},
		{state.Configured, state.Start, state.Streaming, nil},
		{state.Configured, state.Stop, state.Configured, state.ErrInvalidState},
		{state.Configured, state.Query, state.Configured, nil},
		{state.Configured, state.Reset, state.Unconfigured, nil},

		{state.Streaming, state.AddModule, state.Streaming, state.ErrInvalidState},
		{state.Streaming, state.Configure, state.Streaming, state.ErrInvalidState},
		{state.Streaming, state.Start, state.Streaming, state.ErrInvalidState},
		{state.Streaming, state.Stop, state.Configured, nil},
		{state.Streaming, state.Query, state.Streaming, nil},
		{state.Streaming, state.Reset, state.Unconfigured, nil},
	}
	for _, c := range cases {
		t.Run(c.state.String()+"/"+c.event.String(), func(t *testing.T) {
			s, err := state.Transition(c.state, c.event)
			assert.Equal(t, c.expected, s)
			if c.err != nil {
				assert.ErrorIs(t, err, c.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
