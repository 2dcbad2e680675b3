package actor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionValidEdges(t *testing.T) {
	cases := []struct {
		from, to State
	}{
		{StateCreated, StateStarting},
		{StateStarting, StateRunning},
		{StateRunning, StateRestarting},
		{StateRestarting, StateRunning},
		{StateRunning, StateStopping},
		{StateStopping, StateStopped},
		{StateRunning, StateFailed},
		{StateFailed, StateRestarting},
	}
	for _, c := range cases {
		got, err := Transition(c.from, c.to)
		require.NoError(t, err, "Transition(%s, %s)", c.from, c.to)
		require.Equal(t, c.to, got)
	}
}

func TestTransitionInvalidEdges(t *testing.T) {
	cases := []struct {
		from, to State
	}{
		{StateCreated, StateRunning},
		{StateStopped, StateRunning},
		{StateStopping, StateRunning},
	}
	for _, c := range cases {
		_, err := Transition(c.from, c.to)
		require.Error(t, err, "Transition(%s, %s)", c.from, c.to)
	}
}

func TestStateString(t *testing.T) {
	require.Equal(t, "RUNNING", StateRunning.String())
	require.Equal(t, "UNKNOWN", State(99).String())
}
