package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateLoading

	next, err := Transition(s, EventInitialized)
	require.NoError(t, err)
	require.Equal(t, StateReady, next)

	next, err = Transition(next, EventSubmit)
	require.NoError(t, err)
	require.Equal(t, StatePending, next)

	next, err = Transition(next, EventSettled)
	require.NoError(t, err)
	require.Equal(t, StateReady, next)
}

func TestTransitionFailIsTerminal(t *testing.T) {
	for _, state := range []State{StateLoading, StateReady, StatePending} {
		next, err := Transition(state, EventFail)
		require.NoError(t, err)
		require.Equal(t, StateFailed, next)
	}

	for _, event := range []Event{EventInitialized, EventSubmit, EventSettled, EventFail} {
		next, err := Transition(StateFailed, event)
		require.Error(t, err)
		require.Equal(t, StateFailed, next)
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
	}{
		{name: "loading submit", state: StateLoading, event: EventSubmit},
		{name: "loading settled", state: StateLoading, event: EventSettled},
		{name: "ready settled", state: StateReady, event: EventSettled},
		{name: "ready initialized", state: StateReady, event: EventInitialized},
		{name: "pending submit", state: StatePending, event: EventSubmit},
		{name: "pending initialized", state: StatePending, event: EventInitialized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.state, next)
			require.Error(t, err)
			require.Contains(t, err.Error(), "invalid transition")
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventSubmit)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}

func TestTransitionMicLifecycle(t *testing.T) {
	next, err := TransitionMic(MicIdle, MicEventRequest)
	require.NoError(t, err)
	require.Equal(t, MicStarting, next)

	next, err = TransitionMic(next, MicEventStart)
	require.NoError(t, err)
	require.Equal(t, MicListening, next)

	next, err = TransitionMic(next, MicEventResult)
	require.NoError(t, err)
	require.Equal(t, MicListening, next)

	next, err = TransitionMic(next, MicEventEnd)
	require.NoError(t, err)
	require.Equal(t, MicIdle, next)
}

func TestTransitionMicEndResetsEveryState(t *testing.T) {
	for _, state := range []MicState{MicIdle, MicStarting, MicListening, MicError} {
		next, err := TransitionMic(state, MicEventEnd)
		require.NoError(t, err)
		require.Equal(t, MicIdle, next)
	}
}

func TestTransitionMicInvalid(t *testing.T) {
	next, err := TransitionMic(MicIdle, MicEventStart)
	require.Error(t, err)
	require.Equal(t, MicIdle, next)

	next, err = TransitionMic(MicError, MicEventRequest)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid mic transition")
	require.Equal(t, MicError, next)

	next, err = TransitionMic(MicListening, MicEventRequest)
	require.Error(t, err)
	require.Equal(t, MicListening, next)
}
