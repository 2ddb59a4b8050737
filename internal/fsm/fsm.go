package fsm

import "fmt"

// State is one session phase.
type State string

// Event drives a session phase transition.
type Event string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StatePending State = "pending"
	StateFailed  State = "failed"
)

const (
	EventInitialized Event = "initialized"
	EventSubmit      Event = "submit"
	EventSettled     Event = "settled"
	EventFail        Event = "fail"
)

// Transition returns the session phase reached from current on event.
// StateFailed is terminal.
func Transition(current State, event Event) (State, error) {
	if current == StateFailed {
		return current, invalidTransition(current, event)
	}
	if event == EventFail {
		return StateFailed, nil
	}

	switch current {
	case StateLoading:
		switch event {
		case EventInitialized:
			return StateReady, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateReady:
		switch event {
		case EventSubmit:
			return StatePending, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePending:
		switch event {
		case EventSettled:
			return StateReady, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// MicState is one speech input lifecycle phase.
type MicState string

// MicEvent drives a speech input transition.
type MicEvent string

const (
	MicIdle      MicState = "idle"
	MicStarting  MicState = "starting"
	MicListening MicState = "listening"
	MicError     MicState = "error"
)

const (
	MicEventRequest MicEvent = "request"
	MicEventStart   MicEvent = "start"
	MicEventResult  MicEvent = "result"
	MicEventError   MicEvent = "error"
	MicEventEnd     MicEvent = "end"
)

// TransitionMic returns the speech input phase reached from current on event.
// MicEventEnd resets every phase to MicIdle.
func TransitionMic(current MicState, event MicEvent) (MicState, error) {
	if event == MicEventEnd {
		return MicIdle, nil
	}

	switch current {
	case MicIdle:
		switch event {
		case MicEventRequest:
			return MicStarting, nil
		default:
			return current, invalidMicTransition(current, event)
		}
	case MicStarting:
		switch event {
		case MicEventStart:
			return MicListening, nil
		case MicEventError:
			return MicError, nil
		default:
			return current, invalidMicTransition(current, event)
		}
	case MicListening:
		switch event {
		case MicEventResult:
			return MicListening, nil
		case MicEventError:
			return MicError, nil
		default:
			return current, invalidMicTransition(current, event)
		}
	case MicError:
		return current, invalidMicTransition(current, event)
	default:
		return current, fmt.Errorf("unknown mic state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}

func invalidMicTransition(state MicState, event MicEvent) error {
	return fmt.Errorf("invalid mic transition: %s --(%s)--> ?", state, event)
}
