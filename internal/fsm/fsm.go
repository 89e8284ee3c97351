package fsm

import "fmt"

// State is the lifecycle position of the server's single connection slot.
type State string

type Event string

const (
	StateIdle        State = "idle"
	StateListening   State = "listening"
	StateAccepted    State = "accepted"
	StateBuffering   State = "buffering"
	StateDispatching State = "dispatching"
	StateResponding  State = "responding"
	StateClosed      State = "closed"
)

const (
	EventListen    Event = "listen"
	EventAccept    Event = "accept"
	EventRead      Event = "read"
	EventTerminate Event = "terminate"
	EventRespond   Event = "respond"
	EventClose     Event = "close"
	EventFail      Event = "fail"
	EventShutdown  Event = "shutdown"
)

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle, StateListening, StateAccepted, StateBuffering,
		StateDispatching, StateResponding, StateClosed:
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}

	switch event {
	case EventShutdown:
		return StateIdle, nil
	case EventAccept:
		// A new connection supersedes whatever the slot held.
		if current == StateIdle {
			return current, invalidTransition(current, event)
		}
		return StateAccepted, nil
	case EventFail:
		if current == StateIdle || current == StateListening {
			return current, invalidTransition(current, event)
		}
		return StateClosed, nil
	}

	switch current {
	case StateIdle:
		if event == EventListen {
			return StateListening, nil
		}
	case StateAccepted:
		if event == EventRead {
			return StateBuffering, nil
		}
	case StateBuffering:
		switch event {
		case EventRead:
			return StateBuffering, nil
		case EventTerminate:
			return StateDispatching, nil
		}
	case StateDispatching:
		if event == EventRespond {
			return StateResponding, nil
		}
	case StateResponding:
		if event == EventClose {
			return StateClosed, nil
		}
	}
	return current, invalidTransition(current, event)
}

// Occupied reports whether the slot currently tracks a live connection.
func Occupied(state State) bool {
	switch state {
	case StateAccepted, StateBuffering, StateDispatching, StateResponding:
		return true
	default:
		return false
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
