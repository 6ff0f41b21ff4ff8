package engine

import "github.com/iksnae/chat-session/internal"

// State is the lifecycle state of the engine's current stream
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// EventKind says what an Event reports
type EventKind int

const (
	EventTurnAppended    EventKind = iota // a user turn or placeholder was added
	EventStreamStarted                    // the transport accepted the request
	EventDelta                            // a stream event was folded into the placeholder
	EventStreamFinished                   // the stream ended normally
	EventStreamFailed                     // the placeholder now holds an error message
	EventStreamStopped                    // the stream was cancelled
	EventSessionChanged                   // a different session is active
	EventSessionsChanged                  // the session list changed
)

func (k EventKind) String() string {
	switch k {
	case EventTurnAppended:
		return "turn-appended"
	case EventStreamStarted:
		return "stream-started"
	case EventDelta:
		return "delta"
	case EventStreamFinished:
		return "stream-finished"
	case EventStreamFailed:
		return "stream-failed"
	case EventStreamStopped:
		return "stream-stopped"
	case EventSessionChanged:
		return "session-changed"
	case EventSessionsChanged:
		return "sessions-changed"
	default:
		return "unknown"
	}
}

// Event is pushed to observers after each atomic mutation. Turn is a copy;
// observers cannot reach engine-owned state through it.
type Event struct {
	Kind      EventKind
	SessionID string
	TurnID    string
	Delta     string
	Turn      internal.Turn
	State     State
	Err       error
}

// Observer receives events synchronously, with the engine lock held. It must
// return quickly and must not call back into the engine.
type Observer func(Event)

type observerEntry struct {
	id int
	fn Observer
}
