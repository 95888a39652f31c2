package broker

import (
	"time"
)

// State - session lifecycle state.
type State int32

const (
	// StateConnecting - session is created and may be registered, receive loop is not started.
	StateConnecting State = iota
	// StateActive - join is announced, receive loop is running.
	StateActive
	// StateClosing - receive loop has terminated, cleanup is in progress.
	StateClosing
	// StateClosed - session is unregistered and its transport is closed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind - describes the type of Event.
type EventKind int

const (
	_ EventKind = iota
	// EventJoin - session has become active.
	EventJoin
	// EventLeave - session is closed.
	EventLeave
	// EventMessage - session has received a chat message from its peer.
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventJoin:
		return "join"
	case EventLeave:
		return "leave"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event - occurs on session lifecycle changes and inbound messages.
type Event struct {
	Kind       EventKind
	Session    string
	Trace      string
	Payload    []byte
	Reason     error
	OriginTime time.Time
}
