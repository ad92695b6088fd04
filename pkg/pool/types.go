package pool

import (
	"time"
)

// EventType classifies session lifecycle notifications emitted by a
// connection's event listener.
type EventType string

const (
	EventSessionCreate EventType = "session_create"
	EventSessionAnswer EventType = "session_answer"
	EventSessionHangup EventType = "session_hangup"
	EventDTMF          EventType = "dtmf"
	EventJobComplete   EventType = "job_complete"
)

// Event is the envelope delivered to subscribed handlers. Session is always
// set; Digit only for EventDTMF.
type Event struct {
	Type    EventType
	ConnID  string
	Session Session
	Digit   string
}

// Handler receives lifecycle events. Handlers run synchronously on the
// emitting connection's dispatch path and must not block.
type Handler func(Event)

// HangupScope selects which sessions a bulk hangup applies to.
type HangupScope int

const (
	// HangupOwned terminates only sessions originated through this pool.
	HangupOwned HangupScope = iota
	// HangupEverything terminates every session on the switch, including
	// ones some other process originated. Escape hatch, not normal flow.
	HangupEverything
)

// Session is one active call managed by a switch connection.
type Session interface {
	ID() string
	BehaviorID() string
	CreatedAt() time.Time

	// SendDTMF transmits digits on the session, one every perDigit.
	SendDTMF(digits string, perDigit time.Duration) error

	// ScheduleHangup arranges for the session to be hung up after the given
	// delay. A non-positive delay hangs up immediately.
	ScheduleHangup(after time.Duration)

	Hangup() error
}

// Connection is a single control link to a switch process. Implementations
// own their internal synchronization; callers may invoke methods from any
// goroutine.
type Connection interface {
	ID() string

	// ActiveSessions is the connection-local live session count.
	ActiveSessions() int

	// MaxSessions is the connection-local capacity ceiling. Admission skips
	// a connection whose active count has reached it.
	MaxSessions() int

	// PendingJobs counts originate requests issued but not yet resolved
	// into a session.
	PendingJobs() int

	// Originate issues an asynchronous session-creation request tagged with
	// the behavior and correlation identifiers. Completion is observed via
	// EventJobComplete and the session lifecycle events.
	Originate(behaviorID, correlationID string) error

	HangupAll(scope HangupScope) error

	// Command sends a switch-level control command (log level, server-side
	// throughput ceilings, and the like).
	Command(cmd string) error

	// Attach installs the event publisher. Called once when the connection
	// is added to a pool, before Start.
	Attach(publish func(Event))

	// Start activates the connection's event listener. Subscriptions cannot
	// change once the listener is live.
	Start() error

	Alive() bool

	Close() error
}
