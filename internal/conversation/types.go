// ABOUTME: Core conversation types: turns, session states, and observer events.
// ABOUTME: Turns are the ordered units of dialogue within one thread.

package conversation

import "time"

// Author identifies who produced a turn.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// Turn is one ordered unit of dialogue. A user turn is immutable once
// created. An assistant turn is created on the first received fragment,
// grows as fragments arrive, and is frozen when its stream ends.
type Turn struct {
	ID        string
	Author    Author
	Content   string
	CreatedAt time.Time
}

// State is the session lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateOpening       State = "opening"
	StateActive        State = "active"
	StateSending       State = "sending"
	StateFailed        State = "failed"
)

// EventType tags an observer event.
type EventType string

const (
	// EventTurnAppended fires when a new turn is added to the session.
	EventTurnAppended EventType = "turn_appended"
	// EventTurnUpdated fires for each fragment appended to an open assistant turn.
	EventTurnUpdated EventType = "turn_updated"
	// EventTurnFrozen fires when an assistant turn stops accepting fragments.
	EventTurnFrozen EventType = "turn_frozen"
	// EventStateChanged fires on every session state transition.
	EventStateChanged EventType = "state_changed"
)

// Event is delivered to subscribers on every observable mutation. Turn is a
// snapshot; Delta carries just the appended fragment for turn updates so
// renderers can print incrementally.
type Event struct {
	Type  EventType
	Turn  Turn
	Delta string
	State State
}
