// Package events records what the fulfillment core did, one stream per assembly or
// build, and lets the validation gate react to BOM edits.
package events

import (
	"time"
)

// Event is one recorded change. Version is the 1-based position of the event in its
// stream; the store assigns it on append.
type Event interface {
	Type() string
	StreamID() string
	Data() any
	Timestamp() time.Time
	Version() int
}

// EventHandler reacts to events it subscribed to. A returned error is passed back to
// the publisher; the event stays recorded.
type EventHandler interface {
	Handle(event Event) error
	CanHandle(eventType string) bool
}

// EventStore appends events and dispatches them synchronously: every matching handler
// has run by the time AppendEvent returns, and AppendEvent returns their errors.
type EventStore interface {
	AppendEvent(streamID string, event Event) error
	// ReadEvents returns the events of one stream starting at version fromVersion
	ReadEvents(streamID string, fromVersion int) ([]Event, error)
	// ReadAllEvents returns events of every stream in append order, skipping the first fromPosition
	ReadAllEvents(fromPosition int) ([]Event, error)
	Subscribe(eventTypes []string, handler EventHandler) error
	// Unsubscribe detaches handler from every event type it was subscribed to
	Unsubscribe(handler EventHandler) error
}

// BaseEvent is the stored form of every event
type BaseEvent struct {
	EventType    string
	Stream       string
	EventData    any
	EventTime    time.Time
	EventVersion int
}

func (e BaseEvent) Type() string {
	return e.EventType
}

func (e BaseEvent) StreamID() string {
	return e.Stream
}

func (e BaseEvent) Data() any {
	return e.EventData
}

func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

func (e BaseEvent) Version() int {
	return e.EventVersion
}

// NewEvent stamps an event with the current time. The version is provisional until appended.
func NewEvent(eventType, streamID string, data any) Event {
	return BaseEvent{
		EventType:    eventType,
		Stream:       streamID,
		EventData:    data,
		EventTime:    time.Now(),
		EventVersion: 1,
	}
}
