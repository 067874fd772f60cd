// Package events is the in-process publish/subscribe bus that session
// activity is reported on.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is implemented by everything published on a Bus.
type Event interface {
	EventName() string
	OccurredAt() time.Time
	// Subject identifies what the event is about, e.g. a session.
	Subject() uuid.UUID
}

// BaseEvent carries the envelope fields. Embed it in concrete events.
type BaseEvent struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) Subject() uuid.UUID    { return e.SessionID }

// NewBaseEvent stamps a fresh envelope for the given session.
func NewBaseEvent(sessionID uuid.UUID) BaseEvent {
	return BaseEvent{ID: uuid.New(), SessionID: sessionID, Timestamp: time.Now().UTC()}
}

// Handler processes published events.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribers.
type Bus interface {
	// Publish hands the event to its handlers without waiting for them.
	Publish(ctx context.Context, event Event)
	// PublishSync runs the handlers in order and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	// Subscribe registers a handler for one event name.
	Subscribe(eventName string, handler Handler)
	// SubscribeAll registers a handler for every event.
	SubscribeAll(handler Handler)
}
