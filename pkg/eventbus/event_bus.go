// Package eventbus carries approval lifecycle events between services. The
// engine treats publishing as fire-and-forget: correctness lives in the
// persistence transitions, the bus only fans transitions out to listeners.
package eventbus

import (
	"context"

	"github.com/greenlighthq/greenlight/pkg/events"
)

// Event is anything from pkg/events that can name its own type.
type Event interface {
	GetType() events.EventType
}

// EventPublisher emits one event keyed by request ID, so partitioned
// transports keep per-request ordering.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber registers per-type handlers and then consumes the topic.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event interface{}) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
