package chat

import (
	"context"
	"log/slog"
	"sync"
)

// EventType identifies a turn lifecycle event.
type EventType string

const (
	// EventStreamDelta is fired for every content delta received while
	// streaming.
	EventStreamDelta EventType = "stream_delta"
	// EventTurnCompleted is fired after the assistant message has been
	// persisted.
	EventTurnCompleted EventType = "turn_completed"
	// EventTurnCancelled is fired when a turn is cancelled; the partial
	// response is discarded.
	EventTurnCancelled EventType = "turn_cancelled"
	// EventTurnFailed is fired when a turn fails with a transport or
	// persistence error.
	EventTurnFailed EventType = "turn_failed"
	// EventTitleUpdated is fired after an automatic title has been applied.
	EventTitleUpdated EventType = "title_updated"
)

// Event carries one turn lifecycle notification.
type Event struct {
	Type            EventType
	ConversationUID string
	// Delta holds the incremental content for EventStreamDelta.
	Delta string
	// Content holds the full sanitized response for EventTurnCompleted.
	Content string
	// Title holds the new title for EventTitleUpdated.
	Title string
	Err   error
}

// EventListener processes turn events. Listeners run synchronously on the
// turn goroutine so delta ordering is preserved; they must not block.
type EventListener func(ctx context.Context, event *Event)

// EventBus fans turn events out to registered listeners in subscription
// order.
type EventBus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[EventType]map[int]EventListener
	order     map[EventType][]int
}

func NewEventBus() *EventBus {
	return &EventBus{
		listeners: make(map[EventType]map[int]EventListener),
		order:     make(map[EventType][]int),
	}
}

// Subscribe registers a listener for a specific event type and returns a
// function that removes it again. Request-scoped listeners must unsubscribe
// before their response writer goes away.
func (b *EventBus) Subscribe(eventType EventType, listener EventListener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.listeners[eventType] == nil {
		b.listeners[eventType] = make(map[int]EventListener)
	}
	b.listeners[eventType][id] = listener
	b.order[eventType] = append(b.order[eventType], id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners[eventType], id)
		ids := b.order[eventType]
		for i, existing := range ids {
			if existing == id {
				b.order[eventType] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
}

// SubscribeAll registers one listener for every event type.
func (b *EventBus) SubscribeAll(listener EventListener) (unsubscribe func()) {
	types := []EventType{
		EventStreamDelta,
		EventTurnCompleted,
		EventTurnCancelled,
		EventTurnFailed,
		EventTitleUpdated,
	}
	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		unsubs = append(unsubs, b.Subscribe(t, listener))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Publish delivers the event to every listener of its type, in subscription
// order. A panicking listener is logged and skipped; it never aborts the
// turn.
func (b *EventBus) Publish(ctx context.Context, event *Event) {
	b.mu.RLock()
	listeners := make([]EventListener, 0, len(b.listeners[event.Type]))
	for _, id := range b.order[event.Type] {
		if l, ok := b.listeners[event.Type][id]; ok {
			listeners = append(listeners, l)
		}
	}
	b.mu.RUnlock()

	for i, listener := range listeners {
		func(index int, l EventListener) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event listener panic",
						"event_type", event.Type,
						"listener_index", index,
						"panic", r,
					)
				}
			}()
			l(ctx, event)
		}(i, listener)
	}
}
