package pipeline

import "sync"

// Bus fans status events out to subscribers.
type Bus interface {
	// Subscribe registers ch for events of type t.
	Subscribe(t EventType, ch chan<- Event)
	// SubscribeAll registers ch for every event type.
	SubscribeAll(ch chan<- Event)
	// Unsubscribe removes ch from every registration.
	Unsubscribe(ch chan<- Event)
	// Publish delivers evt without blocking. It reports whether every
	// subscriber received it; full subscriber channels drop the event.
	Publish(evt Event) bool
}

// EventBus is the in-process Bus implementation.
type EventBus struct {
	mu     sync.RWMutex
	byType map[EventType][]chan<- Event
	all    []chan<- Event
}

var _ Bus = (*EventBus)(nil)

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{byType: make(map[EventType][]chan<- Event)}
}

// Subscribe implements Bus.
func (b *EventBus) Subscribe(t EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[t] = append(b.byType[t], ch)
}

// SubscribeAll implements Bus.
func (b *EventBus) SubscribeAll(ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, ch)
}

// Unsubscribe implements Bus.
func (b *EventBus) Unsubscribe(ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t, subs := range b.byType {
		b.byType[t] = without(subs, ch)
	}
	b.all = without(b.all, ch)
}

func without(subs []chan<- Event, ch chan<- Event) []chan<- Event {
	out := subs[:0]
	for _, s := range subs {
		if s != ch {
			out = append(out, s)
		}
	}
	return out
}

// Publish implements Bus.
func (b *EventBus) Publish(evt Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := true
	send := func(ch chan<- Event) {
		select {
		case ch <- evt:
		default:
			delivered = false
		}
	}
	for _, ch := range b.byType[evt.Type] {
		send(ch)
	}
	for _, ch := range b.all {
		send(ch)
	}
	return delivered
}
