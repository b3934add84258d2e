package reconcile

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventSyncStarted      EventType = "syncStarted"
	EventSyncCompleted    EventType = "syncCompleted"
	EventSyncFailed       EventType = "syncFailed"
	EventConflictDetected EventType = "conflictDetected"
	EventConflictResolved EventType = "conflictResolved"
	EventConfigChanged    EventType = "configChanged"
)

// Event is delivered to handlers. Payload depends on the type:
// *Session for sync events, Conflict for conflict events, Config for configChanged.
type Event struct {
	Type    EventType
	Payload any
}

// Handler receives events.
type Handler func(Event)

// Subscription identifies one registered handler.
type Subscription struct {
	event EventType
	id    uint64
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous in-process publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventType][]subscriber
	logger *zap.Logger
}

// NewBus creates an empty bus. Handler panics are logged to logger.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{subs: make(map[EventType][]subscriber), logger: logger}
}

// On registers handler for event and returns its subscription.
func (b *Bus) On(event EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[event] = append(b.subs[event], subscriber{id: b.nextID, handler: handler})
	return Subscription{event: event, id: b.nextID}
}

// Off removes exactly the handler behind sub. Unknown subscriptions are ignored.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.event]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit delivers the event to every handler in subscription order.
func (b *Bus) Emit(event EventType, payload any) {
	b.mu.RLock()
	list := append([]subscriber(nil), b.subs[event]...)
	b.mu.RUnlock()

	ev := Event{Type: event, Payload: payload}
	for _, s := range list {
		b.deliver(s.handler, ev)
	}
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("event", string(ev.Type)),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	h(ev)
}
