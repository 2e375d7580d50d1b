package event

import (
	"reflect"
	"sync"
)

// Bus is a per-tick event buffer. Systems Emit during the mutation phases,
// DispatchAll delivers the buffered events in emission order during the sync
// phase, and Reset drops them in the cleanup phase so nothing leaks into the
// next tick.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	pending  []any
	handlers map[reflect.Type][]any
	emitted  int
}

func NewBus() *Bus {
	return &Bus{
		pending:  make([]any, 0, 32),
		handlers: make(map[reflect.Type][]any),
	}
}

// Emit queues an event for this tick's dispatch.
func Emit[T any](b *Bus, event T) {
	b.pending = append(b.pending, event)
	b.emitted++
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// DispatchAll delivers every pending event to its subscribed handlers.
// Events emitted by a handler are delivered in the same call, after the
// events already queued.
func (b *Bus) DispatchAll() {
	for i := 0; i < len(b.pending); i++ {
		ev := b.pending[i]
		for _, h := range b.handlers[reflect.TypeOf(ev)] {
			callHandler(h, ev)
		}
	}
	b.pending = b.pending[:0]
}

// Pending returns the number of events not yet dispatched.
func (b *Bus) Pending() int { return len(b.pending) }

// Emitted returns the number of events emitted since the last Reset.
func (b *Bus) Emitted() int { return b.emitted }

// Reset drops undelivered events. Called once at tick end.
func (b *Bus) Reset() {
	clear(b.pending)
	b.pending = b.pending[:0]
	b.emitted = 0
}

func callHandler(handler any, event any) {
	reflect.ValueOf(handler).Call([]reflect.Value{reflect.ValueOf(event)})
}
