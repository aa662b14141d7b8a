package event

import (
	"reflect"
	"sync"
)

type envelope struct {
	t  reflect.Type
	ev any
}

// Bus is a double-buffered message queue. Messages emitted during frame N are
// delivered in frame N+1 when the events phase calls SwapBuffers and
// DispatchAll. Delivery follows emission order across all message types, and
// handlers of one type run in subscription order.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    []envelope
	back     []envelope
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]envelope, 0, 64),
		back:     make([]envelope, 0, 64),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Emit queues a message into the back buffer (delivered next frame).
func Emit[T any](b *Bus, event T) {
	b.back = append(b.back, envelope{t: typeKey[T](), ev: event})
}

// Subscribe registers a typed handler for messages of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := typeKey[T]()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers rotates back to front and clears the new back buffer.
func (b *Bus) SwapBuffers() {
	clear(b.front)
	b.front, b.back = b.back, b.front[:0]
}

// DispatchAll delivers the front buffer in emission order. Handlers may Emit;
// those messages land in the back buffer.
func (b *Bus) DispatchAll() {
	for _, e := range b.front {
		for _, h := range b.handlers[e.t] {
			h(e.ev)
		}
	}
}

// Pending is the number of messages waiting for the next swap.
func (b *Bus) Pending() int { return len(b.back) }

// Reset drops all queued messages but keeps subscriptions.
func (b *Bus) Reset() {
	clear(b.front)
	clear(b.back)
	b.front = b.front[:0]
	b.back = b.back[:0]
}
