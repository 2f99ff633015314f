package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Handler is a callback registered for one named event. The payload is the
// typed event value decoded at the connection boundary (ChatMessage,
// TaskUpdatedEvent, ...); handlers type-assert to the payload they expect.
type Handler func(payload any)

// Subscription is the handle returned by On. Cancel removes the handler;
// callers are responsible for cancelling on teardown.
type Subscription struct {
	once sync.Once
	d    *Dispatcher
	name string
	id   uint64
}

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.d.remove(s.name, s.id) })
}

type handlerEntry struct {
	id uint64
	fn Handler
}

// Dispatcher routes inbound hub events to registered callbacks. Multiple
// independent handlers may subscribe to the same event name; they are invoked
// synchronously in registration order. The dispatcher holds no knowledge of
// what the events mean.
type Dispatcher struct {
	log *zap.Logger

	mu       sync.Mutex
	nextID   uint64
	handlers map[string][]handlerEntry
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:      log,
		handlers: make(map[string][]handlerEntry),
	}
}

// On registers fn for the named event. Registrations are not deduplicated:
// subscribing twice means being called twice.
func (d *Dispatcher) On(name string, fn Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.handlers[name] = append(d.handlers[name], handlerEntry{id: id, fn: fn})
	return &Subscription{d: d, name: name, id: id}
}

func (d *Dispatcher) remove(name string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.handlers[name]
	for i, e := range entries {
		if e.id == id {
			d.handlers[name] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Emit invokes every handler registered for name, in registration order. A
// panicking handler is recovered and logged so the remaining handlers still
// run. Invoked by the connection manager on inbound frames; exposed for
// tests and for re-publishing locally produced events.
func (d *Dispatcher) Emit(name string, payload any) {
	d.mu.Lock()
	entries := make([]handlerEntry, len(d.handlers[name]))
	copy(entries, d.handlers[name])
	d.mu.Unlock()

	for _, e := range entries {
		d.invoke(name, e, payload)
	}
}

func (d *Dispatcher) invoke(name string, e handlerEntry, payload any) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("event handler panicked",
				zap.String("event", name),
				zap.Any("panic", r))
		}
	}()
	e.fn(payload)
}

// Len returns the number of handlers registered for name.
func (d *Dispatcher) Len(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers[name])
}
