package event

import "sync"

// Handler processes a single event.
type Handler func(Event)

// Bus is a synchronous in-process event bus. Publish invokes matching
// handlers inline, in subscription order.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	all      []Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for events of the given kind.
func (b *Bus) Subscribe(kind string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers the event to all matching handlers and returns when the
// last one has finished. Publishing on a nil bus is a no-op.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	kindHandlers := append([]Handler(nil), b.handlers[e.Kind()]...)
	allHandlers := append([]Handler(nil), b.all...)
	b.mu.Unlock()

	for _, h := range kindHandlers {
		h(e)
	}
	for _, h := range allHandlers {
		h(e)
	}
}
