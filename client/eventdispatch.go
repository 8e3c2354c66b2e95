package client

import "sync"

// EventDispatcher fans a Session's tracked-state Events out to every
// subscribed handler, in subscription order. Grounded on irc2.event's
// Dispatcher, whose subscribe/fire keep a per-event-name list of handlers
// and call them in registration order; since this toolkit already
// distinguishes events by Go type rather than by a string key, one handler
// list covers every event, and a handler type-switches on what it wants.
type EventDispatcher struct {
	mu       sync.Mutex
	handlers []func(Event)
}

// newEventDispatcher returns an EventDispatcher with no subscribers.
func newEventDispatcher() *EventDispatcher {
	return &EventDispatcher{}
}

// Subscribe registers handler to be called, alongside every other
// subscriber, for every event the Session emits. The returned function
// removes the subscription; calling it more than once is a no-op.
func (d *EventDispatcher) Subscribe(handler func(Event)) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := len(d.handlers)
	d.handlers = append(d.handlers, handler)
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if idx < len(d.handlers) {
			d.handlers[idx] = nil
		}
	}
}

// fire calls every live subscriber with ev, in subscription order.
func (d *EventDispatcher) fire(ev Event) {
	d.mu.Lock()
	handlers := make([]func(Event), len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(ev)
		}
	}
}
