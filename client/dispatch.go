package client

import (
	"context"
	"sync"

	"git.sr.ht/~ircsuite/ircsuite/internal/future"
	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// Handler is invoked with every inbound message matching a subscription's
// pattern. It is awaited to completion before the Dispatcher moves on to
// the next subscriber, and before the next line is read.
type Handler func(ctx context.Context, msg irc.Message)

type subscription struct {
	pattern irc.Message
	handler Handler
}

type matchWaiter struct {
	patterns []irc.Message
	result   *future.Future[irc.Message]
}

// Dispatcher is the subscription dispatcher: an insertion-ordered sequence
// of (pattern, handler) subscriptions, invoked sequentially for every
// inbound message, plus the Match primitive layered on top of it so that a
// waiter only ever observes a line after that line's regular subscribers
// have all run to completion.
type Dispatcher struct {
	mu      sync.Mutex
	subs    []subscription
	waiters []*matchWaiter
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers handler to be invoked, in registration order among
// all matching subscribers, for every inbound message matching pattern.
func (d *Dispatcher) Subscribe(pattern irc.Message, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, subscription{pattern: pattern, handler: handler})
}

// Match blocks until a message matching any of patterns arrives, and
// returns it. If ctx is cancelled first, it returns ctx.Err(). If the
// connection is torn down first, it returns ErrConnectionLost.
func (d *Dispatcher) Match(ctx context.Context, patterns ...irc.Message) (irc.Message, error) {
	w := &matchWaiter{patterns: patterns, result: future.New[irc.Message]()}

	d.mu.Lock()
	d.waiters = append(d.waiters, w)
	d.mu.Unlock()

	msg, err := w.result.Wait(ctx)
	if err != nil {
		d.removeWaiter(w)
	}
	return msg, err
}

func (d *Dispatcher) removeWaiter(target *matchWaiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, w := range d.waiters {
		if w == target {
			d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
			return
		}
	}
}

// dispatch runs every matching subscriber, in registration order, to
// completion, then wakes every Match waiter whose pattern set matches msg.
// Called only from the owning connection's single pump goroutine.
func (d *Dispatcher) dispatch(msg irc.Message) {
	d.mu.Lock()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()

	ctx := context.Background()
	for _, s := range subs {
		if s.pattern.Matches(msg) {
			s.handler(ctx, msg)
		}
	}

	d.mu.Lock()
	remaining := d.waiters[:0]
	var woken []*matchWaiter
	for _, w := range d.waiters {
		matched := false
		for _, p := range w.patterns {
			if p.Matches(msg) {
				matched = true
				break
			}
		}
		if matched {
			woken = append(woken, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	d.waiters = remaining
	d.mu.Unlock()

	for _, w := range woken {
		w.result.Resolve(msg)
	}
}

// closeAll cancels every pending Match waiter with err, used when the
// connection is shut down or lost.
func (d *Dispatcher) closeAll(err error) {
	d.mu.Lock()
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()

	for _, w := range waiters {
		w.result.Cancel(err)
	}
}
