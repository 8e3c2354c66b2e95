package client

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// typingStamp tracks the last +typing state we sent to a target and the
// limiter guarding how often we're willing to resend it. Adapted from
// senpai's irc/session.go Typing/TypingStop, which debounces active
// notifications for 3s and rate-limits resends of the same state.
type typingStamp struct {
	last  time.Time
	state TypingState
	limit *rate.Limiter
}

// typingTracker is embedded in Client to keep the outbound typing-tag state
// that Typing/TypingStop read and mutate.
type typingTracker struct {
	mu     sync.Mutex
	stamps map[string]typingStamp
}

func newTypingTracker() *typingTracker {
	return &typingTracker{stamps: map[string]typingStamp{}}
}

// Typing sends a "+typing=active" TAGMSG to target, provided the server
// negotiated message-tags and we haven't sent one too recently.
func (c *Client) Typing(target string) error {
	if c.Caps == nil || !c.Caps.Has("message-tags") {
		return nil
	}
	targetCf := c.Session.casemap(target)
	now := time.Now()

	c.typing.mu.Lock()
	t, ok := c.typing.stamps[targetCf]
	if ok && ((t.state == TypingActive && now.Sub(t.last).Seconds() < 3.0) || !t.limit.Allow()) {
		c.typing.mu.Unlock()
		return nil
	}
	if !ok {
		t.limit = rate.NewLimiter(rate.Limit(1.0/3.0), 5)
		t.limit.Reserve()
	}
	c.typing.stamps[targetCf] = typingStamp{last: now, state: TypingActive, limit: t.limit}
	c.typing.mu.Unlock()

	return c.Conn.Send(irc.NewMessage("TAGMSG", target).WithTag("+typing", irc.TextTag("active")))
}

// TypingStop sends a "+typing=done" TAGMSG, suppressing a repeat if the
// last state we sent for target was already "done".
func (c *Client) TypingStop(target string) error {
	if c.Caps == nil || !c.Caps.Has("message-tags") {
		return nil
	}
	targetCf := c.Session.casemap(target)
	now := time.Now()

	c.typing.mu.Lock()
	t, ok := c.typing.stamps[targetCf]
	if ok && (t.state == TypingDone || !t.limit.Allow()) {
		c.typing.mu.Unlock()
		return nil
	}
	if !ok {
		t.limit = rate.NewLimiter(rate.Limit(1), 5)
		t.limit.Reserve()
	}
	c.typing.stamps[targetCf] = typingStamp{last: now, state: TypingDone, limit: t.limit}
	c.typing.mu.Unlock()

	return c.Conn.Send(irc.NewMessage("TAGMSG", target).WithTag("+typing", irc.TextTag("done")))
}

// clearTyping forgets the debounce state for target, called once we've
// actually sent a message there so the next keystroke starts a fresh
// "active" notification.
func (c *Client) clearTyping(target string) {
	targetCf := c.Session.casemap(target)
	c.typing.mu.Lock()
	delete(c.typing.stamps, targetCf)
	c.typing.mu.Unlock()
}
