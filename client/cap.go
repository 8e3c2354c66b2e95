package client

import (
	"context"
	"strings"
	"sync"

	"git.sr.ht/~ircsuite/ircsuite/internal/future"
	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// SupportedCapabilities is the set of capabilities this toolkit knows how
// to use. Adapted from senpai's irc/session.go SupportedCapabilities; TLS
// client cert auth capabilities are dropped since nothing in this toolkit
// implements them.
var SupportedCapabilities = map[string]struct{}{
	"account-notify":    {},
	"account-tag":       {},
	"away-notify":       {},
	"batch":             {},
	"cap-notify":        {},
	"echo-message":      {},
	"extended-join":     {},
	"invite-notify":     {},
	"message-tags":      {},
	"multi-prefix":      {},
	"sasl":              {},
	"server-time":       {},
	"setname":           {},
	"userhost-in-names": {},
}

type capEntry struct {
	Name   string
	Value  string
	Enable bool
}

// parseCapList parses a space-separated CAP LS/NEW/ACK/DEL argument list.
func parseCapList(s string) []capEntry {
	fields := strings.Fields(s)
	out := make([]capEntry, 0, len(fields))
	for _, f := range fields {
		enable := true
		if strings.HasPrefix(f, "-") {
			enable = false
			f = f[1:]
		}
		name := f
		value := ""
		if eq := strings.IndexByte(f, '='); eq >= 0 {
			name = f[:eq]
			value = f[eq+1:]
		}
		out = append(out, capEntry{Name: name, Value: value, Enable: enable})
	}
	return out
}

// Capabilities drives the IRCv3 CAP LS/REQ/ACK/NAK/END state machine for
// one connection. Each capability moves through
// Unknown → Requested → {Acked, Naked}, tracked by a per-capability
// future.Future[bool] the way ext.py's IRCCaps keys waiting_caps by
// capability name. Unlike IRCCaps.req, which always re-sends CAP REQ even
// for an already-resolved capability, Req here short-circuits an
// already-Acked capability with no network round-trip.
type Capabilities struct {
	conn *Conn

	mu        sync.Mutex
	Available *irc.ICaseMap[string]
	Enabled   *irc.ICaseMap[struct{}]
	futures   *irc.ICaseMap[*future.Future[bool]]
	ended     bool
}

func newCapabilities() *Capabilities {
	return &Capabilities{
		Available: irc.NewICaseMap[string](),
		Enabled:   irc.NewICaseMap[struct{}](),
		futures:   irc.NewICaseMap[*future.Future[bool]](),
	}
}

// newCapabilitiesFor returns a Capabilities bound to conn, with its
// CAP-reply handler subscribed on the connection's dispatcher so Req can
// be called standalone, independent of any one-shot negotiation pass.
func newCapabilitiesFor(conn *Conn) *Capabilities {
	c := newCapabilities()
	c.conn = conn
	conn.Dispatcher.Subscribe(irc.VerbPattern("CAP"), c.onCap)
	return c
}

// onCap resolves the waiting future for every capability named in an ACK
// or NAK reply. Grounded on ext.py's IRCCaps._handle_cap.
func (c *Capabilities) onCap(ctx context.Context, msg irc.Message) {
	if len(msg.Args) < 3 {
		return
	}
	sub := string(msg.Args[1])
	if sub != "ACK" && sub != "NAK" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range parseCapList(string(msg.Args[2])) {
		f := c.futureLocked(e.Name)
		switch sub {
		case "ACK":
			if e.Enable {
				c.Enabled.Set(irc.ICaseStr(e.Name), struct{}{})
			} else {
				c.Enabled.Delete(irc.ICaseStr(e.Name))
			}
			f.Resolve(true)
		case "NAK":
			f.Resolve(false)
		}
	}
}

// futureLocked returns the future for name, creating it Unknown the first
// time it's referenced, the way utils.IDefaultDict(asyncio.Future) does
// for waiting_caps. Must be called with mu held.
func (c *Capabilities) futureLocked(name string) *future.Future[bool] {
	f, ok := c.futures.Get(irc.ICaseStr(name))
	if !ok {
		f = future.New[bool]()
		c.futures.Set(irc.ICaseStr(name), f)
	}
	return f
}

// Has reports whether name was successfully negotiated.
func (c *Capabilities) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Enabled.Has(irc.ICaseStr(name))
}

// Req requests capability name, moving it Unknown → Requested, and blocks
// until the server ACKs or NAKs it. If name is already Acked, it returns
// true immediately without sending CAP REQ again.
func (c *Capabilities) Req(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	if c.Enabled.Has(irc.ICaseStr(name)) {
		c.mu.Unlock()
		return true, nil
	}
	f, ok := c.futures.Get(irc.ICaseStr(name))
	if ok && f.Done() {
		// Previously resolved false (NAK'd); re-requesting is a fresh
		// round-trip since the server may have changed its mind.
		f = future.New[bool]()
	}
	if !ok {
		f = future.New[bool]()
	}
	c.futures.Set(irc.ICaseStr(name), f)
	c.mu.Unlock()

	if err := c.conn.Send(irc.NewMessage("CAP", "REQ", name)); err != nil {
		return false, err
	}
	return f.Wait(ctx)
}

// End issues CAP END exactly once.
func (c *Capabilities) End() error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return nil
	}
	c.ended = true
	c.mu.Unlock()
	return c.conn.Send(irc.NewMessage("CAP", "END"))
}

// negotiateLS sends CAP LS and collects every advertised capability into
// Available, following the multi-line protocol: "CAP * LS * :..."
// continuation lines, ended by a final "CAP * LS :...".
func (c *Capabilities) negotiateLS(ctx context.Context) error {
	if err := c.conn.Send(irc.NewMessage("CAP", "LS", "302")); err != nil {
		return err
	}

	for {
		msg, err := c.conn.Match(ctx, irc.ArgsPattern("CAP", "*", "LS"))
		if err != nil {
			return err
		}
		more := msg.Arg(2) == "*"
		listArg := 3
		if !more {
			listArg = 2
		}
		c.mu.Lock()
		for _, e := range parseCapList(msg.Arg(listArg)) {
			c.Available.Set(irc.ICaseStr(e.Name), e.Value)
		}
		c.mu.Unlock()
		if !more {
			return nil
		}
	}
}

// Advertised reports whether the server listed name in its CAP LS
// response, regardless of whether it's been requested.
func (c *Capabilities) Advertised(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Available.Has(irc.ICaseStr(name))
}

// negotiate drives CAP LS, then requests every capability in want that
// the server advertises and this toolkit supports, waiting for each to
// resolve, and finally sends CAP END unless deferEnd says otherwise (used
// to run SASL AUTHENTICATE before ending negotiation). Req/End remain
// independently callable afterwards for capabilities negotiated outside
// this one-shot pass.
func (c *Capabilities) negotiate(ctx context.Context, want map[string]struct{}, deferEnd func(caps *Capabilities) bool) error {
	if err := c.negotiateLS(ctx); err != nil {
		return err
	}

	for name := range want {
		if !c.Advertised(name) {
			continue
		}
		if _, ok := SupportedCapabilities[name]; !ok {
			continue
		}
		if _, err := c.Req(ctx, name); err != nil {
			return err
		}
	}

	if deferEnd != nil && deferEnd(c) {
		return nil
	}

	return c.End()
}
