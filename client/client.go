package client

import (
	"context"
	"log"
	"strings"

	"git.sr.ht/~ircsuite/ircsuite/irc"
	"git.sr.ht/~ircsuite/ircsuite/ratelimit"
)

// RegisterParams configures the registration handshake.
type RegisterParams struct {
	Nick     string
	User     string
	RealName string

	// Auth, if set, is attempted once "sasl" is negotiated.
	Auth SASLClient

	// WantCaps lists additional capabilities to request beyond sasl; the
	// set actually requested is also filtered through
	// SupportedCapabilities.
	WantCaps []string
}

// Client is the facade over Conn + Session: it drives registration, and
// offers chunked Join/Say helpers paced by an outbound rate limiter.
// Grounded on irc2's IRCClient and senpai's app.go usage of irc.Session.
type Client struct {
	Conn    *Conn
	Session *Session
	Caps    *Capabilities

	limiter *ratelimit.Bucket
	typing  *typingTracker
}

// NewClient returns a Client for host:port, ready for Register. Caps is
// usable standalone from construction: Req/End don't require Register to
// have run first, only a connected Conn.
func NewClient(host string, port int, useTLS bool, logger *log.Logger) *Client {
	conn := New(host, port, useTLS, logger)
	return &Client{
		Conn:    conn,
		Session: NewSession(conn),
		Caps:    newCapabilitiesFor(conn),
		limiter: ratelimit.ClientDefaults(),
		typing:  newTypingTracker(),
	}
}

// Register connects if necessary, negotiates capabilities, authenticates
// via SASL if requested and available, and completes the NICK/USER
// handshake, retrying with a trailing underscore on ERR_NICKNAMEINUSE.
func (c *Client) Register(ctx context.Context, params RegisterParams) error {
	if !c.Conn.Connected() {
		if err := c.Conn.Connect(ctx); err != nil {
			return err
		}
	}

	want := map[string]struct{}{}
	for _, cap := range params.WantCaps {
		want[cap] = struct{}{}
	}
	if params.Auth != nil {
		want["sasl"] = struct{}{}
	}

	wantSASL := params.Auth != nil
	err := c.Caps.negotiate(ctx, want, func(caps *Capabilities) bool {
		return wantSASL && caps.Has("sasl")
	})
	if err != nil {
		return err
	}

	if wantSASL && c.Caps.Has("sasl") {
		if err := authenticate(ctx, c.Conn, params.Auth); err != nil {
			return err
		}
		if err := c.Caps.End(); err != nil {
			return err
		}
	}

	nick := params.Nick
	c.Session.mu.Lock()
	c.Session.user = params.User
	c.Session.real = params.RealName
	c.Session.mu.Unlock()

	if err := c.Conn.Send(irc.NewMessage("NICK", nick)); err != nil {
		return err
	}
	if err := c.Conn.Send(irc.NewMessage("USER", params.User, "0", "*", params.RealName)); err != nil {
		return err
	}

	for {
		msg, err := c.Conn.Match(ctx,
			irc.VerbPattern(irc.RplWelcome),
			irc.VerbPattern(irc.ErrNicknameinuse),
			irc.VerbPattern(irc.ErrErroneusnickname),
		)
		if err != nil {
			return err
		}
		if msg.Verb == nil {
			continue
		}
		switch string(*msg.Verb) {
		case irc.RplWelcome:
			return nil
		case irc.ErrNicknameinuse, irc.ErrErroneusnickname:
			nick += "_"
			if err := c.Conn.Send(irc.NewMessage("NICK", nick)); err != nil {
				return err
			}
		}
	}
}

// joinMaxLength greedily joins the leading items of l with sep, stopping
// before the running length would reach maxlen, and returns the joined
// prefix plus the items left over. Ported from irc2.utils.join_max_length:
//
//	join_max_length(["lorem", "ipsum", "dolor", "sit", "amet"], ":", 15)
//	  == ("lorem:ipsum", ["dolor", "sit", "amet"])
//
// Unlike the original's result[:-len(sep)] slice (which silently returns ""
// whenever sep is empty, since Python's x[:-0] is x[:0]), this builds the
// result with strings.Join, which never adds a trailing separator, so the
// sep="" character-split path used by Say actually returns its characters.
func joinMaxLength(l []string, sep string, maxlen int) (string, []string) {
	length := 0
	i := 0
	for i < len(l) && length+len(l[i]) < maxlen {
		length += len(l[i]) + len(sep)
		i++
	}
	return strings.Join(l[:i], sep), l[i:]
}

// Say sends content to target as one or more PRIVMSGs, paced
// by the outbound rate limiter. Grounded on irc2.client.IRCClient.say: if
// every whitespace-delimited word is under 350 bytes, chunks are built by
// greedily packing whole words via joinMaxLength; otherwise the text is
// packed by raw character count instead, since a single overlong word
// can't be split on whitespace at all.
func (c *Client) Say(ctx context.Context, target, content string) error {
	var chunks []string

	words := strings.Split(content, " ")
	wordsFit := true
	for _, w := range words {
		if len(w) >= 350 {
			wordsFit = false
			break
		}
	}

	if wordsFit {
		left := words
		for len(left) > 0 {
			var chunk string
			chunk, left = joinMaxLength(left, " ", 350)
			chunks = append(chunks, chunk)
		}
	} else {
		left := splitChars(content)
		for len(left) > 0 {
			var chunk string
			chunk, left = joinMaxLength(left, "", 350)
			chunks = append(chunks, chunk)
		}
	}

	for _, chunk := range chunks {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.Conn.Send(irc.NewMessage("PRIVMSG", target, chunk)); err != nil {
			return err
		}
	}
	c.clearTyping(target)
	return nil
}

// splitChars splits s into one-rune strings, so joinMaxLength can pack them
// back together by raw character count the way the original's list(text)
// does for its fallback PRIVMSG split.
func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Join sends JOIN for each channel, batching the comma-separated target
// list via joinMaxLength to stay under 400 bytes per line, then awaits a
// JOIN frame whose args[0] names each channel before returning. Grounded
// on irc2.client.IRCClient.join, which matches verb="JOIN" and discards
// from a not_joined set by message.args[0], rather than waiting on any
// numeric reply.
func (c *Client) Join(ctx context.Context, channels ...string) error {
	left := channels
	for len(left) > 0 {
		var batchArg string
		var batch []string
		batchArg, left = joinMaxLength(left, ",", 400)
		batch = strings.Split(batchArg, ",")

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.Conn.Send(irc.NewMessage("JOIN", batchArg)); err != nil {
			return err
		}

		notJoined := map[string]struct{}{}
		for _, ch := range batch {
			notJoined[ch] = struct{}{}
		}
		for len(notJoined) > 0 {
			msg, err := c.Conn.Match(ctx, irc.VerbPattern("JOIN"))
			if err != nil {
				return err
			}
			if len(msg.Args) == 0 {
				continue
			}
			delete(notJoined, string(msg.Args[0]))
		}
	}
	return nil
}

// Part leaves channel with an optional reason.
func (c *Client) Part(ctx context.Context, channel, reason string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if reason == "" {
		return c.Conn.Send(irc.NewMessage("PART", channel))
	}
	return c.Conn.Send(irc.NewMessage("PART", channel, reason))
}

// Quit disconnects with an optional reason.
func (c *Client) Quit(ctx context.Context, reason string) error {
	c.Conn.Send(irc.NewMessage("QUIT", reason))
	return c.Conn.Shutdown()
}
