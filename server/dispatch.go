package server

import (
	"context"
	"strings"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// handle dispatches one inbound line to the matching handle_<verb> method,
// the way irc2.ircd.handler.IRCHandler.handle looks up
// "handle_{verb.lower()}" by reflection. Go has no reflection-by-name
// method dispatch as idiomatic as Python's getattr, so this is a literal
// switch table instead; unknown verbs get the same "not implemented"
// NOTICE for a registered client.
func (s *Server) handle(ctx context.Context, c *Client, msg irc.Message) {
	if msg.Verb == nil {
		return
	}
	verb := strings.ToUpper(string(*msg.Verb))

	switch verb {
	case "NICK":
		s.handleNick(c, msg)
	case "USER":
		s.handleUser(c, msg)
	case "PING":
		s.handlePing(c, msg)
	case "MODE":
		s.handleMode(c, msg)
	case "JOIN":
		s.handleJoin(c, msg)
	case "PART":
		s.handlePart(c, msg)
	case "PRIVMSG", "NOTICE":
		s.handlePrivmsg(c, msg)
	case "TOPIC":
		s.handleTopic(c, msg)
	case "QUIT":
		s.handleQuit(c, msg)
	case "GET":
		s.handleGet(c, msg)
	default:
		if c.Registered() {
			c.Send(irc.NewMessage("NOTICE", c.Nick(), verb+" is not implemented"))
		}
	}
}

func (s *Server) handleNick(c *Client, msg irc.Message) {
	if len(msg.Args) < 1 {
		return
	}
	nick := msg.Arg(0)

	if !validNick(nick) {
		c.Send(irc.NewMessage(irc.ErrErroneusnickname, c.nickOrStar(), nick, "Erroneous nickname"))
		return
	}
	if !s.clients.NickAvailable(nick) {
		c.Send(irc.NewMessage(irc.ErrNicknameinuse, c.nickOrStar(), nick, "Nickname is already in use"))
		return
	}

	oldHostmask := ""
	hadNick := c.Nick() != ""
	if hadNick {
		oldHostmask = c.Hostmask()
	}

	if !s.clients.SetNick(c, nick) {
		c.Send(irc.NewMessage(irc.ErrNicknameinuse, c.nickOrStar(), nick, "Nickname is already in use"))
		return
	}

	if hadNick {
		nickMsg := irc.NewMessage("NICK", nick)
		p := irc.ParsePrefix(oldHostmask)
		nickMsg.Prefix = &p
		s.broadcastToChannelsOf(c, nickMsg)
	}

	c.nickDone.Resolve(struct{}{})
}

func (s *Server) handleUser(c *Client, msg irc.Message) {
	if len(msg.Args) < 4 {
		return
	}
	c.mu.Lock()
	c.ident = msg.Arg(0)
	c.realName = msg.Arg(3)
	c.mu.Unlock()
	c.userDone.Resolve(struct{}{})
}

func (s *Server) handlePing(c *Client, msg irc.Message) {
	resp := s.config.Name
	if len(msg.Args) > 0 {
		resp = msg.Arg(0)
	}
	c.Send(irc.NewMessage("PONG", resp))
}

func (s *Server) handleMode(c *Client, msg irc.Message) {
	if !c.checkRegistered() || len(msg.Args) < 1 {
		return
	}
	target := msg.Arg(0)

	if s.isChannel(target) {
		// Parsed for validation; channel mode state isn't mutated or
		// broadcast in this toolkit's minimal IRCd (no chanmode storage
		// wired to ModeChange application yet).
		ParseModeString(argStrings(msg.Args[1:]), ChanModeClasses)
		return
	}

	if target != c.Nick() {
		c.Send(irc.NewMessage(irc.ErrUsersdontmatch, c.nickOrStar(), "Can't change mode for other users"))
		return
	}

	changes, err := ParseModeString(argStrings(msg.Args[1:]), UserModeClasses)
	if err != nil {
		c.Send(irc.NewMessage(irc.ErrUmodeunknownflag, c.nickOrStar(), err.Error()))
		return
	}

	c.mu.Lock()
	for _, ch := range changes {
		if ch.Add {
			c.modes[ch.Char] = struct{}{}
		} else {
			delete(c.modes, ch.Char)
		}
	}
	c.mu.Unlock()

	reply := irc.NewMessage("MODE", argStrings(msg.Args)...)
	p := irc.ParsePrefix(c.Hostmask())
	reply.Prefix = &p
	c.Send(reply)
}

func (s *Server) handleJoin(c *Client, msg irc.Message) {
	if !c.checkRegistered() || len(msg.Args) < 1 {
		return
	}
	for _, name := range strings.Split(msg.Arg(0), ",") {
		if name == "" {
			continue
		}
		ch := s.channels.GetOrCreate(name)
		ch.Add(c)
	}
}

// handlePart only enforces registration, per irc2.ircd.handler's PART stub
// (an assert on a path nothing ever exercises, dropped here as a no-op):
// no state change, no broadcast.
func (s *Server) handlePart(c *Client, msg irc.Message) {
	c.checkRegistered()
}

func (s *Server) handlePrivmsg(c *Client, msg irc.Message) {
	if !c.checkRegistered() || len(msg.Args) < 2 {
		return
	}
	target, text := msg.Arg(0), msg.Arg(1)
	verb := "PRIVMSG"
	if msg.Verb != nil {
		verb = string(*msg.Verb)
	}

	out := irc.NewMessage(verb, target, text)
	p := irc.ParsePrefix(c.Hostmask())
	out.Prefix = &p

	if s.isChannel(target) {
		if ch, ok := s.channels.Get(target); ok {
			ch.BroadcastExcept(c, out)
		}
		return
	}
	if dest, ok := s.clients.ByNick(target); ok {
		dest.Send(out)
	}
}

func (s *Server) handleTopic(c *Client, msg irc.Message) {
	if !c.checkRegistered() || len(msg.Args) < 1 {
		return
	}
	ch, ok := s.channels.Get(msg.Arg(0))
	if !ok {
		return
	}
	if len(msg.Args) < 2 {
		if ch.Topic == "" {
			c.Send(irc.NewMessage(irc.RplNotopic, c.Nick(), ch.Name, "No topic is set"))
		} else {
			c.Send(irc.NewMessage(irc.RplTopic, c.Nick(), ch.Name, ch.Topic))
		}
		return
	}
	ch.SetTopic(msg.Arg(1), c.Hostmask())
	topicMsg := irc.NewMessage("TOPIC", ch.Name, msg.Arg(1))
	p := irc.ParsePrefix(c.Hostmask())
	topicMsg.Prefix = &p
	ch.Broadcast(topicMsg)
}

func (s *Server) handleQuit(c *Client, msg irc.Message) {
	reason := "Client quit"
	if len(msg.Args) > 0 {
		reason = msg.Arg(0)
	}
	quitMsg := irc.NewMessage("QUIT", reason)
	p := irc.ParsePrefix(c.Hostmask())
	quitMsg.Prefix = &p
	s.broadcastToChannelsOf(c, quitMsg)
	s.departAllChannels(c)
	c.conn.Close()
}

// departAllChannels removes c from every channel it was a member of,
// dropping any channel that becomes empty, per irc2.ircd.client.Client's
// connection_lost tearing down membership symmetrically on both sides.
func (s *Server) departAllChannels(c *Client) {
	c.mu.Lock()
	names := make([]string, 0, len(c.channels))
	for cf := range c.channels {
		names = append(names, cf)
	}
	c.mu.Unlock()

	for _, cf := range names {
		ch, ok := s.channels.Get(cf)
		if !ok {
			continue
		}
		if empty := ch.Remove(c); empty {
			s.channels.Drop(ch.Name)
		}
	}
}

// handleGet answers plain HTTP traffic that landed on the IRC port with a
// one-line banner, per irc2.ircd.handler.IRCHandler.handle_get.
func (s *Server) handleGet(c *Client, msg irc.Message) {
	c.wmu.Lock()
	c.w.WriteString("HTTP/1.0 200 OK\r\n\r\nThis is not an HTTP server\r\n")
	c.w.Flush()
	c.wmu.Unlock()
	c.conn.Close()
}

func (s *Server) broadcastToChannelsOf(c *Client, m irc.Message) {
	c.mu.Lock()
	names := make([]string, 0, len(c.channels))
	for cf := range c.channels {
		names = append(names, cf)
	}
	c.mu.Unlock()

	sent := map[*Client]struct{}{}
	for _, cf := range names {
		ch, ok := s.channels.Get(cf)
		if !ok {
			continue
		}
		ch.mu.Lock()
		for member := range ch.members {
			if _, done := sent[member]; !done {
				member.Send(m)
				sent[member] = struct{}{}
			}
		}
		ch.mu.Unlock()
	}
}

func (s *Server) isChannel(name string) bool {
	return len(name) > 0 && strings.IndexByte(s.config.ChanTypes, name[0]) >= 0
}

func argStrings(args []irc.ICaseStr) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}

func validNick(nick string) bool {
	if len(nick) == 0 || len(nick) > 15 {
		return false
	}
	first := nick[0]
	if !('a' <= first && first <= 'z' || 'A' <= first && first <= 'Z') {
		return false
	}
	for i := 1; i < len(nick); i++ {
		b := nick[i]
		if !('a' <= b && b <= 'z' || 'A' <= b && b <= 'Z' || '0' <= b && b <= '9') {
			return false
		}
	}
	return true
}
