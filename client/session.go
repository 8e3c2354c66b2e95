package client

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// Channel is a channel the session has joined.
type Channel struct {
	Name      string
	Members   map[string]string // casefolded nick -> membership mode letters (e.g. "o", "v", "")
	Topic     string
	TopicWho  string
	TopicTime time.Time

	complete bool
}

// Session tracks client-visible state derived from the inbound stream:
// our own nick, known users, joined channels and their membership, and
// negotiated ISUPPORT features. It subscribes its handlers on a Conn's
// Dispatcher and emits Event values through Events, which any number of
// independent subscribers can observe.
//
// Adapted from senpai's irc/session.go; restructured around the
// Dispatcher/Conn architecture instead of a single synchronous
// HandleMessage switch fed by a channel.
type Session struct {
	conn   *Conn
	Events *EventDispatcher

	mu sync.Mutex

	nick, nickCf string
	user, real   string
	acct, host   string
	registered   bool

	asciiCasemap bool
	chantypes    string
	linelen      int
	prefixSyms   string
	prefixModes  string

	// features holds every 005 ISUPPORT token, keyed case-insensitively
	// the way irc2.utils.IDict preserves original casing on lookup
	// through ICaseStr folding. asciiCasemap/chantypes/linelen/prefixSyms
	// /prefixModes above are parsed out of specific tokens for hot-path
	// use elsewhere in Session; features holds all of them, including
	// ones this toolkit doesn't otherwise act on, for Feature to answer.
	features *irc.ICaseMap[string]

	users    map[string]*irc.Prefix // casefolded nick -> prefix
	channels map[string]*Channel    // casefolded name -> channel
}

// NewSession creates a Session and subscribes its built-in handlers onto
// conn's Dispatcher. Call before Register so registration traffic is
// tracked from the start.
func NewSession(conn *Conn) *Session {
	s := &Session{
		conn:        conn,
		Events:      newEventDispatcher(),
		chantypes:   "#&",
		linelen:     512,
		prefixSyms:  "@+",
		prefixModes: "ov",
		features:    irc.NewICaseMap[string](),
		users:       map[string]*irc.Prefix{},
		channels:    map[string]*Channel{},
	}
	s.subscribe()
	return s
}

// Feature returns the value of an ISUPPORT token by name (case-insensitive),
// and whether the server ever advertised it. Bare tokens (no "=value") are
// stored as "true".
func (s *Session) Feature(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features.Get(irc.ICaseStr(name))
}

func (s *Session) casemap(name string) string {
	if s.asciiCasemap {
		return strings.ToLower(name)
	}
	return irc.ICaseStr(name).Fold()
}

// Nick returns our current nickname.
func (s *Session) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

// IsMe reports whether nick names ourself under the active case mapping.
func (s *Session) IsMe(nick string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nickCf == s.casemap(nick)
}

// IsChannel reports whether name begins with one of the server's channel
// type prefixes.
func (s *Session) IsChannel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(name) > 0 && strings.IndexByte(s.chantypes, name[0]) >= 0
}

// Channel returns the tracked state for a joined channel, or nil.
func (s *Session) Channel(name string) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[s.casemap(name)]
}

func (s *Session) emit(ev Event) {
	s.Events.fire(ev)
}

func (s *Session) subscribe() {
	d := s.conn.Dispatcher

	d.Subscribe(irc.VerbPattern("PING"), func(ctx context.Context, msg irc.Message) {
		s.conn.Send(irc.NewMessage("PONG", msg.Arg(0)))
	})

	d.Subscribe(irc.VerbPattern(irc.RplWelcome), s.onWelcome)
	d.Subscribe(irc.VerbPattern(irc.RplISupport), s.onISupport)
	d.Subscribe(irc.VerbPattern("NICK"), s.onNick)
	d.Subscribe(irc.VerbPattern("JOIN"), s.onJoin)
	d.Subscribe(irc.VerbPattern("PART"), s.onPart)
	d.Subscribe(irc.VerbPattern("KICK"), s.onKick)
	d.Subscribe(irc.VerbPattern("QUIT"), s.onQuit)
	d.Subscribe(irc.VerbPattern("TOPIC"), s.onTopic)
	d.Subscribe(irc.VerbPattern(irc.RplTopic), s.onRplTopic)
	d.Subscribe(irc.VerbPattern(irc.RplTopicwhotime), s.onRplTopicWhoTime)
	d.Subscribe(irc.VerbPattern(irc.RplNotopic), s.onRplNoTopic)
	d.Subscribe(irc.VerbPattern(irc.RplNamreply), s.onNamReply)
	d.Subscribe(irc.VerbPattern(irc.RplEndofnames), s.onEndOfNames)
	d.Subscribe(irc.VerbPattern("PRIVMSG"), s.onMessage)
	d.Subscribe(irc.VerbPattern("NOTICE"), s.onMessage)
	d.Subscribe(irc.VerbPattern("TAGMSG"), s.onTagMsg)
}

func (s *Session) onTagMsg(ctx context.Context, msg irc.Message) {
	if msg.Prefix == nil || len(msg.Args) < 1 {
		return
	}
	tag, ok := msg.Tags["+typing"]
	if !ok || tag.IsFlag {
		return
	}
	var state TypingState
	switch tag.Text {
	case "active":
		state = TypingActive
	case "paused":
		state = TypingPaused
	case "done":
		state = TypingDone
	default:
		return
	}
	target := msg.Arg(0)
	if c := s.Channel(target); c != nil {
		target = c.Name
	}
	s.emit(TypingEvent{User: msg.Prefix.Name.String(), Target: target, State: state, Time: time.Now()})
}

func (s *Session) onWelcome(ctx context.Context, msg irc.Message) {
	s.mu.Lock()
	s.nick = msg.Arg(0)
	s.nickCf = s.casemap(s.nick)
	s.registered = true
	s.users[s.nickCf] = &irc.Prefix{Name: irc.ICaseStr(s.nick)}
	s.mu.Unlock()
	s.emit(RegisteredEvent{})
}

func (s *Session) onISupport(ctx context.Context, msg irc.Message) {
	if len(msg.Args) < 2 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range msg.Args[1 : len(msg.Args)-1] {
		s.applyISupportToken(string(f))
	}
}

func (s *Session) applyISupportToken(f string) {
	if f == "" {
		return
	}
	if strings.HasPrefix(f, "-") {
		s.features.Delete(irc.ICaseStr(f[1:]))
		return
	}
	key, value := f, "true"
	if eq := strings.IndexByte(f, '='); eq >= 0 {
		key, value = f[:eq], f[eq+1:]
	}
	s.features.Set(irc.ICaseStr(key), value)

	switch strings.ToUpper(key) {
	case "CASEMAPPING":
		s.asciiCasemap = value == "ascii"
	case "CHANTYPES":
		s.chantypes = value
	case "LINELEN":
		if n, err := strconv.Atoi(value); err == nil && n != 0 {
			s.linelen = n
		}
	case "PREFIX":
		if value == "" {
			s.prefixSyms, s.prefixModes = "", ""
			return
		}
		if len(value)%2 != 0 || !strings.HasPrefix(value, "(") {
			return
		}
		close := strings.IndexByte(value, ')')
		if close < 0 {
			return
		}
		s.prefixModes = value[1:close]
		s.prefixSyms = value[close+1:]
	}
}

func (s *Session) onNick(ctx context.Context, msg irc.Message) {
	if msg.Prefix == nil {
		return
	}
	oldCf := s.casemap(msg.Prefix.Name.String())
	newNick := msg.Arg(0)
	newCf := s.casemap(newNick)

	s.mu.Lock()
	p, ok := s.users[oldCf]
	if ok {
		delete(s.users, oldCf)
		p.Name = irc.ICaseStr(newNick)
		s.users[newCf] = p
	}
	isMe := s.nickCf == oldCf
	if isMe {
		s.nick = newNick
		s.nickCf = newCf
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	if isMe {
		s.emit(SelfNickEvent{FormerNick: msg.Prefix.Name.String()})
	} else {
		s.emit(UserNickEvent{User: newNick, FormerNick: msg.Prefix.Name.String(), Time: time.Now()})
	}
}

func (s *Session) onJoin(ctx context.Context, msg irc.Message) {
	if msg.Prefix == nil || len(msg.Args) < 1 {
		return
	}
	nick := msg.Prefix.Name.String()
	channel := msg.Arg(0)
	channelCf := s.casemap(channel)
	nickCf := s.casemap(nick)

	s.mu.Lock()
	if s.nickCf == nickCf {
		s.channels[channelCf] = &Channel{Name: channel, Members: map[string]string{}}
		s.mu.Unlock()
		return
	}
	c, ok := s.channels[channelCf]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, ok := s.users[nickCf]; !ok {
		s.users[nickCf] = msg.Prefix
	}
	c.Members[nickCf] = ""
	s.mu.Unlock()

	s.emit(UserJoinEvent{User: nick, Channel: c.Name, Time: time.Now()})
}

func (s *Session) onPart(ctx context.Context, msg irc.Message) {
	s.departMember(msg, msg.Prefix, msg.Arg(0))
}

func (s *Session) onKick(ctx context.Context, msg irc.Message) {
	if len(msg.Args) < 2 {
		return
	}
	target := irc.ParsePrefix(msg.Arg(1))
	s.departMember(msg, &target, msg.Arg(0))
}

func (s *Session) departMember(msg irc.Message, who *irc.Prefix, channel string) {
	if who == nil {
		return
	}
	nick := who.Name.String()
	channelCf := s.casemap(channel)
	nickCf := s.casemap(nick)

	s.mu.Lock()
	if s.nickCf == nickCf {
		c, ok := s.channels[channelCf]
		delete(s.channels, channelCf)
		s.mu.Unlock()
		if ok {
			s.emit(SelfPartEvent{Channel: c.Name})
		}
		return
	}
	c, ok := s.channels[channelCf]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(c.Members, nickCf)
	s.cleanUserLocked(nickCf)
	s.mu.Unlock()
	s.emit(UserPartEvent{User: nick, Channel: c.Name, Time: time.Now()})
}

func (s *Session) onQuit(ctx context.Context, msg irc.Message) {
	if msg.Prefix == nil {
		return
	}
	nickCf := s.casemap(msg.Prefix.Name.String())

	s.mu.Lock()
	var channels []string
	for _, c := range s.channels {
		if _, ok := c.Members[nickCf]; ok {
			channels = append(channels, c.Name)
			delete(c.Members, nickCf)
		}
	}
	s.cleanUserLocked(nickCf)
	s.mu.Unlock()

	if len(channels) > 0 {
		s.emit(UserQuitEvent{User: msg.Prefix.Name.String(), Channels: channels, Time: time.Now()})
	}
}

// cleanUserLocked drops a user from the known-users table once it shares
// no more channels with us. Caller must hold mu.
func (s *Session) cleanUserLocked(nickCf string) {
	for _, c := range s.channels {
		if _, ok := c.Members[nickCf]; ok {
			return
		}
	}
	delete(s.users, nickCf)
}

func (s *Session) onTopic(ctx context.Context, msg irc.Message) {
	if len(msg.Args) < 2 {
		return
	}
	channelCf := s.casemap(msg.Arg(0))
	s.mu.Lock()
	c, ok := s.channels[channelCf]
	if ok {
		c.Topic = msg.Arg(1)
		if msg.Prefix != nil {
			c.TopicWho = msg.Prefix.Name.String()
		}
		c.TopicTime = time.Now()
	}
	s.mu.Unlock()
	if ok {
		s.emit(TopicChangeEvent{Channel: c.Name, Topic: c.Topic, Time: c.TopicTime})
	}
}

func (s *Session) onRplTopic(ctx context.Context, msg irc.Message) {
	if len(msg.Args) < 3 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.channels[s.casemap(msg.Arg(1))]; ok {
		c.Topic = msg.Arg(2)
	}
}

func (s *Session) onRplTopicWhoTime(ctx context.Context, msg irc.Message) {
	if len(msg.Args) < 4 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.channels[s.casemap(msg.Arg(1))]; ok {
		c.TopicWho = msg.Arg(2)
		if ts, err := strconv.ParseInt(msg.Arg(3), 10, 64); err == nil {
			c.TopicTime = time.Unix(ts, 0)
		}
	}
}

func (s *Session) onRplNoTopic(ctx context.Context, msg irc.Message) {
	if len(msg.Args) < 2 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.channels[s.casemap(msg.Arg(1))]; ok {
		c.Topic = ""
	}
}

func (s *Session) onNamReply(ctx context.Context, msg irc.Message) {
	if len(msg.Args) < 4 {
		return
	}
	channelCf := s.casemap(msg.Arg(2))
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[channelCf]
	if !ok {
		return
	}
	for _, name := range strings.Fields(msg.Arg(3)) {
		modes := ""
		for len(name) > 0 && strings.IndexByte(s.prefixSyms, name[0]) >= 0 {
			idx := strings.IndexByte(s.prefixSyms, name[0])
			modes += string(s.prefixModes[idx])
			name = name[1:]
		}
		p := irc.ParsePrefix(name)
		nickCf := s.casemap(p.Name.String())
		if _, ok := s.users[nickCf]; !ok {
			s.users[nickCf] = &p
		}
		c.Members[nickCf] = modes
	}
}

func (s *Session) onEndOfNames(ctx context.Context, msg irc.Message) {
	if len(msg.Args) < 2 {
		return
	}
	channelCf := s.casemap(msg.Arg(1))
	s.mu.Lock()
	c, ok := s.channels[channelCf]
	if !ok || c.complete {
		s.mu.Unlock()
		return
	}
	c.complete = true
	s.mu.Unlock()
	s.emit(SelfJoinEvent{Channel: c.Name, Topic: c.Topic})
}

func (s *Session) onMessage(ctx context.Context, msg irc.Message) {
	if msg.Prefix == nil || len(msg.Args) < 2 || msg.Verb == nil {
		return
	}
	target := msg.Arg(0)
	ev := MessageEvent{
		User:    msg.Prefix.Name.String(),
		Target:  target,
		Command: string(*msg.Verb),
		Content: msg.Arg(1),
		Time:    time.Now(),
	}
	if c := s.Channel(target); c != nil {
		ev.Target = c.Name
		ev.TargetIsChannel = true
	}
	s.emit(ev)
}
