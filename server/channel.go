package server

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// Channel is a server-side channel: its membership, topic, and modes.
// Adapted from irc2.ircd.channel.Channel; membership power levels ("" or
// "o") generalize to the full prefix/mode set a real ISUPPORT PREFIX
// advertises.
type Channel struct {
	Name      string
	ts        time.Time
	Topic     string
	TopicBy   string
	TopicAt   time.Time

	mu      sync.Mutex
	members map[*Client]string // client -> highest prefix symbol ("@", "+", "")
	modes   map[byte]string    // mode char -> parameter, for B/C-class modes
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:    name,
		ts:      time.Now(),
		members: map[*Client]string{},
		modes:   map[byte]string{},
	}
}

// Add joins client to the channel, granting op if it is the first member,
// then sends JOIN, TOPIC and NAMES to the joining client and JOIN to every
// existing member, per irc2.ircd.channel.Channel.add.
func (ch *Channel) Add(client *Client) {
	ch.mu.Lock()
	prefix := ""
	if len(ch.members) == 0 {
		prefix = "@"
	}
	ch.members[client] = prefix
	client.mu.Lock()
	client.channels[irc.ICaseStr(ch.Name).Fold()] = struct{}{}
	client.mu.Unlock()

	joinMsg := irc.NewMessage("JOIN", ch.Name)
	joinMsg.Prefix = hostmaskPrefix(client)
	for member := range ch.members {
		member.Send(joinMsg)
	}

	if ch.Topic != "" {
		client.Send(irc.NewMessage(irc.RplTopic, client.nickOrStar(), ch.Name, ch.Topic))
		client.Send(irc.NewMessage(irc.RplTopicwhotime, client.nickOrStar(), ch.Name, ch.TopicBy, strconv.FormatInt(ch.TopicAt.Unix(), 10)))
	} else {
		client.Send(irc.NewMessage(irc.RplNotopic, client.nickOrStar(), ch.Name, "No topic is set"))
	}

	names := ch.namesLocked()
	ch.mu.Unlock()

	const namesPerLine = 16
	for i := 0; i < len(names); i += namesPerLine {
		end := i + namesPerLine
		if end > len(names) {
			end = len(names)
		}
		client.Send(irc.NewMessage(irc.RplNamreply, client.nickOrStar(), "=", ch.Name, joinFields(names[i:end])))
	}
	client.Send(irc.NewMessage(irc.RplEndofnames, client.nickOrStar(), ch.Name, "End of NAMES list"))
}

func joinFields(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += " "
		}
		out += f
	}
	return out
}

// namesLocked renders "<prefix><nick>" for every member, sorted by nick.
// Caller must hold ch.mu.
func (ch *Channel) namesLocked() []string {
	members := make([]*Client, 0, len(ch.members))
	for member := range ch.members {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Nick() < members[j].Nick() })
	names := make([]string, 0, len(members))
	for _, member := range members {
		names = append(names, ch.members[member]+member.Nick())
	}
	return names
}

// Remove drops client from the channel and reports whether the channel is
// now empty.
func (ch *Channel) Remove(client *Client) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.members, client)
	client.mu.Lock()
	delete(client.channels, irc.ICaseStr(ch.Name).Fold())
	client.mu.Unlock()
	return len(ch.members) == 0
}

// Has reports whether client is a member.
func (ch *Channel) Has(client *Client) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	_, ok := ch.members[client]
	return ok
}

// Broadcast sends m to every member.
func (ch *Channel) Broadcast(m irc.Message) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for member := range ch.members {
		member.Send(m)
	}
}

// BroadcastExcept sends m to every member except exc, per
// irc2.ircd.channel.Channel.send_except.
func (ch *Channel) BroadcastExcept(exc *Client, m irc.Message) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for member := range ch.members {
		if member != exc {
			member.Send(m)
		}
	}
}

// SetTopic updates the topic and who/when set it.
func (ch *Channel) SetTopic(topic, by string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.Topic = topic
	ch.TopicBy = by
	ch.TopicAt = time.Now()
}

func hostmaskPrefix(c *Client) *irc.Prefix {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &irc.Prefix{
		Name:       irc.ICaseStr(c.nick),
		IsHostmask: true,
		User:       irc.ICaseStr(c.ident),
		Host:       irc.ICaseStr(c.peerHost),
	}
}
