package server

import (
	"sync"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// ClientManager tracks every connected Client and the nick -> Client map
// used for delivery and collision checks. Adapted from
// irc2.ircd.client.ClientManager. The nick index is an irc.ICaseMap, the
// same case-folding structure client/session.go's ISUPPORT features use,
// rather than a hand-rolled map[Fold(nick)]*Client.
type ClientManager struct {
	mu     sync.RWMutex
	all    map[string]*Client // by ID
	byNick *irc.ICaseMap[*Client]
}

func newClientManager() *ClientManager {
	return &ClientManager{
		all:    map[string]*Client{},
		byNick: irc.NewICaseMap[*Client](),
	}
}

// Add registers a newly accepted client before it has a nick.
func (m *ClientManager) Add(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all[c.ID] = c
}

// Remove drops a client from both indices, used on disconnect.
func (m *ClientManager) Remove(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.all, c.ID)
	c.mu.Lock()
	nick := c.nick
	c.mu.Unlock()
	if existing, ok := m.byNick.Get(irc.ICaseStr(nick)); ok && existing.ID == c.ID {
		m.byNick.Delete(irc.ICaseStr(nick))
	}
}

// NickAvailable reports whether nick is free (case-insensitively).
func (m *ClientManager) NickAvailable(nick string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.byNick.Has(irc.ICaseStr(nick))
}

// SetNick reserves nick for c, releasing any nick it held before. Caller
// must have already checked NickAvailable; this briefly re-checks under
// lock to close the race.
func (m *ClientManager) SetNick(c *Client, nick string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byNick.Get(irc.ICaseStr(nick)); ok && existing.ID != c.ID {
		return false
	}

	c.mu.Lock()
	oldNick := c.nick
	c.nick = nick
	c.mu.Unlock()

	if oldNick != "" {
		m.byNick.Delete(irc.ICaseStr(oldNick))
	}
	m.byNick.Set(irc.ICaseStr(nick), c)
	return true
}

// ByNick looks up a connected client by nick, case-insensitively.
func (m *ClientManager) ByNick(nick string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byNick.Get(irc.ICaseStr(nick))
}
