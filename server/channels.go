package server

import (
	"sync"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// ChannelSet is the server's get-or-create channel table, keyed by
// casefolded name. Adapted from irc2.ircd.channel.Channels'
// __missing__ auto-vivification.
type ChannelSet struct {
	mu       sync.Mutex
	channels map[string]*Channel
}

func newChannelSet() *ChannelSet {
	return &ChannelSet{channels: map[string]*Channel{}}
}

// GetOrCreate returns the channel named name, creating it if it doesn't
// exist yet.
func (cs *ChannelSet) GetOrCreate(name string) *Channel {
	cf := irc.ICaseStr(name).Fold()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	ch, ok := cs.channels[cf]
	if !ok {
		ch = newChannel(name)
		cs.channels[cf] = ch
	}
	return ch
}

// Get returns the channel named name, if it exists.
func (cs *ChannelSet) Get(name string) (*Channel, bool) {
	cf := irc.ICaseStr(name).Fold()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	ch, ok := cs.channels[cf]
	return ch, ok
}

// Drop removes an emptied channel.
func (cs *ChannelSet) Drop(name string) {
	cf := irc.ICaseStr(name).Fold()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.channels, cf)
}
