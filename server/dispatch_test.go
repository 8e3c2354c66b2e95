package server

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

func newTestServer() *Server {
	return New(DefaultConfig(), nil)
}

// registeredClient wires a client into s as if NICK/USER/welcome already
// ran, so handlers that gate on checkRegistered proceed.
func registeredClient(t *testing.T, s *Server, nick string) (*Client, net.Conn) {
	t.Helper()
	c, peer := testClient(t, "")
	s.clients.Add(c)
	require.True(t, s.clients.SetNick(c, nick))
	c.mu.Lock()
	c.ident = nick
	c.registered = true
	c.mu.Unlock()
	return c, peer
}

func TestHandleNickAndUserResolveRegistration(t *testing.T) {
	s := newTestServer()
	c, peer := testClient(t, "")
	go drain(peer)
	s.clients.Add(c)

	s.handleNick(c, irc.NewMessage("NICK", "alice"))
	require.Equal(t, "alice", c.Nick())

	s.handleUser(c, irc.NewMessage("USER", "alice", "0", "*", "Alice A"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.awaitRegistration(ctx))
}

func TestHandleNickRejectsCollision(t *testing.T) {
	s := newTestServer()
	_, existingPeer := registeredClient(t, s, "alice")
	go drain(existingPeer)

	c, peer := testClient(t, "")
	lines := make(chan string, 8)
	go readLines(peer, lines)
	s.clients.Add(c)

	s.handleNick(c, irc.NewMessage("NICK", "alice"))

	select {
	case line := <-lines:
		require.Contains(t, line, irc.ErrNicknameinuse)
	case <-time.After(time.Second):
		t.Fatal("expected an ERR_NICKNAMEINUSE reply")
	}
	require.Equal(t, "", c.Nick())
}

func TestHandleJoinTwoClientsSeeEachOther(t *testing.T) {
	s := newTestServer()
	alice, alicePeer := registeredClient(t, s, "alice")
	bob, bobPeer := registeredClient(t, s, "bob")

	aliceLines := make(chan string, 16)
	bobLines := make(chan string, 16)
	go readLines(alicePeer, aliceLines)
	go readLines(bobPeer, bobLines)

	s.handleJoin(alice, irc.NewMessage("JOIN", "#test"))

	// alice's own join sequence: JOIN, NOTOPIC, NAMREPLY, ENDOFNAMES
	for i := 0; i < 4; i++ {
		select {
		case <-aliceLines:
		case <-time.After(time.Second):
			t.Fatal("timed out draining alice's join sequence")
		}
	}

	s.handleJoin(bob, irc.NewMessage("JOIN", "#test"))

	select {
	case line := <-aliceLines:
		require.Contains(t, line, "JOIN")
		require.Contains(t, line, "bob")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bob's JOIN to reach alice")
	}

	ch, ok := s.channels.Get("#test")
	require.True(t, ok)
	require.True(t, ch.Has(alice))
	require.True(t, ch.Has(bob))
}

func TestHandlePrivmsgChannelBroadcastExcludesSender(t *testing.T) {
	s := newTestServer()
	alice, alicePeer := registeredClient(t, s, "alice")
	bob, bobPeer := registeredClient(t, s, "bob")
	go drain(alicePeer)

	bobLines := make(chan string, 16)
	go readLines(bobPeer, bobLines)

	s.handleJoin(alice, irc.NewMessage("JOIN", "#test"))
	s.handleJoin(bob, irc.NewMessage("JOIN", "#test"))

	s.handlePrivmsg(alice, irc.NewMessage("PRIVMSG", "#test", "hello channel"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line := <-bobLines:
			if strings.Contains(line, "PRIVMSG") && strings.Contains(line, "hello channel") {
				return
			}
		case <-deadline:
			t.Fatal("bob never saw alice's PRIVMSG")
		}
	}
}

func TestHandlePrivmsgDirectsToNick(t *testing.T) {
	s := newTestServer()
	alice, alicePeer := registeredClient(t, s, "alice")
	bob, bobPeer := registeredClient(t, s, "bob")
	go drain(alicePeer)

	bobLines := make(chan string, 16)
	go readLines(bobPeer, bobLines)

	s.handlePrivmsg(alice, irc.NewMessage("PRIVMSG", "bob", "hi there"))

	select {
	case line := <-bobLines:
		require.Contains(t, line, "hi there")
	case <-time.After(time.Second):
		t.Fatal("bob never received the direct message")
	}
}

func TestHandlePartIsANoopStub(t *testing.T) {
	s := newTestServer()
	alice, alicePeer := registeredClient(t, s, "alice")

	aliceLines := make(chan string, 16)
	go readLines(alicePeer, aliceLines)

	s.handleJoin(alice, irc.NewMessage("JOIN", "#test"))
	for i := 0; i < 4; i++ {
		<-aliceLines
	}

	s.handlePart(alice, irc.NewMessage("PART", "#test", "bye"))

	select {
	case line := <-aliceLines:
		t.Fatalf("PART is a spec-mandated stub, expected no reply, got %q", line)
	case <-time.After(200 * time.Millisecond):
	}

	ch, ok := s.channels.Get("#test")
	require.True(t, ok, "PART must not mutate channel membership")
	require.True(t, ch.Has(alice))
}

func TestHandlePartRequiresRegistration(t *testing.T) {
	s := newTestServer()
	c, peer := testClient(t, "")
	lines := make(chan string, 4)
	go readLines(peer, lines)

	s.handlePart(c, irc.NewMessage("PART", "#test"))

	select {
	case line := <-lines:
		require.Contains(t, line, irc.ErrNotregistered)
	case <-time.After(time.Second):
		t.Fatal("expected ERR_NOTREGISTERED for an unregistered PART")
	}
}

func TestHandleQuitRemovesChannelMembershipSymmetrically(t *testing.T) {
	s := newTestServer()
	alice, alicePeer := registeredClient(t, s, "alice")
	bob, bobPeer := registeredClient(t, s, "bob")
	bobLines := make(chan string, 16)
	go readLines(bobPeer, bobLines)
	go drain(alicePeer)

	s.handleJoin(alice, irc.NewMessage("JOIN", "#test"))
	s.handleJoin(bob, irc.NewMessage("JOIN", "#test"))

	s.handleQuit(alice, irc.NewMessage("QUIT", "gone"))

	select {
	case line := <-bobLines:
		for !strings.Contains(line, "QUIT") {
			select {
			case line = <-bobLines:
			case <-time.After(time.Second):
				t.Fatal("bob never saw alice's QUIT")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("bob never saw alice's QUIT")
	}

	ch, ok := s.channels.Get("#test")
	require.True(t, ok, "channel should still exist with bob in it")
	require.False(t, ch.Has(alice), "alice must be removed from the channel's membership")

	alice.mu.Lock()
	_, stillThere := alice.channels["#test"]
	alice.mu.Unlock()
	require.False(t, stillThere, "alice's own channel set must be cleared too")
}

func TestHandleQuitDropsChannelWhenLastMemberLeaves(t *testing.T) {
	s := newTestServer()
	alice, alicePeer := registeredClient(t, s, "alice")
	go drain(alicePeer)

	s.handleJoin(alice, irc.NewMessage("JOIN", "#solo"))
	s.handleQuit(alice, irc.NewMessage("QUIT", "gone"))

	_, ok := s.channels.Get("#solo")
	require.False(t, ok, "an emptied channel must be dropped")
}

func TestHandlePingRepliesWithPong(t *testing.T) {
	s := newTestServer()
	c, peer := testClient(t, "")
	lines := make(chan string, 4)
	go readLines(peer, lines)

	s.handlePing(c, irc.NewMessage("PING", "token"))

	select {
	case line := <-lines:
		require.Contains(t, line, "PONG")
		require.Contains(t, line, "token")
	case <-time.After(time.Second):
		t.Fatal("expected a PONG reply")
	}
}
