package server

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// testClient returns a Client backed by one end of an in-memory pipe, and
// the peer end a test can read from (or drain) to unblock Client.Send,
// which otherwise blocks writing to an unread net.Pipe.
func testClient(t *testing.T, nick string) (*Client, net.Conn) {
	t.Helper()
	serverSide, peerSide := net.Pipe()
	t.Cleanup(func() {
		serverSide.Close()
		peerSide.Close()
	})
	c := newClient(serverSide)
	c.nick = nick
	c.ident = nick
	return c, peerSide
}

// drain discards everything written to a Client, standing in for a real
// peer reading its socket so Client.Send never blocks on a full pipe.
func drain(peer net.Conn) {
	buf := make([]byte, 4096)
	for {
		if _, err := peer.Read(buf); err != nil {
			return
		}
	}
}

// readLines reads lines from peer onto ch until peer is closed.
func readLines(peer net.Conn, ch chan<- string) {
	scanner := bufio.NewScanner(peer)
	for scanner.Scan() {
		ch <- scanner.Text()
	}
	close(ch)
}

func TestChannelAddTracksMembershipSymmetrically(t *testing.T) {
	ch := newChannel("#test")
	alice, peer := testClient(t, "alice")
	go drain(peer)

	ch.Add(alice)

	require.True(t, ch.Has(alice))
	alice.mu.Lock()
	_, inClient := alice.channels["#test"]
	alice.mu.Unlock()
	require.True(t, inClient, "client should record channel membership")
}

func TestChannelRemoveIsSymmetric(t *testing.T) {
	ch := newChannel("#test")
	alice, peer := testClient(t, "alice")
	go drain(peer)
	ch.Add(alice)

	empty := ch.Remove(alice)
	require.True(t, empty)
	require.False(t, ch.Has(alice))

	alice.mu.Lock()
	_, inClient := alice.channels["#test"]
	alice.mu.Unlock()
	require.False(t, inClient)
}

func TestChannelBroadcastExceptExcludesSender(t *testing.T) {
	ch := newChannel("#test")
	alice, alicePeer := testClient(t, "alice")
	bob, bobPeer := testClient(t, "bob")
	go drain(alicePeer)

	bobLines := make(chan string, 16)
	go readLines(bobPeer, bobLines)

	ch.Add(alice)
	ch.Add(bob)
	ch.BroadcastExcept(alice, irc.NewMessage("PRIVMSG", "#test", "hi"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-bobLines:
			if !ok {
				t.Fatal("bob's connection closed before seeing the broadcast")
			}
			if strings.Contains(line, "PRIVMSG") && strings.Contains(line, "hi") {
				return
			}
		case <-deadline:
			t.Fatal("expected bob to receive the broadcast")
		}
	}
}

func TestChannelBroadcastExceptDoesNotReachSender(t *testing.T) {
	ch := newChannel("#test")
	alice, alicePeer := testClient(t, "alice")

	aliceLines := make(chan string, 16)
	go readLines(alicePeer, aliceLines)

	ch.Add(alice)

	// drain alice's own JOIN/TOPIC/NAMES/ENDOFNAMES lines from joining
	for i := 0; i < 4; i++ {
		select {
		case <-aliceLines:
		case <-time.After(time.Second):
			t.Fatal("timed out draining join sequence")
		}
	}

	ch.BroadcastExcept(alice, irc.NewMessage("PRIVMSG", "#test", "should not arrive"))

	select {
	case line := <-aliceLines:
		t.Fatalf("sender should not receive its own broadcast, got %q", line)
	case <-time.After(200 * time.Millisecond):
	}
}
