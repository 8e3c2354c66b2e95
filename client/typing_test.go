package client

import (
	"net"
	"strings"
	"testing"
	"time"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// testConnectedClient builds a Client whose Conn is wired to one end of an
// in-memory pipe, as if Connect had already succeeded, so Typing/TypingStop
// can actually Send without a real network.
func testConnectedClient(t *testing.T, caps ...string) (*Client, net.Conn) {
	t.Helper()
	serverSide, peerSide := net.Pipe()
	t.Cleanup(func() {
		serverSide.Close()
		peerSide.Close()
	})

	conn := New("irc.example.org", 6667, false, nil)
	conn.conn = serverSide
	conn.connected = true
	go conn.pump()

	c := &Client{
		Conn:    conn,
		Session: NewSession(conn),
		Caps:    newCapabilities(),
		typing:  newTypingTracker(),
	}
	for _, name := range caps {
		c.Caps.Enabled.Set(irc.ICaseStr(name), struct{}{})
	}
	return c, peerSide
}

func readLine(t *testing.T, peer net.Conn) string {
	t.Helper()
	buf := make([]byte, 512)
	peer.SetReadDeadline(time.Now().Add(time.Second))
	n, err := peer.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(buf[:n])
}

func TestTypingNoopWithoutMessageTags(t *testing.T) {
	c, peer := testConnectedClient(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		peer.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		if _, err := peer.Read(buf); err == nil {
			t.Error("expected no TAGMSG to be sent without message-tags")
		}
	}()

	if err := c.Typing("#chan"); err != nil {
		t.Fatalf("Typing: %v", err)
	}
	<-done
}

func TestTypingSendsTagMsg(t *testing.T) {
	c, peer := testConnectedClient(t, "message-tags")

	if err := c.Typing("#chan"); err != nil {
		t.Fatalf("Typing: %v", err)
	}
	line := readLine(t, peer)
	if want := "+typing=active"; !strings.Contains(line, want) || !strings.Contains(line, "TAGMSG") {
		t.Errorf("Typing line = %q, want it to contain %q and TAGMSG", line, want)
	}
}

func TestTypingDebouncesRepeatedActive(t *testing.T) {
	c, peer := testConnectedClient(t, "message-tags")

	if err := c.Typing("#chan"); err != nil {
		t.Fatalf("Typing #1: %v", err)
	}
	readLine(t, peer)

	if err := c.Typing("#chan"); err != nil {
		t.Fatalf("Typing #2: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		peer.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		if _, err := peer.Read(buf); err == nil {
			t.Error("expected the second rapid Typing call to be debounced")
		}
	}()
	<-done
}

func TestTypingStopSuppressesRepeatedDone(t *testing.T) {
	c, peer := testConnectedClient(t, "message-tags")

	if err := c.TypingStop("#chan"); err != nil {
		t.Fatalf("TypingStop #1: %v", err)
	}
	line := readLine(t, peer)
	if !strings.Contains(line, "+typing=done") {
		t.Errorf("TypingStop line = %q, want +typing=done", line)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		peer.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		if _, err := peer.Read(buf); err == nil {
			t.Error("expected a second TypingStop to be suppressed")
		}
	}()
	<-done
}
