// Package client implements the IRC client core: a framed connection, the
// pattern-match subscription dispatcher, IRCv3 capability negotiation,
// SASL PLAIN authentication, the built-in low-level handlers, and the
// register/join/say facade. Grounded on irc2's connection.py/client.py/
// ext.py/handler.py and senpai's irc/session.go and irc/channel.go.
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// ErrNotConnected is returned by Send/Match when called before Connect.
var ErrNotConnected = errors.New("client: not connected")

// Dialer abstracts the transport-establishing step so a Connection can be
// routed through a proxy (see WithProxy) without Conn itself knowing about
// proxy protocols.
type Dialer interface {
	Dial(network, addr string) (net.Conn, error)
}

// Conn is the client-side framed connection: a TCP (optionally TLS) stream
// to an IRC server, exposing line-at-a-time read access, the pattern-match
// primitive, and a synchronous, unratelimited Send.
//
// Connect is idempotent, Send writes one frame with no rate
// limiting (the facade applies that separately), and Match both returns the
// first line satisfying any of the given patterns *and* still routes every
// intermediate line through the Dispatcher, so subscribers never miss a
// line just because something else is waiting on Match.
type Conn struct {
	Host string
	Port int
	TLS  bool
	dial Dialer

	log *log.Logger

	conn      net.Conn
	connected bool

	Dispatcher *Dispatcher
}

type netDialer struct{}

func (netDialer) Dial(network, addr string) (net.Conn, error) {
	return net.Dial(network, addr)
}

// New returns a Conn for host:port, logging to logger (or a discarding
// logger if nil).
func New(host string, port int, useTLS bool, logger *log.Logger) *Conn {
	if logger == nil {
		logger = log.New(logDiscard{}, "", 0)
	}
	return &Conn{
		Host:       host,
		Port:       port,
		TLS:        useTLS,
		dial:       netDialer{},
		log:        logger,
		Dispatcher: NewDispatcher(),
	}
}

type logDiscard struct{}

func (logDiscard) Write(p []byte) (int, error) { return len(p), nil }

// WithDialer overrides how the underlying TCP connection is established,
// used by WithProxy to route through a SOCKS/HTTP proxy.
func (c *Conn) WithDialer(d Dialer) *Conn {
	c.dial = d
	return c
}

// Connect idempotently establishes the framed stream and starts the pump
// goroutine that reads lines and drives the Dispatcher. On success,
// Connected() becomes true.
func (c *Conn) Connect(ctx context.Context) error {
	if c.connected {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	conn, err := c.dial.Dial("tcp", addr)
	if err != nil {
		return err
	}

	if c.TLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: c.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return err
		}
		conn = tlsConn
	}

	c.conn = conn
	c.connected = true

	go c.pump()

	return nil
}

// Connected reports whether a connection has been established.
func (c *Conn) Connected() bool {
	return c.connected
}

// pump is the connection's single logical task: it reads one
// line at a time and feeds it to the Dispatcher, which runs subscribers
// and wakes Match waiters strictly in that order before the next line is
// read.
func (c *Conn) pump() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		msg, err := irc.Parse(line)
		if err != nil {
			c.log.Printf("parse error: %v", err)
			continue
		}
		c.log.Printf("recv: %s", irc.Serialize(msg))
		c.Dispatcher.dispatch(msg)
	}
	c.Dispatcher.closeAll(ErrConnectionLost)
}

// ErrConnectionLost is delivered to pending Match waiters when the read
// loop ends (EOF or a read error). Capability futures are not resolved on
// connection loss: a pending Capabilities.Req returns only on ACK, NAK or
// when its ctx is done.
var ErrConnectionLost = errors.New("client: connection lost")

// Send writes one frame synchronously. No rate limiting is applied here;
// callers that want the client's outbound pacing go through the facade.
func (c *Conn) Send(m irc.Message) error {
	if !c.connected {
		return ErrNotConnected
	}
	c.log.Printf("send: %s", irc.Serialize(m))
	_, err := fmt.Fprint(c.conn, irc.Line(m))
	return err
}

// Match reads and dispatches lines until one matches any of the given
// patterns, then returns it. Every intermediate line is still delivered to
// the Dispatcher's regular subscribers.
func (c *Conn) Match(ctx context.Context, patterns ...irc.Message) (irc.Message, error) {
	return c.Dispatcher.Match(ctx, patterns...)
}

// Shutdown signals EOF on the read half and closes the write half,
// unblocking the pump and any pending Match waiters with ErrConnectionLost.
func (c *Conn) Shutdown() error {
	if !c.connected {
		return nil
	}
	c.connected = false
	return c.conn.Close()
}
