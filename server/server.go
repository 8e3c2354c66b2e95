package server

import (
	"bufio"
	"context"
	"log"
	"net"

	"golang.org/x/time/rate"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// Server is an IRCd: an accept loop plus the shared client/channel tables
// every connection's command dispatch reads and writes. Adapted from
// irc2.ircd.ircd's asyncio.start_server plus the shared
// clients/channels module-level singletons, made into fields of one
// aggregate instead of package globals.
type Server struct {
	config   Config
	clients  *ClientManager
	channels *ChannelSet
	log      *log.Logger

	listener net.Listener
}

// New returns a Server for the given config. Call Serve to accept
// connections.
func New(cfg Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		config:   cfg,
		clients:  newClientManager(),
		channels: newChannelSet(),
		log:      logger,
	}
}

// Serve listens on s.config.Addr and accepts connections until ctx is
// cancelled or the listener errors.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.Printf("listening on %s", s.config.Addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	c := newClient(conn)
	c.limiter = rate.NewLimiter(s.floodLimit(), s.config.CommandsPerInterval)
	s.clients.Add(c)

	defer func() {
		s.clients.Remove(c)
		conn.Close()
	}()

	go s.welcomeWhenRegistered(ctx, c)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		msg, err := irc.Parse(line)
		if err != nil {
			s.log.Printf("bad line from %s: %v", c.peerHost, err)
			conn.Write([]byte("This is not a whatever you're trying to do server\r\n"))
			return
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		s.handle(ctx, c, msg)
	}

	s.handleQuit(c, irc.NewMessage("QUIT", "Connection closed"))
}

// floodLimit converts the configured commands-per-interval budget into a
// steady-state rate.Limit (events/sec); a zero interval means unlimited.
func (s *Server) floodLimit() rate.Limit {
	if s.config.IntervalSeconds <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(s.config.CommandsPerInterval) / float64(s.config.IntervalSeconds))
}

func (s *Server) welcomeWhenRegistered(ctx context.Context, c *Client) {
	if err := c.awaitRegistration(ctx); err != nil {
		return
	}
	c.mu.Lock()
	c.registered = true
	c.mu.Unlock()

	nick := c.Nick()
	c.Send(irc.NewMessage(irc.RplWelcome, nick, "Welcome to IRC"))
	c.Send(irc.NewMessage(irc.RplYourhost, nick, "Your host is "+s.config.Name+", running ircsuite/ircd"))
	c.Send(irc.NewMessage(irc.RplISupport, nick, "CHANTYPES="+s.config.ChanTypes, "are supported by this server"))
	c.Send(irc.NewMessage(irc.RplMotdstart, nick, "- "+s.config.Name+" Message of the day -"))
	c.Send(irc.NewMessage(irc.RplMotd, nick, "- "+s.config.MOTD))
	c.Send(irc.NewMessage(irc.RplEndofmotd, nick, "End of MOTD command"))
}
