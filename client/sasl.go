package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"

	"git.sr.ht/~ircsuite/ircsuite/irc"
)

// SASLClient performs one SASL mechanism's challenge/response exchange.
// Adapted from senpai's irc/session.go SASLClient.
type SASLClient interface {
	// Mechanism returns the SASL mechanism name sent in AUTHENTICATE.
	Mechanism() string
	// Respond computes this round's response to challenge, the
	// AUTHENTICATE argument as received (not base64-decoded; "+" becomes
	// ""). The response is sent as-is, so it must already be
	// base64-encoded.
	Respond(challenge string) (response string, err error)
}

// SASLPlain implements the PLAIN mechanism.
type SASLPlain struct {
	Username string
	Password string
}

func (a *SASLPlain) Mechanism() string { return "PLAIN" }

func (a *SASLPlain) Respond(challenge string) (string, error) {
	user := []byte(a.Username)
	pass := []byte(a.Password)
	payload := bytes.Join([][]byte{user, user, pass}, []byte{0})
	return base64.StdEncoding.EncodeToString(payload), nil
}

// ErrSASLFailed is returned when the server rejects authentication with
// 904 ERR_SASLFAIL or 902 ERR_NICKLOCKED.
var ErrSASLFailed = errors.New("client: SASL authentication failed")

// authenticate runs one SASL mechanism's AUTHENTICATE exchange to
// completion: AUTHENTICATE <mech>, then AUTHENTICATE "+",
// respond, repeat until 903 (success) or 904/902 (failure).
func authenticate(ctx context.Context, conn *Conn, auth SASLClient) error {
	if err := conn.Send(irc.NewMessage("AUTHENTICATE", auth.Mechanism())); err != nil {
		return err
	}

	for {
		msg, err := conn.Match(ctx,
			irc.ArgsPattern("AUTHENTICATE"),
			irc.VerbPattern(irc.RplSaslsuccess),
			irc.VerbPattern(irc.ErrSaslfail),
			irc.VerbPattern(irc.ErrNicklocked),
		)
		if err != nil {
			return err
		}

		if msg.Verb != nil {
			switch string(*msg.Verb) {
			case irc.RplSaslsuccess:
				return nil
			case irc.ErrSaslfail, irc.ErrNicklocked:
				return ErrSASLFailed
			}
		}

		challenge := msg.Arg(0)
		if challenge == "+" {
			challenge = ""
		}
		resp, err := auth.Respond(challenge)
		if err != nil {
			conn.Send(irc.NewMessage("AUTHENTICATE", "*"))
			return err
		}
		if err := conn.Send(irc.NewMessage("AUTHENTICATE", resp)); err != nil {
			return err
		}
	}
}
