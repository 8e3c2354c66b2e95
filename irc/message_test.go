package irc

import "testing"

func TestMessageMatchesVerbOnly(t *testing.T) {
	pattern := VerbPattern("PRIVMSG")
	msg := NewMessage("PRIVMSG", "#chan", "hi")
	if !pattern.Matches(msg) {
		t.Error("VerbPattern(PRIVMSG) should match a PRIVMSG message")
	}
	if pattern.Matches(NewMessage("NOTICE", "#chan", "hi")) {
		t.Error("VerbPattern(PRIVMSG) should not match a NOTICE message")
	}
}

func TestMessageMatchesArgsPrefix(t *testing.T) {
	pattern := ArgsPattern("CAP", "*", "ACK")
	if !pattern.Matches(NewMessage("CAP", "*", "ACK", "sasl")) {
		t.Error("expected pattern to match message with extra trailing arg")
	}
	if pattern.Matches(NewMessage("CAP", "*", "NAK", "sasl")) {
		t.Error("expected pattern not to match a different second arg")
	}
	if pattern.Matches(NewMessage("CAP", "*")) {
		t.Error("expected pattern not to match a message with fewer args than the pattern")
	}
}

func TestMessageMatchesNilVerbAnything(t *testing.T) {
	pattern := Message{}
	if !pattern.Matches(NewMessage("ANYTHING", "x")) {
		t.Error("a zero-value pattern should match any message")
	}
}

func TestMessageMatchesTags(t *testing.T) {
	pattern := Message{Tags: map[ICaseStr]Tag{"batch": TextTag("123")}}
	match := NewMessage("PRIVMSG", "#chan", "hi").WithTag("batch", TextTag("123")).WithTag("time", TextTag("now"))
	if !pattern.Matches(match) {
		t.Error("expected tag subset match to succeed")
	}
	noMatch := NewMessage("PRIVMSG", "#chan", "hi").WithTag("batch", TextTag("456"))
	if pattern.Matches(noMatch) {
		t.Error("expected tag value mismatch to fail the match")
	}
	missing := NewMessage("PRIVMSG", "#chan", "hi")
	if pattern.Matches(missing) {
		t.Error("expected missing tag to fail the match")
	}
}

func TestMessageMatchesPrefix(t *testing.T) {
	p := ParsePrefix("alice!a@example.com")
	pattern := Message{Prefix: &p}
	msg := NewMessage("PRIVMSG", "#chan", "hi")
	msg.Prefix = &p
	if !pattern.Matches(msg) {
		t.Error("expected identical prefix to match")
	}
	other := ParsePrefix("bob!b@example.com")
	msg.Prefix = &other
	if pattern.Matches(msg) {
		t.Error("expected different prefix to fail the match")
	}
}

func TestParsePrefix(t *testing.T) {
	p := ParsePrefix("nick!user@host")
	if !p.IsHostmask || p.Name.String() != "nick" || p.User.String() != "user" || p.Host.String() != "host" {
		t.Errorf("ParsePrefix(nick!user@host) = %+v", p)
	}

	server := ParsePrefix("irc.example.com")
	if server.IsHostmask || server.Name.String() != "irc.example.com" {
		t.Errorf("ParsePrefix(irc.example.com) = %+v", server)
	}
}
