// Package irc implements the wire-level data model shared by the client
// and server cores: RFC 1459 case-mapped identifiers, the tagged Message
// ADT, pattern matching, and the line codec between them.
package irc

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseError reports a malformed inbound line.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return "irc: parse error: " + e.Reason + ": " + strconv.Quote(e.Line)
}

var errEmptyLine = errors.New("empty line")

// word splits s on the first space, like strings.Cut(s, " ") but tolerant
// of there being no space at all.
func word(s string) (head, rest string) {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func parseTags(s string) map[ICaseStr]Tag {
	tags := map[ICaseStr]Tag{}
	for _, item := range strings.Split(s, ";") {
		if item == "" {
			continue
		}
		if i := strings.IndexByte(item, '='); i >= 0 {
			tags[ICaseStr(item[:i])] = TextTag(unescapeTagValue(item[i+1:]))
		} else {
			tags[ICaseStr(item)] = FlagTag()
		}
	}
	return tags
}

func tagEscape(c byte) byte {
	switch c {
	case ':':
		return ';'
	case 's':
		return ' '
	case 'r':
		return '\r'
	case 'n':
		return '\n'
	default:
		return c
	}
}

func unescapeTagValue(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	escaping := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaping {
			sb.WriteByte(tagEscape(c))
			escaping = false
		} else if c == '\\' {
			escaping = true
		} else {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func escapeTagValue(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ';':
			sb.WriteString(`\:`)
		case ' ':
			sb.WriteString(`\s`)
		case '\r':
			sb.WriteString(`\r`)
		case '\n':
			sb.WriteString(`\n`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// Parse decodes one line (with or without a trailing "\r\n") into a
// Message. line is decoded as UTF-8; invalid UTF-8 or an empty line (after
// stripping the line ending) produce a ParseError.
func Parse(line []byte) (Message, error) {
	s := strings.TrimRight(string(line), "\r\n")
	if s == "" {
		return Message{}, &ParseError{Line: s, Reason: errEmptyLine.Error()}
	}
	if !utf8.ValidString(s) {
		return Message{}, &ParseError{Line: s, Reason: "invalid utf-8"}
	}

	var msg Message

	if s[0] == '@' {
		var tagStr string
		tagStr, s = word(s)
		msg.Tags = parseTags(tagStr[1:])
		if s == "" {
			return Message{}, &ParseError{Line: string(line), Reason: "tags with nothing after"}
		}
	}

	if s[0] == ':' {
		var prefixStr string
		prefixStr, s = word(s)
		p := ParsePrefix(prefixStr[1:])
		msg.Prefix = &p
		if s == "" {
			return Message{}, &ParseError{Line: string(line), Reason: "prefix with nothing after"}
		}
	}

	var verb string
	verb, s = word(s)
	if verb == "" {
		return Message{}, &ParseError{Line: string(line), Reason: "missing verb"}
	}
	v := ICaseStr(verb)
	msg.Verb = &v

	for s != "" {
		if s[0] == ':' {
			msg.Args = append(msg.Args, ICaseStr(s[1:]))
			break
		}
		if i := strings.Index(s, " :"); i >= 0 {
			for _, tok := range strings.Split(s[:i], " ") {
				if tok != "" {
					msg.Args = append(msg.Args, ICaseStr(tok))
				}
			}
			msg.Args = append(msg.Args, ICaseStr(s[i+2:]))
			break
		}
		var tok string
		tok, s = word(s)
		if tok != "" {
			msg.Args = append(msg.Args, ICaseStr(tok))
		}
	}

	return msg, nil
}

// Serialize renders m to wire form without a trailing line ending. Given
// args = [a1 ... an], it emits "a1 a2 ... an-1 :an" when n >= 2, else
// "a1", written as ":a1" when a1 is empty, contains a space or starts with
// ':'. Tags and prefix are emitted when present, even though
// client-originated outbound traffic normally carries neither (the server
// assigns the prefix).
func Serialize(m Message) string {
	var sb strings.Builder

	if len(m.Tags) > 0 {
		sb.WriteByte('@')
		first := true
		for k, v := range m.Tags {
			if !first {
				sb.WriteByte(';')
			}
			first = false
			sb.WriteString(string(k))
			if !v.IsFlag {
				sb.WriteByte('=')
				sb.WriteString(escapeTagValue(v.Text))
			}
		}
		sb.WriteByte(' ')
	}

	if m.Prefix != nil {
		sb.WriteByte(':')
		sb.WriteString(m.Prefix.String())
		sb.WriteByte(' ')
	}

	if m.Verb != nil {
		sb.WriteString(string(*m.Verb))
	}

	if n := len(m.Args); n > 0 {
		for _, a := range m.Args[:n-1] {
			sb.WriteByte(' ')
			sb.WriteString(string(a))
		}
		last := m.Args[n-1]
		sb.WriteByte(' ')
		if n >= 2 || needsTrailingColon(string(last)) {
			sb.WriteByte(':')
		}
		sb.WriteString(string(last))
	}

	return sb.String()
}

func needsTrailingColon(s string) bool {
	return s == "" || strings.ContainsRune(s, ' ') || strings.HasPrefix(s, ":")
}

// String renders m to wire form, terminated by "\n". Implementations
// sending to a real socket should use "\r\n" (see Line).
func String(m Message) string {
	return Serialize(m) + "\n"
}

// Line renders m terminated by "\r\n", the form servers should write.
func Line(m Message) string {
	return Serialize(m) + "\r\n"
}
