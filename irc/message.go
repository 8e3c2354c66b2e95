package irc

import "strings"

// Tag is the value of an IRCv3 message tag: either the boolean-true
// sentinel for a bare "key" with no "=value", or a text value.
type Tag struct {
	IsFlag bool
	Text   string
}

// FlagTag is the tag value of a bare key, e.g. the "key2" in
// "@key1=value1;key2;key3=value3".
func FlagTag() Tag { return Tag{IsFlag: true} }

// TextTag wraps a tag's text value.
func TextTag(s string) Tag { return Tag{Text: s} }

// Equal reports whether two tag values are the same for matching purposes.
func (t Tag) Equal(other Tag) bool {
	if t.IsFlag || other.IsFlag {
		return t.IsFlag == other.IsFlag
	}
	return t.Text == other.Text
}

func (t Tag) String() string {
	if t.IsFlag {
		return "true"
	}
	return t.Text
}

// Prefix is the source of a message: either an opaque server name, or a
// fully parsed nick!user@host hostmask.
type Prefix struct {
	Name ICaseStr // server name, or nick when User/Host are set

	IsHostmask bool
	User       ICaseStr
	Host       ICaseStr
}

// ParsePrefix parses a prefix's content (without the leading ':'). It
// becomes a hostmask only if it contains both '!' and '@', split once each
// from left to right, per spec.
func ParsePrefix(s string) Prefix {
	bang := strings.IndexByte(s, '!')
	at := strings.IndexByte(s, '@')
	if bang < 0 || at < 0 || at < bang {
		return Prefix{Name: ICaseStr(s)}
	}
	nick := s[:bang]
	user := s[bang+1 : at]
	host := s[at+1:]
	return Prefix{
		Name:       ICaseStr(nick),
		IsHostmask: true,
		User:       ICaseStr(user),
		Host:       ICaseStr(host),
	}
}

// String renders the prefix back to wire form (without the leading ':').
func (p Prefix) String() string {
	if !p.IsHostmask {
		return string(p.Name)
	}
	return string(p.Name) + "!" + string(p.User) + "@" + string(p.Host)
}

// Equal reports whether two prefixes refer to the same source under case
// folding.
func (p Prefix) Equal(other Prefix) bool {
	if p.IsHostmask != other.IsHostmask {
		return false
	}
	if !p.Name.Equal(other.Name) {
		return false
	}
	if !p.IsHostmask {
		return true
	}
	return p.User.Equal(other.User) && p.Host.Equal(other.Host)
}

// Message is the tagged ADT shared by the codec, the pattern-match
// dispatcher, and both the client and server cores. Any field may be left
// at its zero value when Message is used as a pattern (see Matches).
type Message struct {
	Tags   map[ICaseStr]Tag
	Prefix *Prefix
	Verb   *ICaseStr
	Args   []ICaseStr
}

// NewMessage builds a concrete outbound message from a verb and arguments.
func NewMessage(verb string, args ...string) Message {
	v := ICaseStr(verb)
	m := Message{Verb: &v}
	if len(args) > 0 {
		m.Args = make([]ICaseStr, len(args))
		for i, a := range args {
			m.Args[i] = ICaseStr(a)
		}
	}
	return m
}

// WithTag returns a copy of m with tag key set to value.
func (m Message) WithTag(key string, value Tag) Message {
	tags := make(map[ICaseStr]Tag, len(m.Tags)+1)
	for k, v := range m.Tags {
		tags[k] = v
	}
	tags[ICaseStr(key)] = value
	m.Tags = tags
	return m
}

// Arg returns the i'th argument, or "" if there aren't that many.
func (m Message) Arg(i int) string {
	if i < 0 || i >= len(m.Args) {
		return ""
	}
	return string(m.Args[i])
}

// matchTag reports whether a pattern tag value matches a concrete one. The
// spec's scalar match rule treats a pattern field as "matches anything"
// only via its absence from the map (checked by the caller); once present,
// tag equality is exact.
func matchTag(pattern, test Tag) bool {
	return pattern.Equal(test)
}

// matchICase reports whether a pattern identifier matches a tested one. A
// nil pattern matches anything.
func matchICase(pattern *ICaseStr, test *ICaseStr) bool {
	if pattern == nil {
		return true
	}
	if test == nil {
		return false
	}
	return pattern.Equal(*test)
}

// Matches reports whether the receiver, used as a pattern, matches the
// concrete message other:
//
//   - every tag in the pattern must exist in other with an equal value;
//   - len(pattern.Args) <= len(other.Args), and each pattern arg must equal
//     the corresponding other arg at the same index;
//   - the pattern's prefix and verb must match other's, where a nil pattern
//     field matches anything.
func (m Message) Matches(other Message) bool {
	for k, v := range m.Tags {
		ov, ok := other.Tags[k]
		if !ok {
			return false
		}
		if !matchTag(v, ov) {
			return false
		}
	}

	if len(m.Args) > len(other.Args) {
		return false
	}
	for i, a := range m.Args {
		if !a.Equal(other.Args[i]) {
			return false
		}
	}

	if m.Prefix != nil {
		if other.Prefix == nil || !m.Prefix.Equal(*other.Prefix) {
			return false
		}
	}

	return matchICase(m.Verb, other.Verb)
}

// VerbPattern returns a pattern message matching any message with the given
// verb, case-insensitively.
func VerbPattern(verb string) Message {
	v := ICaseStr(verb)
	return Message{Verb: &v}
}

// ArgsPattern returns a pattern message matching any message with the given
// verb whose leading arguments equal args, in order.
func ArgsPattern(verb string, args ...string) Message {
	m := VerbPattern(verb)
	m.Args = make([]ICaseStr, len(args))
	for i, a := range args {
		m.Args[i] = ICaseStr(a)
	}
	return m
}
