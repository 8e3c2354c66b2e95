package server

import (
	"fmt"
	"strings"
)

// ModeClasses groups a mode character set into the four ISUPPORT CHANMODES
// arity classes: A (list-type, always takes a parameter), B (always takes
// a parameter), C (parameter only on addition), D (never takes a
// parameter). Adapted from irc2.ircd.utils.parse_mode/chanmodes/usermodes.
type ModeClasses struct {
	A, B, C, D string
}

// ChanModeClasses is this server's CHANMODES: A="be" B="o" C="flj" D="istmn".
var ChanModeClasses = ModeClasses{A: "be", B: "o", C: "flj", D: "istmn"}

// UserModeClasses is this server's user mode set: D="iw" only.
var UserModeClasses = ModeClasses{D: "iw"}

// ModeChange is one +/-<char>[ <param>] edit parsed from a MODE command.
type ModeChange struct {
	Add   bool
	Char  byte
	Param string
}

// ParseModeString parses a MODE command's flags+params arguments against
// classes, returning the ordered list of edits. Adapted from
// irc2.ircd.utils.parse_mode, generalized from a 2-tuple return to a
// (changes, error) pair.
func ParseModeString(args []string, classes ModeClasses) ([]ModeChange, error) {
	if len(args) == 0 {
		return nil, nil
	}
	flags := args[0]
	params := append([]string{}, args[1:]...)

	var changes []ModeChange
	adding := true
	for i := 0; i < len(flags); i++ {
		c := flags[i]
		switch c {
		case '+':
			adding = true
		case '-':
			adding = false
		default:
			switch {
			case strings.IndexByte(classes.A, c) >= 0 || strings.IndexByte(classes.B, c) >= 0:
				if len(params) == 0 {
					return changes, fmt.Errorf("not enough arguments to %s mode %c", modeVerb(adding), c)
				}
				changes = append(changes, ModeChange{Add: adding, Char: c, Param: params[0]})
				params = params[1:]
			case strings.IndexByte(classes.C, c) >= 0:
				if adding {
					if len(params) == 0 {
						return changes, fmt.Errorf("not enough arguments to add mode %c", c)
					}
					changes = append(changes, ModeChange{Add: true, Char: c, Param: params[0]})
					params = params[1:]
				} else {
					changes = append(changes, ModeChange{Add: false, Char: c})
				}
			case strings.IndexByte(classes.D, c) >= 0:
				changes = append(changes, ModeChange{Add: adding, Char: c})
			default:
				return changes, fmt.Errorf("%c is unknown mode", c)
			}
		}
	}
	return changes, nil
}

func modeVerb(add bool) string {
	if add {
		return "add"
	}
	return "remove"
}
