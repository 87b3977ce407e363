package query

import (
	"fmt"
	"strings"
	"unicode"
)

type Kind string

const (
	KindConstruct Kind = "construct"
	KindSelect    Kind = "select"
)

var forbiddenKeywords = map[string]struct{}{
	"INSERT": {}, "DELETE": {}, "LOAD": {}, "CLEAR": {}, "DROP": {},
	"CREATE": {}, "COPY": {}, "MOVE": {}, "ADD": {},
}

var readKeywords = map[string]Kind{
	"CONSTRUCT": KindConstruct,
	"DESCRIBE":  KindConstruct,
	"SELECT":    KindSelect,
	"ASK":       KindSelect,
}

// Screen classifies a query by its first keyword after the prologue. Update
// keywords yield ErrForbidden; anything else that is not a read form yields
// ErrUnsupported.
func Screen(q string) (Kind, string, error) {
	keyword := FirstKeyword(q)
	upper := strings.ToUpper(keyword)
	if _, bad := forbiddenKeywords[upper]; bad {
		return "", upper, fmt.Errorf("%w: %s", ErrForbidden, upper)
	}
	if kind, ok := readKeywords[upper]; ok {
		return kind, upper, nil
	}
	if keyword == "" {
		return "", "", fmt.Errorf("%w: empty query", ErrUnsupported)
	}
	return "", upper, fmt.Errorf("%w: %s", ErrUnsupported, upper)
}

// FirstKeyword returns the first word of q that is not part of the prologue:
// whitespace, # comments, and PREFIX or BASE declarations are skipped.
func FirstKeyword(q string) string {
	s := q
	for {
		s = skipSpaceAndComments(s)
		word := leadingWord(s)
		switch strings.ToUpper(word) {
		case "PREFIX":
			s = skipPastIRI(s[len(word):])
		case "BASE":
			s = skipPastIRI(s[len(word):])
		default:
			return word
		}
	}
}

func skipSpaceAndComments(s string) string {
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if !strings.HasPrefix(s, "#") {
			return s
		}
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			return ""
		}
	}
}

func leadingWord(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || r == '_')
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

// skipPastIRI drops everything up to and including the next <...> IRI. A
// declaration without one ends the prologue scan.
func skipPastIRI(s string) string {
	open := strings.IndexByte(s, '<')
	if open < 0 {
		return ""
	}
	closing := strings.IndexByte(s[open:], '>')
	if closing < 0 {
		return ""
	}
	return s[open+closing+1:]
}
