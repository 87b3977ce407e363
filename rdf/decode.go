package rdf

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	knakk "github.com/knakk/rdf"

	"github.com/PipeOpsHQ/segb/prefix"
)

// ParseError reports where a document stopped being valid Turtle. Line and
// Col are zero when the decoder could not place the failure.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return "rdf: turtle: " + e.Msg
	}
	return fmt.Sprintf("rdf: turtle line %d col %d: %s", e.Line, e.Col, e.Msg)
}

var (
	positionPattern = regexp.MustCompile(`^(\d+):(\d+):?\s*(.*)$`)
	// labels the decoder hands out to [] and () nodes
	anonLabel = regexp.MustCompile(`^b[0-9]+$`)
)

// blankTag marks explicit blank labels when a document also uses labels of
// the form the decoder generates for anonymous nodes.
const blankTag = "u"

func decode(text string, format knakk.Format) (Document, error) {
	src, labels := text, &blankLabels{}
	if format == knakk.Turtle {
		src, labels = prepareTurtle(text)
	}
	dec := knakk.NewTripleDecoder(strings.NewReader(src), format)
	doc := NewDocument()
	for {
		kt, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			drain(dec, len(src))
			return Document{}, toParseError(err)
		}
		doc.Triples = append(doc.Triples, Triple{
			Subject:   fromKnakk(kt.Subj, labels),
			Predicate: fromKnakk(kt.Pred, labels),
			Object:    fromKnakk(kt.Obj, labels),
		})
	}
	if format == knakk.Turtle {
		for name, uri := range prefix.Resolve(src) {
			doc.Context[name] = uri
		}
	}
	return doc, nil
}

// drain reads the decoder to the end of its input so that its lexer
// goroutine, blocked on an unbuffered channel, can exit.
func drain(dec knakk.TripleDecoder, budget int) {
	defer func() { _ = recover() }()
	for i := 0; i <= budget+16; i++ {
		if _, err := dec.Decode(); err == io.EOF {
			return
		}
	}
}

func toParseError(err error) *ParseError {
	msg := err.Error()
	m := positionPattern.FindStringSubmatch(msg)
	if m == nil {
		return &ParseError{Msg: msg}
	}
	line, _ := strconv.Atoi(m[1])
	col, _ := strconv.Atoi(m[2])
	if line == 0 {
		// end of input carries no position
		return &ParseError{Msg: m[3]}
	}
	return &ParseError{Line: line, Col: col + 1, Msg: m[3]}
}

func fromKnakk(t knakk.Term, labels *blankLabels) Term {
	switch v := t.(type) {
	case knakk.IRI:
		return IRI(v.String())
	case knakk.Blank:
		return Blank(labels.resolve(v.String()))
	case knakk.Literal:
		if v.Lang() != "" {
			return LangLiteral(v.String(), v.Lang())
		}
		return TypedLiteral(v.String(), v.DataType.String())
	default:
		return Term{}
	}
}

type blankLabels struct {
	tagged   bool
	explicit map[string]struct{}
	anon     map[string]string
	taken    map[string]struct{}
}

func (l *blankLabels) resolve(id string) string {
	if !l.tagged {
		return id
	}
	if strings.HasPrefix(id, blankTag) {
		return id[len(blankTag):]
	}
	if got, ok := l.anon[id]; ok {
		return got
	}
	candidate := id
	for n := 1; l.used(candidate); n++ {
		candidate = id + "_" + strconv.Itoa(n)
	}
	l.anon[id] = candidate
	l.taken[candidate] = struct{}{}
	return candidate
}

func (l *blankLabels) used(label string) bool {
	_, a := l.explicit[label]
	_, b := l.taken[label]
	return a || b
}

// prepareTurtle resolves relative IRI references against the active base,
// since the decoder only concatenates them, and tags explicit blank labels
// when they could collide with generated ones.
func prepareTurtle(text string) (string, *blankLabels) {
	out, explicit := scanTurtle(text, false)
	for label := range explicit {
		if anonLabel.MatchString(label) {
			out, _ = scanTurtle(text, true)
			return out, &blankLabels{
				tagged:   true,
				explicit: explicit,
				anon:     map[string]string{},
				taken:    map[string]struct{}{},
			}
		}
	}
	return out, &blankLabels{}
}

func scanTurtle(text string, tag bool) (string, map[string]struct{}) {
	src := []rune(text)
	labels := map[string]struct{}{}
	var b strings.Builder
	b.Grow(len(text))
	var base *url.URL
	afterBase := false
	for i := 0; i < len(src); {
		r := src[i]
		switch {
		case r == '<':
			j := i + 1
			for j < len(src) && src[j] != '>' && src[j] != '\n' {
				j++
			}
			if j == len(src) || src[j] != '>' {
				b.WriteString(string(src[i:j]))
				i = j
				continue
			}
			ref := string(src[i+1 : j])
			resolved := resolveRef(base, ref)
			if afterBase {
				if u, err := url.Parse(resolved); err == nil && u.IsAbs() {
					base = u
				}
				afterBase = false
			}
			b.WriteString("<" + resolved + ">")
			i = j + 1
		case r == '"' || r == '\'':
			j := skipQuoted(src, i)
			b.WriteString(string(src[i:j]))
			afterBase = false
			i = j
		case r == '#':
			j := i
			for j < len(src) && src[j] != '\n' {
				j++
			}
			b.WriteString(string(src[i:j]))
			i = j
		case r == '\\':
			j := min(i+2, len(src))
			b.WriteString(string(src[i:j]))
			i = j
		case r == '_' && i+1 < len(src) && src[i+1] == ':' && labelBoundary(src, i):
			j := i + 2
			for j < len(src) && (isLabelChar(src[j]) || src[j] == '.' && j+1 < len(src) && isLabelChar(src[j+1])) {
				j++
			}
			label := string(src[i+2 : j])
			if label != "" {
				labels[label] = struct{}{}
				if tag {
					label = blankTag + label
				}
			}
			b.WriteString("_:" + label)
			afterBase = false
			i = j
		case r == '@' || unicode.IsLetter(r):
			j := i + 1
			for j < len(src) && isLabelChar(src[j]) {
				j++
			}
			word := string(src[i:j])
			afterBase = labelBoundary(src, i) &&
				(strings.EqualFold(word, "@base") || strings.EqualFold(word, "base"))
			b.WriteString(word)
			i = j
		default:
			if !unicode.IsSpace(r) {
				afterBase = false
			}
			b.WriteRune(r)
			i++
		}
	}
	return b.String(), labels
}

func resolveRef(base *url.URL, ref string) string {
	if strings.ContainsRune(ref, '\\') {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.IsAbs() {
		if hasDotSegments(u.Path) {
			return u.ResolveReference(u).String()
		}
		return ref
	}
	if base == nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func hasDotSegments(p string) bool {
	return strings.Contains(p, "/./") || strings.Contains(p, "/../") ||
		strings.HasSuffix(p, "/.") || strings.HasSuffix(p, "/..")
}

func skipQuoted(src []rune, i int) int {
	q := src[i]
	if i+2 < len(src) && src[i+1] == q && src[i+2] == q {
		for j := i + 3; j < len(src); j++ {
			if src[j] == '\\' {
				j++
				continue
			}
			if j+2 < len(src) && src[j] == q && src[j+1] == q && src[j+2] == q {
				j += 3
				for j < len(src) && src[j] == q {
					j++
				}
				return j
			}
		}
		return len(src)
	}
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			return j + 1
		case '\n':
			return j
		}
	}
	return len(src)
}

func labelBoundary(src []rune, i int) bool {
	if i == 0 {
		return true
	}
	prev := src[i-1]
	return !isLabelChar(prev) && prev != ':' && prev != '\\' && prev != '%'
}

func isLabelChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == 0xB7
}
