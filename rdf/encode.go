package rdf

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	knakk "github.com/knakk/rdf"
)

// Lexical forms the encoder writes without quotes must read back as the
// same datatype.
var bareLiteral = map[string]*regexp.Regexp{
	XSDInteger: regexp.MustCompile(`^[+-]?[0-9]+$`),
	XSDDecimal: regexp.MustCompile(`^[+-]?[0-9]+\.[0-9]+$`),
	XSDDouble:  regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?[eE][+-]?[0-9]+$`),
	XSDBoolean: regexp.MustCompile(`^(true|false)$`),
}

const xsdDateTime = XSDNamespace + "dateTime"

func encode(doc Document, format knakk.Format) (string, error) {
	triples := make([]knakk.Triple, 0, len(doc.Triples))
	for _, t := range doc.Triples {
		kt, err := toKnakk(t)
		if err != nil {
			return "", err
		}
		triples = append(triples, kt)
	}
	if format == knakk.Turtle && !turtleSafe(doc.Triples) {
		// N-Triples is a subset of Turtle and always escapes.
		format = knakk.NTriples
	}

	var b strings.Builder
	enc := knakk.NewTripleEncoder(&b, format)
	enc.GenerateNamespaces = false
	if format == knakk.Turtle {
		enc.Namespaces = turtleNamespaces(doc)
	}
	for _, t := range triples {
		if err := enc.Encode(t); err != nil {
			return "", fmt.Errorf("rdf: encode: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("rdf: encode: %w", err)
	}
	out := b.String()
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out, nil
}

func toKnakk(t Triple) (knakk.Triple, error) {
	s, err := toKnakkTerm(t.Subject)
	if err != nil {
		return knakk.Triple{}, err
	}
	p, err := toKnakkTerm(t.Predicate)
	if err != nil {
		return knakk.Triple{}, err
	}
	o, err := toKnakkTerm(t.Object)
	if err != nil {
		return knakk.Triple{}, err
	}
	subj, ok := s.(knakk.Subject)
	if !ok {
		return knakk.Triple{}, fmt.Errorf("rdf: %s cannot be a subject", t.Subject)
	}
	pred, ok := p.(knakk.Predicate)
	if !ok {
		return knakk.Triple{}, fmt.Errorf("rdf: %s cannot be a predicate", t.Predicate)
	}
	return knakk.Triple{Subj: subj, Pred: pred, Obj: o.(knakk.Object)}, nil
}

func toKnakkTerm(t Term) (knakk.Term, error) {
	switch t.Kind {
	case KindIRI:
		iri, err := knakk.NewIRI(t.Value)
		if err != nil {
			return nil, fmt.Errorf("rdf: iri %q: %w", t.Value, err)
		}
		return iri, nil
	case KindBlank:
		b, err := knakk.NewBlank(t.Value)
		if err != nil {
			return nil, fmt.Errorf("rdf: blank node: %w", err)
		}
		return b, nil
	case KindLiteral:
		if t.Lang != "" {
			return langLiteral(t.Value, t.Lang)
		}
		dt := t.Datatype
		if dt == "" {
			dt = XSDString
		}
		iri, err := knakk.NewIRI(dt)
		if err != nil {
			return nil, fmt.Errorf("rdf: datatype %q: %w", dt, err)
		}
		return knakk.NewTypedLiteral(t.Value, iri), nil
	default:
		return nil, fmt.Errorf("rdf: empty term")
	}
}

// langLiteral builds a language tagged literal. The constructor only takes
// tags with a single subtag, so longer tags such as zh-hant-tw go through
// the N-Triples decoder, which accepts them.
func langLiteral(value, lang string) (knakk.Term, error) {
	if l, err := knakk.NewLangLiteral(value, lang); err == nil {
		return l, nil
	}
	line := fmt.Sprintf("<urn:x:s> <urn:x:p> \"%s\"@%s .\n", escapeString(value), lang)
	dec := knakk.NewTripleDecoder(strings.NewReader(line), knakk.NTriples)
	ts, err := dec.DecodeAll()
	if err != nil {
		drain(dec, len(line))
	}
	if err != nil || len(ts) != 1 {
		return nil, fmt.Errorf("rdf: language tag %q: %v", lang, err)
	}
	return ts[0].Obj, nil
}

// turtleSafe reports whether the Turtle encoder can write every literal so
// that it reads back unchanged. The encoder writes numerics and booleans
// bare and some typed values without escaping.
func turtleSafe(triples []Triple) bool {
	for _, t := range triples {
		o := t.Object
		if !o.IsLiteral() || o.Lang != "" {
			continue
		}
		if re, ok := bareLiteral[o.Datatype]; ok && !re.MatchString(o.Value) {
			return false
		}
		if o.Datatype == xsdDateTime && needsEscape(o.Value) {
			return false
		}
	}
	return true
}

// turtleNamespaces maps the namespaces of the document context to their
// prefixes, leaving out any namespace the encoder would compact into an
// invalid prefixed name.
func turtleNamespaces(doc Document) map[string]string {
	names := make([]string, 0, len(doc.Context))
	for name := range doc.Context {
		names = append(names, name)
	}
	sort.Strings(names)
	out := map[string]string{}
	for _, name := range names {
		uri := doc.Context[name]
		if uri == "" {
			continue
		}
		if _, taken := out[uri]; !taken {
			out[uri] = name
		}
	}

	unsafe := map[string]struct{}{}
	check := func(iri string) (string, bool) {
		ns, local := splitIRI(iri)
		if _, ok := out[ns]; !ok {
			return "", false
		}
		if !validLocalName(local) {
			unsafe[ns] = struct{}{}
		}
		return ns, true
	}
	for _, t := range doc.Triples {
		for _, term := range []Term{t.Subject, t.Predicate, t.Object} {
			switch {
			case term.IsIRI():
				check(term.Value)
			case term.IsLiteral() && term.Lang == "" && term.Datatype != "":
				if _, builtin := bareLiteral[term.Datatype]; builtin {
					continue
				}
				// typed values under a prefixed datatype are written unescaped
				if ns, ok := check(term.Datatype); ok && needsEscape(term.Value) {
					unsafe[ns] = struct{}{}
				}
			}
		}
	}
	for ns := range unsafe {
		delete(out, ns)
	}
	return out
}

func splitIRI(value string) (string, string) {
	iri, err := knakk.NewIRI(value)
	if err != nil {
		return "", ""
	}
	return iri.Split()
}

func needsEscape(s string) bool {
	return strings.ContainsAny(s, "\"\\\n\r")
}
