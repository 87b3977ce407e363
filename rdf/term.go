// Package rdf holds the triple model shared by the merge engine, the graph
// stores and the query gate. Turtle and N-Triples go through knakk/rdf;
// JSON-LD is written here.
package rdf

import (
	"fmt"
	"strings"
)

const (
	RDFNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	XSDNamespace = "http://www.w3.org/2001/XMLSchema#"

	RDFType    = RDFNamespace + "type"
	RDFFirst   = RDFNamespace + "first"
	RDFRest    = RDFNamespace + "rest"
	RDFNil     = RDFNamespace + "nil"
	RDFLangStr = RDFNamespace + "langString"

	XSDString  = XSDNamespace + "string"
	XSDBoolean = XSDNamespace + "boolean"
	XSDInteger = XSDNamespace + "integer"
	XSDDecimal = XSDNamespace + "decimal"
	XSDDouble  = XSDNamespace + "double"
)

type TermKind string

const (
	KindIRI     TermKind = "iri"
	KindBlank   TermKind = "bnode"
	KindLiteral TermKind = "literal"
)

// Term is an RDF node. Datatype and Lang are only meaningful for literals;
// a literal with neither is an xsd:string.
type Term struct {
	Kind     TermKind `json:"type"`
	Value    string   `json:"value"`
	Datatype string   `json:"datatype,omitempty"`
	Lang     string   `json:"lang,omitempty"`
}

func IRI(value string) Term {
	return Term{Kind: KindIRI, Value: value}
}

func Blank(label string) Term {
	return Term{Kind: KindBlank, Value: label}
}

func Literal(value string) Term {
	return Term{Kind: KindLiteral, Value: value}
}

func TypedLiteral(value, datatype string) Term {
	if datatype == XSDString {
		datatype = ""
	}
	return Term{Kind: KindLiteral, Value: value, Datatype: datatype}
}

func LangLiteral(value, lang string) Term {
	return Term{Kind: KindLiteral, Value: value, Lang: strings.ToLower(lang)}
}

func (t Term) IsZero() bool { return t.Kind == "" }

func (t Term) IsIRI() bool { return t.Kind == KindIRI }

func (t Term) IsBlank() bool { return t.Kind == KindBlank }

func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }

// String renders the term in N-Triples syntax.
func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + escapeIRI(t.Value) + ">"
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		s := `"` + escapeString(t.Value) + `"`
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" && t.Datatype != XSDString {
			return s + "^^<" + escapeIRI(t.Datatype) + ">"
		}
		return s
	default:
		return ""
	}
}

type Triple struct {
	Subject   Term `json:"s"`
	Predicate Term `json:"p"`
	Object    Term `json:"o"`
}

func (t Triple) String() string {
	return fmt.Sprintf("%s %s %s .", t.Subject, t.Predicate, t.Object)
}

func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func escapeIRI(s string) string {
	if !strings.ContainsAny(s, "<>\"{}|^`\\ ") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '<', '>', '"', '{', '}', '|', '^', '`', '\\', ' ':
			fmt.Fprintf(&b, `\u%04X`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
