package rdf

import (
	"errors"
	"fmt"
	"strings"

	knakk "github.com/knakk/rdf"
)

var ErrUnsupportedFormat = errors.New("rdf: unsupported format")

type Format string

const (
	FormatTurtle   Format = "turtle"
	FormatNTriples Format = "ntriples"
	FormatJSONLD   Format = "jsonld"
)

// ParseFormat accepts format names and the usual media types.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "turtle", "ttl", "text/turtle":
		return FormatTurtle, nil
	case "ntriples", "nt", "n-triples", "application/n-triples":
		return FormatNTriples, nil
	case "jsonld", "json-ld", "application/ld+json":
		return FormatJSONLD, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

func (f Format) MediaType() string {
	switch f {
	case FormatNTriples:
		return "application/n-triples"
	case FormatJSONLD:
		return "application/ld+json"
	default:
		return "text/turtle"
	}
}

func (f Format) Extension() string {
	switch f {
	case FormatNTriples:
		return "nt"
	case FormatJSONLD:
		return "jsonld"
	default:
		return "ttl"
	}
}

// Document is the persisted shape of a graph: the prefix context plus the
// triples in insertion order. Triples are a multiset; nothing here
// deduplicates them.
type Document struct {
	Context map[string]string `json:"context"`
	Triples []Triple          `json:"graph"`
}

func NewDocument() Document {
	return Document{Context: map[string]string{}, Triples: []Triple{}}
}

func (d Document) Len() int { return len(d.Triples) }

func (d Document) IsEmpty() bool { return len(d.Triples) == 0 }

func (d Document) Clone() Document {
	out := Document{
		Context: make(map[string]string, len(d.Context)),
		Triples: make([]Triple, len(d.Triples)),
	}
	for k, v := range d.Context {
		out.Context[k] = v
	}
	copy(out.Triples, d.Triples)
	return out
}

// BlankLabels returns every blank node label used by the document.
func (d Document) BlankLabels() map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range d.Triples {
		for _, term := range []Term{t.Subject, t.Object} {
			if term.IsBlank() {
				out[term.Value] = struct{}{}
			}
		}
	}
	return out
}

// Parse decodes text into a document. The context holds the prefixes the
// text declares.
func Parse(text string, format Format) (Document, error) {
	switch format {
	case FormatTurtle, "":
		return decode(text, knakk.Turtle)
	case FormatNTriples:
		return decode(text, knakk.NTriples)
	default:
		return Document{}, fmt.Errorf("%w: cannot parse %s", ErrUnsupportedFormat, format)
	}
}

func Serialize(doc Document, format Format) (string, error) {
	switch format {
	case FormatTurtle, "":
		return encode(doc, knakk.Turtle)
	case FormatNTriples:
		return encode(doc, knakk.NTriples)
	case FormatJSONLD:
		return writeJSONLD(doc)
	default:
		return "", fmt.Errorf("%w: cannot serialize %s", ErrUnsupportedFormat, format)
	}
}
