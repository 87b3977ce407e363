package rdf

import (
	"encoding/json"
	"testing"
)

func TestSerializeJSONLD(t *testing.T) {
	doc := Document{
		Context: map[string]string{"ex": "http://example.org/"},
		Triples: []Triple{
			{IRI("http://example.org/s"), IRI(RDFType), IRI("http://example.org/T")},
			{IRI("http://example.org/s"), IRI("http://example.org/p"), LangLiteral("v", "en")},
		},
	}
	out, err := Serialize(doc, FormatJSONLD)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	var decoded struct {
		Context map[string]string `json:"@context"`
		Graph   []map[string]any  `json:"@graph"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Context["ex"] != "http://example.org/" || len(decoded.Graph) != 1 {
		t.Fatalf("unexpected json-ld: %s", out)
	}
	if decoded.Graph[0]["@id"] != "http://example.org/s" {
		t.Fatalf("unexpected node id: %v", decoded.Graph[0]["@id"])
	}
}

func TestDocumentJSONShape(t *testing.T) {
	doc := Document{
		Context: map[string]string{"ex": "http://example.org/"},
		Triples: []Triple{{IRI("http://example.org/s"), IRI("http://example.org/p"), Literal("o")}},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"context":{"ex":"http://example.org/"},"graph":[{"s":{"type":"iri","value":"http://example.org/s"},"p":{"type":"iri","value":"http://example.org/p"},"o":{"type":"literal","value":"o"}}]}`
	if string(raw) != want {
		t.Fatalf("unexpected document json:\n%s", raw)
	}
}
