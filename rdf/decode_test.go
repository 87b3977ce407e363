package rdf

import (
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseTurtle_PrefixesAndPredicateLists(t *testing.T) {
	doc, err := Parse(`
		@prefix ex: <http://example.org/> .
		PREFIX foaf: <http://xmlns.com/foaf/0.1/>
		# a comment
		ex:alice a foaf:Person ;
			foaf:name "Alice"@EN , "Alicia" ;
			foaf:age 42 ;
			ex:score 1.5e3 ;
			ex:ratio -0.25 ;
			ex:active true .
	`, FormatTurtle)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	alice := IRI("http://example.org/alice")
	want := []Triple{
		{alice, IRI(RDFType), IRI("http://xmlns.com/foaf/0.1/Person")},
		{alice, IRI("http://xmlns.com/foaf/0.1/name"), LangLiteral("Alice", "en")},
		{alice, IRI("http://xmlns.com/foaf/0.1/name"), Literal("Alicia")},
		{alice, IRI("http://xmlns.com/foaf/0.1/age"), TypedLiteral("42", XSDInteger)},
		{alice, IRI("http://example.org/score"), TypedLiteral("1.5e3", XSDDouble)},
		{alice, IRI("http://example.org/ratio"), TypedLiteral("-0.25", XSDDecimal)},
		{alice, IRI("http://example.org/active"), TypedLiteral("true", XSDBoolean)},
	}
	if diff := cmp.Diff(want, doc.Triples); diff != "" {
		t.Fatalf("triples mismatch (-want +got):\n%s", diff)
	}
	wantCtx := map[string]string{"ex": "http://example.org/", "foaf": "http://xmlns.com/foaf/0.1/"}
	if diff := cmp.Diff(wantCtx, doc.Context); diff != "" {
		t.Fatalf("context mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTurtle_BlankNodesAndCollections(t *testing.T) {
	doc, err := Parse(`
		@prefix ex: <http://example.org/> .
		ex:s ex:knows [ ex:name "Bob" ] ;
			ex:list ( ex:a ex:b ) ;
			ex:ref _:x .
		_:x ex:name "X" .
	`, FormatTurtle)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Len() != 9 {
		t.Fatalf("expected 9 triples, got %d: %v", doc.Len(), doc.Triples)
	}
	var ref, named Term
	for _, tr := range doc.Triples {
		if tr.Predicate.Value == "http://example.org/ref" {
			ref = tr.Object
		}
		if tr.Object == Literal("X") {
			named = tr.Subject
		}
	}
	if !ref.IsBlank() || ref != named {
		t.Fatalf("expected _:x to map to one blank node, got %v and %v", ref, named)
	}
}

func TestParseTurtle_StringsAndEscapes(t *testing.T) {
	doc, err := Parse(`@prefix ex: <http://example.org/> .
ex:s ex:p """multi
line "quoted" text""" ;
     ex:q 'single \'q\' é' ;
     ex:r "typed"^^<http://example.org/T> ;
     ex:t "dot-ended" .
ex:u ex:v ex:w.`, FormatTurtle)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := map[string]Term{}
	for _, tr := range doc.Triples {
		got[tr.Predicate.Value] = tr.Object
	}
	if v := got["http://example.org/p"].Value; v != "multi\nline \"quoted\" text" {
		t.Fatalf("unexpected long literal %q", v)
	}
	if v := got["http://example.org/q"].Value; v != "single 'q' é" {
		t.Fatalf("unexpected escaped literal %q", v)
	}
	if dt := got["http://example.org/r"].Datatype; dt != "http://example.org/T" {
		t.Fatalf("unexpected datatype %q", dt)
	}
	if o := got["http://example.org/v"]; o != IRI("http://example.org/w") {
		t.Fatalf("trailing dot should end the statement, got %v", o)
	}

	escaped, err := Parse("@prefix ex: <http://e/> .\nex:s ex:p ex:a\\. .", FormatTurtle)
	if err != nil {
		t.Fatalf("parse escaped trailing dot: %v", err)
	}
	if escaped.Len() != 1 || escaped.Triples[0].Object != IRI("http://e/a.") {
		t.Fatalf("escaped dot should stay in the local name, got %v", escaped.Triples)
	}
}

func TestParseTurtle_BaseResolution(t *testing.T) {
	doc, err := Parse(`@base <http://example.org/data/> .
<item1> <rel> <../other> .`, FormatTurtle)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := Triple{IRI("http://example.org/data/item1"), IRI("http://example.org/data/rel"), IRI("http://example.org/other")}
	if doc.Triples[0] != want {
		t.Fatalf("unexpected triple %v", doc.Triples[0])
	}
}

func TestParseTurtle_Errors(t *testing.T) {
	cases := map[string]string{
		"undeclared prefix": `ex:s ex:p ex:o .`,
		"missing dot":       `@prefix ex: <http://example.org/> . ex:s ex:p ex:o`,
		"unterminated iri":  `<http://example.org/s <http://example.org/p> "o" .`,
		"bad literal":       `@prefix ex: <http://example.org/> . ex:s ex:p "open .`,
		"garbage":           `this is not turtle`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(input, FormatTurtle)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if perr.Msg == "" {
				t.Fatalf("expected a message, got %+v", perr)
			}
		})
	}

	_, err := Parse("@prefix ex: <http://example.org/> .\nex:s ex:p <http://example.org/o o> .", FormatTurtle)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if perr.Line != 2 || perr.Col < 1 {
		t.Fatalf("expected a position on line 2, got %+v", perr)
	}
}

func TestParseTurtle_ErrorsDoNotLeakDecoders(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		if _, err := Parse("@prefix ex: <http://example.org/> .\nundeclared:s ex:p ex:o .\nex:s ex:p ex:o .", FormatTurtle); err == nil {
			t.Fatal("expected an error for the undeclared prefix")
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before+5 {
		if time.Now().After(deadline) {
			t.Fatalf("decoder goroutines still running: %d before, %d after", before, runtime.NumGoroutine())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestParseTurtle_ExplicitLabelsDoNotCollideWithAnonymousNodes(t *testing.T) {
	doc, err := Parse(`@prefix ex: <http://example.org/> .
_:b1 ex:p [ ex:q "inner" ] .
_:b1 ex:r "outer" .`, FormatTurtle)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Len() != 3 {
		t.Fatalf("expected 3 triples, got %v", doc.Triples)
	}
	explicit := Blank("b1")
	if doc.Triples[0].Subject != explicit || doc.Triples[2].Subject != explicit {
		t.Fatalf("explicit label should survive, got %v", doc.Triples)
	}
	anon := doc.Triples[0].Object
	if !anon.IsBlank() || anon == explicit || doc.Triples[1].Subject != anon {
		t.Fatalf("anonymous node must get its own label, got %v", doc.Triples)
	}
}

func TestParseTurtle_RelativeIRIsInPrefixes(t *testing.T) {
	doc, err := Parse(`BASE <http://example.org/a/b/>
PREFIX up: <../>
up:x <#frag> </root> .`, FormatTurtle)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := Triple{IRI("http://example.org/a/x"), IRI("http://example.org/a/b/#frag"), IRI("http://example.org/root")}
	if diff := cmp.Diff([]Triple{want}, doc.Triples); diff != "" {
		t.Fatalf("triples mismatch (-want +got):\n%s", diff)
	}
	if doc.Context["up"] != "http://example.org/a/" {
		t.Fatalf("context should hold the resolved namespace, got %v", doc.Context)
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	if _, err := Parse("{}", FormatJSONLD); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseNTriples(t *testing.T) {
	input := strings.Join([]string{
		`<http://example.org/s> <http://example.org/p> "o"@fr .`,
		`_:a <http://example.org/p> <http://example.org/o> .`,
	}, "\n")
	doc, err := Parse(input, FormatNTriples)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Len() != 2 || doc.Triples[0].Object.Lang != "fr" || !doc.Triples[1].Subject.IsBlank() {
		t.Fatalf("unexpected triples %v", doc.Triples)
	}
}
