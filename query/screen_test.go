package query

import (
	"errors"
	"testing"
)

func TestScreen_RejectsUpdatesInAnyCase(t *testing.T) {
	queries := []string{
		`INSERT DATA { <http://a> <http://b> <http://c> }`,
		`insert data { <http://a> <http://b> <http://c> }`,
		`  InSeRt DATA { <http://a> <http://b> <http://c> }`,
		"\n\tDELETE WHERE { ?s ?p ?o }",
		`LOAD <http://example.org/data.ttl>`,
		`clear all`,
		`DROP GRAPH <http://g>`,
		`CREATE GRAPH <http://g>`,
		`COPY <http://a> TO <http://b>`,
		`MOVE <http://a> TO <http://b>`,
		`ADD <http://a> TO <http://b>`,
		"PREFIX ex: <http://example.org/>\n# sneaky\nINSERT DATA { ex:a ex:b ex:c }",
		"BASE <http://example.org/> delete { ?s ?p ?o } where { ?s ?p ?o }",
	}
	for _, q := range queries {
		if _, _, err := Screen(q); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden for %q, got %v", q, err)
		}
	}
}

func TestScreen_ClassifiesReads(t *testing.T) {
	cases := map[string]Kind{
		`SELECT ?s WHERE { ?s ?p ?o }`:                                KindSelect,
		`ask { ?s ?p ?o }`:                                            KindSelect,
		`CONSTRUCT { ?s ?p ?o } WHERE { ?s ?p ?o }`:                   KindConstruct,
		`describe <http://example.org/a>`:                             KindConstruct,
		"# comment\nPREFIX ex: <http://example.org/#x>\nSELECT * {}": KindSelect,
	}
	for q, want := range cases {
		got, _, err := Screen(q)
		if err != nil {
			t.Fatalf("screen %q: %v", q, err)
		}
		if got != want {
			t.Fatalf("screen %q = %s, want %s", q, got, want)
		}
	}
}

func TestScreen_UnknownForm(t *testing.T) {
	for _, q := range []string{"", "   ", "WITH <http://g> DELETE { ?s ?p ?o } WHERE {}", "hello"} {
		if _, _, err := Screen(q); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported for %q, got %v", q, err)
		}
	}
}

func TestFirstKeyword(t *testing.T) {
	if got := FirstKeyword("prefix a: <x> PREFIX b: <y>\n  select"); got != "select" {
		t.Fatalf("unexpected keyword %q", got)
	}
}
