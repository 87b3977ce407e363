// Package graph folds submitted fragments into the canonical graph.
package graph

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/PipeOpsHQ/segb/prefix"
	"github.com/PipeOpsHQ/segb/rdf"
)

// Fragment is a submission that has already been prepared against the
// registry of the graph it will be merged into.
type Fragment struct {
	Raw      string
	Prepared string
	Renames  map[string]string
	Document rdf.Document
}

// Prepare rewrites the fragment's prefixes against current and parses it.
// A parse failure returns an error and leaves current untouched.
func Prepare(current rdf.Document, ttl string) (Fragment, error) {
	registry := prefix.FromContext(current.Context)
	prepared, renames := registry.Prepare(ttl)
	doc, err := rdf.Parse(prepared, rdf.FormatTurtle)
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{Raw: ttl, Prepared: prepared, Renames: renames, Document: doc}, nil
}

// Merge returns current with incoming appended. The older context entries
// always win; incoming prefixes that would rebind one of them are stored
// under a renamed prefix instead. Triples are appended without
// deduplication and incoming blank nodes are relabelled so they never fuse
// with blank nodes already in the graph.
func Merge(current, incoming rdf.Document) (rdf.Document, error) {
	out := current.Clone()
	if out.Context == nil {
		out.Context = map[string]string{}
	}
	if out.Triples == nil {
		out.Triples = []rdf.Triple{}
	}

	registry := prefix.FromContext(current.Context)
	names := make([]string, 0, len(incoming.Context))
	for name := range incoming.Context {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		uri := incoming.Context[name]
		canonical := registry.Register(name, uri)
		if bound, ok := out.Context[canonical]; ok && bound != uri {
			return rdf.Document{}, fmt.Errorf("merge: prefix %q already bound to %q", canonical, bound)
		}
		out.Context[canonical] = uri
	}

	relabel := blankRelabeler(current)
	for _, t := range incoming.Triples {
		out.Triples = append(out.Triples, rdf.Triple{
			Subject:   relabel(t.Subject),
			Predicate: t.Predicate,
			Object:    relabel(t.Object),
		})
	}
	return out, nil
}

func blankRelabeler(current rdf.Document) func(rdf.Term) rdf.Term {
	taken := current.BlankLabels()
	mapping := map[string]rdf.Term{}
	next := len(taken)
	return func(t rdf.Term) rdf.Term {
		if !t.IsBlank() {
			return t
		}
		if mapped, ok := mapping[t.Value]; ok {
			return mapped
		}
		for {
			next++
			label := "b" + strconv.Itoa(next)
			if _, used := taken[label]; used {
				continue
			}
			taken[label] = struct{}{}
			mapped := rdf.Blank(label)
			mapping[t.Value] = mapped
			return mapped
		}
	}
}
