// Package experiment extracts experiment views from the canonical graph:
// the experiment itself, the activities logged against it and the
// messages those activities carried.
package experiment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PipeOpsHQ/segb/prefix"
	"github.com/PipeOpsHQ/segb/rdf"
)

const (
	SEGBNamespace     = "http://www.gsi.upm.es/ontologies/segb/ns#"
	AmorExpNamespace  = "http://www.gsi.upm.es/ontologies/amor/experiments/ns#"
	OroNamespace      = "http://kb.openrobots.org#"
	experimentClass   = AmorExpNamespace + "Experiment"
	loggedActivity    = SEGBNamespace + "LoggedActivity"
	relatedExperiment = AmorExpNamespace + "isRelatedWithExperiment"
	hasMessage        = OroNamespace + "hasMessage"
)

var (
	ErrInvalidIdentifier = errors.New("experiment: malformed identifier")
	ErrNotFound          = errors.New("experiment: not found")
)

// Ref names one experiment as namespace plus local id.
type Ref struct {
	Namespace string
	ID        string
}

func (r Ref) URI() string { return r.Namespace + r.ID }

// ParseURI splits uri on its last '#'.
func ParseURI(uri string) (Ref, error) {
	uri = strings.TrimSpace(uri)
	i := strings.LastIndexByte(uri, '#')
	if i < 0 {
		return Ref{}, fmt.Errorf("%w: %q has no '#'", ErrInvalidIdentifier, uri)
	}
	if i == 0 || i == len(uri)-1 {
		return Ref{}, fmt.Errorf("%w: %q needs both a namespace and an id", ErrInvalidIdentifier, uri)
	}
	return Ref{Namespace: uri[:i+1], ID: uri[i+1:]}, nil
}

// FromParts builds a Ref from a namespace and an id. A namespace without a
// trailing '#' gets one.
func FromParts(namespace, id string) (Ref, error) {
	namespace = strings.TrimSpace(namespace)
	id = strings.TrimSpace(id)
	if namespace == "" || id == "" {
		return Ref{}, fmt.Errorf("%w: namespace and experiment_id go together", ErrInvalidIdentifier)
	}
	if !strings.HasSuffix(namespace, "#") {
		namespace += "#"
	}
	return Ref{Namespace: namespace, ID: id}, nil
}

// List returns the URI of every resource typed as an experiment, in the
// order they first appear.
func List(doc rdf.Document) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, t := range doc.Triples {
		if !t.Subject.IsIRI() || t.Predicate.Value != rdf.RDFType || t.Object != rdf.IRI(experimentClass) {
			continue
		}
		if _, dup := seen[t.Subject.Value]; dup {
			continue
		}
		seen[t.Subject.Value] = struct{}{}
		out = append(out, t.Subject.Value)
	}
	return out
}

// Graph returns the experiment's own triples when it is typed as an
// experiment, every triple of the logged activities related to it, and
// every triple of the messages those activities reference. Triples appear
// once. An empty view is ErrNotFound.
func Graph(doc rdf.Document, ref Ref) (rdf.Document, error) {
	exp := rdf.IRI(ref.URI())

	bySubject := map[rdf.Term][]rdf.Triple{}
	typed := map[rdf.Term]map[string]bool{}
	for _, t := range doc.Triples {
		bySubject[t.Subject] = append(bySubject[t.Subject], t)
		if t.Predicate.Value == rdf.RDFType && t.Object.IsIRI() {
			if typed[t.Subject] == nil {
				typed[t.Subject] = map[string]bool{}
			}
			typed[t.Subject][t.Object.Value] = true
		}
	}

	var subjects []rdf.Term
	if typed[exp][experimentClass] {
		subjects = append(subjects, exp)
	}

	var activities []rdf.Term
	for _, t := range doc.Triples {
		if t.Predicate.Value == relatedExperiment && t.Object == exp && typed[t.Subject][loggedActivity] {
			activities = appendUnique(activities, t.Subject)
		}
	}
	subjects = append(subjects, activities...)

	for _, activity := range activities {
		for _, t := range bySubject[activity] {
			if t.Predicate.Value == hasMessage && !t.Object.IsLiteral() {
				subjects = appendUnique(subjects, t.Object)
			}
		}
	}

	out := rdf.Document{Context: viewContext(doc.Context), Triples: []rdf.Triple{}}
	emitted := map[rdf.Triple]struct{}{}
	done := map[rdf.Term]struct{}{}
	for _, s := range subjects {
		if _, ok := done[s]; ok {
			continue
		}
		done[s] = struct{}{}
		for _, t := range bySubject[s] {
			if _, dup := emitted[t]; dup {
				continue
			}
			emitted[t] = struct{}{}
			out.Triples = append(out.Triples, t)
		}
	}
	if out.IsEmpty() {
		return rdf.Document{}, fmt.Errorf("%w: %s", ErrNotFound, ref.URI())
	}
	return out, nil
}

// viewContext is the graph context plus the experiment vocabulary, bound
// under its usual prefixes unless those names are already taken.
func viewContext(current map[string]string) map[string]string {
	registry := prefix.FromContext(current)
	registry.Register("segb", SEGBNamespace)
	registry.Register("amor-exp", AmorExpNamespace)
	registry.Register("oro", OroNamespace)
	return registry.Context()
}

func appendUnique(list []rdf.Term, t rdf.Term) []rdf.Term {
	for _, existing := range list {
		if existing == t {
			return list
		}
	}
	return append(list, t)
}
