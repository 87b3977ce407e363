package rdf

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// validLocalName reports whether local can follow a prefix without escapes.
func validLocalName(local string) bool {
	if local == "" {
		return true
	}
	if strings.HasSuffix(local, ".") {
		return false
	}
	for i, r := range local {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
		case i > 0 && (r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

type subjectGroup struct {
	subject    Term
	predicates []Term
	objects    map[Term][]Term
}

func groupBySubject(triples []Triple) []*subjectGroup {
	index := map[Term]*subjectGroup{}
	var groups []*subjectGroup
	for _, t := range triples {
		g, ok := index[t.Subject]
		if !ok {
			g = &subjectGroup{subject: t.Subject, objects: map[Term][]Term{}}
			index[t.Subject] = g
			groups = append(groups, g)
		}
		if _, seen := g.objects[t.Predicate]; !seen {
			g.predicates = append(g.predicates, t.Predicate)
		}
		g.objects[t.Predicate] = append(g.objects[t.Predicate], t.Object)
	}
	return groups
}

func writeJSONLD(doc Document) (string, error) {
	context := map[string]string{}
	for k, v := range doc.Context {
		if k != "" {
			context[k] = v
		}
	}
	nodes := make([]map[string]any, 0)
	for _, g := range groupBySubject(doc.Triples) {
		node := map[string]any{"@id": jsonLDID(g.subject)}
		for _, pred := range g.predicates {
			objs := g.objects[pred]
			if pred.Value == RDFType {
				types := make([]string, 0, len(objs))
				for _, o := range objs {
					types = append(types, jsonLDID(o))
				}
				node["@type"] = types
				continue
			}
			values := make([]map[string]string, 0, len(objs))
			for _, o := range objs {
				values = append(values, jsonLDValue(o))
			}
			node[pred.Value] = values
		}
		nodes = append(nodes, node)
	}
	raw, err := json.MarshalIndent(map[string]any{
		"@context": context,
		"@graph":   nodes,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode json-ld: %w", err)
	}
	return string(raw), nil
}

func jsonLDID(t Term) string {
	if t.IsBlank() {
		return "_:" + t.Value
	}
	return t.Value
}

func jsonLDValue(t Term) map[string]string {
	switch t.Kind {
	case KindLiteral:
		v := map[string]string{"@value": t.Value}
		if t.Lang != "" {
			v["@language"] = t.Lang
		} else if t.Datatype != "" {
			v["@type"] = t.Datatype
		}
		return v
	default:
		return map[string]string{"@id": jsonLDID(t)}
	}
}
