// Package query runs read-only queries against the backing engine and
// shapes every answer as a graph.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/PipeOpsHQ/segb/rdf"
)

var (
	ErrForbidden     = errors.New("query: update operations are not allowed")
	ErrUnsupported   = errors.New("query: unsupported query form")
	ErrNotConfigured = errors.New("query: no query engine configured")
	ErrTimeout       = errors.New("query: timed out")
)

const (
	ResultNamespace = "http://www.gsi.upm.es/ontologies/segb/query-result#"
	resultPrefix    = "qres"
)

// Table is a tabular answer. Boolean is set for ASK queries instead of
// rows.
type Table struct {
	Vars    []string
	Rows    []map[string]rdf.Term
	Boolean *bool
}

type Engine interface {
	Select(ctx context.Context, q string) (Table, error)
	Construct(ctx context.Context, q string) (rdf.Document, error)
}

type Gate struct {
	engine  Engine
	timeout time.Duration
}

func NewGate(engine Engine, timeout time.Duration) *Gate {
	return &Gate{engine: engine, timeout: timeout}
}

// Execute screens q and, when it is a read, runs it with the gate's
// timeout. taken is the canonical graph context; the namespace of the
// synthetic result graph never reuses one of its prefixes for another URI.
func (g *Gate) Execute(ctx context.Context, q string, taken map[string]string) (rdf.Document, error) {
	kind, _, err := Screen(q)
	if err != nil {
		return rdf.Document{}, err
	}
	if g.engine == nil {
		return rdf.Document{}, ErrNotConfigured
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var doc rdf.Document
	switch kind {
	case KindConstruct:
		doc, err = g.engine.Construct(ctx, q)
	default:
		var table Table
		table, err = g.engine.Select(ctx, q)
		if err == nil {
			doc = ResultGraph(table, taken)
		}
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return rdf.Document{}, fmt.Errorf("%w after %s", ErrTimeout, g.timeout)
		}
		return rdf.Document{}, err
	}
	return doc, nil
}

// ResultGraph turns each row into a fresh blank node typed as a result with
// one edge per bound variable. Values keep their datatype and language.
func ResultGraph(table Table, taken map[string]string) rdf.Document {
	doc := rdf.NewDocument()
	for name, uri := range taken {
		doc.Context[name] = uri
	}
	doc.Context[resultPrefixFor(taken)] = ResultNamespace

	resultType := rdf.IRI(ResultNamespace + "Result")
	node := 0
	addRow := func(row map[string]rdf.Term, vars []string) {
		node++
		subject := rdf.Blank("r" + strconv.Itoa(node))
		doc.Triples = append(doc.Triples, rdf.Triple{Subject: subject, Predicate: rdf.IRI(rdf.RDFType), Object: resultType})
		for _, v := range vars {
			value, ok := row[v]
			if !ok || value.IsZero() {
				continue
			}
			doc.Triples = append(doc.Triples, rdf.Triple{Subject: subject, Predicate: rdf.IRI(ResultNamespace + v), Object: value})
		}
	}

	if table.Boolean != nil {
		addRow(map[string]rdf.Term{
			"boolean": rdf.TypedLiteral(strconv.FormatBool(*table.Boolean), rdf.XSDBoolean),
		}, []string{"boolean"})
		return doc
	}

	vars := table.Vars
	if len(vars) == 0 {
		vars = varsOf(table.Rows)
	}
	for _, row := range table.Rows {
		addRow(relabelBlanks(row, node), vars)
	}
	return doc
}

// resultPrefixFor picks qres, or qres1, qres2 and so on when the name is
// already bound to some other namespace.
func resultPrefixFor(taken map[string]string) string {
	names := make([]string, 0, len(taken))
	for name, uri := range taken {
		if uri == ResultNamespace {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		sort.Strings(names)
		return names[0]
	}
	candidate := resultPrefix
	for n := 1; ; n++ {
		if _, used := taken[candidate]; !used {
			return candidate
		}
		candidate = resultPrefix + strconv.Itoa(n)
	}
}

// relabelBlanks scopes blank values to their row so they cannot collide
// with the synthetic row nodes.
func relabelBlanks(row map[string]rdf.Term, rowIndex int) map[string]rdf.Term {
	out := make(map[string]rdf.Term, len(row))
	for k, v := range row {
		if v.IsBlank() {
			v = rdf.Blank("v" + strconv.Itoa(rowIndex+1) + "_" + v.Value)
		}
		out[k] = v
	}
	return out
}

func varsOf(rows []map[string]rdf.Term) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
