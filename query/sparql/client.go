// Package sparql is a query.Engine speaking the SPARQL 1.1 Protocol.
package sparql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PipeOpsHQ/segb/query"
	"github.com/PipeOpsHQ/segb/rdf"
)

const resultsJSON = "application/sparql-results+json"

type Client struct {
	endpoint     string
	defaultGraph string
	http         *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithDefaultGraph scopes every query to one named graph.
func WithDefaultGraph(graph string) Option {
	return func(c *Client) {
		c.defaultGraph = strings.TrimSpace(graph)
	}
}

func New(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("sparql query endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid sparql query endpoint: %w", err)
	}
	c := &Client{endpoint: endpoint, http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type jsonResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]jsonTerm `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean"`
}

type jsonTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype"`
	Lang     string `json:"xml:lang"`
}

func (t jsonTerm) term() rdf.Term {
	switch t.Type {
	case "uri":
		return rdf.IRI(t.Value)
	case "bnode":
		return rdf.Blank(t.Value)
	default:
		if t.Lang != "" {
			return rdf.LangLiteral(t.Value, t.Lang)
		}
		return rdf.TypedLiteral(t.Value, t.Datatype)
	}
}

func (c *Client) Select(ctx context.Context, q string) (query.Table, error) {
	body, err := c.post(ctx, q, resultsJSON)
	if err != nil {
		return query.Table{}, err
	}
	var decoded jsonResults
	if err := json.Unmarshal(body, &decoded); err != nil {
		return query.Table{}, fmt.Errorf("decode sparql results: %w", err)
	}
	table := query.Table{Vars: decoded.Head.Vars, Boolean: decoded.Boolean}
	if decoded.Results != nil {
		for _, binding := range decoded.Results.Bindings {
			row := make(map[string]rdf.Term, len(binding))
			for name, value := range binding {
				row[name] = value.term()
			}
			table.Rows = append(table.Rows, row)
		}
	}
	return table, nil
}

func (c *Client) Construct(ctx context.Context, q string) (rdf.Document, error) {
	body, err := c.post(ctx, q, rdf.FormatTurtle.MediaType()+", "+rdf.FormatNTriples.MediaType()+";q=0.9")
	if err != nil {
		return rdf.Document{}, err
	}
	doc, err := rdf.Parse(string(body), rdf.FormatTurtle)
	if err != nil {
		return rdf.Document{}, fmt.Errorf("decode construct result: %w", err)
	}
	return doc, nil
}

func (c *Client) post(ctx context.Context, q, accept string) ([]byte, error) {
	form := url.Values{"query": {q}}
	if c.defaultGraph != "" {
		form.Set("default-graph-uri", c.defaultGraph)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build sparql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sparql request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read sparql response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, fmt.Errorf("sparql endpoint returned %s: %s", resp.Status, strings.TrimSpace(snippet))
	}
	return body, nil
}

var _ query.Engine = (*Client)(nil)
