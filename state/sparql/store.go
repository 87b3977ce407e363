// Package sparql persists the canonical graph as one named graph of a
// triple store through the SPARQL 1.1 Graph Store HTTP Protocol.
package sparql

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PipeOpsHQ/segb/rdf"
	"github.com/PipeOpsHQ/segb/state"
)

type Store struct {
	endpoint string
	graph    string
	client   *http.Client
	user     string
	password string
}

type Option func(*Store)

func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func WithBasicAuth(user, password string) Option {
	return func(s *Store) {
		s.user = user
		s.password = password
	}
}

// New targets endpoint, the store's graph-store URL. An empty graph IRI
// addresses the default graph.
func New(endpoint, graph string, opts ...Option) (*Store, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("sparql graph store endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid sparql graph store endpoint: %w", err)
	}
	s := &Store{
		endpoint: endpoint,
		graph:    strings.TrimSpace(graph),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Save(ctx context.Context, doc rdf.Document) error {
	body, err := rdf.Serialize(doc, rdf.FormatTurtle)
	if err != nil {
		return fmt.Errorf("serialize graph: %w", err)
	}
	resp, err := s.do(ctx, http.MethodPut, strings.NewReader(body), rdf.FormatTurtle.MediaType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("save", resp)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (rdf.Document, error) {
	resp, err := s.do(ctx, http.MethodGet, nil, "")
	if err != nil {
		return rdf.Document{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return rdf.Document{}, state.ErrEmpty
	}
	if resp.StatusCode/100 != 2 {
		return rdf.Document{}, statusError("load", resp)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return rdf.Document{}, fmt.Errorf("read graph: %w", err)
	}
	doc, err := rdf.Parse(string(raw), rdf.FormatTurtle)
	if err != nil {
		return rdf.Document{}, fmt.Errorf("decode graph: %w", err)
	}
	if doc.Len() == 0 && len(doc.Context) == 0 {
		return rdf.Document{}, state.ErrEmpty
	}
	return doc, nil
}

func (s *Store) Clear(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodDelete, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return statusError("clear", resp)
	}
	return nil
}

func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Store) do(ctx context.Context, method string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.target(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Accept", rdf.FormatTurtle.MediaType())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.user != "" {
		req.SetBasicAuth(s.user, s.password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph store %s: %w", method, err)
	}
	return resp, nil
}

func (s *Store) target() string {
	sep := "?"
	if strings.Contains(s.endpoint, "?") {
		sep = "&"
	}
	if s.graph == "" {
		return s.endpoint + sep + "default"
	}
	return s.endpoint + sep + "graph=" + url.QueryEscape(s.graph)
}

func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("graph store %s failed: %s: %s", op, resp.Status, strings.TrimSpace(string(snippet)))
}

var _ state.Store = (*Store)(nil)
