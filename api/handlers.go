package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PipeOpsHQ/segb/auth"
	"github.com/PipeOpsHQ/segb/rdf"
	"github.com/PipeOpsHQ/segb/service"
)

const maxBodyBytes = 16 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, healthMessage)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.authorize(w, r, s.handleLogInsert, auth.RoleLogger)
	case http.MethodGet:
		s.authorize(w, r, s.handleLogGet, auth.RoleReader)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) handleLogInsert(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, errors.New("could not read body"))
		return
	}
	log, err := s.cfg.Service.Ingest(r.Context(), service.Caller{Actor: p.Descriptor(), Origin: clientIP(r)}, string(body))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Log saved successfully",
		"log_id":  log.ID,
	})
}

func (s *Server) handleLogGet(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	entry, err := s.cfg.Service.Log(r.Context(), r.URL.Query().Get("log_id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	q := r.URL.Query()
	rawStart, rawEnd := strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end"))

	if rawStart != "" || rawEnd != "" {
		if rawStart == "" || rawEnd == "" {
			writeError(w, http.StatusBadRequest, errors.New("start and end must be given together"))
			return
		}
		start, err := time.Parse(time.RFC3339, rawStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid start: %w", err))
			return
		}
		end, err := time.Parse(time.RFC3339, rawEnd)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid end: %w", err))
			return
		}
		logs, err := s.cfg.Service.HistoryRange(r.Context(), start, end)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, logs)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	logs, err := s.cfg.Service.History(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.authorize(w, r, s.handleGraphGet, auth.RoleReader)
	case http.MethodDelete:
		s.authorize(w, r, s.handleGraphDelete, auth.RoleAdmin)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) handleGraphGet(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	doc, err := s.cfg.Service.Graph(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeDocument(w, r, doc, negotiate(r), "graph")
}

func (s *Server) handleGraphDelete(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	log, err := s.cfg.Service.Clear(r.Context(), service.Caller{Actor: p.Descriptor(), Origin: clientIP(r)})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Graph deleted successfully",
		"log_id":  log.ID,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	doc, err := s.cfg.Service.Query(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeDocument(w, r, doc, negotiate(r), "")
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	q := r.URL.Query()
	sel := service.Selector{
		URI:       strings.TrimSpace(q.Get("uri")),
		Namespace: strings.TrimSpace(q.Get("namespace")),
		ID:        strings.TrimSpace(q.Get("experiment_id")),
	}
	if sel == (service.Selector{}) {
		uris, err := s.cfg.Service.Experiments(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="experiments.json"`)
		writeJSON(w, http.StatusOK, uris)
		return
	}

	doc, err := s.cfg.Service.Experiment(r.Context(), sel)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeDocument(w, r, doc, negotiate(r), "experiment")
}

// negotiate picks the export format from the Accept header, falling back
// to Turtle.
func negotiate(r *http.Request) rdf.Format {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mediaType {
		case "application/n-triples":
			return rdf.FormatNTriples
		case "application/ld+json":
			return rdf.FormatJSONLD
		case "text/turtle":
			return rdf.FormatTurtle
		}
	}
	return rdf.FormatTurtle
}

// writeDocument serializes doc as format. A non-empty name turns the
// response into a download named name.<ext>.
func (s *Server) writeDocument(w http.ResponseWriter, r *http.Request, doc rdf.Document, format rdf.Format, name string) {
	body, err := rdf.Serialize(doc, format)
	if err != nil {
		s.logger.Error("serialize graph", "path", r.URL.Path, "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	w.Header().Set("Content-Type", format.MediaType()+"; charset=utf-8")
	if name != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, name, format.Extension()))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(service.KindOf(err))
	switch status {
	case http.StatusNoContent:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", "1")
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "5")
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "method", r.Method, "status", status, "error", err)
	}
	writeError(w, status, errors.New(service.Public(err)))
}

func statusFor(kind service.ErrorKind) int {
	switch kind {
	case service.KindInvalid:
		return http.StatusBadRequest
	case service.KindUnprocessable:
		return http.StatusUnprocessableEntity
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindEmpty:
		return http.StatusNoContent
	case service.KindBusy:
		return http.StatusTooManyRequests
	case service.KindTimeout, service.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
