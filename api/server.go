// Package api is the HTTP surface of the audit log. Every protected route
// runs the authorization decision before touching the graph or the trail.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/PipeOpsHQ/segb/auth"
	"github.com/PipeOpsHQ/segb/metrics"
	"github.com/PipeOpsHQ/segb/observe"
	"github.com/PipeOpsHQ/segb/service"
)

const healthMessage = "The SEGB is working"

type Config struct {
	Addr       string
	Service    *service.Service
	Authorizer *auth.Authorizer
	Logger     *slog.Logger
	Sink       observe.Sink
	Metrics    metrics.Collector
	// MetricsHandler is mounted on /metrics when set.
	MetricsHandler http.Handler
	TracerProvider trace.TracerProvider
}

type Server struct {
	cfg    Config
	logger *slog.Logger
	mux    *http.ServeMux
	http   *http.Server
	once   sync.Once
}

type principalHandler func(http.ResponseWriter, *http.Request, auth.Principal)

func NewServer(cfg Config) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":5000"
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = auth.NewAuthorizer(auth.Secrets{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = observe.NoopSink{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop{}
	}
	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()

	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	handler := otelhttp.NewHandler(s.mux, "segb", opts...)
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.http.Handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server is nil")
	}
	errCh := make(chan error, 1)
	go func() {
		err := s.http.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, stopping http server")
		if err := s.Close(); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	var outErr error
	s.once.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		outErr = s.http.Shutdown(shutdownCtx)
		if outErr != nil {
			s.logger.Warn("http shutdown error", "error", outErr)
		} else {
			s.logger.Info("http server stopped")
		}
	})
	return outErr
}

func (s *Server) registerRoutes() {
	s.route("/health", s.handleHealth)
	s.route("/log", s.handleLog)
	s.route("/history", s.require(s.handleHistory, http.MethodGet, auth.RoleReader))
	s.route("/graph", s.handleGraph)
	s.route("/query", s.require(s.handleQuery, http.MethodGet, auth.RoleAdmin))
	s.route("/experiments", s.require(s.handleExperiments, http.MethodGet, auth.RoleReader))
	if s.cfg.MetricsHandler != nil {
		s.mux.Handle("/metrics", s.cfg.MetricsHandler)
	}
}

func (s *Server) route(path string, h http.HandlerFunc) {
	s.mux.Handle(path, otelhttp.WithRouteTag(path, s.instrument(path, h)))
}

// instrument counts requests per route and status code.
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.cfg.Metrics.RecordRequest(r.Context(), route, rec.status)
	}
}

// require answers 405 for other methods, then runs the authorization
// decision for roles before h.
func (s *Server) require(h principalHandler, method string, roles ...auth.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}
		s.authorize(w, r, h, roles...)
	}
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, h principalHandler, roles ...auth.Role) {
	decision := s.cfg.Authorizer.Authorize(bearerToken(r), roles...)
	origin := clientIP(r)
	switch decision.Outcome {
	case auth.Granted:
		if decision.FailOpen {
			s.logger.Warn("request granted without authentication, a required role has no secret",
				"path", r.URL.Path, "method", r.Method, "origin", origin, "required", roles)
		}
		h(w, r, decision.Principal)
	case auth.Forbidden:
		s.logger.Warn("forbidden",
			"path", r.URL.Path, "method", r.Method, "origin", origin,
			"username", decision.Principal.Username, "roles", decision.Principal.Roles, "required", roles)
		s.emitAuth(r, decision, origin)
		writeError(w, http.StatusForbidden, errors.New("user does not have permission to perform this action"))
	default:
		s.logger.Warn("unauthorized",
			"path", r.URL.Path, "method", r.Method, "origin", origin, "reason", string(decision.Reason))
		s.emitAuth(r, decision, origin)
		challenge := `Bearer realm="segb"`
		if decision.Reason == auth.ReasonExpired || decision.Reason == auth.ReasonInvalid {
			challenge += `, error="invalid_token"`
		}
		w.Header().Set("WWW-Authenticate", challenge)
		writeError(w, http.StatusUnauthorized, errors.New("could not validate credentials"))
	}
}

func (s *Server) emitAuth(r *http.Request, decision auth.Decision, origin string) {
	err := s.cfg.Sink.Emit(r.Context(), observe.Event{
		Kind:   observe.KindAuth,
		Status: observe.StatusRejected,
		Name:   "auth",
		Actor:  decision.Principal.Username,
		Origin: origin,
		Attributes: map[string]any{
			"outcome": decision.Outcome.String(),
			"reason":  string(decision.Reason),
			"path":    r.URL.Path,
		},
	})
	if err != nil {
		s.logger.Debug("event sink failed", "op", "auth", "error", err)
	}
}

func bearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]any{"error": msg})
}
