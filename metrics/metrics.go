// Package metrics exposes Prometheus counters for graph operations.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector receives operation outcomes from the service and API layers.
type Collector interface {
	RecordOperation(ctx context.Context, operation, status string, duration time.Duration)
	RecordError(ctx context.Context, operation, errorType string)
	SetGraphSize(ctx context.Context, triples int)
	RecordRequest(ctx context.Context, route string, code int)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordOperation(context.Context, string, string, time.Duration) {}
func (Noop) RecordError(context.Context, string, string)                    {}
func (Noop) SetGraphSize(context.Context, int)                              {}
func (Noop) RecordRequest(context.Context, string, int)                     {}

// Prometheus collects into its own registry so tests and multiple servers
// in one process never collide on the default one.
type Prometheus struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	graphTriples      prometheus.Gauge
	requestsTotal     *prometheus.CounterVec
	registry          *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segb_operations_total",
			Help: "Total number of graph operations by type and status",
		},
		[]string{"operation", "status"},
	)
	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "segb_operation_duration_seconds",
			Help:    "Duration of graph operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"operation"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segb_errors_total",
			Help: "Total number of errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)
	graphTriples := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "segb_graph_triples",
		Help: "Number of triples in the canonical graph after the last write",
	})
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segb_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	registry.MustRegister(operationsTotal, operationDuration, errorsTotal, graphTriples, requestsTotal)

	return &Prometheus{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		errorsTotal:       errorsTotal,
		graphTriples:      graphTriples,
		requestsTotal:     requestsTotal,
		registry:          registry,
	}
}

func (m *Prometheus) RecordOperation(_ context.Context, operation, status string, duration time.Duration) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Prometheus) RecordError(_ context.Context, operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

func (m *Prometheus) SetGraphSize(_ context.Context, triples int) {
	m.graphTriples.Set(float64(triples))
}

func (m *Prometheus) RecordRequest(_ context.Context, route string, code int) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Prometheus) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
