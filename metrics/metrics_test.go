package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheus_RecordOperation(t *testing.T) {
	collector := NewPrometheus()
	ctx := context.Background()

	collector.RecordOperation(ctx, "insertion", "completed", 10*time.Millisecond)
	collector.RecordOperation(ctx, "insertion", "completed", 20*time.Millisecond)
	collector.RecordOperation(ctx, "insertion", "failed", time.Millisecond)
	collector.RecordOperation(ctx, "query", "completed", time.Millisecond)

	if got := testutil.CollectAndCount(collector.operationsTotal); got != 3 {
		t.Errorf("expected 3 series, got %d", got)
	}
	if got := testutil.ToFloat64(collector.operationsTotal.WithLabelValues("insertion", "completed")); got != 2 {
		t.Errorf("expected 2 completed insertions, got %f", got)
	}
	if got := testutil.CollectAndCount(collector.operationDuration); got != 2 {
		t.Errorf("expected 2 histogram series, got %d", got)
	}
}

func TestPrometheus_ErrorsAndGauge(t *testing.T) {
	collector := NewPrometheus()
	ctx := context.Background()

	collector.RecordError(ctx, "query", "timeout")
	collector.RecordError(ctx, "query", "timeout")
	collector.SetGraphSize(ctx, 42)
	collector.RecordRequest(ctx, "/log", http.StatusCreated)

	if got := testutil.ToFloat64(collector.errorsTotal.WithLabelValues("query", "timeout")); got != 2 {
		t.Errorf("expected 2 timeouts, got %f", got)
	}
	if got := testutil.ToFloat64(collector.graphTriples); got != 42 {
		t.Errorf("expected graph size 42, got %f", got)
	}
	if got := testutil.ToFloat64(collector.requestsTotal.WithLabelValues("/log", "201")); got != 1 {
		t.Errorf("expected one /log request, got %f", got)
	}
}

func TestPrometheus_Handler(t *testing.T) {
	collector := NewPrometheus()
	collector.SetGraphSize(context.Background(), 7)

	srv := httptest.NewServer(collector.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "segb_graph_triples 7") {
		t.Fatalf("gauge missing from exposition:\n%s", body)
	}
}
