package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest("ok", 120*time.Millisecond)
	m.ObserveRequest("ok", 80*time.Millisecond)
	m.ObserveRequest("invalid_query", time.Millisecond)
	m.IndexBuilt("built")
	m.ProviderError("enhancement_error")
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected 2 ok requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.indexBuilds.WithLabelValues("built")); got != 1 {
		t.Fatalf("expected 1 build, got %v", got)
	}
	if got := testutil.ToFloat64(m.providerErrors.WithLabelValues("enhancement_error")); got != 1 {
		t.Fatalf("expected 1 provider error, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")); got != 2 {
		t.Fatalf("expected 2 misses, got %v", got)
	}
	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Fatalf("expected one histogram, got %d", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("ok", time.Second)
	m.IndexBuilt("loaded")
	m.ProviderError("x")
	m.CacheLookup(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200 from nil handler, got %d", rec.Code)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(nil)
	m.IndexBuilt("loaded")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `shl_index_builds_total{source="loaded"} 1`) {
		t.Fatalf("metrics output missing build counter:\n%s", body)
	}
}
