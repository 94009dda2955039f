package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/shl-recommender/internal/ai/aitest"
	"github.com/spigell/shl-recommender/internal/index"
	"github.com/spigell/shl-recommender/internal/metrics"
	"github.com/spigell/shl-recommender/internal/recommender"
)

type fakeEngine struct {
	resp       *recommender.Response
	err        error
	rebuildErr error
	requests   []recommender.Request
	rebuilds   int
}

func (f *fakeEngine) Recommend(_ context.Context, req recommender.Request) (*recommender.Response, error) {
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

func (f *fakeEngine) Rebuild(context.Context) error {
	f.rebuilds++
	return f.rebuildErr
}

func (f *fakeEngine) Stats() recommender.Stats {
	return recommender.Stats{Ready: true, Documents: 3, Dimension: 8, Source: recommender.SourceLoaded}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return out
}

func TestHandleRecommend(t *testing.T) {
	engine := &fakeEngine{resp: &recommender.Response{
		Query:    "Java Developer 40 java",
		RawQuery: "java dev",
		Results:  []recommender.Result{{Name: "Java Dev Test", URL: "https://example.com/java", TestTypes: []string{"Knowledge"}, Duration: 30}},
	}}
	h := New(engine, nil, Config{}, zap.NewNop()).Handler()

	w := do(t, h, http.MethodPost, "/recommend", `{"query": "java dev", "k": 3, "filters": {"remote_only": true}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}

	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["query"] != "Java Developer 40 java" || out["degraded"] != false {
		t.Fatalf("unexpected body %v", out)
	}
	results := out["results"].([]any)
	first := results[0].(map[string]any)
	if first["name"] != "Java Dev Test" || first["duration"] != float64(30) {
		t.Fatalf("unexpected result %v", first)
	}

	req := engine.requests[0]
	if req.Query != "java dev" || req.K != 3 || req.Filters == nil || !req.Filters.RemoteOnly {
		t.Fatalf("request not forwarded intact: %+v", req)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestHandleRecommendErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   recommender.Code
	}{
		{name: "malformed json", body: `{"query": `, status: http.StatusBadRequest, code: recommender.CodeInvalidQuery},
		{name: "empty body", body: ``, status: http.StatusBadRequest, code: recommender.CodeInvalidQuery},
		{name: "engine invalid query", body: `{"query": ""}`, err: &recommender.Error{Code: recommender.CodeInvalidQuery, Op: "recommend"}, status: http.StatusBadRequest, code: recommender.CodeInvalidQuery},
		{name: "timeout", body: `{"query": "x"}`, err: &recommender.Error{Code: recommender.CodeProviderTimeout, Op: "embed query"}, status: http.StatusGatewayTimeout, code: recommender.CodeProviderTimeout},
		{name: "provider", body: `{"query": "x"}`, err: &recommender.Error{Code: recommender.CodeEmbeddingProvider, Op: "embed query"}, status: http.StatusBadGateway, code: recommender.CodeEmbeddingProvider},
		{name: "catalog", body: `{"query": "x"}`, err: &recommender.Error{Code: recommender.CodeCatalogMissing, Op: "ensure index"}, status: http.StatusInternalServerError, code: recommender.CodeCatalogMissing},
		{name: "untyped", body: `{"query": "x"}`, err: errors.New("boom"), status: http.StatusInternalServerError, code: recommender.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&fakeEngine{err: tt.err}, nil, Config{}, zap.NewNop()).Handler()
			w := do(t, h, http.MethodPost, "/recommend", tt.body)

			if w.Code != tt.status {
				t.Fatalf("status: expected %d, got %d", tt.status, w.Code)
			}
			if out := decodeError(t, w); out.Code != string(tt.code) || out.Error == "" {
				t.Fatalf("unexpected error body %+v", out)
			}
		})
	}
}

func TestHandleHealthAndStatus(t *testing.T) {
	h := New(&fakeEngine{}, nil, Config{}, zap.NewNop()).Handler()

	w := do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/status", "")
	var stats recommender.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if !stats.Ready || stats.Documents != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestHandleReindex(t *testing.T) {
	engine := &fakeEngine{}
	h := New(engine, nil, Config{}, zap.NewNop()).Handler()

	if w := do(t, h, http.MethodPost, "/admin/reindex", ""); w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if engine.rebuilds != 1 {
		t.Fatalf("expected one rebuild, got %d", engine.rebuilds)
	}

	engine.rebuildErr = &recommender.Error{Code: recommender.CodeCatalogMissing, Op: "rebuild"}
	w := do(t, h, http.MethodPost, "/admin/reindex", "")
	if w.Code != http.StatusInternalServerError || decodeError(t, w).Code != string(recommender.CodeCatalogMissing) {
		t.Fatalf("unexpected reindex failure response %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	h := New(&fakeEngine{}, nil, Config{}, zap.NewNop()).Handler()

	w := do(t, h, http.MethodGet, "/health", "")
	if _, err := uuid.Parse(w.Header().Get("X-Request-Id")); err != nil {
		t.Fatalf("expected a generated uuid request id, got %q", w.Header().Get("X-Request-Id"))
	}

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-Id", "client-supplied-id")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("X-Request-Id"); got != "client-supplied-id" {
		t.Fatalf("expected the incoming request id to be echoed, got %q", got)
	}
}

func TestCORS(t *testing.T) {
	h := New(&fakeEngine{}, nil, Config{CORSOrigins: []string{"https://app.example.com"}}, zap.NewNop()).Handler()

	r := httptest.NewRequest(http.MethodOptions, "/recommend", nil)
	r.Header.Set("Origin", "https://app.example.com")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code >= http.StatusMultipleChoices {
		t.Fatalf("preflight status: got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != http.MethodPost {
		t.Fatalf("unexpected allow methods %q", got)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("preflight must not reach the handler, body %q", w.Body.String())
	}

	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "https://app.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow origin on a simple request %q", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-Id" {
		t.Fatalf("unexpected exposed headers %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin for unknown origin %q", got)
	}

	wildcard := New(&fakeEngine{}, nil, Config{CORSOrigins: []string{"*"}}, zap.NewNop()).Handler()
	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "https://any.example.com")
	w = httptest.NewRecorder()
	wildcard.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard allow origin, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New(nil)
	m.IndexBuilt("built")
	h := New(&fakeEngine{}, m, Config{}, zap.NewNop()).Handler()

	w := do(t, h, http.MethodGet, "/metrics", "")
	if !strings.Contains(w.Body.String(), "shl_index_builds_total") {
		t.Fatalf("metrics not exposed:\n%s", w.Body.String())
	}
}

func TestRecommendEndToEnd(t *testing.T) {
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.json")
	catalog := `[
		{"name": "Java Dev Test", "url": "https://example.com/java", "remote_support": "Yes", "test_types": ["Knowledge"], "duration": 30},
		{"name": "Leadership Assessment", "url": "https://example.com/lead", "remote_support": "No", "test_types": ["Personality"]}
	]`
	if err := os.WriteFile(catalogPath, []byte(catalog), 0o644); err != nil {
		t.Fatal(err)
	}

	engine, err := recommender.New(
		recommender.Config{CatalogFiles: []string{catalogPath}, Enhance: true},
		recommender.Deps{
			Store:    index.NewStore(dir, "index.bin", "metadata.json"),
			Embedder: aitest.NewKeywordEmbedder(),
			Enhancer: &aitest.StaticEnhancer{Err: errors.New("model overloaded")},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	h := New(engine, nil, Config{}, zap.NewNop()).Handler()
	var body bytes.Buffer
	_ = json.NewEncoder(&body).Encode(map[string]any{"query": "leadership", "k": 1})

	w := do(t, h, http.MethodPost, "/recommend", body.String())
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}

	var out recommender.Response
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Degraded || len(out.Results) != 1 || out.Results[0].Name != "Leadership Assessment" {
		t.Fatalf("unexpected response %+v", out)
	}
	if out.Results[0].Duration != "N/A" {
		t.Fatalf("expected N/A duration, got %v", out.Results[0].Duration)
	}
}

func TestStartStop(t *testing.T) {
	srv := New(&fakeEngine{}, nil, Config{Host: "127.0.0.1", Port: 0}, zap.NewNop())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
