// Package recommender turns a free-text hiring need into ranked catalog assessments.
package recommender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spigell/shl-recommender/internal/ai"
	"github.com/spigell/shl-recommender/internal/catalog"
	"github.com/spigell/shl-recommender/internal/filtering"
	"github.com/spigell/shl-recommender/internal/index"
	"github.com/spigell/shl-recommender/internal/logger"
	"github.com/spigell/shl-recommender/internal/metrics"
	"github.com/spigell/shl-recommender/internal/querycache"
	"github.com/spigell/shl-recommender/internal/utils"
)

const (
	DefaultMaxK            = 50
	DefaultProviderTimeout = 30 * time.Second
	DefaultBuildTimeout    = 10 * time.Minute

	SourceLoaded = "loaded"
	SourceBuilt  = "built"

	ensureKey  = "ensure"
	rebuildKey = "rebuild"
)

// Config holds the engine settings.
type Config struct {
	CatalogFiles []string
	DefaultK     int
	MaxK         int
	Enhance      bool
	// ProviderTimeout bounds every enhancement and query embedding call.
	ProviderTimeout time.Duration
	// BuildTimeout bounds a whole index build.
	BuildTimeout time.Duration
	MaxLogLength int
}

// Deps are the collaborators of the engine. Store and Embedder are required.
type Deps struct {
	Store    *index.Store
	Embedder ai.Embedder
	Enhancer ai.QueryEnhancer
	Cache    querycache.Cache
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Request is a single recommendation call.
type Request struct {
	Query   string            `json:"query"`
	K       int               `json:"k,omitempty"`
	Filters *filtering.Config `json:"filters,omitempty"`
}

// Result is a projected catalog record with its distance to the query.
type Result struct {
	Name            string                  `json:"name"`
	URL             string                  `json:"url"`
	RemoteSupport   catalog.RemoteSupport   `json:"remote_support"`
	AdaptiveSupport catalog.AdaptiveSupport `json:"adaptive_support"`
	TestTypes       []string                `json:"test_types"`
	Duration        any                     `json:"duration"`
	Distance        float32                 `json:"distance"`
}

// Response carries the query actually embedded and the ranked results.
type Response struct {
	Query          string   `json:"query"`
	RawQuery       string   `json:"raw_query"`
	Degraded       bool     `json:"degraded"`
	DegradedReason string   `json:"degraded_reason,omitempty"`
	Results        []Result `json:"results"`
}

// Stats describes the index currently served.
type Stats struct {
	Ready     bool      `json:"ready"`
	Documents int       `json:"documents"`
	Dimension int       `json:"dimension"`
	Source    string    `json:"source,omitempty"`
	ReadyAt   time.Time `json:"ready_at,omitempty"`
	Model     string    `json:"model"`
}

type snapshot struct {
	flat    *index.Flat
	records []catalog.Record
	source  string
	readyAt time.Time
}

// Engine serves recommendations from a lazily materialized index.
// It is safe for concurrent use.
type Engine struct {
	cfg      Config
	store    *index.Store
	embedder ai.Embedder
	enhancer ai.QueryEnhancer
	cache    querycache.Cache
	metrics  *metrics.Metrics
	logger   *zap.Logger

	current atomic.Pointer[snapshot]
	group   singleflight.Group
	// buildMu serializes index construction and artifact access between cold start and rebuild.
	buildMu sync.Mutex
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("index store is required")
	}
	if deps.Embedder == nil {
		return nil, errors.New("embedder is required")
	}

	if cfg.DefaultK <= 0 {
		cfg.DefaultK = index.DefaultK
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = DefaultMaxK
	}
	if cfg.DefaultK > cfg.MaxK {
		cfg.DefaultK = cfg.MaxK
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = DefaultBuildTimeout
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = 200
	}

	return &Engine{
		cfg:      cfg,
		store:    deps.Store,
		embedder: deps.Embedder,
		enhancer: deps.Enhancer,
		cache:    deps.Cache,
		metrics:  deps.Metrics,
		logger:   logger.OrNop(deps.Logger).With(zap.String("embedding_model", deps.Embedder.Model())),
	}, nil
}

// Recommend enhances the query, embeds it and returns the nearest assessments.
func (e *Engine) Recommend(ctx context.Context, req Request) (resp *Response, err error) {
	started := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = string(CodeOf(err))
		case resp.Degraded:
			outcome = "degraded"
		}
		e.metrics.ObserveRequest(outcome, time.Since(started))
	}()

	raw := strings.TrimSpace(req.Query)
	if raw == "" {
		return nil, newError(CodeInvalidQuery, "recommend", errors.New("query must not be empty"))
	}

	var steps []filtering.Filter
	if !req.Filters.IsZero() {
		steps = filtering.ForConfig(req.Filters)
		if err := filtering.Validate(req.Filters, steps); err != nil {
			return nil, newError(CodeInvalidQuery, "recommend", fmt.Errorf("filters: %w", err))
		}
		e.logger.Debug("filters requested", zap.Any("filters", filtering.Describe(steps)))
	}

	k := e.resolveK(req.K)

	snap, err := e.ensure(ctx)
	if err != nil {
		return nil, err
	}

	query, degradedReason := e.enhance(ctx, raw)

	vector, err := e.embedQuery(ctx, query)
	if err != nil {
		e.metrics.ProviderError(string(CodeOf(err)))
		return nil, err
	}

	limit := k
	if !req.Filters.IsZero() {
		limit = snap.flat.Len()
	}

	hits, err := snap.flat.Search(vector, limit)
	if err != nil {
		return nil, classify("search", err, CodeInternal)
	}

	candidates := make([]filtering.Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, filtering.Candidate{
			Record:   snap.records[hit.Position],
			Distance: hit.Distance,
		})
	}

	ranked := filtering.NewCandidates(candidates)
	if !req.Filters.IsZero() {
		ranked, err = filtering.Run(ctx, req.Filters, filtering.Deps{Logger: e.logger}, steps, ranked)
		if err != nil {
			return nil, newError(CodeInternal, "filter", err)
		}
	}
	ranked.Truncate(k)

	resp = &Response{
		Query:          query,
		RawQuery:       raw,
		Degraded:       degradedReason != "",
		DegradedReason: degradedReason,
		Results:        make([]Result, 0, ranked.Len()),
	}
	for _, item := range ranked.Items {
		resp.Results = append(resp.Results, project(item))
	}

	e.logger.Info("recommendation served",
		zap.String("query", utils.TruncateForLog(query, e.cfg.MaxLogLength)),
		zap.Int("k", k),
		zap.Int("results", len(resp.Results)),
		zap.Bool("degraded", resp.Degraded),
		zap.Duration("elapsed", time.Since(started)),
	)

	return resp, nil
}

// EnsureIndex loads the persisted index or builds it when absent or unusable.
// Concurrent callers share a single load or build.
func (e *Engine) EnsureIndex(ctx context.Context) error {
	_, err := e.ensure(ctx)
	return err
}

// Rebuild rebuilds the index from the catalog, persists it and swaps it in.
// Requests keep using the previous index until the new one is ready.
// A rebuild waits for any cold-start build in progress.
func (e *Engine) Rebuild(ctx context.Context) error {
	ch := e.group.DoChan(rebuildKey, func() (any, error) {
		e.buildMu.Lock()
		defer e.buildMu.Unlock()
		return e.build(context.WithoutCancel(ctx), "rebuild")
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return classify("rebuild", ctx.Err(), CodeInternal)
	}
}

// Stats reports the index currently served.
func (e *Engine) Stats() Stats {
	stats := Stats{Model: e.embedder.Model()}

	snap := e.current.Load()
	if snap == nil {
		return stats
	}

	stats.Ready = true
	stats.Documents = snap.flat.Len()
	stats.Dimension = snap.flat.Dim()
	stats.Source = snap.source
	stats.ReadyAt = snap.readyAt
	return stats
}

func (e *Engine) resolveK(k int) int {
	if k <= 0 {
		return e.cfg.DefaultK
	}
	return min(k, e.cfg.MaxK)
}

func (e *Engine) ensure(ctx context.Context) (*snapshot, error) {
	if snap := e.current.Load(); snap != nil {
		return snap, nil
	}

	ch := e.group.DoChan(ensureKey, func() (any, error) {
		if snap := e.current.Load(); snap != nil {
			return snap, nil
		}
		return e.loadOrBuild(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*snapshot), nil
	case <-ctx.Done():
		return nil, classify("ensure index", ctx.Err(), CodeInternal)
	}
}

func (e *Engine) loadOrBuild(ctx context.Context) (*snapshot, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	// A rebuild may have finished while this call waited for the lock.
	if snap := e.current.Load(); snap != nil {
		return snap, nil
	}

	flat, records, err := e.store.Load()
	switch {
	case err == nil:
		readyAt := e.store.ModTime()
		if readyAt.IsZero() {
			readyAt = time.Now()
		}
		snap := &snapshot{flat: flat, records: records, source: SourceLoaded, readyAt: readyAt}
		e.current.Store(snap)
		e.metrics.IndexBuilt(SourceLoaded)
		e.logger.Info("index loaded",
			zap.String("path", e.store.IndexPath()),
			zap.Int("documents", flat.Len()),
			zap.Int("dimension", flat.Dim()),
		)
		return snap, nil
	case errors.Is(err, index.ErrNotFound):
		e.logger.Info("index not found, building", zap.Error(err))
	case errors.Is(err, index.ErrCorrupt):
		e.logger.Warn("index artifacts are unusable, rebuilding", zap.Error(err))
		if err := e.store.Remove(); err != nil {
			e.logger.Warn("removing unusable index artifacts failed", zap.Error(err))
		}
	default:
		return nil, classify("load index", err, CodeInternal)
	}

	return e.build(ctx, "ensure index")
}

// build must be called with buildMu held.
func (e *Engine) build(ctx context.Context, op string) (*snapshot, error) {
	records, err := catalog.Load(e.cfg.CatalogFiles...)
	if err != nil {
		if errors.Is(err, catalog.ErrMissing) {
			return nil, newError(CodeCatalogMissing, op, err)
		}
		return nil, newError(CodeInternal, op, fmt.Errorf("load catalog: %w", err))
	}
	if len(records) == 0 {
		return nil, newError(CodeCatalogMissing, op, errors.New("catalog is empty"))
	}

	buildCtx, cancel := context.WithTimeout(ctx, e.cfg.BuildTimeout)
	defer cancel()

	started := time.Now()
	flat, err := index.Build(buildCtx, e.embedder, records)
	if err != nil {
		e.metrics.ProviderError(string(CodeEmbeddingProvider))
		return nil, classify(op, fmt.Errorf("build index: %w", err), CodeEmbeddingProvider)
	}

	if err := e.store.Persist(flat, records); err != nil {
		return nil, newError(CodeInternal, op, fmt.Errorf("persist index: %w", err))
	}

	snap := &snapshot{flat: flat, records: records, source: SourceBuilt, readyAt: time.Now()}
	e.current.Store(snap)
	e.metrics.IndexBuilt(SourceBuilt)

	e.logger.Info("index built",
		zap.Int("documents", flat.Len()),
		zap.Int("dimension", flat.Dim()),
		zap.Duration("elapsed", time.Since(started)),
	)

	return snap, nil
}

// enhance returns the query to embed and a non-empty reason when the raw query is used as a fallback.
func (e *Engine) enhance(ctx context.Context, raw string) (string, string) {
	if !e.cfg.Enhance || e.enhancer == nil {
		return raw, ""
	}

	if e.cache != nil {
		cached, ok, err := e.cache.Get(ctx, raw)
		if err != nil {
			e.logger.Warn("query cache lookup failed", zap.Error(err))
		}
		e.metrics.CacheLookup(ok)
		if ok {
			return cached, ""
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	enhanced, err := e.enhancer.Enhance(callCtx, raw)
	if err == nil && strings.TrimSpace(enhanced) == "" {
		err = ai.ErrEmptyResponse
	}
	if err != nil {
		code := CodeEnhancement
		if errors.Is(err, context.DeadlineExceeded) {
			code = CodeProviderTimeout
		}
		e.metrics.ProviderError(string(code))
		e.logger.Warn("query enhancement failed, using raw query",
			zap.String("query", utils.TruncateForLog(raw, e.cfg.MaxLogLength)),
			zap.String("code", string(code)),
			zap.Error(err),
		)
		return raw, string(code)
	}

	enhanced = strings.TrimSpace(enhanced)
	if e.cache != nil {
		if err := e.cache.Set(ctx, raw, enhanced); err != nil {
			e.logger.Warn("query cache store failed", zap.Error(err))
		}
	}

	e.logger.Debug("query enhanced",
		zap.String("raw", utils.TruncateForLog(raw, e.cfg.MaxLogLength)),
		zap.String("enhanced", utils.TruncateForLog(enhanced, e.cfg.MaxLogLength)),
	)

	return enhanced, ""
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	vector, err := e.embedder.EmbedQuery(callCtx, query)
	if err != nil {
		return nil, classify("embed query", err, CodeEmbeddingProvider)
	}

	return vector, nil
}

func project(item filtering.Candidate) Result {
	r := item.Record
	types := r.TestTypes
	if types == nil {
		types = []string{}
	}
	return Result{
		Name:            r.Name,
		URL:             r.URL,
		RemoteSupport:   r.RemoteSupport,
		AdaptiveSupport: r.AdaptiveSupport,
		TestTypes:       types,
		Duration:        r.DurationValue(),
		Distance:        item.Distance,
	}
}
