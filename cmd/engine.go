package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/spigell/shl-recommender/internal/ai/gemini"
	"github.com/spigell/shl-recommender/internal/index"
	"github.com/spigell/shl-recommender/internal/metrics"
	"github.com/spigell/shl-recommender/internal/querycache"
	"github.com/spigell/shl-recommender/internal/recommender"
	"github.com/spigell/shl-recommender/internal/secrets"
)

// newEngine wires the Gemini providers, the artifact store and the optional cache into an engine.
func newEngine(ctx context.Context, config *Config, logger *zap.Logger) (*recommender.Engine, *metrics.Metrics, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.Gemini.APIKey,
		File:  config.Gemini.APIKeyFile,
		Env:   "GOOGLE_API_KEY",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w (or set gemini.api-key-file / GOOGLE_API_KEY_FILE)", err)
	}

	client, err := gemini.NewClient(ctx, apiKey)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := gemini.NewEmbedder(client, config.Gemini.EmbeddingModel, config.Index.BatchSize, config.Gemini.MaxRetries, logger)
	if err != nil {
		return nil, nil, err
	}

	generator, err := gemini.NewGenerator(client, config.Gemini.GenerationModel, config.Gemini.MaxRetries, logger)
	if err != nil {
		return nil, nil, err
	}
	enhancer := gemini.NewEnhancer(generator, config.Gemini.MaxLogLength, logger)

	cache, err := querycache.New(ctx, config.Cache)
	if err != nil {
		return nil, nil, fmt.Errorf("query cache: %w", err)
	}
	if cache != nil {
		logger.Info("enhanced query cache enabled", zap.String("backend", config.Cache.Backend))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	engine, err := recommender.New(recommender.Config{
		CatalogFiles:    config.Catalog.Files,
		DefaultK:        config.Recommend.DefaultK,
		MaxK:            config.Recommend.MaxK,
		Enhance:         config.Recommend.Enhance,
		ProviderTimeout: config.Gemini.Timeout,
		BuildTimeout:    config.Index.BuildTimeout,
		MaxLogLength:    config.Gemini.MaxLogLength,
	}, recommender.Deps{
		Store:    index.NewStore(config.Index.Dir, config.Index.IndexFile, config.Index.MetadataFile),
		Embedder: embedder,
		Enhancer: enhancer,
		Cache:    cache,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}

	return engine, m, nil
}
