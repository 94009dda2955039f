// Package ai declares the model-backed capabilities the recommender depends on.
package ai

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without usable content.
var ErrEmptyResponse = errors.New("provider returned empty response")

// Embedder maps text to vectors. Documents and queries use distinct task types
// of the same model, so vectors from both methods are comparable.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// QueryEnhancer rewrites a free-text query into the catalog document phrasing.
type QueryEnhancer interface {
	Enhance(ctx context.Context, query string) (string, error)
}
