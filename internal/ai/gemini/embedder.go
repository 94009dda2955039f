package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/shl-recommender/internal/ai"
	"github.com/spigell/shl-recommender/internal/logger"
)

const (
	// TaskTypeDocument is used for catalog documents at index time.
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	// TaskTypeQuery is used for user queries at search time.
	TaskTypeQuery = "RETRIEVAL_QUERY"

	// DefaultBatchSize keeps requests under the provider payload limit.
	DefaultBatchSize = 100

	defaultEmbeddingModel = "text-embedding-004"
)

// Embedder produces document and query embeddings with a single Gemini embedding model.
type Embedder struct {
	models     modelsAPI
	model      string
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates an Embedder on top of an existing client.
func NewEmbedder(client *genai.Client, model string, batchSize, maxRetries int, log *zap.Logger) (*Embedder, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultEmbeddingModel
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &Embedder{
		models:     client.Models,
		model:      model,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		retryDelay: defaultRetryDelay,
		logger:     logger.WithCommonFields(log, Provider, model),
	}, nil
}

// EmbedDocuments embeds texts in batches and returns vectors in input order.
// Any failed batch fails the whole call.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		batch, err := e.embed(ctx, texts[start:end], TaskTypeDocument)
		if err != nil {
			return nil, fmt.Errorf("embed documents %d-%d of %d: %w", start, end, len(texts), err)
		}

		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedQuery embeds a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("query must not be empty")
	}

	vectors, err := e.embed(ctx, []string{text}, TaskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return vectors[0], nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.model
}

func (e *Embedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	e.logger.Debug("gemini embed content request",
		zap.String(logger.FieldTaskType, taskType),
		zap.Int("batch_size", len(texts)),
	)

	var resp *genai.EmbedContentResponse
	err := withRetries(ctx, e.maxRetries, e.retryDelay, e.logger, "embed content", func() error {
		var err error
		resp, err = e.models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{TaskType: taskType})
		return err
	})
	if err != nil {
		return nil, err
	}

	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), got)
	}

	vectors := make([][]float32, len(texts))
	for i, embedding := range resp.Embeddings {
		if embedding == nil || len(embedding.Values) == 0 {
			return nil, fmt.Errorf("embedding %d: %w", i, ai.ErrEmptyResponse)
		}
		vectors[i] = embedding.Values
	}

	return vectors, nil
}
