// Package aitest provides deterministic in-memory providers for tests.
package aitest

import (
	"context"
	"strings"
	"sync"

	"github.com/spigell/shl-recommender/internal/ai"
)

// DefaultVocabulary maps tokens to dimensions. Synonyms share a dimension.
var DefaultVocabulary = map[string]int{
	"java":        0,
	"python":      1,
	"dev":         2,
	"developer":   2,
	"test":        3,
	"knowledge":   4,
	"personality": 5,
	"leadership":  6,
	"assessment":  7,
}

// KeywordEmbedder embeds text as token counts over a fixed vocabulary.
// Unknown tokens are ignored. It is safe for concurrent use.
type KeywordEmbedder struct {
	Vocabulary map[string]int
	Err        error
	// Block, when set, is received from before every call returns.
	Block chan struct{}

	mu            sync.Mutex
	documentCalls int
	queryCalls    int
	documents     []string
	inFlight      int
	maxInFlight   int
}

var _ ai.Embedder = (*KeywordEmbedder)(nil)

func NewKeywordEmbedder() *KeywordEmbedder {
	return &KeywordEmbedder{Vocabulary: DefaultVocabulary}
}

func (k *KeywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	k.mu.Lock()
	k.documentCalls++
	k.documents = append(k.documents, texts...)
	k.inFlight++
	k.maxInFlight = max(k.maxInFlight, k.inFlight)
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		k.inFlight--
		k.mu.Unlock()
	}()

	if err := k.wait(ctx); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = k.vector(text)
	}
	return vectors, nil
}

func (k *KeywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	k.mu.Lock()
	k.queryCalls++
	k.mu.Unlock()

	if err := k.wait(ctx); err != nil {
		return nil, err
	}
	return k.vector(text), nil
}

func (k *KeywordEmbedder) Model() string { return "keyword-test" }

// DocumentCalls returns how many EmbedDocuments calls were made.
func (k *KeywordEmbedder) DocumentCalls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.documentCalls
}

// MaxConcurrentDocumentCalls returns the highest number of overlapping EmbedDocuments calls seen.
func (k *KeywordEmbedder) MaxConcurrentDocumentCalls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.maxInFlight
}

// QueryCalls returns how many EmbedQuery calls were made.
func (k *KeywordEmbedder) QueryCalls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.queryCalls
}

// Documents returns every document text embedded so far.
func (k *KeywordEmbedder) Documents() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.documents...)
}

func (k *KeywordEmbedder) wait(ctx context.Context) error {
	if k.Block != nil {
		select {
		case <-k.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return k.Err
}

func (k *KeywordEmbedder) vector(text string) []float32 {
	dims := 0
	for _, d := range k.Vocabulary {
		dims = max(dims, d+1)
	}

	vec := make([]float32, dims)
	for _, token := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if d, ok := k.Vocabulary[token]; ok {
			vec[d]++
		}
	}
	return vec
}

// StaticEnhancer returns Result, or Err when set.
type StaticEnhancer struct {
	Result string
	Err    error

	mu    sync.Mutex
	calls int
}

var _ ai.QueryEnhancer = (*StaticEnhancer)(nil)

func (s *StaticEnhancer) Enhance(_ context.Context, query string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.Err != nil {
		return "", s.Err
	}
	if s.Result == "" {
		return query, nil
	}
	return s.Result, nil
}

// Calls returns how many times Enhance was called.
func (s *StaticEnhancer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
