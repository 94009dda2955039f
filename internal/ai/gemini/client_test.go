package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/shl-recommender/internal/ai"
)

type fakeModels struct {
	mu sync.Mutex

	generateQueue []fakeGenerateResponse
	generateCalls []string

	embedErrs  []error
	embedCalls []embedCall
	dims       int
}

type fakeGenerateResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type embedCall struct {
	model    string
	taskType string
	texts    []string
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateQueue = append(f.generateQueue, fakeGenerateResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, content := range contents {
		for _, part := range content.Parts {
			f.generateCalls = append(f.generateCalls, part.Text)
		}
	}

	if len(f.generateQueue) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.generateQueue[0]
	f.generateQueue = f.generateQueue[1:]
	return res.resp, res.err
}

// EmbedContent answers every text with a vector whose first element is the text length.
func (f *fakeModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := embedCall{model: model}
	if config != nil {
		call.taskType = config.TaskType
	}
	for _, content := range contents {
		call.texts = append(call.texts, content.Parts[0].Text)
	}
	f.embedCalls = append(f.embedCalls, call)

	if len(f.embedErrs) > 0 {
		err := f.embedErrs[0]
		f.embedErrs = f.embedErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	dims := f.dims
	if dims == 0 {
		dims = 2
	}

	resp := &genai.EmbedContentResponse{}
	for _, text := range call.texts {
		values := make([]float32, dims)
		values[0] = float32(len(text))
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: values})
	}
	return resp, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueue(textResponse("retry ok"), nil)

	g := &Generator{models: models, model: "gemini-test", maxRetries: 2, logger: zap.NewNop()}

	output, err := g.GenerateContent(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(models.generateCalls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.generateCalls))
	}
}

func TestGeneratorSingleAttemptByDefault(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"})

	g := &Generator{models: models, model: "gemini-test", logger: zap.NewNop()}

	_, err := g.GenerateContent(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected wrapped api error, got %v", err)
	}

	if len(models.generateCalls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.generateCalls))
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := &Generator{models: models, model: "gemini-test", maxRetries: 3, logger: zap.NewNop()}

	if _, err := g.GenerateContent(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error")
	}

	if len(models.generateCalls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.generateCalls))
	}
}

func TestGeneratorEmptyResponse(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "   "}}}}}}, nil)

	g := &Generator{models: models, model: "gemini-test", logger: zap.NewNop()}

	_, err := g.GenerateContent(context.Background(), "prompt")
	if !errors.Is(err, ai.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestGeneratorRejectsEmptyPrompt(t *testing.T) {
	g := &Generator{models: &fakeModels{}, model: "gemini-test", logger: zap.NewNop()}

	if _, err := g.GenerateContent(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestResponseTextJoinsParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			nil,
			{Content: &genai.Content{Parts: []*genai.Part{{Text: " first "}, nil, {Text: "second"}}}},
		},
	}

	if got := responseText(resp); got != "first\nsecond" {
		t.Fatalf("unexpected text: %q", got)
	}

	if got := responseText(nil); got != "" {
		t.Fatalf("expected empty text for nil response, got %q", got)
	}
}
