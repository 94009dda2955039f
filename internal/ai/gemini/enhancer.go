package gemini

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/shl-recommender/internal/ai"
	"github.com/spigell/shl-recommender/internal/logger"
	"github.com/spigell/shl-recommender/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength = 200
	maxQueryRunes       = 2000
)

// Enhancer turns free-text queries into "<Job Title> <Duration> <skills>" lines.
type Enhancer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.QueryEnhancer = (*Enhancer)(nil)

func NewEnhancer(generator contentGenerator, maxLogLength int, log *zap.Logger) *Enhancer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Enhancer{
		generator: generator,
		logger:    logger.OrNop(log),
		maxLogLen: maxLogLength,
	}
}

func (e *Enhancer) Enhance(ctx context.Context, query string) (string, error) {
	query = sanitizeQuery(query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}

	prompt := buildPrompt(query)

	e.logger.Debug("gemini enhance request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("query", utils.TruncateForLog(query, e.maxLogLen)),
	)

	raw, err := e.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return "", err
	}

	e.logger.Debug("gemini enhance response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	enhanced := firstLine(raw)
	if enhanced == "" {
		return "", ai.ErrEmptyResponse
	}

	return enhanced, nil
}

func buildPrompt(query string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Rewrite \"{{QUERY}}\" as: [Job Title] [Duration in mins] [Comma-separated key skills]. Return a single line."
	}
	return strings.ReplaceAll(template, "{{QUERY}}", query)
}

// sanitizeQuery flattens the query to a single line and keeps it from closing the quoted prompt slot.
func sanitizeQuery(query string) string {
	query = strings.Join(strings.Fields(query), " ")
	query = strings.ReplaceAll(query, `"`, "'")
	if utf8.RuneCountInString(query) > maxQueryRunes {
		query = string([]rune(query)[:maxQueryRunes])
	}
	return query
}

// firstLine returns the first meaningful line of a model answer, without code fences or quotes.
func firstLine(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.Trim(line, "`\"'")
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
