package scraper

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/shl-recommender/internal/catalog"
)

const (
	lengthHeading  = "assessment length"
	completionText = "Approximate Completion Time"
)

// Duration reads the approximate completion time in minutes from an assessment page.
// It returns nil without error when the page carries no duration.
func (c *Client) Duration(ctx context.Context, pageURL string) (*int, error) {
	doc, err := c.getDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	for _, row := range calendarRowSelect.MatchAll(doc) {
		heading := headingSelector.MatchFirst(row)
		if heading == nil || !strings.Contains(strings.ToLower(text(heading)), lengthHeading) {
			continue
		}

		for _, p := range paragraphSelector.MatchAll(row) {
			content := text(p)
			if !strings.Contains(content, completionText) {
				continue
			}
			return digits(content), nil
		}
	}

	return nil, nil
}

// Enrich fills missing or stale durations in place and returns how many records were updated.
// Pages that fail to load are logged and skipped.
func (c *Client) Enrich(ctx context.Context, records []catalog.Record) (int, error) {
	updated := 0
	for i := range records {
		record := &records[i]

		minutes, err := c.Duration(ctx, record.URL)
		switch {
		case ctx.Err() != nil:
			return updated, ctx.Err()
		case isStatus(err, http.StatusNotFound):
			c.logger.Debug("assessment page not found", zap.String("name", record.Name), zap.String("url", record.URL))
		case err != nil:
			c.logger.Warn("fetching duration failed", zap.String("name", record.Name), zap.Error(err))
		case minutes != nil:
			record.Duration = minutes
			updated++
			c.logger.Info("found duration", zap.String("name", record.Name), zap.Int("minutes", *minutes))
		default:
			c.logger.Debug("no duration on page", zap.String("name", record.Name))
		}

		if i < len(records)-1 {
			if err := c.pause(ctx); err != nil {
				return updated, err
			}
		}
	}

	return updated, nil
}

func digits(s string) *int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return nil
	}

	n, err := strconv.Atoi(b.String())
	if err != nil {
		return nil
	}
	return &n
}
