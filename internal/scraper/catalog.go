package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/spigell/shl-recommender/internal/catalog"
)

// Catalog listing types.
const (
	TypeIndividual  = 1
	TypePrepackaged = 2
)

// Options selects the listing pages to walk: start, start+step, ... while below Stop.
type Options struct {
	Type  int
	Start int
	Stop  int
	Step  int
}

// DefaultOptions walks the whole listing, twelve entries per page.
func DefaultOptions() Options {
	return Options{Type: TypeIndividual, Start: 0, Stop: 384, Step: 12}
}

// ScrapeCatalog walks listing pages until an empty page or opts.Stop and returns every row found.
func (c *Client) ScrapeCatalog(ctx context.Context, opts Options) ([]catalog.Record, error) {
	if opts.Step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %d", opts.Step)
	}

	var records []catalog.Record
	for start := opts.Start; start < opts.Stop; start += opts.Step {
		pageURL := c.listingURL(start, opts.Type)

		doc, err := c.getDocument(ctx, pageURL)
		if err != nil {
			return nil, err
		}

		page, err := c.parseListing(doc)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", pageURL, err)
		}

		c.logger.Info("scraped catalog page",
			zap.String("url", pageURL),
			zap.Int("assessments", len(page)),
		)

		if len(page) == 0 {
			c.logger.Info("no assessments found on page, stopping", zap.Int("start", start))
			break
		}
		records = append(records, page...)

		if err := c.pause(ctx); err != nil {
			return nil, err
		}
	}

	return records, nil
}

func (c *Client) listingURL(start, typ int) string {
	q := url.Values{}
	q.Set("start", strconv.Itoa(start))
	q.Set("type", strconv.Itoa(typ))
	return c.BaseURL + CatalogPath + "?" + q.Encode()
}

func (c *Client) parseListing(doc *html.Node) ([]catalog.Record, error) {
	rows := rowSelector.MatchAll(doc)
	records := make([]catalog.Record, 0, len(rows))

	for _, row := range rows {
		link := titleSelector.MatchFirst(row)
		if link == nil {
			c.logger.Debug("row without title link, skipping", zap.String("entity_id", attr(row, "data-entity-id")))
			continue
		}

		full, err := c.resolve(attr(link, "href"))
		if err != nil {
			return nil, fmt.Errorf("resolve link of %q: %w", text(link), err)
		}

		record := catalog.Record{
			ID:              catalog.RecordID(full),
			Name:            text(link),
			URL:             full,
			RemoteSupport:   catalog.RemoteNo,
			AdaptiveSupport: catalog.AdaptiveNo,
			TestTypes:       []string{},
		}
		if remoteSelector.MatchFirst(row) != nil {
			record.RemoteSupport = catalog.RemoteYes
		}
		if adaptiveSelector.MatchFirst(row) != nil {
			record.AdaptiveSupport = catalog.AdaptiveYes
		}
		for _, key := range testTypeSelector.MatchAll(row) {
			if t := text(key); t != "" {
				record.TestTypes = append(record.TestTypes, t)
			}
		}

		records = append(records, record)
	}

	return records, nil
}
