// Package scraper collects the assessment catalog from the public product catalog pages.
package scraper

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/spigell/shl-recommender/internal/logger"
	"github.com/spigell/shl-recommender/internal/utils"
)

const (
	DefaultBaseURL = "https://www.shl.com"
	CatalogPath    = "/solutions/products/product-catalog/"

	userAgent       = "Mozilla/5.0 (compatible; shl-recommender)"
	contentEncoding = "gzip"
	defaultDelay    = 2 * time.Second
)

// Config holds scraper settings.
type Config struct {
	BaseURL string        `mapstructure:"base-url"`
	Delay   time.Duration `mapstructure:"delay"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	BaseURL    string
	// Delay is the polite pause between two page fetches.
	Delay time.Duration
}

func New(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Delay < 0 {
		cfg.Delay = defaultDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		logger: logger.OrNop(log),
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		UserAgent: userAgent,
		BaseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		Delay:     cfg.Delay,
	}
}

// StatusError is returned for responses other than 200 OK.
type StatusError struct {
	URL    string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: bad status: %s", e.URL, e.Status)
}

// getDocument fetches and parses an HTML page.
func (c *Client) getDocument(ctx context.Context, rawURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	req = c.setHeaders(req)

	resp, err := c.request(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, Status: resp.Status, Code: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	doc, err := html.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	return doc, nil
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

// resolve turns a catalog link into an absolute URL.
func (c *Client) resolve(ref string) (string, error) {
	base, err := url.Parse(c.BaseURL + "/")
	if err != nil {
		return "", err
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

// pause waits the configured delay plus up to half of it as jitter.
func (c *Client) pause(ctx context.Context) error {
	return utils.WaitJittered(ctx, c.Delay)
}

func isStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}
