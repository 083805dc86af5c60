package scraper

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
)

// maxBodyBytes bounds how much HTML is read from one page.
const maxBodyBytes = 5 << 20

// Source is the scraped content of a single URL. A Source only exists when
// the fetch succeeded and the extracted content cleared the minimum length;
// anything thinner is dropped before it reaches analysis.
type Source struct {
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	WordCount   int       `json:"word_count"`
	SearchTerm  string    `json:"search_term"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// Fetcher retrieves one page per URL and extracts its main content block.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxChars  int
	minChars  int
	logger    *log.Logger
}

// New creates a fetcher from configuration. Redirects are followed up to the
// configured cap and every fetch shares one pacing limiter.
func New(cfg config.ScraperConfig, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[SCRAPER] ", log.LstdFlags)
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: cfg.UserAgent,
		maxChars:  cfg.MaxContentChars,
		minChars:  cfg.MinContentChars,
		logger:    logger,
	}
}

// Fetch retrieves a URL and extracts title, description and the best-effort
// main content block. It returns (nil, nil) when the page loaded but the
// extracted content stayed under the minimum length; such pages are not an
// error, they just produce no source.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Source, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("empty url")
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		fetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read page: %w", err)
	}

	page, err := extract(string(body), rawURL, f.minChars)
	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	content := helpers.TruncateChars(page.content, f.maxChars)
	if len(content) < f.minChars {
		fetchesTotal.WithLabelValues("thin").Inc()
		f.logger.Printf("dropping %s: content below %d chars", rawURL, f.minChars)
		return nil, nil
	}

	fetchesTotal.WithLabelValues("ok").Inc()
	return &Source{
		URL:         rawURL,
		Domain:      helpers.Domain(rawURL),
		Title:       page.title,
		Description: page.description,
		Content:     content,
		WordCount:   helpers.WordCount(content),
		ScrapedAt:   time.Now().UTC(),
	}, nil
}
