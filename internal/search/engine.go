package search

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/mohammad-safakhou/deepresearch/config"
)

// maxResponseBytes bounds how much of a results page is read.
const maxResponseBytes = 2 << 20

// Hit is one organic search result. Identity is the canonical URL; Term and
// Dork record which expanded term and query-refinement variant produced it.
type Hit struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Term    string `json:"term"`
	Dork    string `json:"dork,omitempty"`
}

// Engine issues queries against the DuckDuckGo HTML endpoint and parses
// organic result blocks. It holds its own HTTP client and an injected pacing
// limiter so upstream throttling policy stays testable and tunable.
type Engine struct {
	client     *http.Client
	limiter    *rate.Limiter
	baseURL    string
	region     string
	safeSearch string
	userAgent  string
	logger     *log.Logger
}

// New creates a search engine from configuration.
func New(cfg config.SearchConfig, userAgent string, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Engine{
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		baseURL:    cfg.BaseURL,
		region:     cfg.Region,
		safeSearch: safeSearchParam(cfg.SafeSearch),
		userAgent:  userAgent,
		logger:     logger,
	}
}

// Search issues a single provider query and returns up to maxResults organic
// hits, deduplicated by canonical URL with the first occurrence winning.
// Callers treat an error as an empty result and continue the run.
func (e *Engine) Search(ctx context.Context, term string, maxResults int) ([]Hit, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", term)
	if e.region != "" {
		params.Set("kl", e.region)
	}
	if e.safeSearch != "" {
		params.Set("kp", e.safeSearch)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", e.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := e.client.Do(req)
	if err != nil {
		queriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		queriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search provider returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		queriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read results page: %w", err)
	}

	hits, err := parseResults(string(body), maxResults)
	if err != nil {
		queriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	for i := range hits {
		hits[i].Term = term
	}
	queriesTotal.WithLabelValues("ok").Inc()
	hitsTotal.Add(float64(len(hits)))
	e.logger.Printf("search %q returned %d hits", term, len(hits))
	return hits, nil
}

// safeSearchParam maps the config level onto DuckDuckGo's kp parameter.
func safeSearchParam(level string) string {
	switch level {
	case "strict":
		return "1"
	case "off":
		return "-2"
	default:
		return "-1"
	}
}
