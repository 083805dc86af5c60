package research

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/analysis"
	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
	"github.com/mohammad-safakhou/deepresearch/internal/scraper"
	"github.com/mohammad-safakhou/deepresearch/internal/search"
)

// Coordinator drives the retrieval half of a run: term expansion, provider
// queries (plain or dork-augmented), dedupe and domain filtering, and the
// chunked concurrent scrape.
type Coordinator struct {
	analyst   Analyst
	searcher  Searcher
	fetcher   PageFetcher
	searchCfg config.SearchConfig
	scrapeCfg config.ScraperConfig
	logger    *log.Logger
}

func NewCoordinator(analyst Analyst, searcher Searcher, fetcher PageFetcher, searchCfg config.SearchConfig, scrapeCfg config.ScraperConfig, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		analyst:   analyst,
		searcher:  searcher,
		fetcher:   fetcher,
		searchCfg: searchCfg,
		scrapeCfg: scrapeCfg,
		logger:    logger,
	}
}

// ExpandQuery asks the model for search terms and categories. It never
// fails: when the model errors out or returns nothing usable, the raw query
// itself becomes the single term.
func (c *Coordinator) ExpandQuery(ctx context.Context, query string) analysis.TermExpansion {
	exp, err := c.analyst.ExpandTerms(ctx, query)
	if err != nil {
		c.logger.Printf("term expansion failed, falling back to raw query: %v", err)
		return analysis.FallbackExpansion(query)
	}
	if len(exp.Terms) == 0 {
		return analysis.FallbackExpansion(query)
	}
	if len(exp.Categories) == 0 {
		exp.Categories = []string{"general"}
	}
	return exp
}

// Retrieve runs the search and scrape phases for the given terms and
// returns the deduplicated, filtered, fetched sources. Individual provider
// queries and page fetches fail soft; only context cancellation aborts the
// whole phase.
func (c *Coordinator) Retrieve(ctx context.Context, exp analysis.TermExpansion, opts Options) (*Retrieval, error) {
	maxResults := opts.MaxSources
	if maxResults <= 0 {
		maxResults = c.searchCfg.MaxResults
	}

	hits, err := c.collectHits(ctx, exp.Terms, maxResults, opts.UseAdvancedSearch)
	if err != nil {
		return nil, err
	}
	hits = c.filterDomains(hits)
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}

	sources, err := c.fetchAll(ctx, hits)
	if err != nil {
		return nil, err
	}

	return &Retrieval{
		Terms:      exp.Terms,
		Categories: exp.Categories,
		Sources:    sources,
		Stats:      computeStats(sources),
	}, nil
}

// collectHits runs the provider queries and merges results, first-seen
// canonical URL wins. In advanced mode the first term is fanned out across
// the dork variants with half the budget; the remaining terms share the
// other half.
func (c *Coordinator) collectHits(ctx context.Context, terms []string, maxResults int, advanced bool) ([]search.Hit, error) {
	var merged []search.Hit
	seen := make(map[string]struct{})
	add := func(hits []search.Hit) {
		for _, h := range hits {
			key, err := helpers.CanonicalURL(h.URL)
			if err != nil {
				// A URL that cannot be canonicalized still identifies itself.
				key = h.URL
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, h)
		}
	}
	run := func(term string, budget int, dork string) {
		hits, err := c.searcher.Search(ctx, term, budget)
		if err != nil {
			c.logger.Printf("search %q failed: %v", term, err)
			return
		}
		for i := range hits {
			hits[i].Dork = dork
		}
		add(hits)
	}

	if advanced && len(terms) > 0 {
		dorkBudget := search.VariantBudget(maxResults / 2)
		for i, d := range search.Variants {
			if i > 0 {
				if err := pace(ctx, c.searchCfg.DorkDelay); err != nil {
					return nil, err
				}
			}
			run(d.Apply(terms[0]), dorkBudget, d.Tag)
		}
		rest := terms[1:]
		if len(rest) > 0 {
			perTerm := ceilDiv(maxResults-maxResults/2, len(rest))
			for _, term := range rest {
				if err := pace(ctx, c.searchCfg.TermDelay); err != nil {
					return nil, err
				}
				run(term, perTerm, "")
			}
		}
		return merged, nil
	}

	perTerm := maxResults
	if len(terms) > 1 {
		perTerm = ceilDiv(maxResults, len(terms))
	}
	for i, term := range terms {
		if i > 0 {
			if err := pace(ctx, c.searchCfg.TermDelay); err != nil {
				return nil, err
			}
		}
		run(term, perTerm, "")
	}
	return merged, nil
}

// filterDomains drops hits on blocked domains and, when an explicit allow
// list is configured, hits outside it. Patterns support globs via
// helpers.MatchDomain.
func (c *Coordinator) filterDomains(hits []search.Hit) []search.Hit {
	allowAll := len(c.searchCfg.AllowedDomains) == 0
	for _, p := range c.searchCfg.AllowedDomains {
		if p == "*" {
			allowAll = true
		}
	}

	kept := hits[:0]
	for _, h := range hits {
		domain := helpers.Domain(h.URL)
		blocked := false
		for _, p := range c.searchCfg.BlockedDomains {
			if helpers.MatchDomain(p, domain) {
				blocked = true
				break
			}
		}
		if blocked {
			c.logger.Printf("skipping blocked domain %s", domain)
			continue
		}
		if !allowAll {
			allowed := false
			for _, p := range c.searchCfg.AllowedDomains {
				if helpers.MatchDomain(p, domain) {
					allowed = true
					break
				}
			}
			if !allowed {
				continue
			}
		}
		kept = append(kept, h)
	}
	return kept
}

// fetchAll scrapes the hits in fixed-size chunks with one goroutine per URL
// inside a chunk. A failed or thin page drops silently from the working set;
// hit order is preserved for the survivors.
func (c *Coordinator) fetchAll(ctx context.Context, hits []search.Hit) ([]*scraper.Source, error) {
	chunkSize := c.scrapeCfg.MaxConcurrent
	if chunkSize <= 0 {
		chunkSize = 1
	}

	fetched := make([]*scraper.Source, len(hits))
	for start := 0; start < len(hits); start += chunkSize {
		if start > 0 {
			if err := pace(ctx, c.scrapeCfg.ChunkDelay); err != nil {
				return nil, err
			}
		}
		end := start + chunkSize
		if end > len(hits) {
			end = len(hits)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				hit := hits[i]
				src, err := c.fetcher.Fetch(ctx, hit.URL)
				if err != nil {
					c.logger.Printf("scrape %s failed: %v", hit.URL, err)
					return
				}
				if src == nil {
					return
				}
				src.SearchTerm = hit.Term
				if src.Title == "" {
					src.Title = hit.Title
				}
				if src.Description == "" {
					src.Description = hit.Snippet
				}
				fetched[i] = src
			}(i)
		}
		wg.Wait()
	}

	sources := make([]*scraper.Source, 0, len(hits))
	for _, src := range fetched {
		if src != nil {
			sources = append(sources, src)
		}
	}
	c.logger.Printf("scraped %d/%d pages", len(sources), len(hits))
	return sources, nil
}

// computeStats summarizes the scraped working set. Top domains are capped
// at ten, ordered by count descending with first-seen order breaking ties.
func computeStats(sources []*scraper.Source) Stats {
	stats := Stats{TotalSources: len(sources)}
	if len(sources) == 0 {
		return stats
	}

	counts := make(map[string]int)
	var order []string
	for _, src := range sources {
		domain := src.Domain
		if domain == "" {
			domain = helpers.Domain(src.URL)
		}
		if _, ok := counts[domain]; !ok {
			order = append(order, domain)
		}
		counts[domain]++
		stats.TotalContent += len(src.Content)
		stats.TotalWordCount += src.WordCount
	}
	stats.AverageContent = stats.TotalContent / len(sources)
	stats.AverageWordCount = stats.TotalWordCount / len(sources)

	firstSeen := make(map[string]int, len(order))
	for i, d := range order {
		firstSeen[d] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return firstSeen[order[i]] < firstSeen[order[j]]
	})
	if len(order) > 10 {
		order = order[:10]
	}
	for _, d := range order {
		stats.TopDomains = append(stats.TopDomains, DomainCount{Domain: d, Count: counts[d]})
	}
	return stats
}
