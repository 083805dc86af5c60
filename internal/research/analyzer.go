package research

import (
	"context"
	"log"
	"sync"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
	"github.com/mohammad-safakhou/deepresearch/internal/scraper"
)

// Analyzer scores scraped sources in rate-limited batches and attaches
// embeddings to the relevant ones, consulting the fingerprint cache first.
type Analyzer struct {
	analyst Analyst
	cache   EmbeddingCache
	cfg     config.AnalysisConfig
	logger  *log.Logger
}

func NewAnalyzer(analyst Analyst, cache EmbeddingCache, cfg config.AnalysisConfig, logger *log.Logger) *Analyzer {
	if logger == nil {
		logger = log.Default()
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Analyzer{analyst: analyst, cache: cache, cfg: cfg, logger: logger}
}

// AnalyzeAll runs model analysis over the sources in batches of the
// configured size, members of a batch concurrently. Sources whose analysis
// call fails drop from the working set without retry; embedding failures
// only lose the vector. Source order is preserved for survivors.
func (a *Analyzer) AnalyzeAll(ctx context.Context, query string, sources []*scraper.Source, generateEmbeddings bool) []Analyzed {
	batchSize := a.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	results := make([]*Analyzed, len(sources))
	for start := 0; start < len(sources); start += batchSize {
		if start > 0 {
			if err := pace(ctx, a.cfg.BatchDelay); err != nil {
				a.logger.Printf("analysis interrupted: %v", err)
				break
			}
		}
		end := start + batchSize
		if end > len(sources) {
			end = len(sources)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = a.analyzeOne(ctx, query, sources[i], generateEmbeddings)
			}(i)
		}
		wg.Wait()
	}

	analyzed := make([]Analyzed, 0, len(sources))
	for _, r := range results {
		if r != nil {
			analyzed = append(analyzed, *r)
		}
	}
	a.logger.Printf("analyzed %d/%d sources", len(analyzed), len(sources))
	return analyzed
}

func (a *Analyzer) analyzeOne(ctx context.Context, query string, src *scraper.Source, generateEmbeddings bool) *Analyzed {
	res, err := a.analyst.AnalyzeSource(ctx, query, src.Title, src.Content)
	if err != nil {
		a.logger.Printf("analysis of %s failed: %v", src.URL, err)
		analysesTotal.WithLabelValues("failed").Inc()
		return nil
	}
	analysesTotal.WithLabelValues("ok").Inc()

	out := &Analyzed{Source: src, Analysis: res}
	if generateEmbeddings && res.Relevance > a.cfg.EmbeddingMinRelevance {
		out.Embedding = a.embed(ctx, src)
	}
	return out
}

// embed returns a vector for the source's title plus content, preferring a
// cached one for the same fingerprint. Misses call the model and write the
// entry back; a failed model call or cache write just means no vector.
func (a *Analyzer) embed(ctx context.Context, src *scraper.Source) []float32 {
	input := helpers.TruncateChars(src.Title+"\n\n"+src.Content, a.cfg.EmbeddingMaxChars)
	fingerprint := helpers.Fingerprint(input)

	entry, err := a.cache.Lookup(ctx, fingerprint)
	switch {
	case err != nil:
		a.logger.Printf("embedding cache lookup for %s failed: %v", src.URL, err)
		cacheLookupsTotal.WithLabelValues("error").Inc()
	case entry != nil:
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return entry.Vector
	default:
		cacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	vector, err := a.analyst.Embed(ctx, input)
	if err != nil {
		a.logger.Printf("embedding of %s failed: %v", src.URL, err)
		return nil
	}
	fresh := CacheEntry{
		Fingerprint: fingerprint,
		Vector:      vector,
		Preview:     helpers.TruncateChars(input, 200),
		Model:       a.analyst.EmbeddingModel(),
	}
	if err := a.cache.Upsert(ctx, fresh); err != nil {
		a.logger.Printf("embedding cache upsert for %s failed: %v", src.URL, err)
	}
	return vector
}
