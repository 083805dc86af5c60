package research

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/analysis"
	"github.com/mohammad-safakhou/deepresearch/internal/scraper"
	"github.com/mohammad-safakhou/deepresearch/internal/search"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

// Run stages recorded into session metadata as the pipeline progresses.
const (
	StageCreated        = "created"
	StageTermsGenerated = "terms_generated"
	StageWebSearched    = "web_searched"
	StageAnalyzed       = "analyzed"
	StageReported       = "reported"
	StageCompleted      = "completed"
	StageError          = "error"
)

// Options controls one deep-search run.
type Options struct {
	UseAdvancedSearch  bool
	GenerateEmbeddings bool
	MaxSources         int
	SaveToDatabase     bool
}

// VectorOptions controls a similarity query over stored source embeddings.
type VectorOptions struct {
	Limit     int
	Threshold float64
}

// DomainCount is one entry of the per-domain source distribution.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Stats aggregates what retrieval produced.
type Stats struct {
	TotalSources     int           `json:"total_sources"`
	TopDomains       []DomainCount `json:"top_domains"`
	TotalContent     int           `json:"total_content_chars"`
	AverageContent   int           `json:"average_content_chars"`
	TotalWordCount   int           `json:"total_word_count"`
	AverageWordCount int           `json:"average_word_count"`
}

// Retrieval is the working set one run's search phase produced.
type Retrieval struct {
	Terms      []string
	Categories []string
	Sources    []*scraper.Source
	Stats      Stats
}

// Analyzed pairs a scraped source with its model analysis and, when
// requested and relevant enough, an embedding vector.
type Analyzed struct {
	Source    *scraper.Source
	Analysis  analysis.SourceAnalysis
	Embedding []float32
}

// Report is the final narrative artifact of a run.
type Report struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Query         string    `json:"query"`
	SourceCount   int       `json:"source_count"`
	AnalysisCount int       `json:"analysis_count"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Result is what PerformDeepSearch returns to the caller.
type Result struct {
	SessionID   string     `json:"session_id"`
	Query       string     `json:"query"`
	SearchTerms []string   `json:"search_terms"`
	Categories  []string   `json:"categories"`
	WebResults  int        `json:"web_results"`
	Stats       Stats      `json:"stats"`
	Analyses    []Analyzed `json:"analyses"`
	Report      *Report    `json:"report"`
}

// VectorResult is what VectorSearch returns to the caller.
type VectorResult struct {
	Query      string                     `json:"query"`
	Results    []store.SourceSearchResult `json:"results"`
	TotalFound int                        `json:"total_found"`
}

// Analyst is the model-facing contract the pipeline consumes. The inference
// service itself is an external collaborator; only its request/response
// surface matters here.
type Analyst interface {
	ExpandTerms(ctx context.Context, query string) (analysis.TermExpansion, error)
	AnalyzeSource(ctx context.Context, query, title, content string) (analysis.SourceAnalysis, error)
	SynthesizeReport(ctx context.Context, input analysis.ReportInput) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbeddingModel() string
}

// Searcher issues one search-provider query.
type Searcher interface {
	Search(ctx context.Context, term string, maxResults int) ([]search.Hit, error)
}

// PageFetcher retrieves one URL's content.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*scraper.Source, error)
}

// SessionStore persists run lifecycle, sources and reports, and answers
// vector similarity queries. Implemented by *store.Store.
type SessionStore interface {
	CreateSession(ctx context.Context, id, query string, metadata map[string]interface{}) error
	UpdateSessionStatus(ctx context.Context, id, status string, metadata map[string]interface{}) error
	InsertSource(ctx context.Context, rec store.SourceRecord) (string, error)
	InsertReport(ctx context.Context, rec store.ReportRecord) error
	SearchSources(ctx context.Context, vector []float32, topK int, threshold float64) ([]store.SourceSearchResult, error)
}

// pace sleeps for d unless the context ends first. All inter-term,
// inter-chunk and inter-batch delays go through here so upstream rate limits
// are respected without scattering bare sleeps.
func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
