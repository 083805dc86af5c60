package research

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/analysis"
	"github.com/mohammad-safakhou/deepresearch/internal/scraper"
	"github.com/mohammad-safakhou/deepresearch/internal/search"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

type searchCall struct {
	Term   string
	Budget int
}

type fakeSearcher struct {
	mu    sync.Mutex
	hits  map[string][]search.Hit
	calls []searchCall
}

func (f *fakeSearcher) Search(_ context.Context, term string, maxResults int) ([]search.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchCall{Term: term, Budget: maxResults})
	hits := f.hits[term]
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	fail    map[string]bool
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*scraper.Source, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	failed := f.fail[url]
	f.mu.Unlock()
	if failed {
		return nil, fmt.Errorf("fetch %s: HTTP 503", url)
	}
	return &scraper.Source{
		URL:       url,
		Domain:    domainOf(url),
		Title:     "Title of " + url,
		Content:   strings.Repeat("useful content about the topic. ", 10),
		WordCount: 50,
	}, nil
}

func domainOf(url string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}

type fakeAnalyst struct {
	mu          sync.Mutex
	expandErr   error
	terms       []string
	analyzeFail map[string]bool // by source title
	relevance   int
	reportErr   error
	embedErr    error
	embedCalls  int
}

func (f *fakeAnalyst) ExpandTerms(_ context.Context, query string) (analysis.TermExpansion, error) {
	if f.expandErr != nil {
		return analysis.TermExpansion{}, f.expandErr
	}
	terms := f.terms
	if len(terms) == 0 {
		terms = []string{query}
	}
	return analysis.TermExpansion{Terms: terms, Categories: []string{"general"}}, nil
}

func (f *fakeAnalyst) AnalyzeSource(_ context.Context, _, title, _ string) (analysis.SourceAnalysis, error) {
	if f.analyzeFail[title] {
		return analysis.SourceAnalysis{}, fmt.Errorf("model refused")
	}
	rel := f.relevance
	if rel == 0 {
		rel = 80
	}
	return analysis.SourceAnalysis{
		Relevance:   rel,
		Credibility: 70,
		Summary:     "summary of " + title,
		KeyPoints:   []string{"shared point", "point from " + title},
		Insights:    []string{"insight"},
		Topics:      []string{"topic"},
	}, nil
}

func (f *fakeAnalyst) SynthesizeReport(_ context.Context, input analysis.ReportInput) (string, error) {
	if f.reportErr != nil {
		return "", f.reportErr
	}
	return fmt.Sprintf("# Report\n\n%d sources on %q", input.TotalSources, input.Query), nil
}

func (f *fakeAnalyst) Embed(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeAnalyst) EmbeddingModel() string { return "fake-embedding" }

type fakeSessions struct {
	mu       sync.Mutex
	created  []string
	statuses []string
	stages   []string
	sources  []store.SourceRecord
	reports  []store.ReportRecord
}

func (f *fakeSessions) CreateSession(_ context.Context, id, _ string, _ map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, id)
	return nil
}

func (f *fakeSessions) UpdateSessionStatus(_ context.Context, _, status string, metadata map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	if stage, ok := metadata["stage"].(string); ok {
		f.stages = append(f.stages, stage)
	}
	return nil
}

func (f *fakeSessions) InsertSource(_ context.Context, rec store.SourceRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, rec)
	return fmt.Sprintf("src-%d", len(f.sources)), nil
}

func (f *fakeSessions) InsertReport(_ context.Context, rec store.ReportRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, rec)
	return nil
}

func (f *fakeSessions) SearchSources(_ context.Context, _ []float32, _ int, _ float64) ([]store.SourceSearchResult, error) {
	return []store.SourceSearchResult{{SourceID: "src-1", URL: "https://example.com", Similarity: 0.9}}, nil
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		MaxResults:     10,
		AllowedDomains: []string{"*"},
	}
}

func testScraperConfig() config.ScraperConfig {
	return config.ScraperConfig{MaxConcurrent: 3}
}

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		BatchSize:             3,
		EmbeddingMaxChars:     8000,
		EmbeddingMinRelevance: 30,
	}
}

func newTestService(analyst *fakeAnalyst, searcher *fakeSearcher, fetcher *fakeFetcher, sessions SessionStore, searchCfg config.SearchConfig) *Service {
	logger := log.New(io.Discard, "", 0)
	coordinator := NewCoordinator(analyst, searcher, fetcher, searchCfg, testScraperConfig(), logger)
	analyzer := NewAnalyzer(analyst, NewMemoryCache(), testAnalysisConfig(), logger)
	synthesizer := NewSynthesizer(analyst, logger)
	return NewService(analyst, coordinator, analyzer, synthesizer, sessions, logger)
}

func hitsFor(urls ...string) []search.Hit {
	hits := make([]search.Hit, 0, len(urls))
	for _, u := range urls {
		hits = append(hits, search.Hit{URL: u, Title: "hit", Term: "t"})
	}
	return hits
}

func TestPerformDeepSearchHappyPath(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]search.Hit{
		"go concurrency": hitsFor("https://a.example/1", "https://b.example/2", "https://c.example/3"),
	}}
	analyst := &fakeAnalyst{terms: []string{"go concurrency"}}
	sessions := &fakeSessions{}
	svc := newTestService(analyst, searcher, &fakeFetcher{}, sessions, testSearchConfig())

	res, err := svc.PerformDeepSearch(context.Background(), "go concurrency", Options{
		SaveToDatabase:     true,
		GenerateEmbeddings: true,
	})
	if err != nil {
		t.Fatalf("PerformDeepSearch: %v", err)
	}
	if res.Report == nil || !strings.Contains(res.Report.Content, "3 sources") {
		t.Fatalf("unexpected report: %+v", res.Report)
	}
	if len(res.Analyses) != 3 {
		t.Fatalf("expected 3 analyses, got %d", len(res.Analyses))
	}
	for _, a := range res.Analyses {
		if len(a.Embedding) == 0 {
			t.Fatalf("expected embedding for %s", a.Source.URL)
		}
	}

	wantStages := []string{StageTermsGenerated, StageWebSearched, StageAnalyzed, StageReported, StageCompleted}
	if len(sessions.stages) != len(wantStages) {
		t.Fatalf("stages = %v", sessions.stages)
	}
	for i, want := range wantStages {
		if sessions.stages[i] != want {
			t.Fatalf("stage[%d] = %q, want %q", i, sessions.stages[i], want)
		}
	}
	if last := sessions.statuses[len(sessions.statuses)-1]; last != store.SessionStatusCompleted {
		t.Fatalf("final status = %q", last)
	}
	if len(sessions.sources) != 3 || len(sessions.reports) != 1 {
		t.Fatalf("persisted %d sources, %d reports", len(sessions.sources), len(sessions.reports))
	}
}

func TestPerformDeepSearchRejectsEmptyQuery(t *testing.T) {
	sessions := &fakeSessions{}
	svc := newTestService(&fakeAnalyst{}, &fakeSearcher{}, &fakeFetcher{}, sessions, testSearchConfig())

	if _, err := svc.PerformDeepSearch(context.Background(), "   ", Options{SaveToDatabase: true}); err == nil {
		t.Fatalf("expected error for empty query")
	}
	if len(sessions.created) != 0 {
		t.Fatalf("no session may be created for an empty query")
	}
}

func TestPerformDeepSearchSurvivesExpansionFailure(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]search.Hit{
		"quantum computing": hitsFor("https://a.example/q"),
	}}
	analyst := &fakeAnalyst{expandErr: fmt.Errorf("model down")}
	svc := newTestService(analyst, searcher, &fakeFetcher{}, &fakeSessions{}, testSearchConfig())

	res, err := svc.PerformDeepSearch(context.Background(), "quantum computing", Options{SaveToDatabase: true})
	if err != nil {
		t.Fatalf("run must survive expansion failure: %v", err)
	}
	if len(res.SearchTerms) != 1 || res.SearchTerms[0] != "quantum computing" {
		t.Fatalf("expected raw query fallback, got %v", res.SearchTerms)
	}
	if res.Report == nil {
		t.Fatalf("expected a report")
	}
}

func TestPerformDeepSearchScrapeFailureIsolation(t *testing.T) {
	urls := []string{
		"https://a.example/1", "https://b.example/2", "https://c.example/3",
		"https://d.example/4", "https://e.example/5",
	}
	searcher := &fakeSearcher{hits: map[string][]search.Hit{"t": hitsFor(urls...)}}
	fetcher := &fakeFetcher{fail: map[string]bool{urls[1]: true, urls[3]: true}}
	analyst := &fakeAnalyst{terms: []string{"t"}}
	svc := newTestService(analyst, searcher, fetcher, &fakeSessions{}, testSearchConfig())

	res, err := svc.PerformDeepSearch(context.Background(), "t", Options{})
	if err != nil {
		t.Fatalf("PerformDeepSearch: %v", err)
	}
	if res.WebResults != 3 || len(res.Analyses) != 3 {
		t.Fatalf("expected 3 survivors, got web=%d analyses=%d", res.WebResults, len(res.Analyses))
	}
	if res.Stats.TotalSources != 3 {
		t.Fatalf("stats not recomputed: %+v", res.Stats)
	}
}

func TestPerformDeepSearchReportFailureMarksError(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]search.Hit{"t": hitsFor("https://a.example/1")}}
	analyst := &fakeAnalyst{terms: []string{"t"}, reportErr: fmt.Errorf("synthesis exploded")}
	sessions := &fakeSessions{}
	svc := newTestService(analyst, searcher, &fakeFetcher{}, sessions, testSearchConfig())

	if _, err := svc.PerformDeepSearch(context.Background(), "t", Options{SaveToDatabase: true}); err == nil {
		t.Fatalf("report failure must propagate")
	}
	if last := sessions.statuses[len(sessions.statuses)-1]; last != store.SessionStatusError {
		t.Fatalf("final status = %q, want error", last)
	}
	if last := sessions.stages[len(sessions.stages)-1]; last != StageError {
		t.Fatalf("final stage = %q, want error", last)
	}
}

func TestPerformDeepSearchAllAnalysesFailing(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]search.Hit{"t": hitsFor("https://a.example/1")}}
	analyst := &fakeAnalyst{
		terms:       []string{"t"},
		analyzeFail: map[string]bool{"Title of https://a.example/1": true},
	}
	sessions := &fakeSessions{}
	svc := newTestService(analyst, searcher, &fakeFetcher{}, sessions, testSearchConfig())

	if _, err := svc.PerformDeepSearch(context.Background(), "t", Options{SaveToDatabase: true}); err == nil {
		t.Fatalf("expected error when nothing survives analysis")
	}
	if last := sessions.statuses[len(sessions.statuses)-1]; last != store.SessionStatusError {
		t.Fatalf("final status = %q, want error", last)
	}
}

func TestVectorSearch(t *testing.T) {
	analyst := &fakeAnalyst{}
	svc := newTestService(analyst, &fakeSearcher{}, &fakeFetcher{}, &fakeSessions{}, testSearchConfig())

	res, err := svc.VectorSearch(context.Background(), "pgvector", VectorOptions{Limit: 5, Threshold: 0.7})
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if res.TotalFound != 1 || res.Results[0].Similarity != 0.9 {
		t.Fatalf("unexpected results: %+v", res)
	}
	if analyst.embedCalls != 1 {
		t.Fatalf("query must be embedded exactly once, got %d", analyst.embedCalls)
	}
}

func TestVectorSearchWithoutStore(t *testing.T) {
	svc := newTestService(&fakeAnalyst{}, &fakeSearcher{}, &fakeFetcher{}, nil, testSearchConfig())
	if _, err := svc.VectorSearch(context.Background(), "q", VectorOptions{}); err == nil {
		t.Fatalf("expected error without a store")
	}
}
