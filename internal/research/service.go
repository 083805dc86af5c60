package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

// Service is the run orchestrator. It owns the session state machine and
// sequences the pipeline phases; the phase mechanics live in the
// coordinator, analyzer and synthesizer.
type Service struct {
	analyst     Analyst
	coordinator *Coordinator
	analyzer    *Analyzer
	synthesizer *Synthesizer
	sessions    SessionStore
	logger      *log.Logger
	now         func() time.Time
	newID       func() string
}

// NewService wires the pipeline. sessions may be nil for store-less runs;
// persistence is then skipped regardless of Options.SaveToDatabase.
func NewService(analyst Analyst, coordinator *Coordinator, analyzer *Analyzer, synthesizer *Synthesizer, sessions SessionStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		analyst:     analyst,
		coordinator: coordinator,
		analyzer:    analyzer,
		synthesizer: synthesizer,
		sessions:    sessions,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// PerformDeepSearch runs the whole pipeline for one query. The session
// advances through created, terms_generated, web_searched, analyzed and
// reported before settling on completed; any fatal error parks it on error
// with the cause recorded in metadata, and the error is still returned.
func (s *Service) PerformDeepSearch(ctx context.Context, query string, opts Options) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("deep search: empty query")
	}

	sessionID := s.newID()
	persist := opts.SaveToDatabase && s.sessions != nil
	if persist {
		meta := map[string]interface{}{
			"stage":               StageCreated,
			"use_advanced_search": opts.UseAdvancedSearch,
			"generate_embeddings": opts.GenerateEmbeddings,
			"max_sources":         opts.MaxSources,
		}
		if err := s.sessions.CreateSession(ctx, sessionID, query, meta); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}
	s.logger.Printf("session %s started for %q", sessionID, query)

	fail := func(stage string, err error) (*Result, error) {
		runsTotal.WithLabelValues("error").Inc()
		if persist {
			meta := map[string]interface{}{
				"stage":        StageError,
				"failed_stage": stage,
				"error":        err.Error(),
				"failed_at":    s.now().UTC().Format(time.RFC3339),
			}
			if serr := s.sessions.UpdateSessionStatus(ctx, sessionID, store.SessionStatusError, meta); serr != nil {
				s.logger.Printf("session %s: recording failure: %v", sessionID, serr)
			}
		}
		return nil, fmt.Errorf("session %s: %s: %w", sessionID, stage, err)
	}
	advance := func(stage string, extra map[string]interface{}) {
		if !persist {
			return
		}
		meta := map[string]interface{}{"stage": stage}
		for k, v := range extra {
			meta[k] = v
		}
		if err := s.sessions.UpdateSessionStatus(ctx, sessionID, store.SessionStatusPending, meta); err != nil {
			s.logger.Printf("session %s: advancing to %s: %v", sessionID, stage, err)
		}
	}

	// Phase 1: term expansion. Never fatal, falls back to the raw query.
	exp := s.coordinator.ExpandQuery(ctx, query)
	advance(StageTermsGenerated, map[string]interface{}{
		"search_terms": exp.Terms,
		"categories":   exp.Categories,
	})

	// Phase 2: search and scrape.
	retrieval, err := s.coordinator.Retrieve(ctx, exp, opts)
	if err != nil {
		return fail(StageWebSearched, err)
	}
	advance(StageWebSearched, map[string]interface{}{"stats": retrieval.Stats})

	// Phase 3: analysis and embeddings. Individual failures drop sources;
	// losing every source leaves nothing to report on.
	analyzed := s.analyzer.AnalyzeAll(ctx, query, retrieval.Sources, opts.GenerateEmbeddings)
	if len(analyzed) == 0 {
		return fail(StageAnalyzed, fmt.Errorf("no sources survived analysis (%d scraped)", len(retrieval.Sources)))
	}
	if persist {
		s.persistSources(ctx, sessionID, analyzed)
	}
	advance(StageAnalyzed, map[string]interface{}{"analyzed_sources": len(analyzed)})

	// Phases 4 and 5: consolidation is pure, synthesis is fatal on error.
	cons := Consolidate(query, analyzed)
	report, err := s.synthesizer.Synthesize(ctx, query, cons)
	if err != nil {
		return fail(StageReported, err)
	}
	if persist {
		rec := store.ReportRecord{
			ID:            report.ID,
			SessionID:     sessionID,
			Query:         query,
			Title:         report.Title,
			Content:       report.Content,
			SourceCount:   report.SourceCount,
			AnalysisCount: report.AnalysisCount,
		}
		if err := s.sessions.InsertReport(ctx, rec); err != nil {
			return fail(StageReported, fmt.Errorf("persist report: %w", err))
		}
	}
	advance(StageReported, map[string]interface{}{"report_id": report.ID})

	if persist {
		meta := map[string]interface{}{
			"stage":        StageCompleted,
			"completed_at": s.now().UTC().Format(time.RFC3339),
		}
		if err := s.sessions.UpdateSessionStatus(ctx, sessionID, store.SessionStatusCompleted, meta); err != nil {
			s.logger.Printf("session %s: marking completed: %v", sessionID, err)
		}
	}
	runsTotal.WithLabelValues("completed").Inc()
	s.logger.Printf("session %s completed: %d sources, %d analyzed", sessionID, len(retrieval.Sources), len(analyzed))

	return &Result{
		SessionID:   sessionID,
		Query:       query,
		SearchTerms: retrieval.Terms,
		Categories:  retrieval.Categories,
		WebResults:  len(retrieval.Sources),
		Stats:       retrieval.Stats,
		Analyses:    analyzed,
		Report:      report,
	}, nil
}

// persistSources writes each analyzed source under the session. A failed
// insert loses that row only; the run keeps its in-memory copy.
func (s *Service) persistSources(ctx context.Context, sessionID string, analyzed []Analyzed) {
	for _, a := range analyzed {
		rec := store.SourceRecord{
			SessionID:   sessionID,
			URL:         a.Source.URL,
			Domain:      a.Source.Domain,
			Title:       a.Source.Title,
			Description: a.Source.Description,
			Content:     a.Source.Content,
			WordCount:   a.Source.WordCount,
			SearchTerm:  a.Source.SearchTerm,
			Relevance:   a.Analysis.Relevance,
			Credibility: a.Analysis.Credibility,
			Summary:     a.Analysis.Summary,
			KeyPoints:   a.Analysis.KeyPoints,
			Insights:    a.Analysis.Insights,
			Topics:      a.Analysis.Topics,
			Embedding:   a.Embedding,
			ScrapedAt:   a.Source.ScrapedAt,
		}
		if _, err := s.sessions.InsertSource(ctx, rec); err != nil {
			s.logger.Printf("session %s: persisting %s: %v", sessionID, a.Source.URL, err)
		}
	}
}

// VectorSearch embeds the query and returns the nearest stored sources by
// cosine similarity. It requires a session store.
func (s *Service) VectorSearch(ctx context.Context, query string, opts VectorOptions) (*VectorResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("vector search: empty query")
	}
	if s.sessions == nil {
		return nil, fmt.Errorf("vector search: no store configured")
	}

	vector, err := s.analyst.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector search: embed query: %w", err)
	}
	results, err := s.sessions.SearchSources(ctx, vector, opts.Limit, opts.Threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return &VectorResult{Query: query, Results: results, TotalFound: len(results)}, nil
}
