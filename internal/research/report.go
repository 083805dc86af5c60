package research

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/deepresearch/internal/analysis"
	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
)

// Synthesizer turns a consolidation into the final report via the model.
type Synthesizer struct {
	analyst Analyst
	logger  *log.Logger
	now     func() time.Time
}

func NewSynthesizer(analyst Analyst, logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Synthesizer{analyst: analyst, logger: logger, now: time.Now}
}

// Synthesize generates the narrative report. Unlike every earlier phase this
// one has no degraded path: an error here fails the whole run.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, cons Consolidation) (*Report, error) {
	input := analysis.ReportInput{
		Query:           query,
		TotalSources:    cons.TotalSources,
		HighRelevance:   cons.HighRelevance,
		MediumRelevance: cons.MediumRelevance,
		LowRelevance:    cons.LowRelevance,
		KeyPoints:       rankedTexts(cons.KeyPoints),
		Insights:        rankedTexts(cons.Insights),
		Topics:          rankedTexts(cons.Topics),
		Summaries:       cons.Summaries,
	}

	started := s.now()
	content, err := s.analyst.SynthesizeReport(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("report synthesis: %w", err)
	}
	generatedAt := s.now().UTC()
	s.logger.Printf("report synthesized in %s (%d chars)", time.Since(started).Round(time.Millisecond), len(content))

	return &Report{
		ID:            reportID(query, generatedAt),
		Title:         "Research Report: " + query,
		Content:       content,
		Query:         query,
		SourceCount:   cons.TotalSources,
		AnalysisCount: cons.TotalSources,
		GeneratedAt:   generatedAt,
	}, nil
}

// reportID builds a human-sortable identifier, timestamp first so reports
// list chronologically, followed by a slug of the query.
func reportID(query string, ts time.Time) string {
	return fmt.Sprintf("research_%s_%s", ts.Format("20060102_150405"), helpers.Slugify(query, 50))
}

func rankedTexts(items []RankedItem) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Text)
	}
	return out
}
