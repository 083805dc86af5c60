package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
)

// TermExpansion is the structured result of the expand-terms task.
type TermExpansion struct {
	Terms      []string `json:"search_terms"`
	Categories []string `json:"categories"`
}

// SourceAnalysis is the structured result of the analyze-content task.
// Relevance and credibility are opaque 0-100 scores assigned by the model.
type SourceAnalysis struct {
	Relevance   int      `json:"relevance_score"`
	Credibility int      `json:"credibility_score"`
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	Insights    []string `json:"insights"`
	Topics      []string `json:"topics"`
}

// ReportInput carries the consolidated findings handed to the
// synthesize-report task.
type ReportInput struct {
	Query           string   `json:"query"`
	TotalSources    int      `json:"total_sources"`
	HighRelevance   int      `json:"high_relevance"`
	MediumRelevance int      `json:"medium_relevance"`
	LowRelevance    int      `json:"low_relevance"`
	KeyPoints       []string `json:"key_points"`
	Insights        []string `json:"insights"`
	Topics          []string `json:"topics"`
	Summaries       []string `json:"summaries"`
}

// FallbackExpansion is the degraded expansion used when the expand-terms call
// fails or returns malformed output: the run continues with the original
// query as its single search term.
func FallbackExpansion(query string) TermExpansion {
	return TermExpansion{Terms: []string{query}, Categories: []string{"general"}}
}

// ExpandTerms asks the model to expand a research query into 5-10 search
// terms plus category labels. Callers are expected to substitute
// FallbackExpansion on error rather than failing the run.
func (c *Client) ExpandTerms(ctx context.Context, query string) (TermExpansion, error) {
	systemPrompt := `You are a research assistant that expands a query into effective web search terms.

RESPONSE FORMAT:
Respond ONLY with valid JSON in the following format:
{
  "search_terms": ["5 to 10 distinct search terms, most important first"],
  "categories": ["short category labels for the query"]
}
Do not include any other text or explanation.`

	userPrompt := fmt.Sprintf(`RESEARCH QUERY: %q

Generate the search terms a skilled researcher would use to cover this query from multiple angles.`, query)

	raw, err := c.complete(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
	if err != nil {
		return TermExpansion{}, err
	}

	var exp TermExpansion
	if err := decodeStrict(raw, &exp); err != nil {
		return TermExpansion{}, fmt.Errorf("expand terms: %w", err)
	}
	exp.Terms = trimNonEmpty(exp.Terms)
	if len(exp.Terms) == 0 {
		return TermExpansion{}, fmt.Errorf("expand terms: model returned no search terms")
	}
	if len(exp.Terms) > 10 {
		exp.Terms = exp.Terms[:10]
	}
	if len(exp.Categories) == 0 {
		exp.Categories = []string{"general"}
	}
	return exp, nil
}

// AnalyzeSource scores and summarizes one scraped source against the original
// query. A failed call means the source is dropped from the run; there is no
// fallback analysis.
func (c *Client) AnalyzeSource(ctx context.Context, query, title, content string) (SourceAnalysis, error) {
	systemPrompt := `You are a research analyst scoring web sources against a research query.

RESPONSE FORMAT:
Respond ONLY with valid JSON in the following format:
{
  "relevance_score": 0-100,
  "credibility_score": 0-100,
  "summary": "2-3 sentence summary of the source",
  "key_points": ["the main factual points"],
  "insights": ["non-obvious insights relevant to the query"],
  "topics": ["short topic labels"]
}
Do not include any other text or explanation.`

	userPrompt := fmt.Sprintf(`RESEARCH QUERY: %q

SOURCE TITLE: %s

SOURCE CONTENT:
%s`, query, title, content)

	raw, err := c.complete(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
	if err != nil {
		return SourceAnalysis{}, err
	}

	var sa SourceAnalysis
	if err := decodeStrict(raw, &sa); err != nil {
		return SourceAnalysis{}, fmt.Errorf("analyze source: %w", err)
	}
	sa.Relevance = clampScore(sa.Relevance)
	sa.Credibility = clampScore(sa.Credibility)
	return sa, nil
}

// SynthesizeReport produces the final narrative markdown from the
// consolidated findings. Failure here is fatal to the run: the report is the
// run's primary deliverable and has no fallback.
func (c *Client) SynthesizeReport(ctx context.Context, input ReportInput) (string, error) {
	digest, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshal report input: %w", err)
	}

	systemPrompt := `You are a research writer. Given consolidated findings from multiple web sources, write a thorough research report in Markdown: an executive summary, themed sections covering the key points and insights, and a short conclusion. Cite counts from the findings where useful. Respond with the Markdown report only.`

	userPrompt := fmt.Sprintf(`ORIGINAL QUERY: %q

CONSOLIDATED FINDINGS (JSON):
%s`, input.Query, string(digest))

	report, err := c.complete(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
	if err != nil {
		return "", err
	}
	report = strings.TrimSpace(report)
	if report == "" {
		return "", fmt.Errorf("synthesize report: empty response")
	}
	return report, nil
}

// decodeStrict extracts the first JSON document from raw model text and
// unmarshals it. A partial parse never produces a partially populated value:
// either the whole document decodes or the task fails.
func decodeStrict(raw string, out interface{}) error {
	doc, err := helpers.ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("failed to parse analysis: %w", err)
	}
	return nil
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func trimNonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
