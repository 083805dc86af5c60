package research

import "sort"

// Relevance tier boundaries. Sources scoring 70 and above count as high,
// 40 to 69 as medium, everything below as low.
const (
	highRelevanceFloor   = 70
	mediumRelevanceFloor = 40
)

// RankedItem is one consolidated finding with the number of distinct
// sources that reported it.
type RankedItem struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// Consolidation is the deterministic aggregate of all surviving analyses.
type Consolidation struct {
	Query           string       `json:"query"`
	TotalSources    int          `json:"total_sources"`
	HighRelevance   int          `json:"high_relevance"`
	MediumRelevance int          `json:"medium_relevance"`
	LowRelevance    int          `json:"low_relevance"`
	KeyPoints       []RankedItem `json:"key_points"`
	Insights        []RankedItem `json:"insights"`
	Topics          []RankedItem `json:"topics"`
	Summaries       []string     `json:"summaries"`
}

// Consolidate aggregates the analyses without any model involvement. The
// result is a pure function of its input: same analyses in the same order,
// same consolidation.
func Consolidate(query string, analyzed []Analyzed) Consolidation {
	cons := Consolidation{
		Query:        query,
		TotalSources: len(analyzed),
	}

	keyPoints := make([][]string, 0, len(analyzed))
	insights := make([][]string, 0, len(analyzed))
	topics := make([][]string, 0, len(analyzed))
	for _, a := range analyzed {
		switch {
		case a.Analysis.Relevance >= highRelevanceFloor:
			cons.HighRelevance++
		case a.Analysis.Relevance >= mediumRelevanceFloor:
			cons.MediumRelevance++
		default:
			cons.LowRelevance++
		}
		keyPoints = append(keyPoints, a.Analysis.KeyPoints)
		insights = append(insights, a.Analysis.Insights)
		topics = append(topics, a.Analysis.Topics)
		if a.Analysis.Summary != "" {
			cons.Summaries = append(cons.Summaries, a.Analysis.Summary)
		}
	}

	cons.KeyPoints = rankByFrequency(keyPoints, 10)
	cons.Insights = rankByFrequency(insights, 10)
	cons.Topics = rankByFrequency(topics, 10)
	return cons
}

// rankByFrequency counts how many distinct sources mention each exact
// string (repeats within one source count once) and keeps the topN by count
// descending, first mention breaking ties. The stable ordering is what makes
// consolidation reproducible.
func rankByFrequency(perSource [][]string, topN int) []RankedItem {
	counts := make(map[string]int)
	var order []string
	for _, items := range perSource {
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			if item == "" {
				continue
			}
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
			if _, ok := counts[item]; !ok {
				order = append(order, item)
			}
			counts[item]++
		}
	}
	if len(order) == 0 {
		return nil
	}

	firstSeen := make(map[string]int, len(order))
	for i, item := range order {
		firstSeen[item] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return firstSeen[order[i]] < firstSeen[order[j]]
	})
	if len(order) > topN {
		order = order[:topN]
	}

	items := make([]RankedItem, 0, len(order))
	for _, item := range order {
		items = append(items, RankedItem{Text: item, Count: counts[item]})
	}
	return items
}
