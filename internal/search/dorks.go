package search

import "fmt"

// Dork is a query-refinement variant issued against a base term to broaden
// or narrow provider results.
type Dork struct {
	Tag    string
	format string
}

// Apply renders the variant query for a base term.
func (d Dork) Apply(term string) string {
	return fmt.Sprintf(d.format, term)
}

// Variants is the fixed set of query refinements used in advanced mode.
// Per-variant result budgets are always computed from len(Variants), never
// from a literal count, so the set can change without touching budget math.
var Variants = []Dork{
	{Tag: "standard", format: "%s"},
	{Tag: "exact", format: "%q"},
	{Tag: "filetype", format: "%s filetype:pdf"},
	{Tag: "site_edu", format: "%s site:.edu"},
	{Tag: "site_gov", format: "%s site:.gov"},
	{Tag: "inurl", format: "%s inurl:research"},
	{Tag: "intitle", format: "intitle:%q"},
}

// VariantBudget splits a result budget evenly across the variant set,
// rounding up so every variant gets at least one slot.
func VariantBudget(budget int) int {
	n := len(Variants)
	if budget <= 0 || n == 0 {
		return 1
	}
	return (budget + n - 1) / n
}
