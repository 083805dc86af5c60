package search

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
)

// parseResults extracts organic search results from a DuckDuckGo HTML results
// page. Paid/ad blocks are skipped, provider redirect wrappers are unwrapped,
// and hits are deduplicated by canonical URL in provider order.
func parseResults(page string, maxResults int) ([]Hit, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}

	var hits []Hit
	seen := make(map[string]struct{})

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(hits) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" {
			class := attrValue(n, "class")
			if strings.Contains(class, "results_links") {
				// Ads carry an extra result--ad marker on the same block.
				if !strings.Contains(class, "result--ad") {
					if hit, ok := extractHit(n); ok {
						canonical, err := helpers.CanonicalURL(hit.URL)
						if err == nil {
							if _, dup := seen[canonical]; !dup {
								seen[canonical] = struct{}{}
								hit.URL = canonical
								hits = append(hits, hit)
							}
						}
					}
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hits, nil
}

// extractHit pulls the title link and snippet out of one result block.
func extractHit(block *html.Node) (Hit, bool) {
	var hit Hit

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			class := attrValue(n, "class")
			switch {
			case strings.Contains(class, "result__a"):
				hit.URL = helpers.UnwrapRedirect(attrValue(n, "href"))
				hit.Title = textContent(n)
			case strings.Contains(class, "result__snippet"):
				hit.Snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(block)

	return hit, hit.URL != "" && hit.Title != ""
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return helpers.NormalizeWhitespace(sb.String())
}
