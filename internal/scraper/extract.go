package scraper

import (
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/mohammad-safakhou/deepresearch/internal/helpers"
)

// extractedPage holds what one page yields before truncation.
type extractedPage struct {
	title       string
	description string
	content     string
}

// strippedTags are removed from the document before any content candidate is
// considered.
var strippedTags = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"nav":      {},
	"footer":   {},
	"header":   {},
	"aside":    {},
	"form":     {},
	"iframe":   {},
}

// adMarkers flag class/id values of promotional blocks.
var adMarkers = []string{"advert", "sponsor", "promo", "adsby"}

// contentMarkers are class/id values of common main-content containers, in
// priority order behind the semantic candidates.
var contentMarkers = []string{
	"content", "post-content", "entry-content", "article-body",
	"main-content", "story-body", "article-content",
}

// extract parses page HTML and picks the best main-content candidate: the
// readability extraction and each selector candidate compete, the longest
// text wins, and the whole document body is the fallback when no candidate
// reaches minChars.
func extract(page, pageURL string, minChars int) (extractedPage, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return extractedPage{}, fmt.Errorf("failed to parse html: %w", err)
	}

	out := extractedPage{
		title:       documentTitle(doc),
		description: metaDescription(doc),
	}

	stripNoise(doc)

	best := ""
	for _, candidate := range contentCandidates(doc) {
		text := helpers.NormalizeWhitespace(nodeText(candidate))
		if len(text) > len(best) {
			best = text
		}
	}

	// Readability competes with the structural candidates on equal terms. It
	// gets the re-rendered stripped document, never the raw page, so noise
	// removal holds no matter which candidate wins.
	if parsed, err := url.Parse(pageURL); err == nil {
		if article, err := readability.FromReader(strings.NewReader(renderHTML(doc)), parsed); err == nil {
			text := helpers.NormalizeWhitespace(article.TextContent)
			if len(text) > len(best) {
				best = text
			}
			if out.title == "" {
				out.title = strings.TrimSpace(article.Title)
			}
			if out.description == "" {
				out.description = strings.TrimSpace(article.Excerpt)
			}
		}
	}

	if len(best) < minChars {
		if body := findElement(doc, "body", nil); body != nil {
			best = helpers.NormalizeWhitespace(nodeText(body))
		}
	}

	out.content = best
	return out, nil
}

// contentCandidates returns candidate content nodes in priority order:
// article elements, main-role regions, main elements, then the common
// content-class containers.
func contentCandidates(doc *html.Node) []*html.Node {
	var candidates []*html.Node
	if n := findElement(doc, "article", nil); n != nil {
		candidates = append(candidates, n)
	}
	if n := findElement(doc, "", func(n *html.Node) bool { return attr(n, "role") == "main" }); n != nil {
		candidates = append(candidates, n)
	}
	if n := findElement(doc, "main", nil); n != nil {
		candidates = append(candidates, n)
	}
	for _, marker := range contentMarkers {
		if n := findElement(doc, "", func(n *html.Node) bool {
			return hasToken(attr(n, "class"), marker) || hasToken(attr(n, "id"), marker)
		}); n != nil {
			candidates = append(candidates, n)
		}
	}
	return candidates
}

// renderHTML serializes a parsed document back to markup.
func renderHTML(doc *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return ""
	}
	return sb.String()
}

// stripNoise removes script/style/navigation/ad nodes in place.
func stripNoise(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode {
			if _, drop := strippedTags[c.Data]; drop || isAdNode(c) {
				n.RemoveChild(c)
				continue
			}
		}
		stripNoise(c)
	}
}

func isAdNode(n *html.Node) bool {
	class := strings.ToLower(attr(n, "class"))
	id := strings.ToLower(attr(n, "id"))
	for _, marker := range adMarkers {
		if strings.Contains(class, marker) || strings.Contains(id, marker) {
			return true
		}
	}
	// A bare "ad"/"ads" token is a marker too, but only as a whole token so
	// classes like "gradient" survive.
	return hasToken(class, "ad") || hasToken(class, "ads") || hasToken(id, "ad") || hasToken(id, "ads")
}

func hasToken(attrValue, token string) bool {
	for _, field := range strings.FieldsFunc(strings.ToLower(attrValue), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}) {
		if field == token {
			return true
		}
	}
	return false
}

// findElement walks the tree depth-first and returns the first element with
// the given tag name (empty matches any) passing the optional predicate.
func findElement(n *html.Node, tag string, pred func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && (tag == "" || n.Data == tag) && (pred == nil || pred(n)) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag, pred); found != nil {
			return found
		}
	}
	return nil
}

func documentTitle(doc *html.Node) string {
	if og := metaContent(doc, "property", "og:title"); og != "" {
		return og
	}
	if n := findElement(doc, "title", nil); n != nil {
		return helpers.NormalizeWhitespace(nodeText(n))
	}
	return ""
}

func metaDescription(doc *html.Node) string {
	if d := metaContent(doc, "name", "description"); d != "" {
		return d
	}
	return metaContent(doc, "property", "og:description")
}

func metaContent(doc *html.Node, key, value string) string {
	n := findElement(doc, "meta", func(n *html.Node) bool { return attr(n, key) == value })
	if n == nil {
		return ""
	}
	return helpers.NormalizeWhitespace(attr(n, "content"))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
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
	return sb.String()
}
