package scraper

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/deepresearch/config"
)

func testFetcher(t *testing.T, maxChars int) *Fetcher {
	t.Helper()
	return New(config.ScraperConfig{
		Timeout:         5 * time.Second,
		UserAgent:       "test-agent",
		MaxRedirects:    5,
		MaxContentChars: maxChars,
		MinContentChars: 100,
	}, log.New(io.Discard, "", 0))
}

func articlePage(body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head>
<title>Page   Title</title>
<meta name="description" content="A page about things.">
</head><body>
<nav>Home About Contact and lots of navigation noise that should never count</nav>
<div class="adsbygoogle">Buy stuff now! Sponsored content everywhere.</div>
<article>%s</article>
<footer>Copyright notice and footer links</footer>
<script>console.log("ignore me entirely");</script>
</body></html>`, body)
}

var longBody = strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)

func TestFetchExtractsArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(longBody))
	}))
	defer srv.Close()

	src, err := testFetcher(t, 10000).Fetch(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if src == nil {
		t.Fatalf("expected a source")
	}
	if src.Title != "Page Title" {
		t.Fatalf("title got %q", src.Title)
	}
	if src.Description != "A page about things." {
		t.Fatalf("description got %q", src.Description)
	}
	if strings.Contains(src.Content, "navigation noise") || strings.Contains(src.Content, "Sponsored") ||
		strings.Contains(src.Content, "ignore me") || strings.Contains(src.Content, "Copyright") {
		t.Fatalf("noise elements leaked into content: %q", src.Content)
	}
	if !strings.Contains(src.Content, "quick brown fox") {
		t.Fatalf("article body missing from content: %q", src.Content)
	}
	if src.WordCount == 0 {
		t.Fatalf("word count not computed")
	}
	if src.Domain == "" {
		t.Fatalf("domain not extracted")
	}
}

func TestFetchTruncatesContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(longBody))
	}))
	defer srv.Close()

	src, err := testFetcher(t, 150).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if src == nil {
		t.Fatalf("expected a source")
	}
	if len(src.Content) > 150 {
		t.Fatalf("content not truncated: %d chars", len(src.Content))
	}
}

func TestFetchDropsThinContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>t</title></head><body><article>too short</article></body></html>`)
	}))
	defer srv.Close()

	src, err := testFetcher(t, 10000).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("thin content must not be an error, got %v", err)
	}
	if src != nil {
		t.Fatalf("thin content must yield no source, got %+v", src)
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := testFetcher(t, 10000).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for HTTP 404")
	}
}

func TestFetchFollowsRedirectsUpToCap(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		n := strings.TrimPrefix(r.URL.Path, "/hop/")
		switch n {
		case "2":
			fmt.Fprint(w, articlePage(longBody))
		default:
			http.Redirect(w, r, "/hop/2", http.StatusFound)
		}
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})

	f := testFetcher(t, 10000)
	src, err := f.Fetch(context.Background(), srv.URL+"/hop/1")
	if err != nil || src == nil {
		t.Fatalf("short redirect chain should succeed: %v", err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/loop"); err == nil {
		t.Fatalf("redirect loop must fail after the hop cap")
	}
}

func TestFetchReadabilityPathStripsNoise(t *testing.T) {
	// No article/main/content containers, so extraction rides on the
	// readability candidate alone. It must see the stripped document: nav and
	// ad text may not reappear through that path.
	page := fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>t</title></head><body>
<nav>Primary navigation with many links and repeated menu labels everywhere</nav>
<div class="sponsored-promo">Limited offer! Sponsored placement text.</div>
<div><p>%s</p><p>%s</p></div>
</body></html>`, longBody, longBody)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, page)
	}))
	defer srv.Close()

	src, err := testFetcher(t, 10000).Fetch(context.Background(), srv.URL+"/plain")
	if err != nil || src == nil {
		t.Fatalf("Fetch: %v", err)
	}
	if strings.Contains(src.Content, "navigation") || strings.Contains(src.Content, "Sponsored") {
		t.Fatalf("stripped elements resurfaced via readability: %q", src.Content)
	}
	if !strings.Contains(src.Content, "quick brown fox") {
		t.Fatalf("article text missing: %q", src.Content)
	}
}

func TestFetchPrefersLongestCandidate(t *testing.T) {
	page := fmt.Sprintf(`<html><head><title>t</title></head><body>
<main>short main region content that is definitely not the longest candidate here</main>
<div id="content">%s</div>
</body></html>`, longBody)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	src, err := testFetcher(t, 10000).Fetch(context.Background(), srv.URL)
	if err != nil || src == nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(src.Content, "quick brown fox") {
		t.Fatalf("longest candidate not selected: %q", src.Content)
	}
}
