package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScraperConfigDefaults(t *testing.T) {
	s := New()
	assert.Equal(t, 3, s.config.MaxDepth)
	assert.Equal(t, 30*time.Second, s.client.Timeout)
	assert.NotEmpty(t, s.config.AllowedExtensions)
}

func TestShouldProcessURL(t *testing.T) {
	s := NewWithConfig(ScraperConfig{
		IgnorePatterns:    []string{"/ignore/", "private"},
		AllowedExtensions: []string{".html", "/"},
	})

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/page.html", true},
		{"https://example.com/ignore/page.html", false},
		{"https://example.com/private.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.shouldProcessURL("example.com", tt.url))
		})
	}
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `
			<html>
				<head><title>Jeju Food</title><script>var x = 1;</script></head>
				<body>
					<nav>Home | About</nav>
					<main>
						<h1>Black pork</h1>
						<p>Grilled over charcoal.   Accept Cookies</p>
						<a href="/east.html#menu">East</a>
						<a href="/missing.html">Missing</a>
						<a href="https://elsewhere.example/">Elsewhere</a>
					</main>
				</body>
			</html>
		`)
	})
	mux.HandleFunc("/east.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>East</title></head><body><article>Seafood stew by the harbor.</article>
			<a href="/">Back</a></body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestScrapeWithMockServer(t *testing.T) {
	server := newSite(t)

	var visited []string
	s := NewWithConfig(ScraperConfig{
		MaxDepth:   2,
		RateLimit:  100,
		OnProgress: func(url string) { visited = append(visited, url) },
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	pages, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, server.URL+"/", pages[0].URL)
	assert.Equal(t, "Jeju Food", pages[0].Title)
	assert.Equal(t, "Black pork Grilled over charcoal. East Missing Elsewhere", pages[0].Content)
	assert.Equal(t, 0, pages[0].Metadata["depth"])

	assert.Equal(t, server.URL+"/east.html", pages[1].URL)
	assert.Equal(t, "Seafood stew by the harbor.", pages[1].Content)

	assert.Equal(t, []string{server.URL + "/", server.URL + "/east.html", server.URL + "/missing.html"}, visited)
}

func TestScrapeStartFailure(t *testing.T) {
	server := newSite(t)
	s := NewWithConfig(ScraperConfig{RateLimit: 100})

	_, err := s.Scrape(context.Background(), server.URL+"/missing.html")
	assert.ErrorContains(t, err, "status code 404")

	_, err = s.Scrape(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestScrapeCanceled(t *testing.T) {
	server := newSite(t)
	s := NewWithConfig(ScraperConfig{RateLimit: 100})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Scrape(ctx, server.URL+"/")
	assert.ErrorIs(t, err, context.Canceled)
}
