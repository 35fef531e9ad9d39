package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DuckDuckGo defaults.
const (
	// DefaultEndpoint is the HTML (no-JS) search endpoint.
	DefaultEndpoint = "https://html.duckduckgo.com/html/"

	// DefaultTimeout bounds one search round trip.
	DefaultTimeout = 10 * time.Second

	// DefaultLimit is the number of hits returned when the caller passes 0.
	DefaultLimit = 5
)

// DuckDuckGo searches the web through the DuckDuckGo HTML endpoint.
// No API key required, which fits the local-first deployment model.
type DuckDuckGo struct {
	client   *http.Client
	endpoint string
}

// NewDuckDuckGo creates a DuckDuckGo search client. An empty endpoint uses
// the default; tests point it at a local fixture server.
func NewDuckDuckGo(endpoint string) *DuckDuckGo {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &DuckDuckGo{
		client:   &http.Client{Timeout: DefaultTimeout},
		endpoint: endpoint,
	}
}

// Search returns hits for the query, best first.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "synapse/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed (status %d)", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	results := make([]Result, 0, limit)
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("a.result__a")
		href, _ := link.Attr("href")
		title := strings.TrimSpace(link.Text())
		snippet := strings.TrimSpace(s.Find(".result__snippet").Text())
		if href == "" || title == "" {
			return true
		}
		results = append(results, Result{
			URL:     cleanResultURL(href),
			Title:   title,
			Snippet: snippet,
		})
		return len(results) < limit
	})

	return results, nil
}

// cleanResultURL unwraps DuckDuckGo's redirect links (//duckduckgo.com/l/?uddg=...).
func cleanResultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	if u.Scheme == "" {
		return "https:" + href
	}
	return href
}

// Close releases resources.
func (d *DuckDuckGo) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

var _ Client = (*DuckDuckGo)(nil)
