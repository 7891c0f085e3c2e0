package webx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/commerce-agent/cagent-go/internal/logging"
)

// SearchResult is one organic hit from a web search.
type SearchResult struct {
	// Title is the result link text.
	Title string

	// URL is the destination page.
	URL string

	// Snippet is the short result description, when available.
	Snippet string
}

// SearchProvider discovers candidate product pages for a query.
type SearchProvider interface {
	// Search returns up to limit organic results for the query.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// defaultSearchEndpoints are the DuckDuckGo HTML endpoints tried in order.
var defaultSearchEndpoints = []string{
	"https://html.duckduckgo.com/html/",
	"https://duckduckgo.com/html/",
}

// DDGSearch is a SearchProvider backed by DuckDuckGo's HTML interface.
// Results are memoised per query for a short TTL so repeated augmentation of
// the same query within a session costs one request.
type DDGSearch struct {
	client    *http.Client
	endpoints []string
	cache     *gocache.Cache
}

// NewDDGSearch constructs a DDGSearch against the default endpoints.
func NewDDGSearch() *DDGSearch {
	return &DDGSearch{
		client:    &http.Client{Timeout: 15 * time.Second},
		endpoints: defaultSearchEndpoints,
		cache:     gocache.New(10*time.Minute, 30*time.Minute),
	}
}

var (
	resultAnchorRe  = regexp.MustCompile(`(?is)<a[^>]+class="[^"]*result__a[^"]*"[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	resultSnippetRe = regexp.MustCompile(`(?is)<a[^>]+class="[^"]*result__snippet[^"]*"[^>]*>(.*?)</a>`)
)

// Search queries the endpoints in order and returns the first non-empty
// result set. Ad links and results without a resolvable destination are
// skipped.
func (d *DDGSearch) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}

	cacheKey := fmt.Sprintf("%s|%d", strings.ToLower(query), limit)
	if cached, ok := d.cache.Get(cacheKey); ok {
		return cached.([]SearchResult), nil
	}

	var lastErr error
	for _, endpoint := range d.endpoints {
		results, err := d.searchEndpoint(ctx, endpoint, query, limit)
		if err != nil {
			lastErr = err
			logging.FromContext(ctx).Debug("search endpoint failed", "endpoint", endpoint, "error", err)
			continue
		}
		if len(results) > 0 {
			d.cache.Set(cacheKey, results, gocache.DefaultExpiration)
			return results, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("webx: search %q: %w", query, lastErr)
	}
	return nil, nil
}

func (d *DDGSearch) searchEndpoint(ctx context.Context, endpoint, query string, limit int) ([]SearchResult, error) {
	reqURL := endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("webx: create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CommerceAgent/1.0)")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webx: search fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("webx: search status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("webx: read search body: %w", err)
	}

	return parseSearchHTML(string(body), limit), nil
}

// parseSearchHTML extracts organic results from a DuckDuckGo HTML page.
// Redirect links are unwrapped to their uddg destination and ad redirects
// are dropped.
func parseSearchHTML(html string, limit int) []SearchResult {
	anchors := resultAnchorRe.FindAllStringSubmatch(html, -1)
	snippets := resultSnippetRe.FindAllStringSubmatch(html, -1)

	results := make([]SearchResult, 0, limit)
	for i, m := range anchors {
		dest := unwrapRedirect(decodeEntities(m[1]))
		if dest == "" {
			continue
		}
		title := strings.TrimSpace(decodeEntities(tagRe.ReplaceAllString(m[2], "")))
		if title == "" {
			continue
		}
		r := SearchResult{Title: title, URL: dest}
		if i < len(snippets) {
			r.Snippet = strings.TrimSpace(decodeEntities(tagRe.ReplaceAllString(snippets[i][1], "")))
		}
		results = append(results, r)
		if len(results) == limit {
			break
		}
	}
	return results
}

// unwrapRedirect resolves a DuckDuckGo redirect link to its real
// destination. Returns "" for ad links and unparseable hrefs.
func unwrapRedirect(href string) string {
	if strings.Contains(href, "ad_domain=") || strings.Contains(href, "/y.js") {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if dest := u.Query().Get("uddg"); dest != "" {
		if unescaped, err := url.QueryUnescape(dest); err == nil {
			return unescaped
		}
		return dest
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}
