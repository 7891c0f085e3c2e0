package webx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/commerce-agent/cagent-go/internal/logging"
)

// maxBodyBytes caps how much of a page body is read.
const maxBodyBytes = 512 * 1024

// defaultMaxChars caps the plaintext excerpt stored per page.
const defaultMaxChars = 4000

// PageRecord is the cached result of fetching and parsing one web page.
type PageRecord struct {
	// URL is the fetched URL.
	URL string `json:"url"`

	// Title is the page <title> text.
	Title string `json:"title"`

	// Description is the meta description, when present.
	Description string `json:"description"`

	// Text is the stripped plaintext excerpt of the page body.
	Text string `json:"text"`

	// OpenGraph holds og:* meta properties keyed without the og: prefix.
	OpenGraph map[string]string `json:"open_graph,omitempty"`

	// Products holds structured product data found in JSON-LD blocks.
	Products []StructuredProduct `json:"products,omitempty"`

	// FetchedAt is when the page was retrieved, in UTC.
	FetchedAt time.Time `json:"fetched_at"`
}

// StructuredProduct is a product entry extracted from a JSON-LD block.
type StructuredProduct struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Image       string `json:"image,omitempty"`
	Price       string `json:"price,omitempty"`
	Currency    string `json:"currency,omitempty"`

	// Availability is the schema.org availability value of the offer,
	// for example "https://schema.org/InStock".
	Availability string `json:"availability,omitempty"`
}

// Fetcher retrieves product pages with an allowlist gate, a shared rate
// limit, and a content-addressed disk cache. A cached page is returned
// byte-identical without touching the network, so repeated fetches of the
// same URL are idempotent.
type Fetcher struct {
	client   *http.Client
	gate     *DomainGate
	limiter  *rate.Limiter
	cacheDir string
	maxChars int
	metrics  *FetchMetrics
}

// SetMetrics attaches cache instruments to the fetcher. Must be called
// before the fetcher is shared across goroutines.
func (f *Fetcher) SetMetrics(m *FetchMetrics) {
	f.metrics = m
}

// NewFetcher builds a Fetcher. cacheDir may be empty to disable caching.
func NewFetcher(gate *DomainGate, cacheDir string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		gate:     gate,
		limiter:  rate.NewLimiter(rate.Limit(2), 4),
		cacheDir: cacheDir,
		maxChars: defaultMaxChars,
	}
}

// cachePath returns the cache file for a URL, keyed by its sha256.
func (f *Fetcher) cachePath(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:])+".json")
}

// Fetch returns the parsed page for rawURL, serving from the disk cache when
// possible. force bypasses the cache read and refetches from the network,
// refreshing the cached record. It returns nil (never an error) when the URL
// is gated, the fetch fails, or the page cannot be parsed; the reason is
// logged at warn level.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, force bool) *PageRecord {
	log := logging.FromContext(ctx)

	if err := f.gate.Allowed(rawURL); err != nil {
		log.Warn("web fetch blocked", "url", rawURL, "error", err)
		return nil
	}

	if !force {
		if rec := f.readCache(rawURL); rec != nil {
			log.Debug("web fetch cache hit", "url", rawURL)
			if f.metrics != nil {
				f.metrics.CacheHits.Inc()
			}
			return rec
		}
	}
	if f.metrics != nil {
		f.metrics.CacheMisses.Inc()
	}

	if err := f.limiter.Wait(ctx); err != nil {
		log.Warn("web fetch rate wait aborted", "url", rawURL, "error", err)
		return nil
	}

	body, err := f.get(ctx, rawURL)
	if err != nil {
		log.Warn("web fetch failed", "url", rawURL, "error", err)
		return nil
	}

	rec := parsePage(rawURL, body, f.maxChars)
	f.writeCache(rawURL, rec)
	return rec
}

// FetchCached returns the cached page for rawURL without any network
// activity, or nil when the URL has not been fetched.
func (f *Fetcher) FetchCached(rawURL string) *PageRecord {
	return f.readCache(rawURL)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("webx: create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CommerceAgent/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webx: fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("webx: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("webx: read body: %w", err)
	}
	return body, nil
}

func (f *Fetcher) readCache(rawURL string) *PageRecord {
	if f.cacheDir == "" {
		return nil
	}
	data, err := os.ReadFile(f.cachePath(rawURL))
	if err != nil {
		return nil
	}
	var rec PageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil
	}
	return &rec
}

func (f *Fetcher) writeCache(rawURL string, rec *PageRecord) {
	if f.cacheDir == "" || rec == nil {
		return
	}
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = os.WriteFile(f.cachePath(rawURL), data, 0o644)
}

var (
	titleRe    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaDescRe = regexp.MustCompile(`(?is)<meta[^>]+name=["']description["'][^>]+content=["']([^"']*)["']`)
	ogRe       = regexp.MustCompile(`(?is)<meta[^>]+property=["']og:([a-z:_]+)["'][^>]+content=["']([^"']*)["']`)
	jsonLDRe   = regexp.MustCompile(`(?is)<script[^>]+type=["']application/ld\+json["'][^>]*>(.*?)</script>`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// parsePage extracts title, meta description, OpenGraph properties, JSON-LD
// product entries, and a plaintext excerpt from raw HTML.
func parsePage(rawURL string, body []byte, maxChars int) *PageRecord {
	html := string(body)

	rec := &PageRecord{
		URL:       rawURL,
		OpenGraph: make(map[string]string),
		FetchedAt: time.Now().UTC(),
	}

	if m := titleRe.FindStringSubmatch(html); len(m) > 1 {
		rec.Title = strings.TrimSpace(decodeEntities(m[1]))
	}
	if m := metaDescRe.FindStringSubmatch(html); len(m) > 1 {
		rec.Description = strings.TrimSpace(decodeEntities(m[1]))
	}
	for _, m := range ogRe.FindAllStringSubmatch(html, -1) {
		rec.OpenGraph[m[1]] = strings.TrimSpace(decodeEntities(m[2]))
	}
	for _, m := range jsonLDRe.FindAllStringSubmatch(html, -1) {
		rec.Products = append(rec.Products, parseJSONLD(m[1])...)
	}
	rec.Text = stripHTML(html, maxChars)
	return rec
}

// stripHTML removes script/style/nav/footer blocks, strips tags, decodes
// common entities, and collapses whitespace into a bounded excerpt.
func stripHTML(html string, maxChars int) string {
	for _, tag := range []string{"script", "style", "nav", "footer"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}
	html = tagRe.ReplaceAllString(html, " ")
	html = decodeEntities(html)
	html = strings.TrimSpace(spaceRe.ReplaceAllString(html, " "))
	if maxChars > 0 && len(html) > maxChars {
		html = html[:maxChars]
	}
	return html
}

func decodeEntities(s string) string {
	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	return r.Replace(s)
}

// parseJSONLD pulls Product entries out of one JSON-LD script block. Blocks
// may hold a single object, an array, or a @graph list; anything that is not
// a Product is ignored, as is malformed JSON.
func parseJSONLD(raw string) []StructuredProduct {
	var root interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &root); err != nil {
		return nil
	}

	var out []StructuredProduct
	var walk func(node interface{})
	walk = func(node interface{}) {
		switch v := node.(type) {
		case []interface{}:
			for _, item := range v {
				walk(item)
			}
		case map[string]interface{}:
			if graph, ok := v["@graph"]; ok {
				walk(graph)
			}
			if typeName, _ := v["@type"].(string); strings.EqualFold(typeName, "Product") {
				out = append(out, structuredProduct(v))
			}
		}
	}
	walk(root)
	return out
}

func structuredProduct(m map[string]interface{}) StructuredProduct {
	sp := StructuredProduct{
		Name:        stringField(m["name"]),
		Description: stringField(m["description"]),
		Image:       stringField(m["image"]),
	}

	// brand may be a plain string or an object with a name.
	switch b := m["brand"].(type) {
	case string:
		sp.Brand = b
	case map[string]interface{}:
		sp.Brand = stringField(b["name"])
	}

	// offers may be a single object or a list; take the first with a price.
	var offers []interface{}
	switch o := m["offers"].(type) {
	case map[string]interface{}:
		offers = []interface{}{o}
	case []interface{}:
		offers = o
	}
	for _, o := range offers {
		om, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		if sp.Availability == "" {
			sp.Availability = stringField(om["availability"])
		}
		price := stringField(om["price"])
		if price == "" {
			continue
		}
		sp.Price = price
		sp.Currency = stringField(om["priceCurrency"])
		if a := stringField(om["availability"]); a != "" {
			sp.Availability = a
		}
		break
	}
	return sp
}

// stringField renders a JSON value as a string; numbers keep their decimal
// form and string lists yield their first element.
func stringField(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.2f", s), ".00")
	case []interface{}:
		if len(s) > 0 {
			return stringField(s[0])
		}
	}
	return ""
}
