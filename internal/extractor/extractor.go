// Package extractor integrates a hosted scraping service (browse.ai style)
// as an optional candidate source: a configured extractor robot is run
// remotely, its run is polled to completion, and each extracted row becomes
// a catalog-shaped card. Results are cached on disk per extractor so a flaky
// remote service cannot make repeated requests for the same robot.
package extractor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/logging"
	"github.com/commerce-agent/cagent-go/internal/webx"
)

const (
	defaultBaseURL = "https://api.browse.ai/v2"

	// maxPolls bounds how many times a run is polled before giving up.
	maxPolls = 10

	// pollInterval is the delay between run status polls.
	pollInterval = 2 * time.Second
)

// Client runs remote extractors and shapes their rows into cards.
type Client struct {
	baseURL  string
	apiKey   string
	cacheDir string
	client   *http.Client

	// sleep is swapped out in tests to avoid real polling delays.
	sleep func(time.Duration)
}

// New builds a Client. cacheDir may be empty to disable result caching.
func New(baseURL, apiKey, cacheDir string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 30 * time.Second},
		sleep:    time.Sleep,
	}
}

// NewFromEnv builds a Client from BROWSE_API_KEY, BROWSE_API_URL, and
// WEB_CACHE_DIR. Returns nil when no API key is configured.
func NewFromEnv() *Client {
	apiKey := os.Getenv("BROWSE_API_KEY")
	if apiKey == "" {
		return nil
	}
	return New(os.Getenv("BROWSE_API_URL"), apiKey, os.Getenv("WEB_CACHE_DIR"))
}

// runResponse is the wire shape of both the run-start and run-poll replies.
type runResponse struct {
	Result struct {
		RunID         string                              `json:"runId"`
		Status        string                              `json:"status"`
		CapturedLists map[string][]map[string]interface{} `json:"capturedLists"`
	} `json:"result"`
}

// Run starts the extractor robot and polls until it finishes, returning its
// rows as cards. Failures are soft: a nil slice comes back and the cause is
// logged, so callers can cascade to the next candidate source.
func (c *Client) Run(ctx context.Context, extractorID string) []webx.Card {
	if c == nil || extractorID == "" {
		return nil
	}
	log := logging.FromContext(ctx)

	if cards := c.readCache(extractorID); cards != nil {
		log.Debug("extractor cache hit", "extractor", extractorID)
		return cards
	}

	runID, err := c.startRun(ctx, extractorID)
	if err != nil {
		log.Warn("extractor run failed to start", "extractor", extractorID, "error", err)
		return nil
	}

	rows, err := c.pollRun(ctx, runID)
	if err != nil {
		log.Warn("extractor run failed", "extractor", extractorID, "run", runID, "error", err)
		return nil
	}

	cards := rowsToCards(rows)
	if len(cards) > 0 {
		c.writeCache(extractorID, cards)
	}
	log.Debug("extractor run complete", "extractor", extractorID, "cards", len(cards))
	return cards
}

func (c *Client) startRun(ctx context.Context, extractorID string) (string, error) {
	reqURL := fmt.Sprintf("%s/extractors/%s/run", c.baseURL, extractorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", fmt.Errorf("extractor: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var rr runResponse
	if err := c.do(req, &rr); err != nil {
		return "", err
	}
	if rr.Result.RunID == "" {
		return "", fmt.Errorf("extractor: run response carried no run id")
	}
	return rr.Result.RunID, nil
}

func (c *Client) pollRun(ctx context.Context, runID string) ([]map[string]interface{}, error) {
	reqURL := fmt.Sprintf("%s/runs/%s", c.baseURL, runID)
	for attempt := 0; attempt < maxPolls; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("extractor: poll aborted: %w", ctx.Err())
			default:
			}
			c.sleep(pollInterval)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("extractor: create poll request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		var rr runResponse
		if err := c.do(req, &rr); err != nil {
			return nil, err
		}
		switch rr.Result.Status {
		case "successful", "completed":
			var rows []map[string]interface{}
			for _, list := range rr.Result.CapturedLists {
				rows = append(rows, list...)
			}
			return rows, nil
		case "failed", "cancelled":
			return nil, fmt.Errorf("extractor: run %s ended with status %q", runID, rr.Result.Status)
		}
	}
	return nil, fmt.Errorf("extractor: run %s did not finish within %d polls", runID, maxPolls)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("extractor: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return fmt.Errorf("extractor: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("extractor: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("extractor: decode response: %w", err)
	}
	return nil
}

// rowsToCards converts extractor rows into cards. Rows without a usable
// title are dropped; card ids are derived from the row URL, or the title
// when no URL was captured, so re-runs yield stable ids.
func rowsToCards(rows []map[string]interface{}) []webx.Card {
	cards := make([]webx.Card, 0, len(rows))
	for _, row := range rows {
		title := rowString(row, "title", "name", "product_name")
		if title == "" {
			continue
		}
		pageURL := rowString(row, "url", "link", "product_url")

		idSeed := pageURL
		if idSeed == "" {
			idSeed = title
		}
		sum := sha256.Sum256([]byte(idSeed))

		card := webx.Card{
			Product: catalog.Product{
				ID:          "browse_" + hex.EncodeToString(sum[:])[:10],
				Title:       title,
				Description: rowString(row, "description", "summary"),
				Brand:       rowString(row, "brand"),
				Category:    rowString(row, "category"),
				Currency:    "USD",
				Tags:        []string{"web-sourced"},
				InStock:     true,
			},
			URL: pageURL,
		}
		if img := rowString(row, "image", "image_url"); img != "" {
			card.ImageURLs = []string{img}
		}
		if cents, ok := webx.ParsePriceCents(rowString(row, "price", "price_text")); ok {
			card.PriceCents = cents
		}
		cards = append(cards, card)
	}
	return cards
}

// rowString returns the first non-empty string value among the given keys.
func rowString(row map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := row[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// cachePath keys cached results by extractor id and API key so switching
// accounts never serves another account's rows.
func (c *Client) cachePath(extractorID string) string {
	sum := sha256.Sum256([]byte(extractorID + c.apiKey))
	return filepath.Join(c.cacheDir, "extractor_"+hex.EncodeToString(sum[:])+".json")
}

func (c *Client) readCache(extractorID string) []webx.Card {
	if c.cacheDir == "" {
		return nil
	}
	data, err := os.ReadFile(c.cachePath(extractorID))
	if err != nil {
		return nil
	}
	var cards []webx.Card
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil
	}
	return cards
}

func (c *Client) writeCache(extractorID string, cards []webx.Card) {
	if c.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return
	}
	data, err := json.Marshal(cards)
	if err != nil {
		return
	}
	_ = os.WriteFile(c.cachePath(extractorID), data, 0o644)
}
