package webx

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/commerce-agent/cagent-go/internal/logging"
)

// fetchConcurrency bounds how many candidate pages are fetched in parallel.
const fetchConcurrency = 3

// Augmenter discovers and fetches live product pages for a query, returning
// them as catalog-shaped cards. Search and fetch failures degrade to an
// empty card list; Augment never returns an error to its caller.
type Augmenter struct {
	search  SearchProvider
	fetcher *Fetcher
}

// NewAugmenter wires a search provider to a fetcher.
func NewAugmenter(search SearchProvider, fetcher *Fetcher) *Augmenter {
	return &Augmenter{search: search, fetcher: fetcher}
}

// Augment returns up to limit web cards for the query. Candidate URLs come
// from the search provider, are filtered through the fetcher's domain gate,
// and are fetched concurrently. Card order follows search result order.
func (a *Augmenter) Augment(ctx context.Context, query string, limit int) []Card {
	if a == nil || limit <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	log := logging.FromContext(ctx)

	// Over-fetch candidates so gated domains and parse failures still leave
	// enough survivors to fill the limit.
	results, err := a.search.Search(ctx, query, limit*3)
	if err != nil {
		log.Warn("web search failed", "query", query, "error", err)
		return nil
	}
	if len(results) == 0 {
		return nil
	}

	cards := make([]*Card, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, r := range results {
		g.Go(func() error {
			cards[i] = PageCard(a.fetcher.Fetch(gctx, r.URL, false))
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Card, 0, limit)
	for _, c := range cards {
		if c == nil {
			continue
		}
		out = append(out, *c)
		if len(out) == limit {
			break
		}
	}
	log.Debug("web augmentation complete", "query", query, "cards", len(out))
	return out
}

// Prefetch warms the page cache for a set of URLs without shaping cards.
// Pages are refetched even when already cached, so a prefetch refreshes
// stale records. It returns the number of pages now cached.
func (a *Augmenter) Prefetch(ctx context.Context, urls []string) int {
	if a == nil {
		return 0
	}
	var cached int
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	counts := make([]int, len(urls))
	for i, u := range urls {
		g.Go(func() error {
			if a.fetcher.Fetch(gctx, u, true) != nil {
				counts[i] = 1
			}
			return nil
		})
	}
	_ = g.Wait()
	for _, c := range counts {
		cached += c
	}
	return cached
}
