package agent

import (
	"context"
	"sort"
	"strings"

	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/logging"
	"github.com/commerce-agent/cagent-go/internal/recommender"
)

// candidateSource is one step in the text recommendation cascade.
type candidateSource interface {
	// Name identifies the source in logs and debug output.
	Name() string

	// Fetch returns ranked cards for the query, or nil to cascade onward.
	Fetch(ctx context.Context, query string, limit int) []recommender.ProductCard
}

// sourceChain tries candidate sources in priority order and returns the
// first non-empty result set. Only the final source's emptiness is
// user-visible; earlier empty sources simply cascade.
type sourceChain struct {
	sources []candidateSource
}

func newSourceChain(sources ...candidateSource) *sourceChain {
	return &sourceChain{sources: sources}
}

// Fetch runs the cascade. The second return names the source that answered,
// or "" when every source came up empty.
func (c *sourceChain) Fetch(ctx context.Context, query string, limit int) ([]recommender.ProductCard, string) {
	log := logging.FromContext(ctx)
	for _, s := range c.sources {
		cards := s.Fetch(ctx, query, limit)
		if len(cards) > 0 {
			return cards, s.Name()
		}
		log.Debug("candidate source empty, trying next", "source", s.Name(), "query", query)
	}
	return nil, ""
}

// titleBonus is added to a direct catalog match whose title contains the
// whole query as a substring.
const titleBonus = 0.5

// catalogKeywordSource matches products where every query term appears in
// the product text. It is the cheapest source and runs first.
type catalogKeywordSource struct {
	store *catalog.Store
}

func (s *catalogKeywordSource) Name() string { return "catalog_keyword" }

func (s *catalogKeywordSource) Fetch(ctx context.Context, query string, limit int) []recommender.ProductCard {
	products, err := s.store.Load(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("catalog unavailable", "error", err)
		return nil
	}

	terms := catalog.QueryTerms(query)
	if len(terms) == 0 {
		return nil
	}
	lowerQuery := strings.ToLower(strings.TrimSpace(query))

	type match struct {
		p     catalog.Product
		score float64
	}
	var matches []match
	for _, p := range products {
		hay := catalog.Haystack(p)
		all := true
		for _, t := range terms {
			if !strings.Contains(hay, t) {
				all = false
				break
			}
		}
		if !all {
			continue
		}
		score := 1.0
		if lowerQuery != "" && strings.Contains(strings.ToLower(p.Title), lowerQuery) {
			score += titleBonus
		}
		matches = append(matches, match{p: p, score: score})
	}
	sort.SliceStable(matches, func(a, b int) bool { return matches[a].score > matches[b].score })
	if len(matches) > limit {
		matches = matches[:limit]
	}

	cards := make([]recommender.ProductCard, 0, len(matches))
	for _, m := range matches {
		cards = append(cards, productCard(m.p, m.score))
	}
	return cards
}

// productCard projects a catalog product into a chat result card.
func productCard(p catalog.Product, score float64) recommender.ProductCard {
	rationale := "matches your keywords"
	if len(p.Tags) > 0 {
		rationale = rationale + " (" + p.Tags[0] + ")"
	}
	return recommender.ProductCard{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Brand:       p.Brand,
		Category:    p.Category,
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
		Sizes:       p.Sizes,
		Colors:      p.Colors,
		Tags:        p.Tags,
		ImageURLs:   p.ImageURLs,
		Rating:      p.Rating,
		NumReviews:  p.NumReviews,
		InStock:     p.InStock,
		Score:       score,
		Rationale:   rationale,
		Source:      "catalog",
	}
}
