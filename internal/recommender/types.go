// Package recommender exposes the product-facing search operations: catalog
// search, image-led search, and goal-driven recommendation. It composes the
// retrieval pipeline, the scoring engine, and the catalog into ranked,
// brand-diversified product cards plus the diagnostics each ranking carried.
package recommender

import (
	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/scoring"
)

// ProductCard is one ranked result returned to callers.
type ProductCard struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	Category    string   `json:"category,omitempty"`
	PriceCents  int      `json:"price_cents"`
	Currency    string   `json:"currency"`
	Sizes       []string `json:"sizes,omitempty"`
	Colors      []string `json:"colors,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	NumReviews  *int     `json:"num_reviews,omitempty"`
	InStock     bool     `json:"in_stock"`

	// Score is the composite relevance score for this ranking.
	Score float64 `json:"score"`

	// Rationale is the human-readable reason this card ranked where it did.
	Rationale string `json:"rationale"`

	// Source is "catalog" or "web".
	Source string `json:"source"`

	// URL is the source page for web-sourced cards.
	URL string `json:"url,omitempty"`
}

// SearchResponse is the result of one search or recommendation operation.
type SearchResponse struct {
	// Query is the query or goal that produced this response.
	Query string `json:"query"`

	// Results are the ranked product cards, best first.
	Results []ProductCard `json:"results"`

	// Debug carries diagnostics (candidate counts, fallback flags, applied
	// hints). It is for observability and never drives control flow.
	Debug map[string]interface{} `json:"debug,omitempty"`
}

// cardFromScored projects a scored product into a response card.
func cardFromScored(sp scoring.ScoredProduct, source, url string) ProductCard {
	p := sp.Product
	return ProductCard{
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
		Score:       sp.Score,
		Rationale:   sp.Rationale,
		Source:      source,
		URL:         url,
	}
}

// cards projects a diversified ranking into response cards, looking up the
// source url for web-derived candidates.
func cards(ranked []scoring.ScoredProduct, urls map[string]string) []ProductCard {
	out := make([]ProductCard, 0, len(ranked))
	for _, sp := range ranked {
		source := "catalog"
		url := ""
		if u, ok := urls[sp.Product.ID]; ok {
			source = "web"
			url = u
		}
		out = append(out, cardFromScored(sp, source, url))
	}
	return out
}

// filteredCandidates applies constraints to the catalog.
func filteredCandidates(products []catalog.Product, f catalog.Filters) []catalog.Product {
	return catalog.Filter(products, f)
}
