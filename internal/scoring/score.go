// Package scoring ranks candidate products with a weighted heuristic blend
// of retrieval relevance, attribute matches, review popularity, and stock
// state, then diversifies the ranked pool across brands. Scores are pure
// functions of their inputs so a ranking can be replayed exactly.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/commerce-agent/cagent-go/internal/catalog"
)

// Weights of the composite relevance score. Baseline carries the retrieval
// signal (semantic or lexical), rerank is a secondary relevance pass that
// currently mirrors the baseline until a dedicated cross-encoder is wired
// in, and the remaining terms reward attribute matches, review popularity,
// and availability.
const (
	weightBaseline  = 0.55
	weightRerank    = 0.20
	weightAttribute = 0.10
	weightPop       = 0.10
	stockBonus      = 0.05
	stockPenalty    = 0.10
)

// ScoredProduct pairs a product with its composite score and the per-term
// breakdown used to produce it.
type ScoredProduct struct {
	Product catalog.Product

	// Score is the composite relevance score.
	Score float64

	// Baseline is the retrieval relevance signal in [0, 1].
	Baseline float64

	// Rationale explains the score terms for debugging.
	Rationale string
}

// AttributeMatch returns the fraction of the caller's constraints the
// product satisfies, over the constraints actually present: color, size,
// brand, and the price bounds. No constraints score zero.
func AttributeMatch(f catalog.Filters, p catalog.Product) float64 {
	total, matched := 0, 0
	if len(f.Color) > 0 {
		total++
		if len(matchedValues(f.Color, p.Colors)) > 0 {
			matched++
		}
	}
	if len(f.Size) > 0 {
		total++
		if len(matchedValues(f.Size, p.Sizes)) > 0 {
			matched++
		}
	}
	if f.Brand != "" {
		total++
		if strings.EqualFold(f.Brand, p.Brand) {
			matched++
		}
	}
	if f.PriceMax > 0 {
		total++
		if p.PriceCents <= f.PriceMax {
			matched++
		}
	}
	if f.PriceMin > 0 {
		total++
		if p.PriceCents >= f.PriceMin {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

// matchedValues intersects wanted and have case-insensitively and returns
// the matched values lowercased and sorted.
func matchedValues(wanted, have []string) []string {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[strings.ToLower(h)] = struct{}{}
	}
	var out []string
	for _, w := range wanted {
		w = strings.ToLower(w)
		if _, ok := set[w]; ok {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

// Popularity derives a review-based popularity signal. A product missing
// either its rating or its review count yields zero; review volume
// amplifies the rating sub-linearly so a flood of reviews cannot drown out
// the star value.
func Popularity(p catalog.Product) float64 {
	if p.Rating == nil || p.NumReviews == nil {
		return 0
	}
	return *p.Rating * (1 + math.Sqrt(float64(*p.NumReviews))/10)
}

// Composite computes the weighted relevance score for a product given its
// baseline retrieval score and the caller's constraints. rerank may be
// negative to request the default behaviour of mirroring the baseline.
func Composite(baseline, rerank float64, f catalog.Filters, p catalog.Product) float64 {
	if rerank < 0 {
		rerank = baseline
	}
	score := weightBaseline*baseline +
		weightRerank*rerank +
		weightAttribute*AttributeMatch(f, p) +
		weightPop*(Popularity(p)/10)
	if p.InStock {
		score += stockBonus
	} else {
		score -= stockPenalty
	}
	return score
}

// ScoreProducts scores every candidate and returns them ordered by
// non-increasing composite score. baseline[i] is the retrieval score for
// products[i]; the input slices are not modified.
func ScoreProducts(products []catalog.Product, baseline []float64, f catalog.Filters) []ScoredProduct {
	scored := make([]ScoredProduct, 0, len(products))
	for i, p := range products {
		var base float64
		if i < len(baseline) {
			base = baseline[i]
		}
		sp := ScoredProduct{
			Product:  p,
			Score:    Composite(base, -1, f, p),
			Baseline: base,
		}
		sp.Rationale = rationale(textReasons(base, f, p), p)
		scored = append(scored, sp)
	}
	sortByScore(scored)
	return scored
}

func sortByScore(scored []ScoredProduct) {
	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })
}

func textReasons(baseline float64, f catalog.Filters, p catalog.Product) []string {
	var reasons []string
	if baseline > 0 {
		reasons = append(reasons, fmt.Sprintf("relevance %.2f", baseline))
	}
	if f.PriceMax > 0 && p.PriceCents <= f.PriceMax {
		reasons = append(reasons, fmt.Sprintf("under $%.0f", float64(f.PriceMax)/100))
	}
	if colors := matchedValues(f.Color, p.Colors); len(colors) > 0 {
		reasons = append(reasons, "available in "+strings.Join(colors, ", "))
	}
	if sizes := matchedValues(f.Size, p.Sizes); len(sizes) > 0 {
		reasons = append(reasons, "sizes "+strings.Join(sizes, ", "))
	}
	if Popularity(p) > 0 {
		reasons = append(reasons, "well reviewed")
	}
	return reasons
}

// rationale joins the score reasons for display. It is never empty for a
// scored candidate: with no reasons it falls back to the first tag, then to
// a description prefix.
func rationale(reasons []string, p catalog.Product) string {
	if len(reasons) > 0 {
		return strings.Join(reasons, "; ")
	}
	if len(p.Tags) > 0 {
		return p.Tags[0]
	}
	if p.Description != "" {
		d := p.Description
		if len(d) > 80 {
			d = d[:80]
		}
		return d
	}
	return p.Title
}
