package recommender

import (
	"context"
	"fmt"
	"strings"

	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/imagesig"
	"github.com/commerce-agent/cagent-go/internal/logging"
	"github.com/commerce-agent/cagent-go/internal/rag"
	"github.com/commerce-agent/cagent-go/internal/scoring"
)

// defaultLimit is the result count used when a caller passes 0.
const defaultLimit = 10

// Service implements the product search and recommendation operations.
type Service struct {
	store    *catalog.Store
	pipeline *rag.Pipeline
	analyzer imagesig.Analyzer
}

// NewService wires a Service. pipeline may be nil; retrieval then runs on
// lexical matching only. analyzer may be nil; image search then degrades to
// text search over any accompanying query.
func NewService(store *catalog.Store, pipeline *rag.Pipeline, analyzer imagesig.Analyzer) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("recommender: catalog store must not be nil")
	}
	return &Service{store: store, pipeline: pipeline, analyzer: analyzer}, nil
}

// Store returns the catalog store backing this service.
func (s *Service) Store() *catalog.Store { return s.store }

// SearchCatalog ranks catalog products against a text query under the given
// constraints. The baseline relevance signal is lexical term overlap, lifted
// by dense similarity where the semantic index has a stronger opinion.
func (s *Service) SearchCatalog(ctx context.Context, query string, f catalog.Filters, limit int) (*SearchResponse, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	products, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	candidates := filteredCandidates(products, f)

	dense := s.denseScores(ctx, query, len(products))
	baseline := make([]float64, len(candidates))
	for i, p := range candidates {
		baseline[i] = catalog.LexicalScore(query, p)
		if d, ok := dense[p.ID]; ok && d > baseline[i] {
			baseline[i] = d
		}
	}

	terms := catalog.QueryTerms(query)
	ranked := scoring.Diversify(scoring.ScoreProducts(candidates, baseline, f), limit)

	return &SearchResponse{
		Query:   query,
		Results: cards(ranked, nil),
		Debug: map[string]interface{}{
			"catalog_size":  len(products),
			"candidates":    len(candidates),
			"semantic_hits": len(dense),
			"terms":         terms,
		},
	}, nil
}

// ImageSearch ranks catalog products against an uploaded image, optionally
// refined by a text query. Dominant image colors are applied as a color
// constraint when the caller supplied none, unless doing so would empty the
// candidate pool.
func (s *Service) ImageSearch(ctx context.Context, imageBytes []byte, query string, f catalog.Filters, limit int) (*SearchResponse, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	log := logging.FromContext(ctx)

	analysis := s.analyze(ctx, imageBytes)
	if analysis == nil {
		// No usable visual signal. A text query still gets a normal search.
		if strings.TrimSpace(query) != "" {
			resp, err := s.SearchCatalog(ctx, query, f, limit)
			if err != nil {
				return nil, err
			}
			resp.Debug["image_signal"] = "unavailable"
			return resp, nil
		}
		return &SearchResponse{
			Query:   query,
			Results: []ProductCard{},
			Debug:   map[string]interface{}{"image_signal": "unavailable"},
		}, nil
	}

	products, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	colorFilterApplied := false
	if len(f.Color) == 0 {
		if hinted := imagesig.ColorsToFilters(analysis.DominantColors); len(hinted) > 0 {
			withColors := f
			withColors.Color = hinted
			if narrowed := filteredCandidates(products, withColors); len(narrowed) > 0 {
				f = withColors
				colorFilterApplied = true
			}
		}
	}
	candidates := filteredCandidates(products, f)

	textScores := make([]float64, len(candidates))
	if strings.TrimSpace(query) != "" {
		for i, p := range candidates {
			textScores[i] = catalog.LexicalScore(query, p)
		}
	}

	hints := scoring.ImageHints{
		Colors:     analysis.DominantColors,
		Brightness: analysis.Brightness,
		Labels:     analysis.Labels,
		Categories: s.categoriesForLabels(products, analysis.Labels),
	}
	ranked := scoring.Diversify(scoring.ScoreProductsByImage(candidates, textScores, hints), limit)

	log.Debug("image search ranked",
		"colors", analysis.DominantColors,
		"brightness", analysis.Brightness,
		"candidates", len(candidates))

	return &SearchResponse{
		Query:   query,
		Results: cards(ranked, nil),
		Debug: map[string]interface{}{
			"candidates":           len(candidates),
			"dominant_colors":      analysis.DominantColors,
			"brightness":           analysis.Brightness,
			"image_notes":          analysis.Notes,
			"color_filter_applied": colorFilterApplied,
		},
	}, nil
}

// Recommend ranks candidates for a shopping goal under the given
// constraints, blending catalog retrieval with live web candidates when the
// pipeline carries a web augmenter.
func (s *Service) Recommend(ctx context.Context, goal string, constraints catalog.Filters, limit int) (*SearchResponse, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if s.pipeline == nil {
		resp, err := s.SearchCatalog(ctx, goal, constraints, limit)
		if err != nil {
			return nil, err
		}
		resp.Debug["pipeline"] = "disabled"
		return resp, nil
	}

	result, err := s.pipeline.Run(ctx, goal, limit)
	if err != nil {
		return nil, err
	}

	terms := catalog.QueryTerms(goal)
	pool := filteredCandidates(result.Products, constraints)
	baseline := make([]float64, len(pool))
	for i, p := range pool {
		baseline[i] = result.Scores[p.ID]
	}

	urls := make(map[string]string, len(result.WebCards))
	for _, card := range result.WebCards {
		if !catalog.Matches(card.Product, constraints) {
			continue
		}
		pool = append(pool, card.Product)
		baseline = append(baseline, result.Scores[card.ID])
		urls[card.ID] = card.URL
	}

	ranked := scoring.Diversify(scoring.ScoreProducts(pool, baseline, constraints), limit)

	return &SearchResponse{
		Query:   goal,
		Results: cards(ranked, urls),
		Debug: map[string]interface{}{
			"answer":        result.Answer,
			"fallback":      result.Fallback,
			"catalog_hits":  len(result.Products),
			"web_cards":     len(result.WebCards),
			"terms":         terms,
			"context_lines": len(result.Context),
		},
	}, nil
}

// denseScores queries the semantic index and returns id→score. An absent or
// failing index yields an empty map.
func (s *Service) denseScores(ctx context.Context, query string, topK int) map[string]float64 {
	if s.pipeline == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	hits, _ := s.pipeline.Retrieve(ctx, query, topK)
	out := make(map[string]float64, len(hits))
	for _, h := range hits {
		out[h.ProductID] = h.Score
	}
	return out
}

// analyze runs the image analyzer, degrading to nil on any failure.
func (s *Service) analyze(ctx context.Context, imageBytes []byte) *imagesig.Analysis {
	if s.analyzer == nil || len(imageBytes) == 0 {
		return nil
	}
	analysis, err := s.analyzer.Analyze(ctx, imageBytes)
	if err != nil {
		logging.FromContext(ctx).Warn("image analysis failed", "error", err)
		return nil
	}
	return analysis
}

// categoriesForLabels maps classifier labels onto catalog categories by
// substring match in either direction.
func (s *Service) categoriesForLabels(products []catalog.Product, labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, p := range products {
		cat := strings.ToLower(p.Category)
		if cat == "" {
			continue
		}
		if _, dup := seen[cat]; dup {
			continue
		}
		for _, l := range labels {
			l = strings.ToLower(l)
			if strings.Contains(cat, l) || strings.Contains(l, cat) {
				seen[cat] = struct{}{}
				out = append(out, p.Category)
				break
			}
		}
	}
	return out
}
