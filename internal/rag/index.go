package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/logging"
)

// DocumentText renders the canonical embedding text for a product. Field
// lines are joined with newlines and blank fields are omitted, so two
// products with the same populated fields always produce the same text.
func DocumentText(p catalog.Product) string {
	parts := make([]string, 0, 7)
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	if p.Brand != "" {
		parts = append(parts, "Brand: "+p.Brand)
	}
	if p.Category != "" {
		parts = append(parts, "Category: "+p.Category)
	}
	if p.PriceCents > 0 {
		parts = append(parts, fmt.Sprintf("Price: %.2f %s", float64(p.PriceCents)/100, p.Currency))
	}
	if p.Description != "" {
		parts = append(parts, "Description: "+p.Description)
	}
	if len(p.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(p.Tags, ", "))
	}
	if len(p.Colors) > 0 {
		parts = append(parts, "Colors: "+strings.Join(p.Colors, ", "))
	}
	return strings.Join(parts, "\n")
}

// Hit is a single semantic search result from the in-memory index.
type Hit struct {
	// ProductID identifies the matched catalog product.
	ProductID string

	// Score is the cosine similarity between query and document, in (0, 1].
	Score float64
}

// Index is an in-memory dense vector index over catalog products. The
// document matrix is built once and never mutated by searches, so an Index
// is safe for concurrent reads after Build returns.
type Index struct {
	embedder Embedder
	ids      []string
	vectors  [][]float32
	norms    []float64
}

// NewIndex returns an empty index that embeds with the given embedder.
func NewIndex(embedder Embedder) *Index {
	return &Index{embedder: embedder}
}

// Build embeds every product document and stores the resulting matrix.
// Products whose document text is empty are skipped. Build replaces any
// previously indexed content.
func (ix *Index) Build(ctx context.Context, products []catalog.Product) error {
	ids := make([]string, 0, len(products))
	texts := make([]string, 0, len(products))
	for _, p := range products {
		text := DocumentText(p)
		if text == "" {
			continue
		}
		ids = append(ids, p.ID)
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		ix.ids, ix.vectors, ix.norms = nil, nil, nil
		return nil
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("rag: embed catalog documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("rag: embedder returned %d vectors for %d documents", len(vectors), len(texts))
	}

	norms := make([]float64, len(vectors))
	for i, v := range vectors {
		norms[i] = vectorNorm(v)
	}

	ix.ids = ids
	ix.vectors = vectors
	ix.norms = norms
	logging.FromContext(ctx).Debug("embedding index built", "documents", len(ids))
	return nil
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int { return len(ix.ids) }

// Search embeds the query and returns up to topK hits ordered by
// non-increasing cosine similarity. Hits with a non-positive score are
// dropped and duplicate product ids are collapsed to their best score, so
// every returned hit carries a strictly positive score for a distinct
// product. The query vector is returned alongside the hits so callers can
// reuse it for scoring web candidates.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]Hit, []float32, error) {
	if topK <= 0 || ix.Len() == 0 || strings.TrimSpace(query) == "" {
		return nil, nil, nil
	}
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, nil, fmt.Errorf("rag: embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil, fmt.Errorf("rag: embedder returned no vector for query")
	}
	qv := vectors[0]

	hits := ix.SearchVector(qv, topK)
	return hits, qv, nil
}

// SearchVector ranks the indexed documents against a pre-computed query
// vector. It never mutates the document matrix.
func (ix *Index) SearchVector(qv []float32, topK int) []Hit {
	if topK <= 0 || ix.Len() == 0 {
		return nil
	}
	qnorm := vectorNorm(qv)

	scored := make([]Hit, 0, len(ix.ids))
	for i, dv := range ix.vectors {
		score := Cosine(qv, qnorm, dv, ix.norms[i])
		if score <= 0 {
			continue
		}
		scored = append(scored, Hit{ProductID: ix.ids[i], Score: score})
	}
	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })

	seen := make(map[string]struct{}, topK)
	out := make([]Hit, 0, topK)
	for _, h := range scored {
		if _, ok := seen[h.ProductID]; ok {
			continue
		}
		seen[h.ProductID] = struct{}{}
		out = append(out, h)
		if len(out) == topK {
			break
		}
	}
	return out
}

// Cosine computes the cosine similarity of two vectors given their
// pre-computed norms. Different vector lengths score zero.
func Cosine(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}

// vectorNorm returns the Euclidean norm, clamped away from zero so that
// degenerate all-zero vectors divide cleanly to a zero similarity.
func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := math.Sqrt(sum)
	if n < 1e-12 {
		return 1e-12
	}
	return n
}
