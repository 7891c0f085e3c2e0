package rag

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/webx"
)

// testStore writes a small catalog to disk and returns a store over it.
func testStore(t *testing.T) *catalog.Store {
	t.Helper()
	body := `[
		{"id": "shoe", "title": "Trail Running Shoe", "brand": "Acme", "price_cents": 8999, "description": "Grippy trail shoe."},
		{"id": "watch", "title": "Fitness Watch", "brand": "Pulse", "price_cents": 19999},
		{"id": "headphones", "title": "Wireless Headphones", "brand": "Sonique", "price_cents": 24999}
	]`
	path := filepath.Join(t.TempDir(), "products.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return catalog.NewStore(path)
}

func Test_Pipeline_Run_LexicalFallbackAnswer(t *testing.T) {
	t.Parallel()
	p, err := NewPipeline(context.Background(), &PipelineConfig{Store: testStore(t)})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	result, err := p.Run(context.Background(), "running shoe", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Fallback {
		t.Error("answer should be the deterministic fallback without a chat model")
	}
	if len(result.Products) != 1 || result.Products[0].ID != "shoe" {
		t.Fatalf("Products = %+v, want the shoe", result.Products)
	}
	want := "Top catalog matches for 'running shoe': Trail Running Shoe."
	if result.Answer != want {
		t.Errorf("Answer = %q, want %q", result.Answer, want)
	}
	if len(result.References) != 1 || result.References[0].Source != "catalog" {
		t.Errorf("References = %+v", result.References)
	}
	if result.Scores["shoe"] <= 0 {
		t.Errorf("Scores = %v, want positive shoe score", result.Scores)
	}
}

func Test_Pipeline_Run_NoMatches(t *testing.T) {
	t.Parallel()
	p, err := NewPipeline(context.Background(), &PipelineConfig{Store: testStore(t)})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	result, err := p.Run(context.Background(), "submarine periscope", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Fallback || len(result.Products) != 0 {
		t.Fatalf("want empty fallback result, got %+v", result)
	}
	want := "I could not find relevant catalog or web entries for that request."
	if result.Answer != want {
		t.Errorf("Answer = %q, want %q", result.Answer, want)
	}
}

func Test_Pipeline_Run_DenseRetrieval(t *testing.T) {
	t.Parallel()
	p, err := NewPipeline(context.Background(), &PipelineConfig{
		Store:    testStore(t),
		Embedder: testEmbedder(),
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	result, err := p.Run(context.Background(), "shoe", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Products) == 0 || result.Products[0].ID != "shoe" {
		t.Fatalf("Products = %+v, want shoe first", result.Products)
	}
}

func Test_Pipeline_Retrieve_DegradesToLexical(t *testing.T) {
	t.Parallel()
	emb := testEmbedder()
	p, err := NewPipeline(context.Background(), &PipelineConfig{
		Store:    testStore(t),
		Embedder: emb,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	emb.err = os.ErrDeadlineExceeded
	hits, qv := p.Retrieve(context.Background(), "wireless headphones", 0)
	if qv != nil {
		t.Error("lexical retrieval should not return a query vector")
	}
	if len(hits) == 0 || hits[0].ProductID != "headphones" {
		t.Errorf("hits = %+v, want headphones first", hits)
	}
}

func Test_ContextLines(t *testing.T) {
	t.Parallel()
	products := make([]catalog.Product, 7)
	for i := range products {
		products[i] = catalog.Product{ID: "p", Title: "Product", Brand: "B", Description: "Desc"}
	}
	cards := make([]webx.Card, 4)
	for i := range cards {
		cards[i] = webx.Card{Product: catalog.Product{Title: "Page"}}
	}

	lines := contextLines(products, cards)
	if len(lines) != 8 {
		t.Fatalf("want 5 catalog + 3 web lines, got %d", len(lines))
	}
	if lines[0] != "Product (B) - Desc" {
		t.Errorf("catalog line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[5], "[web] ") {
		t.Errorf("web line = %q, missing [web] prefix", lines[5])
	}
}

func Test_FallbackAnswer_CombinesCatalogAndWeb(t *testing.T) {
	t.Parallel()
	products := []catalog.Product{{Title: "Trail Shoe"}, {Title: "Road Shoe"}}
	cards := []webx.Card{
		{Product: catalog.Product{Title: "Web Mouse"}},
		{Product: catalog.Product{Title: "Web Pad"}},
	}

	got := fallbackAnswer("gear", products, cards)
	want := "Top catalog matches for 'gear': Trail Shoe, Road Shoe, Web Mouse."
	if got != want {
		t.Errorf("fallbackAnswer = %q, want %q", got, want)
	}

	// Web-only candidates still get listed.
	got = fallbackAnswer("gaming mouse", nil, cards[:1])
	want = "Top catalog matches for 'gaming mouse': Web Mouse."
	if got != want {
		t.Errorf("fallbackAnswer = %q, want %q", got, want)
	}

	got = fallbackAnswer("nothing", nil, nil)
	want = "I could not find relevant catalog or web entries for that request."
	if got != want {
		t.Errorf("fallbackAnswer = %q, want %q", got, want)
	}
}

// stubSearch is a SearchProvider returning a fixed result list.
type stubSearch struct {
	results []webx.SearchResult
}

func (s *stubSearch) Search(context.Context, string, int) ([]webx.SearchResult, error) {
	return s.results, nil
}

// testAugmenter serves two product pages, one about shoes and one that
// matches no catalog keyword.
func testAugmenter(t *testing.T) *webx.Augmenter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title := "Garden Hose"
		if r.URL.Path == "/shoe" {
			title = "Trail Shoe Deals"
		}
		fmt.Fprintf(w, "<html><head><title>%s</title></head></html>", title)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	gate := webx.NewDomainGate([]string{u.Hostname()}, false)
	search := &stubSearch{results: []webx.SearchResult{
		{Title: "Hose", URL: srv.URL + "/hose"},
		{Title: "Shoe", URL: srv.URL + "/shoe"},
	}}
	return webx.NewAugmenter(search, webx.NewFetcher(gate, ""))
}

func Test_Pipeline_Run_WebNeedsQueryVector(t *testing.T) {
	t.Parallel()
	p, err := NewPipeline(context.Background(), &PipelineConfig{
		Store:     testStore(t),
		Augmenter: testAugmenter(t),
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	// Lexical retrieval yields no query vector, so no web candidates.
	result, err := p.Run(context.Background(), "running shoe", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.WebCards) != 0 {
		t.Errorf("WebCards = %+v, want none without an embedding", result.WebCards)
	}
	for _, ref := range result.References {
		if ref.Source == "web" {
			t.Errorf("unexpected web reference %+v", ref)
		}
	}
}

func Test_Pipeline_Run_ScoresWebCardsBySimilarity(t *testing.T) {
	t.Parallel()
	p, err := NewPipeline(context.Background(), &PipelineConfig{
		Store:     testStore(t),
		Embedder:  testEmbedder(),
		Augmenter: testAugmenter(t),
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	result, err := p.Run(context.Background(), "running shoe", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.WebCards) != 1 || result.WebCards[0].Title != "Trail Shoe Deals" {
		t.Fatalf("WebCards = %+v, want only the shoe page", result.WebCards)
	}

	// The card's score is its real cosine similarity to the query, not a
	// positional rank. Both texts contain only the "shoe" keyword, so the
	// similarity is exactly 1.
	card := result.WebCards[0]
	if got := result.Scores[card.ID]; got != 1 {
		t.Errorf("Scores[%s] = %v, want 1", card.ID, got)
	}
	var webRef *Reference
	for i := range result.References {
		if result.References[i].Source == "web" {
			webRef = &result.References[i]
		}
	}
	if webRef == nil || webRef.Score != 1 || webRef.ID != card.ID {
		t.Errorf("web reference = %+v, want the card with similarity 1", webRef)
	}
}

// fakeVectorStore is a VectorStore stub serving canned search results.
type fakeVectorStore struct {
	docs    []Document
	err     error
	queries int
}

func (s *fakeVectorStore) Upsert(context.Context, []Document, [][]float32) error { return nil }

func (s *fakeVectorStore) Search(_ context.Context, _ []float32, topK int) ([]Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.queries++
	if len(s.docs) > topK {
		return s.docs[:topK], nil
	}
	return s.docs, nil
}

func (s *fakeVectorStore) Delete(context.Context, []string) error { return nil }

func (s *fakeVectorStore) Close() error { return nil }

func Test_Pipeline_Retrieve_UsesVectorStore(t *testing.T) {
	t.Parallel()
	vectors := &fakeVectorStore{docs: []Document{
		{ID: "watch", Score: 0.9, Source: "catalog"},
		{ID: "shoe", Score: 0, Source: "catalog"},
	}}
	p, err := NewPipeline(context.Background(), &PipelineConfig{
		Store:    testStore(t),
		Embedder: testEmbedder(),
		Vectors:  vectors,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	hits, qv := p.Retrieve(context.Background(), "fitness watch", 0)
	if vectors.queries != 1 {
		t.Fatalf("store queried %d times, want 1", vectors.queries)
	}
	if qv == nil {
		t.Error("vector store retrieval should return the query vector")
	}
	if len(hits) != 1 || hits[0].ProductID != "watch" {
		t.Fatalf("hits = %+v, want only the positively scored watch", hits)
	}
	if hits[0].Score != 0.9 {
		t.Errorf("Score = %v, want the store's similarity", hits[0].Score)
	}

	result, err := p.Run(context.Background(), "fitness watch", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Products) != 1 || result.Products[0].ID != "watch" {
		t.Errorf("Products = %+v, want the watch", result.Products)
	}
}

func Test_Pipeline_Retrieve_VectorStoreFailureFallsBack(t *testing.T) {
	t.Parallel()
	p, err := NewPipeline(context.Background(), &PipelineConfig{
		Store:    testStore(t),
		Embedder: testEmbedder(),
		Vectors:  &fakeVectorStore{err: fmt.Errorf("qdrant down")},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	hits, qv := p.Retrieve(context.Background(), "wireless headphones", 0)
	if len(hits) == 0 || hits[0].ProductID != "headphones" {
		t.Fatalf("hits = %+v, want the in-memory index result", hits)
	}
	if qv == nil {
		t.Error("index retrieval should return the query vector")
	}
}

func Test_Pipeline_Run_CountsOutcomes(t *testing.T) {
	t.Parallel()
	metrics := NewPipelineMetrics(prometheus.NewRegistry())
	p, err := NewPipeline(context.Background(), &PipelineConfig{Store: testStore(t), Metrics: metrics})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if _, err := p.Run(context.Background(), "running shoe", 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := p.Run(context.Background(), "quantum flux capacitor", 0); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(metrics.Runs.WithLabelValues("fallback")); got != 1 {
		t.Errorf("fallback runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Runs.WithLabelValues("empty")); got != 1 {
		t.Errorf("empty runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Runs.WithLabelValues("generated")); got != 0 {
		t.Errorf("generated runs = %v, want 0", got)
	}
}
