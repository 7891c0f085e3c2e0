package recommender

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/imagesig"
	"github.com/commerce-agent/cagent-go/internal/rag"
)

// testStore writes a small catalog into a temp dir and returns its store.
func testStore(t *testing.T) *catalog.Store {
	t.Helper()
	body := `[
		{"id": "s1", "title": "Trail Running Shoe", "description": "Grippy trail running shoe.",
		 "brand": "Acme", "category": "fitness", "price_cents": 8999,
		 "colors": ["black"], "tags": ["running", "trail"], "rating": 4.8, "num_reviews": 500},
		{"id": "s2", "title": "Road Running Shoe", "description": "Cushioned road running shoe.",
		 "brand": "Acme", "category": "fitness", "price_cents": 10999,
		 "colors": ["white"], "tags": ["running"], "rating": 4.2, "num_reviews": 120},
		{"id": "s3", "title": "Navy Performance Hoodie", "description": "Midweight hoodie for cool runs.",
		 "brand": "Northway", "category": "apparel", "price_cents": 5999,
		 "colors": ["navy"], "tags": ["hoodie"], "rating": 4.5, "num_reviews": 80},
		{"id": "s4", "title": "Wireless Earbuds", "description": "Compact earbuds with long battery life.",
		 "brand": "Sonique", "category": "electronics", "price_cents": 12999,
		 "colors": ["white"], "tags": ["audio"], "rating": 4.1, "num_reviews": 300, "in_stock": false}
	]`
	path := filepath.Join(t.TempDir(), "products.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return catalog.NewStore(path)
}

// stubAnalyzer returns a canned analysis.
type stubAnalyzer struct {
	analysis *imagesig.Analysis
	err      error
}

func (a stubAnalyzer) Analyze(context.Context, []byte) (*imagesig.Analysis, error) {
	return a.analysis, a.err
}

func Test_NewService_RequiresStore(t *testing.T) {
	t.Parallel()
	if _, err := NewService(nil, nil, nil); err == nil {
		t.Fatal("want error for nil store")
	}
}

func Test_SearchCatalog_RanksAndDiversifies(t *testing.T) {
	t.Parallel()
	svc, err := NewService(testStore(t), nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	resp, err := svc.SearchCatalog(context.Background(), "trail running shoe", catalog.Filters{}, 3)
	if err != nil {
		t.Fatalf("SearchCatalog: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("want 3 results, got %d", len(resp.Results))
	}
	if resp.Results[0].ID != "s1" {
		t.Errorf("top result = %s, want s1", resp.Results[0].ID)
	}
	if resp.Results[1].Brand == "Acme" {
		t.Errorf("second result should break out of the top brand, got %s", resp.Results[1].Brand)
	}
	if resp.Results[0].Rationale == "" {
		t.Error("ranked card should carry a rationale")
	}
	if resp.Results[0].Source != "catalog" {
		t.Errorf("Source = %q, want catalog", resp.Results[0].Source)
	}

	if resp.Debug["catalog_size"] != 4 {
		t.Errorf("catalog_size = %v, want 4", resp.Debug["catalog_size"])
	}
	if resp.Debug["candidates"] != 4 {
		t.Errorf("candidates = %v, want 4", resp.Debug["candidates"])
	}
	terms, ok := resp.Debug["terms"].([]string)
	if !ok || len(terms) != 3 {
		t.Errorf("terms = %v, want [trail running shoe]", resp.Debug["terms"])
	}
}

func Test_SearchCatalog_ConstraintsShapeScoreAndRationale(t *testing.T) {
	t.Parallel()
	svc, err := NewService(testStore(t), nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	resp, err := svc.SearchCatalog(context.Background(), "running shoe",
		catalog.Filters{Color: []string{"black"}, PriceMax: 10000}, 5)
	if err != nil {
		t.Fatalf("SearchCatalog: %v", err)
	}
	if len(resp.Results) == 0 || resp.Results[0].ID != "s1" {
		t.Fatalf("results = %+v, want s1 first", resp.Results)
	}
	rationale := resp.Results[0].Rationale
	for _, want := range []string{"under $100", "available in black"} {
		if !strings.Contains(rationale, want) {
			t.Errorf("rationale %q missing %q", rationale, want)
		}
	}
}

func Test_SearchCatalog_AppliesFilters(t *testing.T) {
	t.Parallel()
	svc, err := NewService(testStore(t), nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	yes := true
	resp, err := svc.SearchCatalog(context.Background(), "earbuds",
		catalog.Filters{InStock: &yes}, 0)
	if err != nil {
		t.Fatalf("SearchCatalog: %v", err)
	}
	for _, card := range resp.Results {
		if card.ID == "s4" {
			t.Error("out-of-stock product survived the stock filter")
		}
	}
	if resp.Debug["candidates"] != 3 {
		t.Errorf("candidates = %v, want 3", resp.Debug["candidates"])
	}
}

func Test_ImageSearch_ColorHintNarrowsCandidates(t *testing.T) {
	t.Parallel()
	analyzer := stubAnalyzer{analysis: &imagesig.Analysis{
		DominantColors: []string{"navy"},
		Brightness:     "mostly_dark",
	}}
	svc, err := NewService(testStore(t), nil, analyzer)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	resp, err := svc.ImageSearch(context.Background(), []byte{1}, "", catalog.Filters{}, 5)
	if err != nil {
		t.Fatalf("ImageSearch: %v", err)
	}
	if applied, _ := resp.Debug["color_filter_applied"].(bool); !applied {
		t.Error("dominant colors should have been applied as a filter")
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "s3" {
		t.Fatalf("results = %+v, want just s3", resp.Results)
	}
	if resp.Results[0].Score <= 0 {
		t.Errorf("visual match score = %f, want > 0", resp.Results[0].Score)
	}
}

func Test_ImageSearch_ColorHintSkippedWhenItEmptiesPool(t *testing.T) {
	t.Parallel()
	analyzer := stubAnalyzer{analysis: &imagesig.Analysis{
		DominantColors: []string{"pink"},
		Brightness:     "balanced",
	}}
	svc, err := NewService(testStore(t), nil, analyzer)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	resp, err := svc.ImageSearch(context.Background(), []byte{1}, "", catalog.Filters{}, 5)
	if err != nil {
		t.Fatalf("ImageSearch: %v", err)
	}
	if applied, _ := resp.Debug["color_filter_applied"].(bool); applied {
		t.Error("a hint that matches nothing must not be applied")
	}
	if resp.Debug["candidates"] != 4 {
		t.Errorf("candidates = %v, want the full pool", resp.Debug["candidates"])
	}
}

func Test_ImageSearch_KeepsCallerColorFilter(t *testing.T) {
	t.Parallel()
	analyzer := stubAnalyzer{analysis: &imagesig.Analysis{
		DominantColors: []string{"navy"},
		Brightness:     "balanced",
	}}
	svc, err := NewService(testStore(t), nil, analyzer)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	resp, err := svc.ImageSearch(context.Background(), []byte{1}, "",
		catalog.Filters{Color: []string{"white"}}, 5)
	if err != nil {
		t.Fatalf("ImageSearch: %v", err)
	}
	if applied, _ := resp.Debug["color_filter_applied"].(bool); applied {
		t.Error("an explicit color filter must not be overridden")
	}
	for _, card := range resp.Results {
		if card.ID == "s3" {
			t.Error("navy hoodie should be excluded by the caller's white filter")
		}
	}
}

func Test_ImageSearch_DegradesToTextSearch(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		analyzer imagesig.Analyzer
	}{
		{"no analyzer", nil},
		{"analyzer error", stubAnalyzer{err: fmt.Errorf("decode failed")}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc, err := NewService(testStore(t), nil, tc.analyzer)
			if err != nil {
				t.Fatalf("NewService: %v", err)
			}

			resp, err := svc.ImageSearch(context.Background(), []byte{1}, "running shoe", catalog.Filters{}, 5)
			if err != nil {
				t.Fatalf("ImageSearch: %v", err)
			}
			if resp.Debug["image_signal"] != "unavailable" {
				t.Errorf("image_signal = %v, want unavailable", resp.Debug["image_signal"])
			}
			if len(resp.Results) == 0 {
				t.Fatal("text query should still return results")
			}
			if resp.Results[0].ID != "s1" && resp.Results[0].ID != "s2" {
				t.Errorf("top result = %s, want a running shoe", resp.Results[0].ID)
			}
		})
	}
}

func Test_ImageSearch_NoSignalNoQuery(t *testing.T) {
	t.Parallel()
	svc, err := NewService(testStore(t), nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	resp, err := svc.ImageSearch(context.Background(), nil, "", catalog.Filters{}, 5)
	if err != nil {
		t.Fatalf("ImageSearch: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("want no results, got %+v", resp.Results)
	}
	if resp.Debug["image_signal"] != "unavailable" {
		t.Errorf("image_signal = %v, want unavailable", resp.Debug["image_signal"])
	}
}

func Test_Recommend_NilPipelineDegrades(t *testing.T) {
	t.Parallel()
	svc, err := NewService(testStore(t), nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	resp, err := svc.Recommend(context.Background(), "running shoe", catalog.Filters{}, 3)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if resp.Debug["pipeline"] != "disabled" {
		t.Errorf("pipeline = %v, want disabled", resp.Debug["pipeline"])
	}
	if len(resp.Results) == 0 {
		t.Fatal("catalog search fallback should return results")
	}
}

func Test_Recommend_RunsPipeline(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	pipeline, err := rag.NewPipeline(context.Background(), &rag.PipelineConfig{Store: store})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	svc, err := NewService(store, pipeline, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	resp, err := svc.Recommend(context.Background(), "trail running shoe", catalog.Filters{}, 3)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if fallback, _ := resp.Debug["fallback"].(bool); !fallback {
		t.Error("no chat model configured, answer should be flagged as fallback")
	}
	if answer, _ := resp.Debug["answer"].(string); answer == "" {
		t.Error("fallback answer should not be empty")
	}
	if len(resp.Results) == 0 {
		t.Fatal("want ranked results from pipeline candidates")
	}
	if resp.Results[0].ID != "s1" {
		t.Errorf("top result = %s, want s1", resp.Results[0].ID)
	}
	if resp.Debug["web_cards"] != 0 {
		t.Errorf("web_cards = %v, want 0 without an augmenter", resp.Debug["web_cards"])
	}
}

func Test_Recommend_ConstraintsFilterPipelineHits(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	pipeline, err := rag.NewPipeline(context.Background(), &rag.PipelineConfig{Store: store})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	svc, err := NewService(store, pipeline, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	resp, err := svc.Recommend(context.Background(), "running shoe",
		catalog.Filters{Brand: "Northway"}, 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	for _, card := range resp.Results {
		if card.Brand != "Northway" {
			t.Errorf("brand constraint leaked: %+v", card)
		}
	}
}
