package rag

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/commerce-agent/cagent-go/internal/catalog"
)

// keywordEmbedder is a deterministic test embedder: each dimension is 1 when
// the text contains the corresponding keyword.
type keywordEmbedder struct {
	keywords []string
	err      error
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, len(e.keywords))
		lower := strings.ToLower(text)
		for j, kw := range e.keywords {
			if strings.Contains(lower, kw) {
				v[j] = 1
			}
		}
		out[i] = v
	}
	return out, nil
}

func testEmbedder() *keywordEmbedder {
	return &keywordEmbedder{keywords: []string{"shoe", "watch", "headphones"}}
}

func Test_DocumentText(t *testing.T) {
	t.Parallel()
	rating := 4.5
	p := catalog.Product{
		ID: "p1", Title: "Trail Running Shoe", Brand: "Acme", Category: "fitness",
		PriceCents: 8999, Currency: "USD",
		Description: "Lightweight trail shoe.",
		Tags:        []string{"running", "trail"},
		Colors:      []string{"black", "red"},
		Rating:      &rating,
	}
	want := "Trail Running Shoe\n" +
		"Brand: Acme\n" +
		"Category: fitness\n" +
		"Price: 89.99 USD\n" +
		"Description: Lightweight trail shoe.\n" +
		"Tags: running, trail\n" +
		"Colors: black, red"
	if got := DocumentText(p); got != want {
		t.Errorf("DocumentText =\n%q\nwant\n%q", got, want)
	}
}

func Test_DocumentText_OmitsBlankFields(t *testing.T) {
	t.Parallel()
	p := catalog.Product{ID: "p1", Title: "Plain Item"}
	if got := DocumentText(p); got != "Plain Item" {
		t.Errorf("DocumentText = %q, want %q", got, "Plain Item")
	}
}

func Test_Index_Search_OrdersByRelevance(t *testing.T) {
	t.Parallel()
	products := []catalog.Product{
		{ID: "watch", Title: "Fitness Watch"},
		{ID: "shoe", Title: "Trail Shoe"},
		{ID: "combo", Title: "Shoe Watch Bundle"},
	}

	ix := NewIndex(testEmbedder())
	if err := ix.Build(context.Background(), products); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ix.Len() != 3 {
		t.Fatalf("Len = %d, want 3", ix.Len())
	}

	hits, qv, err := ix.Search(context.Background(), "running shoe", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if qv == nil {
		t.Fatal("Search should return the query vector")
	}
	if len(hits) != 2 {
		t.Fatalf("want 2 hits (watch has no overlap), got %d: %+v", len(hits), hits)
	}
	if hits[0].ProductID != "shoe" {
		t.Errorf("best hit = %q, want shoe", hits[0].ProductID)
	}
	for _, h := range hits {
		if h.Score <= 0 {
			t.Errorf("hit %q has non-positive score %v", h.ProductID, h.Score)
		}
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits are not in non-increasing score order")
	}
}

func Test_Index_Search_EmptyInputs(t *testing.T) {
	t.Parallel()
	ix := NewIndex(testEmbedder())
	if err := ix.Build(context.Background(), []catalog.Product{{ID: "p", Title: "Watch"}}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if hits, _, err := ix.Search(context.Background(), "  ", 5); err != nil || hits != nil {
		t.Errorf("blank query: hits=%v err=%v, want nil/nil", hits, err)
	}
	if hits, _, err := ix.Search(context.Background(), "watch", 0); err != nil || hits != nil {
		t.Errorf("topK=0: hits=%v err=%v, want nil/nil", hits, err)
	}
}

func Test_Index_Search_EmbedError(t *testing.T) {
	t.Parallel()
	emb := testEmbedder()
	ix := NewIndex(emb)
	if err := ix.Build(context.Background(), []catalog.Product{{ID: "p", Title: "Watch"}}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	emb.err = fmt.Errorf("backend down")
	if _, _, err := ix.Search(context.Background(), "watch", 5); err == nil {
		t.Error("want error when the embedder fails")
	}
}

func Test_Index_Build_SkipsEmptyDocuments(t *testing.T) {
	t.Parallel()
	ix := NewIndex(testEmbedder())
	err := ix.Build(context.Background(), []catalog.Product{
		{ID: "empty"},
		{ID: "p", Title: "Watch"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ix.Len() != 1 {
		t.Errorf("Len = %d, want 1 (empty document skipped)", ix.Len())
	}
}

func Test_Cosine(t *testing.T) {
	t.Parallel()
	a := []float32{1, 0}
	b := []float32{0, 1}

	if got := Cosine(a, vectorNorm(a), a, vectorNorm(a)); got < 0.999 || got > 1.001 {
		t.Errorf("self similarity = %v, want 1", got)
	}
	if got := Cosine(a, vectorNorm(a), b, vectorNorm(b)); got != 0 {
		t.Errorf("orthogonal similarity = %v, want 0", got)
	}
	if got := Cosine(a, vectorNorm(a), []float32{1}, 1); got != 0 {
		t.Errorf("length mismatch similarity = %v, want 0", got)
	}
}
