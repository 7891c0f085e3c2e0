package scoring

import (
	"math"
	"strings"
	"testing"

	"github.com/commerce-agent/cagent-go/internal/catalog"
)

func ratingOf(v float64) *float64 { return &v }
func reviewsOf(v int) *int        { return &v }

func Test_AttributeMatch(t *testing.T) {
	t.Parallel()
	p := catalog.Product{
		Brand: "Acme", PriceCents: 8999,
		Colors: []string{"black", "navy"}, Sizes: []string{"9", "10"},
	}

	cases := []struct {
		name string
		f    catalog.Filters
		want float64
	}{
		{"no constraints", catalog.Filters{}, 0},
		{"color and price cap match", catalog.Filters{Color: []string{"navy"}, PriceMax: 10000}, 1},
		{"half match", catalog.Filters{Color: []string{"red"}, Brand: "Acme"}, 0.5},
		{"brand case insensitive", catalog.Filters{Brand: "ACME"}, 1},
		{"size match", catalog.Filters{Size: []string{"10"}}, 1},
		{"price cap too low", catalog.Filters{PriceMax: 5000}, 0},
		{"price floor met", catalog.Filters{PriceMin: 5000}, 1},
		{"price floor missed", catalog.Filters{PriceMin: 10000}, 0},
		{"all five constraints", catalog.Filters{
			Color: []string{"black"}, Size: []string{"9"}, Brand: "Acme",
			PriceMin: 5000, PriceMax: 10000,
		}, 1},
		{"none of three", catalog.Filters{Color: []string{"red"}, Size: []string{"12"}, Brand: "Other"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := AttributeMatch(tc.f, p); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("AttributeMatch = %v, want %v", got, tc.want)
			}
		})
	}
}

func Test_Popularity(t *testing.T) {
	t.Parallel()
	if got := Popularity(catalog.Product{}); got != 0 {
		t.Errorf("unrated popularity = %v, want 0", got)
	}

	// Either field missing means no usable signal.
	if got := Popularity(catalog.Product{Rating: ratingOf(4.5)}); got != 0 {
		t.Errorf("rating without review count popularity = %v, want 0", got)
	}
	if got := Popularity(catalog.Product{NumReviews: reviewsOf(100)}); got != 0 {
		t.Errorf("review count without rating popularity = %v, want 0", got)
	}

	reviewed := catalog.Product{Rating: ratingOf(4.0), NumReviews: reviewsOf(100)}
	want := 4.0 * (1 + math.Sqrt(100)/10)
	if got := Popularity(reviewed); math.Abs(got-want) > 1e-9 {
		t.Errorf("reviewed popularity = %v, want %v", got, want)
	}

	few := catalog.Product{Rating: ratingOf(4.0), NumReviews: reviewsOf(1)}
	if Popularity(reviewed) <= Popularity(few) {
		t.Error("review volume should amplify the rating")
	}
}

func Test_Composite_Deterministic(t *testing.T) {
	t.Parallel()
	p := catalog.Product{
		Brand: "Acme", PriceCents: 8999,
		Rating: ratingOf(5.0), NumReviews: reviewsOf(0), InStock: true,
	}
	f := catalog.Filters{Brand: "Acme"}

	// baseline 0.8, rerank mirrors baseline, attribute 1, pop 5.0, in stock.
	want := 0.55*0.8 + 0.20*0.8 + 0.10*1 + 0.10*(5.0/10) + 0.05
	got := Composite(0.8, -1, f, p)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Composite = %v, want %v", got, want)
	}
	if got != Composite(0.8, -1, f, p) {
		t.Error("Composite should be deterministic")
	}

	// An explicit rerank replaces the mirrored baseline.
	withRerank := Composite(0.8, 0.2, f, p)
	if withRerank >= got {
		t.Errorf("lower rerank should lower the score: %v vs %v", withRerank, got)
	}
}

func Test_Composite_StockSwing(t *testing.T) {
	t.Parallel()
	in := catalog.Product{InStock: true}
	out := catalog.Product{InStock: false}
	diff := Composite(0.5, -1, catalog.Filters{}, in) - Composite(0.5, -1, catalog.Filters{}, out)
	if math.Abs(diff-0.15) > 1e-9 {
		t.Errorf("stock swing = %v, want 0.15", diff)
	}
}

func Test_ScoreProducts_OrdersAndExplains(t *testing.T) {
	t.Parallel()
	products := []catalog.Product{
		{ID: "weak", Title: "Weak", InStock: true},
		{ID: "strong", Title: "Strong", Brand: "Acme", PriceCents: 8999,
			Colors: []string{"navy"}, Sizes: []string{"m"},
			Rating: ratingOf(4.8), NumReviews: reviewsOf(500), InStock: true},
	}
	f := catalog.Filters{Color: []string{"Navy"}, Size: []string{"M"}, PriceMax: 10000}

	scored := ScoreProducts(products, []float64{0.1, 0.9}, f)
	if scored[0].Product.ID != "strong" {
		t.Fatalf("best = %q, want strong", scored[0].Product.ID)
	}
	if scored[0].Baseline != 0.9 {
		t.Errorf("Baseline = %v, want 0.9", scored[0].Baseline)
	}
	for _, want := range []string{"under $100", "available in navy", "sizes m"} {
		if !strings.Contains(scored[0].Rationale, want) {
			t.Errorf("rationale %q missing %q", scored[0].Rationale, want)
		}
	}
	for _, sp := range scored {
		if sp.Rationale == "" {
			t.Errorf("product %q has an empty rationale", sp.Product.ID)
		}
	}
}

func Test_Rationale_FallsBack(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		p    catalog.Product
		want string
	}{
		{"first tag", catalog.Product{Tags: []string{"running", "trail"}}, "running"},
		{"description", catalog.Product{Description: "Short description."}, "Short description."},
		{"title last", catalog.Product{Title: "Bare Product"}, "Bare Product"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := rationale(nil, tc.p); got != tc.want {
				t.Errorf("rationale = %q, want %q", got, tc.want)
			}
		})
	}
}
