package scoring

import (
	"math"
	"testing"

	"github.com/commerce-agent/cagent-go/internal/catalog"
)

func Test_ColorOverlap(t *testing.T) {
	t.Parallel()
	p := catalog.Product{Colors: []string{"Navy", "white"}}

	cases := []struct {
		name   string
		hinted []string
		want   float64
	}{
		{"no hints", nil, 0},
		{"exact", []string{"navy"}, 1},
		{"case fold", []string{"WHITE"}, 1},
		{"blue satisfied by navy", []string{"blue"}, 1},
		{"half", []string{"navy", "red"}, 0.5},
		{"miss", []string{"green"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ColorOverlap(tc.hinted, p); got != tc.want {
				t.Errorf("ColorOverlap = %v, want %v", got, tc.want)
			}
		})
	}

	blue := catalog.Product{Colors: []string{"blue"}}
	if got := ColorOverlap([]string{"navy"}, blue); got != 1 {
		t.Errorf("navy hint on blue product = %v, want 1", got)
	}
}

func Test_BrightnessBonus(t *testing.T) {
	t.Parallel()
	dark := catalog.Product{Colors: []string{"black"}}
	light := catalog.Product{Colors: []string{"white"}}

	if got := brightnessBonus("mostly_dark", dark); got != darkBonus {
		t.Errorf("dark bonus = %v, want %v", got, darkBonus)
	}
	if got := brightnessBonus("mostly_light", light); got != lightBonus {
		t.Errorf("light bonus = %v, want %v", got, lightBonus)
	}
	if got := brightnessBonus("balanced", dark); got != 0 {
		t.Errorf("balanced bonus = %v, want 0", got)
	}
	if got := brightnessBonus("mostly_dark", light); got != 0 {
		t.Errorf("tone mismatch bonus = %v, want 0", got)
	}

	// Only black and navy read as dark, only white and gray as light.
	brown := catalog.Product{Colors: []string{"brown"}}
	if got := brightnessBonus("mostly_dark", brown); got != 0 {
		t.Errorf("brown dark bonus = %v, want 0", got)
	}
	beige := catalog.Product{Colors: []string{"beige"}}
	if got := brightnessBonus("mostly_light", beige); got != 0 {
		t.Errorf("beige light bonus = %v, want 0", got)
	}
	gray := catalog.Product{Colors: []string{"gray"}}
	if got := brightnessBonus("mostly_light", gray); got != lightBonus {
		t.Errorf("gray light bonus = %v, want %v", got, lightBonus)
	}
}

func Test_ImageScore_Composition(t *testing.T) {
	t.Parallel()
	p := catalog.Product{
		Title: "Navy Hoodie", Category: "apparel",
		Colors: []string{"navy"}, InStock: true,
	}
	hints := ImageHints{
		Colors:     []string{"navy"},
		Brightness: "mostly_dark",
		Labels:     []string{"hoodie"},
		Categories: []string{"apparel"},
	}

	want := 0.3 + 0.6*1 + darkBonus + 0.7*1 + categoryBonus + imageStockSwing
	got := ImageScore(0.3, hints, p)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ImageScore = %v, want %v", got, want)
	}
}

func Test_ImageScore_StockSwingIsSymmetric(t *testing.T) {
	t.Parallel()
	in := catalog.Product{InStock: true}
	out := catalog.Product{InStock: false}

	diff := ImageScore(0, ImageHints{}, in) - ImageScore(0, ImageHints{}, out)
	if math.Abs(diff-0.10) > 1e-9 {
		t.Errorf("stock swing = %v, want 0.10", diff)
	}
	if got := ImageScore(0, ImageHints{}, out); math.Abs(got+0.05) > 1e-9 {
		t.Errorf("out-of-stock score = %v, want -0.05", got)
	}
}

func Test_ScoreProductsByImage_PrefersVisualMatch(t *testing.T) {
	t.Parallel()
	products := []catalog.Product{
		{ID: "grayshoe", Title: "Gray Shoe", Colors: []string{"gray"}, InStock: true},
		{ID: "navyhoodie", Title: "Navy Hoodie", Colors: []string{"navy"}, InStock: true},
	}
	hints := ImageHints{Colors: []string{"blue"}, Brightness: "mostly_dark"}

	scored := ScoreProductsByImage(products, nil, hints)
	if scored[0].Product.ID != "navyhoodie" {
		t.Fatalf("best = %q, want the navy product for a blue image", scored[0].Product.ID)
	}
	if ColorOverlap(hints.Colors, scored[0].Product) <= 0 {
		t.Error("winning product should have positive color overlap")
	}
	if scored[0].Rationale == "" {
		t.Error("rationale must not be empty")
	}
}
