package catalog

import "strings"

// Filters is the recognized set of catalog constraint options. Zero values
// mean "not constrained": an empty Filters is a pass-through.
type Filters struct {
	// Category requires an exact category match.
	Category string

	// Brand requires an exact brand match.
	Brand string

	// InStock, when set and true, excludes products that are out of stock.
	InStock *bool

	// PriceMin is the inclusive lower price bound in cents (0 = unset).
	PriceMin int

	// PriceMax is the inclusive upper price bound in cents (0 = unset).
	PriceMax int

	// Color matches when any listed color intersects the product colors
	// (case-insensitive).
	Color []string

	// Size matches when any listed size intersects the product sizes.
	Size []string
}

// Empty reports whether no constraint is set.
func (f Filters) Empty() bool {
	return f.Category == "" && f.Brand == "" && f.InStock == nil &&
		f.PriceMin == 0 && f.PriceMax == 0 && len(f.Color) == 0 && len(f.Size) == 0
}

// Filter returns the products matching all set constraints, preserving the
// input order. An empty filter set returns the input unchanged.
func Filter(products []Product, f Filters) []Product {
	if f.Empty() {
		return products
	}

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if Matches(p, f) {
			out = append(out, p)
		}
	}
	return out
}

// Matches reports whether p satisfies every set constraint in f.
func Matches(p Product, f Filters) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Brand != "" && p.Brand != f.Brand {
		return false
	}
	if f.InStock != nil && *f.InStock && !p.InStock {
		return false
	}
	if f.PriceMin > 0 && p.PriceCents < f.PriceMin {
		return false
	}
	if f.PriceMax > 0 && p.PriceCents > f.PriceMax {
		return false
	}
	if len(f.Color) > 0 && !intersectsFold(f.Color, p.Colors) {
		return false
	}
	if len(f.Size) > 0 && !intersects(f.Size, p.Sizes) {
		return false
	}
	return true
}

// intersects reports whether the two string sets share any element.
func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// intersectsFold is intersects with case-insensitive comparison.
func intersectsFold(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}
	return false
}
