// Package catalog loads and queries the in-memory product catalog.
// The catalog is read once from a JSON file at startup, validated, and held
// immutably for the lifetime of the process. All query helpers (filtering,
// lexical scoring) operate on copies of the loaded slice and never mutate it.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/commerce-agent/cagent-go/internal/logging"
)

// Product is a single immutable catalog entity. Identity is ID (unique).
type Product struct {
	// ID is the unique catalog identifier for this product.
	ID string `json:"id"`

	// Title is the display name of the product.
	Title string `json:"title"`

	// Description is the optional long-form product description.
	Description string `json:"description,omitempty"`

	// Brand is the optional manufacturer or label name.
	Brand string `json:"brand,omitempty"`

	// Category is the optional catalog category (e.g. "fitness").
	Category string `json:"category,omitempty"`

	// PriceCents is the price in integer cents. Never negative.
	PriceCents int `json:"price_cents"`

	// Currency is the ISO currency code. Defaults to "USD".
	Currency string `json:"currency"`

	// Sizes lists the available sizes.
	Sizes []string `json:"sizes,omitempty"`

	// Colors lists the available colors (lowercase by convention).
	Colors []string `json:"colors,omitempty"`

	// Tags is an ordered list of descriptive tags.
	Tags []string `json:"tags,omitempty"`

	// ImageURLs is an ordered list of product image URLs.
	ImageURLs []string `json:"image_urls,omitempty"`

	// Rating is the optional average review rating (0–5).
	Rating *float64 `json:"rating,omitempty"`

	// NumReviews is the optional review count.
	NumReviews *int `json:"num_reviews,omitempty"`

	// InStock reports availability. Defaults to true when absent.
	InStock bool `json:"in_stock"`
}

// UnmarshalJSON decodes a product applying the catalog defaults:
// in_stock is true when absent and currency falls back to "USD".
func (p *Product) UnmarshalJSON(data []byte) error {
	type alias Product
	aux := struct {
		*alias
		InStock *bool `json:"in_stock"`
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	p.InStock = aux.InStock == nil || *aux.InStock
	if p.Currency == "" {
		p.Currency = "USD"
	}
	return nil
}

// validate reports whether the product satisfies the catalog invariants.
func (p *Product) validate() error {
	if p.ID == "" {
		return fmt.Errorf("missing id")
	}
	if p.Title == "" {
		return fmt.Errorf("product %q: missing title", p.ID)
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("product %q: negative price_cents %d", p.ID, p.PriceCents)
	}
	return nil
}

// defaultPaths is the ordered list of candidate catalog file locations tried
// when no explicit path is configured. CATALOG_PATH (checked in Load) wins.
var defaultPaths = []string{
	"data/sample_products.json",
	"../data/sample_products.json",
}

// Store holds the loaded catalog. Load is idempotent and memoized; the
// product slice is read-only after the first successful load, so concurrent
// readers need no locking once Load has returned.
type Store struct {
	// path is the explicit catalog file path, or "" for the default search list.
	path string

	mu      sync.Mutex
	loaded  bool
	loadErr error

	products []Product
	byID     map[string]Product
}

// NewStore constructs a Store reading from the given path. An empty path
// means: CATALOG_PATH env var first, then the default candidate locations.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads, validates, and memoizes the catalog. Subsequent calls return
// the cached slice (or the cached error; a broken catalog is fatal, not
// retried). The returned slice must be treated as read-only.
func (s *Store) Load(ctx context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.products, s.loadErr
	}
	s.loaded = true

	path := s.resolvePath()
	data, err := os.ReadFile(path)
	if err != nil {
		s.loadErr = fmt.Errorf("catalog: reading %s: %w", path, err)
		return nil, s.loadErr
	}

	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		s.loadErr = fmt.Errorf("catalog: parsing %s: %w", path, err)
		return nil, s.loadErr
	}

	byID := make(map[string]Product, len(products))
	for i := range products {
		if err := products[i].validate(); err != nil {
			// No partial catalog is served; a single bad record fails the load.
			s.loadErr = fmt.Errorf("catalog: %s: %w", path, err)
			return nil, s.loadErr
		}
		if _, dup := byID[products[i].ID]; dup {
			s.loadErr = fmt.Errorf("catalog: %s: duplicate id %q", path, products[i].ID)
			return nil, s.loadErr
		}
		byID[products[i].ID] = products[i]
	}

	s.products = products
	s.byID = byID
	logging.FromContext(ctx).Debug("catalog loaded", "path", path, "products", len(products))
	return s.products, nil
}

// ByID returns the product with the given id, if loaded and present.
func (s *Store) ByID(id string) (Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	return p, ok
}

// resolvePath returns the first existing catalog file path: the explicit
// store path, CATALOG_PATH, then the default candidates. When nothing
// exists the first candidate is returned so Load reports a readable error.
func (s *Store) resolvePath() string {
	if s.path != "" {
		return s.path
	}
	candidates := defaultPaths
	if env := os.Getenv("CATALOG_PATH"); env != "" {
		candidates = append([]string{env}, candidates...)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return candidates[0]
}
