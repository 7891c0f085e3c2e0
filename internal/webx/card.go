package webx

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/commerce-agent/cagent-go/internal/catalog"
)

// Card is a catalog-shaped candidate sourced from the live web. It carries a
// regular product record plus the page it came from, so downstream scoring
// and response shaping treat web and catalog candidates uniformly.
type Card struct {
	catalog.Product

	// URL is the source page for this card.
	URL string
}

// MarshalJSON flattens the card to its product fields plus a "url" key.
func (c Card) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(c.Product)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if c.URL != "" {
		u, err := json.Marshal(c.URL)
		if err != nil {
			return nil, err
		}
		m["url"] = u
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a card as a product record plus its source url.
// Defined explicitly because the embedded product's decoder would otherwise
// be promoted and drop the url.
func (c *Card) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &c.Product); err != nil {
		return err
	}
	var aux struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.URL = aux.URL
	return nil
}

// CardID derives the stable synthetic id for a web card from its source URL.
func CardID(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return "web_" + hex.EncodeToString(sum[:])[:10]
}

// PageCard converts a fetched page into a Card. JSON-LD product data takes
// precedence, OpenGraph properties fill the gaps, and the page title and
// meta description are the last resort. Returns nil when the page yields no
// usable title.
func PageCard(rec *PageRecord) *Card {
	if rec == nil {
		return nil
	}

	card := &Card{
		Product: catalog.Product{
			ID:       CardID(rec.URL),
			Currency: "USD",
			Tags:     []string{"web-sourced"},
			InStock:  true,
		},
		URL: rec.URL,
	}

	var sp StructuredProduct
	if len(rec.Products) > 0 {
		sp = rec.Products[0]
	}

	card.Title = firstNonEmpty(sp.Name, rec.OpenGraph["title"], rec.Title)
	if card.Title == "" {
		return nil
	}
	card.Description = firstNonEmpty(sp.Description, rec.OpenGraph["description"], rec.Description)
	card.Brand = sp.Brand
	if img := firstNonEmpty(sp.Image, rec.OpenGraph["image"]); img != "" {
		card.ImageURLs = []string{img}
	}

	priceRaw := firstNonEmpty(sp.Price, rec.OpenGraph["price:amount"])
	if cents, ok := ParsePriceCents(priceRaw); ok {
		card.PriceCents = cents
	}
	if cur := firstNonEmpty(sp.Currency, rec.OpenGraph["price:currency"]); cur != "" {
		card.Currency = cur
	}
	if strings.Contains(sp.Availability, "OutOfStock") {
		card.InStock = false
	}
	return card
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var priceDigitsRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParsePriceCents parses a free-form price string into integer cents.
// Currency symbols, thousands separators, and a trailing currency code are
// tolerated; a range such as "$10 - $20" yields its lower bound. Returns
// false when no number can be found.
func ParsePriceCents(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	s = strings.TrimSpace(strings.TrimSuffix(strings.ToUpper(s), "USD"))

	// A range keeps the lower bound.
	if i := strings.IndexAny(s, "-–"); i > 0 {
		s = strings.TrimSpace(s[:i])
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil && v >= 0 {
		return int(math.Round(v * 100)), true
	}
	if m := priceDigitsRe.FindString(s); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			return int(math.Round(v * 100)), true
		}
	}
	return 0, false
}
