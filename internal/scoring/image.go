package scoring

import (
	"strings"

	"github.com/commerce-agent/cagent-go/internal/catalog"
)

// ImageHints carries the visual signals extracted from an uploaded image,
// normalised for ranking.
type ImageHints struct {
	// Colors are dominant color names, most prominent first.
	Colors []string

	// Brightness is "mostly_dark", "mostly_light", or "balanced".
	Brightness string

	// Labels are classifier keywords, empty when no classifier is wired.
	Labels []string

	// Categories are catalog categories suggested by the labels.
	Categories []string
}

const (
	weightColorOverlap = 0.6
	weightLabelMatch   = 0.7
	categoryBonus      = 0.25
	darkBonus          = 0.15
	lightBonus         = 0.10

	// The image path uses a symmetric stock adjustment, unlike the text
	// composite where missing stock is penalised harder.
	imageStockSwing = 0.05
)

// darkTones and lightTones classify product colors for the brightness bonus.
var darkTones = map[string]struct{}{
	"black": {}, "navy": {},
}

var lightTones = map[string]struct{}{
	"white": {}, "gray": {},
}

// ColorOverlap returns the fraction of hinted colors present in the
// product's colors. A "navy" hint is satisfied by a "blue" product color and
// vice versa.
func ColorOverlap(hinted []string, p catalog.Product) float64 {
	if len(hinted) == 0 {
		return 0
	}
	have := make(map[string]struct{}, len(p.Colors))
	for _, c := range p.Colors {
		have[strings.ToLower(c)] = struct{}{}
	}
	matched := 0
	for _, h := range hinted {
		h = strings.ToLower(h)
		if _, ok := have[h]; ok {
			matched++
			continue
		}
		if h == "navy" {
			if _, ok := have["blue"]; ok {
				matched++
			}
		} else if h == "blue" {
			if _, ok := have["navy"]; ok {
				matched++
			}
		}
	}
	return float64(matched) / float64(len(hinted))
}

// labelMatch returns the fraction of label keywords found in the product's
// searchable text.
func labelMatch(labels []string, p catalog.Product) float64 {
	if len(labels) == 0 {
		return 0
	}
	hay := catalog.Haystack(p)
	matched := 0
	for _, l := range labels {
		if strings.Contains(hay, strings.ToLower(l)) {
			matched++
		}
	}
	return float64(matched) / float64(len(labels))
}

// brightnessBonus rewards products whose palette agrees with the image tone.
// The bonus is flat rather than proportional.
func brightnessBonus(brightness string, p catalog.Product) float64 {
	var tones map[string]struct{}
	var bonus float64
	switch brightness {
	case "mostly_dark":
		tones, bonus = darkTones, darkBonus
	case "mostly_light":
		tones, bonus = lightTones, lightBonus
	default:
		return 0
	}
	for _, c := range p.Colors {
		if _, ok := tones[strings.ToLower(c)]; ok {
			return bonus
		}
	}
	return 0
}

// ImageScore ranks a product against visual hints. textScore carries any
// relevance signal from an accompanying text query and may be zero.
func ImageScore(textScore float64, hints ImageHints, p catalog.Product) float64 {
	score := textScore +
		weightColorOverlap*ColorOverlap(hints.Colors, p) +
		brightnessBonus(hints.Brightness, p) +
		weightLabelMatch*labelMatch(hints.Labels, p)

	for _, cat := range hints.Categories {
		if strings.EqualFold(cat, p.Category) {
			score += categoryBonus
			break
		}
	}

	if p.InStock {
		score += imageStockSwing
	} else {
		score -= imageStockSwing
	}
	return score
}

// ScoreProductsByImage scores candidates by visual hints and returns them
// ordered by non-increasing score. textScores[i] belongs to products[i] and
// may be shorter than products.
func ScoreProductsByImage(products []catalog.Product, textScores []float64, hints ImageHints) []ScoredProduct {
	scored := make([]ScoredProduct, 0, len(products))
	for i, p := range products {
		var ts float64
		if i < len(textScores) {
			ts = textScores[i]
		}
		sp := ScoredProduct{
			Product:  p,
			Score:    ImageScore(ts, hints, p),
			Baseline: ts,
		}
		sp.Rationale = rationale(imageReasons(hints, p), p)
		scored = append(scored, sp)
	}
	sortByScore(scored)
	return scored
}

func imageReasons(hints ImageHints, p catalog.Product) []string {
	var reasons []string
	if ColorOverlap(hints.Colors, p) > 0 {
		reasons = append(reasons, "color overlap with image")
	}
	if labelMatch(hints.Labels, p) > 0 {
		reasons = append(reasons, "matches image labels")
	}
	if brightnessBonus(hints.Brightness, p) > 0 {
		reasons = append(reasons, "tone matches image")
	}
	return reasons
}
