// Package imagesig extracts coarse visual signals from uploaded product
// images: dominant color names, overall brightness, and shape notes. The
// signals feed image-path ranking; they are hints, not classifications, and
// a decode failure simply yields no hints.
package imagesig

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// sampleSize is the square grid the image is downsampled to before color
// voting. Large inputs cost the same as small ones.
const sampleSize = 48

// Analysis holds the visual signals extracted from one image.
type Analysis struct {
	// DominantColors are basic color names ordered by pixel vote count.
	DominantColors []string

	// Brightness is "mostly_dark", "mostly_light", or "balanced".
	Brightness string

	// Labels are classifier keywords, empty unless a Labeler is configured.
	Labels []string

	// Notes are human-readable observations (shape, tone).
	Notes []string
}

// Labeler produces content keywords for an image. Implementations may call
// an external vision model; the default analyzer runs without one.
type Labeler interface {
	Label(ctx context.Context, imageBytes []byte) ([]string, error)
}

// Analyzer extracts visual signals from raw image bytes.
type Analyzer interface {
	Analyze(ctx context.Context, imageBytes []byte) (*Analysis, error)
}

// DisabledLabeler is a Labeler that produces no labels. It stands in when
// no vision model is configured.
type DisabledLabeler struct{}

// Label implements Labeler.
func (DisabledLabeler) Label(context.Context, []byte) ([]string, error) { return nil, nil }

// colorAnchor maps a basic color name to its reference RGB point.
type colorAnchor struct {
	name    string
	r, g, b float64
}

// anchors are the basic color vocabulary pixels are voted into.
var anchors = []colorAnchor{
	{"black", 0, 0, 0},
	{"white", 255, 255, 255},
	{"gray", 128, 128, 128},
	{"red", 255, 0, 0},
	{"green", 0, 128, 0},
	{"blue", 0, 0, 255},
	{"navy", 0, 0, 128},
	{"yellow", 255, 255, 0},
	{"orange", 255, 165, 0},
	{"purple", 128, 0, 128},
	{"pink", 255, 192, 203},
	{"brown", 139, 69, 19},
	{"beige", 245, 245, 220},
}

// BasicAnalyzer is the default Analyzer. It decodes with the standard image
// codecs, votes downsampled pixels into the basic color vocabulary, and
// derives brightness from mean luminance. An optional Labeler adds content
// keywords.
type BasicAnalyzer struct {
	labeler Labeler
}

// New returns a BasicAnalyzer. labeler may be nil.
func New(labeler Labeler) *BasicAnalyzer {
	return &BasicAnalyzer{labeler: labeler}
}

// Analyze extracts signals from imageBytes. It returns an error only when
// the bytes cannot be decoded as an image.
func (a *BasicAnalyzer) Analyze(ctx context.Context, imageBytes []byte) (*Analysis, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("imagesig: decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("imagesig: empty image")
	}

	votes := make([]int, len(anchors))
	var lumSum float64
	var samples int

	for sy := 0; sy < sampleSize; sy++ {
		for sx := 0; sx < sampleSize; sx++ {
			x := bounds.Min.X + sx*w/sampleSize
			y := bounds.Min.Y + sy*h/sampleSize
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r := float64(r16 >> 8)
			g := float64(g16 >> 8)
			b := float64(b16 >> 8)

			votes[nearestAnchor(r, g, b)]++
			lumSum += (0.2126*r + 0.7152*g + 0.0722*b) / 255
			samples++
		}
	}

	analysis := &Analysis{
		DominantColors: rankedColors(votes),
		Brightness:     brightnessBand(lumSum / float64(samples)),
		Notes:          shapeNotes(w, h),
	}
	analysis.Notes = append(analysis.Notes, strings.ReplaceAll(analysis.Brightness, "_", " ")+" image")

	if a.labeler != nil {
		labels, err := a.labeler.Label(ctx, imageBytes)
		if err != nil {
			return nil, fmt.Errorf("imagesig: label image: %w", err)
		}
		analysis.Labels = labels
	}
	return analysis, nil
}

func nearestAnchor(r, g, b float64) int {
	best, bestDist := 0, math.MaxFloat64
	for i, a := range anchors {
		d := (r-a.r)*(r-a.r) + (g-a.g)*(g-a.g) + (b-a.b)*(b-a.b)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// rankedColors orders anchor names by vote count, keeping only colors that
// received at least 5% of the votes, capped at three names.
func rankedColors(votes []int) []string {
	total := 0
	for _, v := range votes {
		total += v
	}
	type pair struct {
		idx, votes int
	}
	pairs := make([]pair, 0, len(votes))
	for i, v := range votes {
		if v*20 >= total {
			pairs = append(pairs, pair{i, v})
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].votes > pairs[b].votes })
	names := make([]string, 0, 3)
	for _, p := range pairs {
		names = append(names, anchors[p.idx].name)
		if len(names) == 3 {
			break
		}
	}
	return names
}

func brightnessBand(meanLum float64) string {
	switch {
	case meanLum < 0.35:
		return "mostly_dark"
	case meanLum > 0.65:
		return "mostly_light"
	default:
		return "balanced"
	}
}

func shapeNotes(w, h int) []string {
	ratio := float64(w) / float64(h)
	switch {
	case ratio > 1.4:
		return []string{"wide image"}
	case ratio < 0.7:
		return []string{"tall image"}
	default:
		return []string{"roughly square image"}
	}
}

// ColorsToFilters converts dominant color names into catalog color filter
// values, expanding near-synonyms while preserving order and dropping
// duplicates. A "navy" hint also admits "blue" products and vice versa.
func ColorsToFilters(colors []string) []string {
	out := make([]string, 0, len(colors)*2)
	seen := make(map[string]struct{}, len(colors)*2)
	add := func(c string) {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			return
		}
		if _, dup := seen[c]; dup {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, c := range colors {
		add(c)
		switch strings.ToLower(c) {
		case "navy":
			add("blue")
		case "blue":
			add("navy")
		case "gray":
			add("grey")
		case "grey":
			add("gray")
		}
	}
	return out
}
