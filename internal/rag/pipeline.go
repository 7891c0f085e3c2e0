package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/commerce-agent/cagent-go/internal/budget"
	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/logging"
	"github.com/commerce-agent/cagent-go/internal/webx"
)

const (
	// defaultCatalogTopK is how many catalog candidates feed the answer.
	defaultCatalogTopK = 5

	// defaultWebLimit is how many web cards feed the answer.
	defaultWebLimit = 3

	// snippetChars bounds the description excerpt per context line.
	snippetChars = 160
)

const answerSystemPrompt = `You are a concise shopping assistant. Use only the
provided catalog and web context to recommend products. Mention product titles
and brands from the context; never invent products. If the context is empty,
say you could not find a match.`

// PipelineConfig holds the dependencies for a retrieval pipeline.
type PipelineConfig struct {
	// Store provides the product catalog.
	Store *catalog.Store

	// Embedder powers the dense index. May be nil; retrieval then degrades
	// to lexical matching.
	Embedder Embedder

	// Vectors is an external vector store holding the ingested catalog.
	// May be nil; dense retrieval then runs on the in-memory index.
	// Requires Embedder.
	Vectors VectorStore

	// ChatModel generates the final answer. May be nil; the answer then
	// falls back to a deterministic summary of the retrieved candidates.
	ChatModel model.BaseChatModel

	// Augmenter supplies live web candidates. May be nil to disable web
	// augmentation.
	Augmenter *webx.Augmenter

	// CatalogTopK is the number of catalog candidates retrieved per query.
	// Defaults to 5.
	CatalogTopK int

	// WebLimit is the number of web cards retrieved per query. Defaults to 3.
	WebLimit int

	// MaxContextTokens bounds the estimated context injected into the chat
	// model. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int

	// Metrics receives per-run outcome counts. May be nil.
	Metrics *PipelineMetrics
}

// Pipeline is the two-phase retrieve→generate orchestrator. Phase one
// gathers catalog candidates (dense when an embedder is available, lexical
// otherwise) and optional web cards; phase two asks the chat model to
// compose an answer over that context, with a deterministic fallback when
// no model is configured or generation fails.
type Pipeline struct {
	store     *catalog.Store
	index     *Index
	retriever Retriever
	embedder  Embedder
	chatModel model.BaseChatModel
	augmenter *webx.Augmenter

	catalogTopK      int
	webLimit         int
	maxContextTokens int
	metrics          *PipelineMetrics
}

// Reference points at one candidate that contributed to an answer.
type Reference struct {
	// ID is the product or web card id.
	ID string `json:"id"`

	// Title is the candidate title.
	Title string `json:"title"`

	// Brand is the candidate brand, possibly empty.
	Brand string `json:"brand,omitempty"`

	// Category is the candidate category, possibly empty.
	Category string `json:"category,omitempty"`

	// Score is the retrieval score rounded to three decimals.
	Score float64 `json:"score"`

	// Source is "catalog" or "web".
	Source string `json:"source"`

	// URL is the source page for web references.
	URL string `json:"url,omitempty"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	// Answer is the generated or fallback answer text.
	Answer string `json:"answer"`

	// Products are the retrieved catalog products, best first.
	Products []catalog.Product `json:"products"`

	// WebCards are the retrieved web candidates, best first.
	WebCards []webx.Card `json:"web_cards,omitempty"`

	// References lists every candidate behind the answer.
	References []Reference `json:"references"`

	// Context holds the exact context lines offered to the chat model.
	Context []string `json:"context,omitempty"`

	// Scores maps candidate id to retrieval score.
	Scores map[string]float64 `json:"scores,omitempty"`

	// Fallback is true when the answer came from the deterministic
	// fallback rather than the chat model.
	Fallback bool `json:"fallback"`
}

// NewPipeline builds a Pipeline and, when an embedder is configured, embeds
// the full catalog into the in-memory index. An index build failure is
// returned; a nil embedder is not an error.
func NewPipeline(ctx context.Context, cfg *PipelineConfig) (*Pipeline, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("rag: catalog store must not be nil")
	}

	p := &Pipeline{
		store:            cfg.Store,
		embedder:         cfg.Embedder,
		chatModel:        cfg.ChatModel,
		augmenter:        cfg.Augmenter,
		catalogTopK:      cfg.CatalogTopK,
		webLimit:         cfg.WebLimit,
		maxContextTokens: cfg.MaxContextTokens,
		metrics:          cfg.Metrics,
	}
	if p.catalogTopK <= 0 {
		p.catalogTopK = defaultCatalogTopK
	}
	if p.webLimit <= 0 {
		p.webLimit = defaultWebLimit
	}
	if p.maxContextTokens <= 0 {
		p.maxContextTokens = budget.DefaultMaxContextTokens
	}

	if cfg.Embedder != nil {
		products, err := cfg.Store.Load(ctx)
		if err != nil {
			return nil, err
		}
		index := NewIndex(cfg.Embedder)
		if err := index.Build(ctx, products); err != nil {
			return nil, err
		}
		p.index = index

		if cfg.Vectors != nil {
			retriever, err := NewRetriever(cfg.Embedder, cfg.Vectors, p.catalogTopK)
			if err != nil {
				return nil, err
			}
			p.retriever = retriever
		}
	}
	return p, nil
}

// Retrieve returns catalog hits for the query, best first, plus the query
// vector when dense retrieval was used. An external vector store is tried
// first when configured, then the in-memory index; dense retrieval failures
// degrade to lexical matching so a broken embedding backend never empties
// results that the catalog can still answer.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int) ([]Hit, []float32) {
	if topK <= 0 {
		topK = p.catalogTopK
	}

	if p.retriever != nil {
		docs, qv, err := p.retriever.Retrieve(ctx, query, topK)
		if err == nil {
			return docHits(docs), qv
		}
		logging.FromContext(ctx).Warn("vector store retrieval failed, trying the local index", "error", err)
	}
	if p.index != nil {
		hits, qv, err := p.index.Search(ctx, query, topK)
		if err == nil {
			return hits, qv
		}
		logging.FromContext(ctx).Warn("dense retrieval failed, using lexical match", "error", err)
	}
	return p.lexicalRetrieve(ctx, query, topK), nil
}

// docHits converts retrieved documents to catalog hits, dropping entries
// carrying a non-positive similarity.
func docHits(docs []Document) []Hit {
	hits := make([]Hit, 0, len(docs))
	for _, d := range docs {
		if d.Score <= 0 {
			continue
		}
		hits = append(hits, Hit{ProductID: d.ID, Score: float64(d.Score)})
	}
	return hits
}

// lexicalRetrieve ranks the catalog by lexical term overlap.
func (p *Pipeline) lexicalRetrieve(ctx context.Context, query string, topK int) []Hit {
	products, err := p.store.Load(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("catalog unavailable", "error", err)
		return nil
	}

	hits := make([]Hit, 0, topK)
	for _, prod := range products {
		score := catalog.LexicalScore(query, prod)
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{ProductID: prod.ID, Score: score})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// Run executes both pipeline phases for a query. topK bounds the catalog
// candidates; pass 0 for the default. Run only fails when the catalog itself
// cannot be loaded; every other dependency degrades.
func (p *Pipeline) Run(ctx context.Context, query string, topK int) (*Result, error) {
	log := logging.FromContext(ctx)

	products, err := p.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]catalog.Product, len(products))
	for _, prod := range products {
		byID[prod.ID] = prod
	}

	hits, qv := p.Retrieve(ctx, query, topK)

	result := &Result{Scores: make(map[string]float64)}
	for _, h := range hits {
		prod, ok := byID[h.ProductID]
		if !ok {
			// Stale index entries for removed products are dropped.
			continue
		}
		result.Products = append(result.Products, prod)
		result.Scores[prod.ID] = roundScore(h.Score)
		result.References = append(result.References, Reference{
			ID:       prod.ID,
			Title:    prod.Title,
			Brand:    prod.Brand,
			Category: prod.Category,
			Score:    roundScore(h.Score),
			Source:   "catalog",
		})
	}

	if p.augmenter != nil && qv != nil {
		cards, sims := p.scoreWebCards(ctx, qv, p.augmenter.Augment(ctx, query, p.webLimit))
		result.WebCards = cards
		for i, card := range cards {
			score := roundScore(sims[i])
			result.Scores[card.ID] = score
			result.References = append(result.References, Reference{
				ID:     card.ID,
				Title:  card.Title,
				Brand:  card.Brand,
				Score:  score,
				Source: "web",
				URL:    card.URL,
			})
		}
	}

	result.Context = budget.TrimContext(contextLines(result.Products, result.WebCards), p.maxContextTokens)

	answer, generated := p.generate(ctx, query, result.Context)
	if !generated {
		answer = fallbackAnswer(query, result.Products, result.WebCards)
		result.Fallback = true
	}
	result.Answer = answer
	p.metrics.observe(result)

	log.Debug("pipeline run complete",
		"query", query,
		"catalog_hits", len(result.Products),
		"web_cards", len(result.WebCards),
		"fallback", result.Fallback)
	return result, nil
}

// scoreWebCards ranks web cards by cosine similarity of their document text
// to the query vector, in the same similarity space as catalog retrieval.
// Cards scoring non-positive are dropped; when embedding the card texts
// fails the web contribution is dropped entirely.
func (p *Pipeline) scoreWebCards(ctx context.Context, qv []float32, cards []webx.Card) ([]webx.Card, []float64) {
	if len(cards) == 0 || p.embedder == nil {
		return nil, nil
	}

	texts := make([]string, len(cards))
	for i, c := range cards {
		texts[i] = DocumentText(c.Product)
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil || len(vectors) != len(cards) {
		logging.FromContext(ctx).Warn("web card scoring failed, dropping web candidates", "error", err)
		return nil, nil
	}

	qnorm := vectorNorm(qv)
	type rankedCard struct {
		card  webx.Card
		score float64
	}
	ranked := make([]rankedCard, 0, len(cards))
	for i, c := range cards {
		score := Cosine(qv, qnorm, vectors[i], vectorNorm(vectors[i]))
		if score <= 0 {
			continue
		}
		ranked = append(ranked, rankedCard{card: c, score: score})
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	if len(ranked) > p.webLimit {
		ranked = ranked[:p.webLimit]
	}

	outCards := make([]webx.Card, len(ranked))
	outScores := make([]float64, len(ranked))
	for i, r := range ranked {
		outCards[i] = r.card
		outScores[i] = r.score
	}
	return outCards, outScores
}

// generate runs the chat model over the retrieval context. The second return
// is false when no model is configured or generation failed.
func (p *Pipeline) generate(ctx context.Context, query string, contextLines []string) (string, bool) {
	if p.chatModel == nil {
		return "", false
	}

	messages := []*schema.Message{
		schema.SystemMessage(answerSystemPrompt),
	}
	if len(contextLines) > 0 {
		messages = append(messages, schema.SystemMessage("Context:\n"+strings.Join(contextLines, "\n")))
	}
	messages = append(messages, schema.UserMessage(query))

	msg, err := p.chatModel.Generate(ctx, messages)
	if err != nil {
		logging.FromContext(ctx).Warn("answer generation failed, using fallback", "error", err)
		return "", false
	}
	answer := strings.TrimSpace(msg.Content)
	if answer == "" {
		return "", false
	}
	return answer, true
}

// contextLines renders candidates as one line each: up to five catalog lines
// then up to three web lines, web lines tagged so the model can attribute
// sources.
func contextLines(products []catalog.Product, cards []webx.Card) []string {
	lines := make([]string, 0, defaultCatalogTopK+defaultWebLimit)
	for i, prod := range products {
		if i == defaultCatalogTopK {
			break
		}
		lines = append(lines, candidateLine(prod))
	}
	for i, card := range cards {
		if i == defaultWebLimit {
			break
		}
		lines = append(lines, "[web] "+candidateLine(card.Product))
	}
	return lines
}

func candidateLine(p catalog.Product) string {
	var b strings.Builder
	b.WriteString(p.Title)
	if p.Brand != "" {
		fmt.Fprintf(&b, " (%s)", p.Brand)
	}
	if p.Description != "" {
		snippet := p.Description
		if len(snippet) > snippetChars {
			snippet = snippet[:snippetChars]
		}
		b.WriteString(" - " + snippet)
	}
	return b.String()
}

// fallbackAnswer composes the deterministic answer used when generation is
// unavailable, listing the first three candidate titles with catalog
// candidates ahead of web ones.
func fallbackAnswer(query string, products []catalog.Product, cards []webx.Card) string {
	titles := make([]string, 0, 3)
	for _, p := range products {
		if len(titles) == 3 {
			break
		}
		titles = append(titles, p.Title)
	}
	for _, c := range cards {
		if len(titles) == 3 {
			break
		}
		titles = append(titles, c.Title)
	}
	if len(titles) == 0 {
		return "I could not find relevant catalog or web entries for that request."
	}
	return fmt.Sprintf("Top catalog matches for '%s': %s.", query, strings.Join(titles, ", "))
}

func roundScore(s float64) float64 {
	return math.Round(s*1000) / 1000
}
