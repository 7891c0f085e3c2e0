// Package ingestion implements the catalog ingestion pipeline.
// It renders every catalog product into its canonical document text, embeds
// the documents in batches, and upserts the results into the vector store.
// This pipeline is invoked by the `cagent ingest` CLI command.
package ingestion

import (
	"context"
	"fmt"

	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/rag"
)

// defaultBatchSize is how many product documents are embedded per call.
const defaultBatchSize = 32

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BatchSize is the number of documents embedded and upserted per batch.
	// Defaults to 32 if zero.
	BatchSize int
}

// Pipeline orchestrates the load → render → embed → upsert flow for the
// product catalog.
type Pipeline struct {
	// store is the product catalog to ingest.
	store *catalog.Store

	// embedder converts document texts into dense vector embeddings.
	embedder rag.Embedder

	// vectors persists the embedded documents.
	vectors rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(store *catalog.Store, embedder rag.Embedder, vectors rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("ingestion: catalog store must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if vectors == nil {
		return nil, fmt.Errorf("ingestion: vector store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Pipeline{store: store, embedder: embedder, vectors: vectors, cfg: cfg}, nil
}

// Ingest embeds and stores the whole catalog. It processes batches
// sequentially and returns the first error encountered. Progress is reported
// via the optional progress callback. The returned count is the number of
// products ingested.
func (p *Pipeline) Ingest(ctx context.Context, progress func(msg string)) (int, error) {
	if progress == nil {
		progress = func(string) {}
	}

	products, err := p.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	docs := make([]rag.Document, 0, len(products))
	for _, prod := range products {
		text := rag.DocumentText(prod)
		if text == "" {
			continue
		}
		docs = append(docs, rag.Document{
			ID:      prod.ID,
			Content: text,
			Source:  "catalog",
			Metadata: map[string]string{
				"title":    prod.Title,
				"brand":    prod.Brand,
				"category": prod.Category,
			},
		})
	}
	progress(fmt.Sprintf("rendered %d catalog documents", len(docs)))

	for start := 0; start < len(docs); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}
		embeddings, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return start, fmt.Errorf("ingestion: embedding batch at %d failed: %w", start, err)
		}
		if err := p.vectors.Upsert(ctx, batch, embeddings); err != nil {
			return start, fmt.Errorf("ingestion: upsert batch at %d failed: %w", start, err)
		}
		progress(fmt.Sprintf("ingested %d/%d documents", end, len(docs)))
	}

	return len(docs), nil
}
