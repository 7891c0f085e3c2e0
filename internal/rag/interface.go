// Package rag implements the hybrid retrieval pipeline over the product
// catalog: an in-memory embedding index for dense semantic search, an
// optional Qdrant-backed vector store as an alternate candidate source, and
// the two-phase retrieve→generate orchestrator that blends catalog and web
// candidates into one answerable result. Every external dependency of the
// pipeline (embedding model, web augmenter, chat model) is optional at
// runtime; a missing dependency degrades its own contribution and nothing
// else.
package rag

import (
	"context"
)

// Document represents a unit of retrievable catalog or web knowledge.
type Document struct {
	// ID is the unique identifier for this document (the product id for
	// catalog documents, the derived card id for web documents).
	ID string

	// Content is the canonical text of the document.
	Content string

	// Source is the origin of the document: "catalog" or "web".
	Source string

	// Metadata holds display fields (title, brand, category, snippet, url).
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval.
	// Zero value means the score was not computed.
	Score float32
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the interface for persisting and searching document
// embeddings in an external store (e.g. Qdrant).
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of documents with their pre-computed
	// embeddings. embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search performs a semantic similarity search and returns the top-k
	// most relevant documents for the given query embedding.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Retriever is the high-level interface for fetching candidate product ids
// for a query. The Qdrant-backed implementation embeds the query and
// delegates to the external store; callers fall back to the in-memory index
// or lexical retrieval when no Retriever is configured or a query fails.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the query,
	// plus the query embedding used for the search.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, []float32, error)
}
