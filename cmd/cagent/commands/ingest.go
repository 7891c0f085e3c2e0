package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/embedder"
	"github.com/commerce-agent/cagent-go/internal/ingestion"
	"github.com/commerce-agent/cagent-go/internal/rag"
)

// NewIngestCmd constructs the `cagent ingest` command, which embeds the
// product catalog into the Qdrant vector store.
func NewIngestCmd() *cobra.Command {
	var catalogPath string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed the product catalog into the Qdrant vector store",
		Long: `Render every catalog product into its document text, embed the documents,
and upsert them into Qdrant.

A populated collection lets deployments serve semantic retrieval from a
persistent store instead of rebuilding the in-memory index on every start.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: cagent-catalog)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (model, base URL, dimensions)

Examples:
  cagent ingest
  cagent ingest --catalog ./data/sample_products.json
  QDRANT_HOST=qdrant.internal cagent ingest --batch-size 64`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
			log.Info("embedder initialised", slog.String("provider", embBackend))

			qdrantHost := getEnvOrDefault("QDRANT_HOST", "localhost")
			qdrantPort := getEnvInt("QDRANT_PORT", 6334)
			collection := getEnvOrDefault("QDRANT_COLLECTION", "cagent-catalog")
			vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

			vectors, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
				Host:       qdrantHost,
				Port:       qdrantPort,
				Collection: collection,
				VectorSize: vectorSize,
				APIKey:     os.Getenv("QDRANT_API_KEY"),
				UseTLS:     os.Getenv("QDRANT_TLS") == "true",
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
			}
			defer vectors.Close()
			log.Info("qdrant store ready", slog.String("host", qdrantHost), slog.Int("port", qdrantPort), slog.String("collection", collection))

			pipeline, err := ingestion.NewPipeline(catalog.NewStore(catalogPath), emb, vectors, &ingestion.Config{
				BatchSize: batchSize,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			count, err := pipeline.Ingest(ctx, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete", slog.Int("products", count))
			return nil
		},
	}

	cmd.Flags().StringVarP(&catalogPath, "catalog", "c", "", "Path to the catalog JSON file (default: CATALOG_PATH or data/sample_products.json)")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Documents embedded per batch (default: 32)")

	return cmd
}
