package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/qdrant/go-client/qdrant"
	"github.com/spf13/cobra"

	"github.com/commerce-agent/cagent-go/internal/agent"
	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/embedder"
	"github.com/commerce-agent/cagent-go/internal/extractor"
	"github.com/commerce-agent/cagent-go/internal/imagesig"
	"github.com/commerce-agent/cagent-go/internal/logging"
	"github.com/commerce-agent/cagent-go/internal/provider"
	"github.com/commerce-agent/cagent-go/internal/rag"
	"github.com/commerce-agent/cagent-go/internal/recommender"
	"github.com/commerce-agent/cagent-go/internal/server"
	"github.com/commerce-agent/cagent-go/internal/store"
	"github.com/commerce-agent/cagent-go/internal/tracing"
	"github.com/commerce-agent/cagent-go/internal/webx"
)

// NewServeCmd constructs the `cagent serve` command, which starts the HTTP
// server exposing the catalog, recommendation, and chat API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the CommerceAgent HTTP server",
		Long: `Start the CommerceAgent HTTP server on localhost.

The server exposes a REST API for catalog search, image search,
recommendations, agent chat, page prefetching, and operational probes.

Semantic search is enabled with ENABLE_CATALOG_RAG=1 (requires an embedding
backend); live web augmentation is enabled with ENABLE_RAG_WEB=1.

Examples:
  cagent serve
  cagent serve --port 9090
  ENABLE_CATALOG_RAG=1 MODEL_PROVIDER=ollama cagent serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in and a no-op when keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			// The chat model only feeds answer generation; catalog search
			// and image search work without one.
			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				log.Warn("model provider unavailable, answers will use the deterministic fallback", slog.Any("error", err))
				chatModel = nil
			}

			catalogStore := catalog.NewStore(os.Getenv("CATALOG_PATH"))
			pingers := []server.Pinger{server.NewCatalogPinger(catalogStore)}
			registry := prometheus.NewRegistry()

			cfg := &rag.PipelineConfig{
				Store:    catalogStore,
				WebLimit: getEnvInt("RAG_WEB_LIMIT", 0),
				Metrics:  rag.NewPipelineMetrics(registry),
			}
			if chatModel != nil {
				cfg.ChatModel = chatModel
			}

			if envEnabled("ENABLE_CATALOG_RAG") {
				if err := embedder.ValidateForRAG(log); err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				emb, embErr := embedder.NewFromEnv()
				if embErr != nil {
					log.Warn("embedder unavailable, semantic search disabled", slog.Any("error", embErr))
				} else {
					cfg.Embedder = emb
					backend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
					pingers = append(pingers, server.NewEmbedderPinger(emb, backend))
				}
			}

			// An ingested Qdrant collection becomes the primary dense
			// retrieval path; the in-memory index stays as the fallback.
			if qHost := os.Getenv("QDRANT_HOST"); qHost != "" && cfg.Embedder != nil {
				backend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
				vectors, vErr := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
					Host:       qHost,
					Port:       getEnvInt("QDRANT_PORT", 6334),
					Collection: getEnvOrDefault("QDRANT_COLLECTION", "cagent-catalog"),
					VectorSize: uint64(embedder.DefaultDimensions(backend)), //nolint:gosec // dimensions are bounded
					APIKey:     os.Getenv("QDRANT_API_KEY"),
					UseTLS:     os.Getenv("QDRANT_TLS") == "true",
				})
				if vErr != nil {
					log.Warn("qdrant unavailable, retrieval will use the local index", slog.Any("error", vErr))
				} else {
					cfg.Vectors = vectors
					defer func() { _ = vectors.Close() }()
					log.Info("qdrant retrieval enabled", slog.String("host", qHost))
				}
			}

			var augmenter *webx.Augmenter
			if envEnabled("ENABLE_RAG_WEB") {
				gate := webx.NewDomainGateFromEnv()
				fetcher := webx.NewFetcher(gate, os.Getenv("WEB_CACHE_DIR"))
				fetcher.SetMetrics(webx.NewFetchMetrics(registry))
				augmenter = webx.NewAugmenter(webx.NewDDGSearch(), fetcher)
				cfg.Augmenter = augmenter
				log.Info("web augmentation enabled")
			}

			if p := qdrantPinger(); p != nil {
				pingers = append(pingers, p)
			}

			pipeline, err := rag.NewPipeline(ctx, cfg)
			if err != nil && cfg.Embedder != nil {
				log.Warn("semantic index build failed, continuing with lexical retrieval", slog.Any("error", err))
				cfg.Embedder = nil
				pipeline, err = rag.NewPipeline(ctx, cfg)
			}
			if err != nil {
				return fmt.Errorf("serve: failed to build retrieval pipeline: %w", err)
			}

			service, err := recommender.NewService(catalogStore, pipeline, imagesig.New(nil))
			if err != nil {
				return fmt.Errorf("serve: failed to build recommender: %w", err)
			}

			// Open conversation history store. CAGENT_HISTORY_DB overrides the
			// default path (~/.cagent/history.db). Set to "disabled" to disable.
			var historyStore store.ConversationStore
			dbPath := os.Getenv("CAGENT_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via CAGENT_HISTORY_DB=disabled")
			}

			chatAgent, err := agent.New(&agent.Config{
				Service:   service,
				Store:     catalogStore,
				Augmenter: augmenter,
				Extractor: extractor.NewFromEnv(),
				History:   historyStore,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise agent: %w", err)
			}

			srv, err := server.New(chatAgent, service, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				Registry:  registry,
				Augmenter: augmenter,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}

// qdrantPinger returns a readiness probe for Qdrant when QDRANT_HOST is set,
// nil otherwise. Qdrant is optional for serving, so an unset host is not an
// error.
func qdrantPinger() server.Pinger {
	hostEnv := os.Getenv("QDRANT_HOST")
	if hostEnv == "" {
		return nil
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   hostEnv,
		Port:   getEnvInt("QDRANT_PORT", 6334),
		APIKey: os.Getenv("QDRANT_API_KEY"),
		UseTLS: os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil
	}
	return server.NewQdrantPinger(client)
}
