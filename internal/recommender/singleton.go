package recommender

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/embedder"
	"github.com/commerce-agent/cagent-go/internal/imagesig"
	"github.com/commerce-agent/cagent-go/internal/logging"
	"github.com/commerce-agent/cagent-go/internal/rag"
	"github.com/commerce-agent/cagent-go/internal/webx"
)

// The process-wide default service is built lazily from the environment on
// first use. Construction runs exactly once: a failed build is cached and
// returned to every later caller rather than retried, matching the catalog
// store's broken-is-fatal behaviour.
var (
	defaultMu   sync.RWMutex
	defaultSvc  *Service
	defaultErr  error
	defaultInit bool
)

// GetService returns the process-wide Service, building it from environment
// configuration on first call. chatModel may be nil; it only feeds answer
// generation, never retrieval.
func GetService(ctx context.Context, chatModel model.BaseChatModel) (*Service, error) {
	defaultMu.RLock()
	if defaultInit {
		defer defaultMu.RUnlock()
		return defaultSvc, defaultErr
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultInit {
		return defaultSvc, defaultErr
	}
	defaultSvc, defaultErr = buildService(ctx, chatModel)
	defaultInit = true
	return defaultSvc, defaultErr
}

// ResetService discards the cached default service so the next GetService
// rebuilds it. Intended for tests that vary the environment.
func ResetService() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSvc, defaultErr, defaultInit = nil, nil, false
}

// buildService assembles the default service from the environment:
// ENABLE_CATALOG_RAG switches on the semantic index, ENABLE_RAG_WEB switches
// on web augmentation, RAG_WEB_LIMIT bounds web cards, WEB_CACHE_DIR hosts
// the page cache. A misconfigured embedder degrades to lexical retrieval.
func buildService(ctx context.Context, chatModel model.BaseChatModel) (*Service, error) {
	log := logging.FromContext(ctx)
	store := catalog.NewStore("")

	cfg := &rag.PipelineConfig{
		Store:     store,
		ChatModel: chatModel,
		WebLimit:  envInt("RAG_WEB_LIMIT", 0),
	}

	if envBool("ENABLE_CATALOG_RAG") {
		emb, err := embedder.NewFromEnv()
		if err != nil {
			log.Warn("embedder unavailable, semantic search disabled", "error", err)
		} else {
			cfg.Embedder = emb
		}
	}

	if envBool("ENABLE_RAG_WEB") {
		gate := webx.NewDomainGateFromEnv()
		fetcher := webx.NewFetcher(gate, os.Getenv("WEB_CACHE_DIR"))
		cfg.Augmenter = webx.NewAugmenter(webx.NewDDGSearch(), fetcher)
	}

	pipeline, err := rag.NewPipeline(ctx, cfg)
	if err != nil && cfg.Embedder != nil {
		// An unreachable embedding backend should not take catalog search
		// down with it.
		log.Warn("semantic index build failed, continuing with lexical retrieval", "error", err)
		cfg.Embedder = nil
		pipeline, err = rag.NewPipeline(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	return NewService(store, pipeline, imagesig.New(nil))
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
