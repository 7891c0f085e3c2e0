package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/commerce-agent/cagent-go/internal/agent"
	"github.com/commerce-agent/cagent-go/internal/recommender"
	"github.com/commerce-agent/cagent-go/internal/webx"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// Registry receives the server's Prometheus metrics. If nil a private
	// registry is created, which keeps tests hermetic.
	Registry *prometheus.Registry
	// Augmenter backs POST /api/prefetch. If nil the endpoint reports the
	// feature disabled.
	Augmenter *webx.Augmenter
	// MaxImageBytes caps decoded image payloads (default: 8 MiB).
	MaxImageBytes int64
}

// Server is the HTTP server that exposes the recommender and the chat agent.
type Server struct {
	// agent handles conversational requests.
	agent *agent.Agent
	// service handles search and recommendation requests.
	service *recommender.Service
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
}

// searchRequest is the JSON body for POST /api/catalog/search and the text
// portion of POST /api/recommend.
type searchRequest struct {
	// Query is the shopper's search text (the goal, for /api/recommend).
	Query string `json:"query"`
	// Filters narrows the candidate pool.
	Filters filterPayload `json:"filters,omitempty"`
	// Limit caps the number of results (default 10).
	Limit int `json:"limit,omitempty"`
}

// imageSearchRequest is the JSON body for POST /api/catalog/image-search.
type imageSearchRequest struct {
	// ImageB64 is the base64-encoded image payload.
	ImageB64 string `json:"image_b64"`
	// Query optionally refines the visual search with text.
	Query string `json:"query,omitempty"`
	// Filters narrows the candidate pool.
	Filters filterPayload `json:"filters,omitempty"`
	// Limit caps the number of results (default 10).
	Limit int `json:"limit,omitempty"`
}

// filterPayload is the wire form of catalog filters.
type filterPayload struct {
	Category      string   `json:"category,omitempty"`
	Brand         string   `json:"brand,omitempty"`
	InStock       *bool    `json:"in_stock,omitempty"`
	PriceMinCents int      `json:"price_min_cents,omitempty"`
	PriceMaxCents int      `json:"price_max_cents,omitempty"`
	Colors        []string `json:"colors,omitempty"`
	Sizes         []string `json:"sizes,omitempty"`
}

// prefetchRequest is the JSON body for POST /api/prefetch.
type prefetchRequest struct {
	// URLs are the product pages to warm into the fetch cache.
	URLs []string `json:"urls"`
}

// prefetchResponse is the JSON response for POST /api/prefetch.
type prefetchResponse struct {
	// Requested is how many URLs were submitted.
	Requested int `json:"requested"`
	// Cached is how many pages are now cached.
	Cached int `json:"cached"`
}
