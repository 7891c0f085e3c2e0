package server

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/commerce-agent/cagent-go/internal/agent"
	"github.com/commerce-agent/cagent-go/internal/catalog"
	"github.com/commerce-agent/cagent-go/internal/logging"
)

// maxJSONBody caps request bodies for the JSON endpoints.
const maxJSONBody = 1 << 20

// handleCatalogSearch handles POST /api/catalog/search.
func (s *Server) handleCatalogSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	resp, err := s.service.SearchCatalog(r.Context(), req.Query, req.Filters.toFilters(), req.Limit)
	if err != nil {
		s.serverError(w, r, "catalog search failed", err)
		return
	}
	s.writeJSON(w, r, resp)
}

// handleImageSearch handles POST /api/catalog/image-search. The image
// arrives base64-encoded in the JSON body; an undecodable payload is a
// client error, while an unanalyzable image degrades inside the service.
func (s *Server) handleImageSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageBytes)
	var req imageSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ImageB64 == "" && req.Query == "" {
		http.Error(w, "image_b64 or query is required", http.StatusBadRequest)
		return
	}

	var imageBytes []byte
	if req.ImageB64 != "" {
		var err error
		imageBytes, err = base64.StdEncoding.DecodeString(req.ImageB64)
		if err != nil {
			http.Error(w, "image_b64 is not valid base64", http.StatusBadRequest)
			return
		}
	}

	resp, err := s.service.ImageSearch(r.Context(), imageBytes, req.Query, req.Filters.toFilters(), req.Limit)
	if err != nil {
		s.serverError(w, r, "image search failed", err)
		return
	}
	s.writeJSON(w, r, resp)
}

// handleRecommend handles POST /api/recommend.
func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	resp, err := s.service.Recommend(r.Context(), req.Query, req.Filters.toFilters(), req.Limit)
	if err != nil {
		s.serverError(w, r, "recommendation failed", err)
		return
	}
	s.writeJSON(w, r, resp)
}

// handleAgentChat handles POST /api/agent/chat.
func (s *Server) handleAgentChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageBytes)
	var req agent.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" && len(req.Image) == 0 {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	resp, err := s.agent.Chat(r.Context(), &req)
	if err != nil {
		s.serverError(w, r, "chat failed", err)
		return
	}
	s.writeJSON(w, r, resp)
}

// handlePrefetch handles POST /api/prefetch, warming the web page cache.
func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Augmenter == nil {
		http.Error(w, "web augmentation is disabled", http.StatusServiceUnavailable)
		return
	}
	var req prefetchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.URLs) == 0 {
		http.Error(w, "urls are required", http.StatusBadRequest)
		return
	}

	cached := s.cfg.Augmenter.Prefetch(r.Context(), req.URLs)
	s.writeJSON(w, r, prefetchResponse{Requested: len(req.URLs), Cached: cached})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, map[string]string{"status": "ok"})
}

// decode reads a bounded JSON body into dst, replying 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		http.Error(w, "could not read request body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.FromContext(r.Context()).Error(msg, slog.Any("error", err))
	http.Error(w, msg, http.StatusInternalServerError)
}

// toFilters converts the wire payload into catalog filters.
func (f filterPayload) toFilters() catalog.Filters {
	return catalog.Filters{
		Category: f.Category,
		Brand:    f.Brand,
		InStock:  f.InStock,
		PriceMin: f.PriceMinCents,
		PriceMax: f.PriceMaxCents,
		Color:    f.Colors,
		Size:     f.Sizes,
	}
}
