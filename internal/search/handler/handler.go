// Package handler exposes the search engine over HTTP. Routing is chi;
// request IDs and panic recovery come from chi's middleware, metrics,
// rate limiting, and timeouts from pkg/middleware.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/searchlite/searchlite/internal/search"
	"github.com/searchlite/searchlite/internal/search/cache"
	"github.com/searchlite/searchlite/pkg/config"
	pkgerrors "github.com/searchlite/searchlite/pkg/errors"
	"github.com/searchlite/searchlite/pkg/health"
	"github.com/searchlite/searchlite/pkg/metrics"
	"github.com/searchlite/searchlite/pkg/middleware"
	"github.com/searchlite/searchlite/pkg/tracing"
)

// maxBatchQueries bounds one batch request.
const maxBatchQueries = 20

// Handler serves the search API.
type Handler struct {
	engine  *search.Engine
	cache   *cache.QueryCache
	checker *health.Checker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Handler. queryCache and checker may be nil.
func New(engine *search.Engine, queryCache *cache.QueryCache, checker *health.Checker, m *metrics.Metrics) *Handler {
	return &Handler{
		engine:  engine,
		cache:   queryCache,
		checker: checker,
		metrics: m,
		logger:  slog.Default().With("component", "search-handler"),
	}
}

// Router builds the full middleware chain and route table.
func (h *Handler) Router(cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if h.metrics != nil {
		r.Use(middleware.Metrics(h.metrics))
	}
	r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, h.metrics))
	r.Use(middleware.Timeout(cfg.WriteTimeout))

	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", h.Search)
		r.Post("/search/batch", h.SearchBatch)
		r.Get("/suggest", h.Suggest)
		r.Get("/spellcheck", h.Spellcheck)
		r.Get("/expand", h.Expand)
		r.Get("/stats", h.Stats)
		r.Get("/cache/stats", h.CacheStats)
		r.Post("/cache/invalidate", h.CacheInvalidate)
	})
	return r
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "http.search", chimw.GetReqID(r.Context()))
	defer span.End()
	start := time.Now()

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	topK, ok := h.parseTopK(w, r)
	if !ok {
		return
	}

	var result *search.Result
	var err error
	cacheStatus := "none"
	if h.cache != nil {
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, query, topK, func() (*search.Result, error) {
			return h.engine.Search(ctx, query, topK)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.engine.Search(ctx, query, topK)
	}
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	}
	h.logger.Info("search completed",
		"query", query,
		"hits", len(result.Hits),
		"candidates", result.TotalCandidates,
		"cache", cacheStatus,
		"truncated", result.Truncated,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

type batchRequest struct {
	Queries []string `json:"queries"`
	TopK    int      `json:"top_k"`
}

type batchEntry struct {
	Result *search.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// SearchBatch runs several queries in one request. Each query succeeds or
// fails independently; the response preserves request order.
func (h *Handler) SearchBatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "http.search_batch", chimw.GetReqID(r.Context()))
	defer span.End()

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Queries) == 0 {
		h.writeError(w, http.StatusBadRequest, "queries must not be empty")
		return
	}
	if len(req.Queries) > maxBatchQueries {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d queries per batch", maxBatchQueries))
		return
	}

	entries := make([]batchEntry, len(req.Queries))
	for i, query := range req.Queries {
		result, err := h.engine.Search(ctx, query, req.TopK)
		if err != nil {
			entries[i].Error = err.Error()
			continue
		}
		entries[i].Result = result
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"results": entries})
}

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	suggestions, err := h.engine.Suggest(r.Context(), prefix, limit)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"prefix": prefix, "suggestions": suggestions})
}

func (h *Handler) Spellcheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Spellcheck(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Expand(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Expand(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats()
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports 503 until a snapshot is installed, plus the status of any
// registered dependency checks.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Ready() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no snapshot loaded"})
		return
	}
	if h.checker != nil {
		report := h.checker.Run(r.Context())
		status := http.StatusOK
		if report.Status != health.StatusUp {
			status = http.StatusServiceUnavailable
		}
		h.writeJSON(w, status, report)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := pkgerrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, pkgerrors.ErrIndexUnavailable) {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) parseTopK(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("top_k")
	if s == "" {
		return 0, true
	}
	parsed, err := strconv.Atoi(s)
	if err != nil || parsed < 1 {
		h.writeError(w, http.StatusBadRequest, "top_k must be a positive integer")
		return 0, false
	}
	return parsed, true
}
