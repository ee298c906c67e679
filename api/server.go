package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/scout"
	"github.com/docutag/scout/analysis"
	"github.com/docutag/scout/drafting"
	"github.com/docutag/scout/llm"
	"github.com/docutag/scout/metrics"
	"github.com/docutag/scout/models"
	"github.com/docutag/scout/storage"
)

// Warnings returned alongside empty or degraded payloads
const (
	WarningDraftsUnavailable = "Reply generation failed, please try again"
	WarningDraftsMalformed   = "The model returned unusable replies, please try again"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// Counter reports how many analyses are stored
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Server represents the API server
type Server struct {
	config   Config
	analysis *analysis.Service
	searcher analysis.Searcher
	expander *drafting.Expander
	drafter  *drafting.Drafter
	archive  storage.Archive
	store    Counter
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	server   *http.Server
	mux      *http.ServeMux
}

// Config contains server configuration
type Config struct {
	Addr           string
	CORSEnabled    bool
	RequestTimeout time.Duration // Deadline applied to every API request
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		CORSEnabled:    true,
		RequestTimeout: 120 * time.Second,
	}
}

// Dependencies are the services the handlers call. Analysis is required;
// a nil Searcher, Archive or Store disables the routes that need it.
type Dependencies struct {
	Analysis *analysis.Service
	Searcher analysis.Searcher
	Expander *drafting.Expander
	Drafter  *drafting.Drafter
	Archive  storage.Archive
	Store    Counter
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewServer creates a new API server
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if deps.Analysis == nil {
		return nil, fmt.Errorf("analysis service is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Expander == nil {
		deps.Expander = drafting.NewExpander(nil, deps.Metrics, deps.Logger)
	}
	if deps.Drafter == nil {
		deps.Drafter = drafting.NewDrafter(nil, deps.Metrics, deps.Logger)
	}

	s := &Server{
		config:   config,
		analysis: deps.Analysis,
		searcher: deps.Searcher,
		expander: deps.Expander,
		drafter:  deps.Drafter,
		archive:  deps.Archive,
		store:    deps.Store,
		metrics:  deps.Metrics,
		gatherer: deps.Gatherer,
		logger:   deps.Logger,
		mux:      http.NewServeMux(),
	}

	// Register routes
	s.registerRoutes()

	// Create HTTP server
	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      otelhttp.NewHandler(s.middleware(s.mux), "scout-api"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: config.RequestTimeout + 15*time.Second, // Leave room to write the degraded response
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	s.mux.HandleFunc("/api/keywords", s.handleKeywords)
	s.mux.HandleFunc("/api/search", s.handleSearch)
	s.mux.HandleFunc("/api/threads", s.handleThreads)
	s.mux.HandleFunc("/api/analysis", s.handleAnalysis)
	s.mux.HandleFunc("/api/replies", s.handleReplies)
	s.mux.HandleFunc("/api/snapshots", s.handleSnapshots)
}

// Handler returns the fully wrapped root handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.config.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers
		if s.config.CORSEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		if s.config.RequestTimeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
			defer cancel()
			r = r.WithContext(ctx)
		}

		route := "unmatched"
		if _, pattern := s.mux.Handler(r); pattern != "" {
			route = pattern
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		s.metrics.ObserveHTTP(route, r.Method, rec.status, elapsed)

		// Skip health checks and scrapes to reduce noise
		if route != "/health" && route != "/metrics" {
			s.logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
			)
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	response := map[string]any{
		"status": "healthy",
		"time":   time.Now(),
	}

	if s.store != nil {
		count, err := s.store.Count(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to get count")
			return
		}
		response["analyses"] = count
	}

	respondJSON(w, http.StatusOK, response)
}

// decodeKeyword reads a {keyword} body, writing the error response itself
func decodeKeyword(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return "", false
	}

	var req models.KeywordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}

	if strings.TrimSpace(req.Keyword) == "" {
		respondError(w, http.StatusBadRequest, "keyword is required")
		return "", false
	}

	return req.Keyword, true
}

// handleKeywords expands a root keyword into search variations
func (s *Server) handleKeywords(w http.ResponseWriter, r *http.Request) {
	keyword, ok := decodeKeyword(w, r)
	if !ok {
		return
	}

	variations, err := s.expander.Expand(r.Context(), keyword)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, models.KeywordsResponse{
			Keyword:    keyword,
			Variations: variations,
		})
	case errors.Is(err, llm.ErrMissingAPIKey):
		respondError(w, http.StatusServiceUnavailable, "keyword expansion is not configured")
	default:
		s.logger.Warn("keyword expansion failed", "keyword", keyword, "error", err)
		respondError(w, http.StatusBadGateway, "failed to process market variations, please try again")
	}
}

// handleSearch runs a single live search and returns the raw results
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	keyword, ok := decodeKeyword(w, r)
	if !ok {
		return
	}

	if s.searcher == nil {
		respondError(w, http.StatusServiceUnavailable, "live search is not configured")
		return
	}

	threads, err := s.searcher.Search(r.Context(), keyword)
	switch {
	case err == nil:
	case errors.Is(err, scout.ErrNoResultsFound):
		threads = []models.Thread{}
	case errors.Is(err, scout.ErrConfiguration):
		s.logger.Error("live search misconfigured", "error", err)
		respondError(w, http.StatusServiceUnavailable, "live search is not configured")
		return
	case errors.Is(err, scout.ErrUpstream):
		respondError(w, http.StatusBadGateway, err.Error())
		return
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "search timed out")
		return
	default:
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("search failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, models.SearchResponse{
		Keyword: keyword,
		Results: threads,
		Count:   len(threads),
	})
}

// handleThreads returns threads worth replying to, never failing for a valid keyword
func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	keyword, ok := decodeKeyword(w, r)
	if !ok {
		return
	}

	response, err := s.analysis.FindThreads(r.Context(), keyword)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// handleAnalysis routes /api/analysis by method
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleGetOrCompute(w, r)
	case http.MethodGet:
		s.handleHistory(w, r)
	case http.MethodDelete:
		s.handleForget(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGetOrCompute returns the cached analysis or computes a fresh one
func (s *Server) handleGetOrCompute(w http.ResponseWriter, r *http.Request) {
	keyword, ok := decodeKeyword(w, r)
	if !ok {
		return
	}

	record, err := s.analysis.GetOrCompute(r.Context(), keyword)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// handleHistory lists stored analyses for a keyword
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	keyword := query.Get("keyword")
	if strings.TrimSpace(keyword) == "" {
		respondError(w, http.StatusBadRequest, "keyword is required")
		return
	}

	limit := 20
	if limitStr := query.Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 || l > 100 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = l
	}

	records, err := s.analysis.History(r.Context(), keyword, limit)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.HistoryResponse{
		Keyword: keyword,
		Records: records,
	})
}

// handleForget invalidates every stored analysis for a keyword
func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	if strings.TrimSpace(keyword) == "" {
		respondError(w, http.StatusBadRequest, "keyword is required")
		return
	}

	deleted, err := s.analysis.Forget(r.Context(), keyword)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"keyword": keyword,
		"deleted": deleted,
	})
}

// handleReplies drafts replies for a batch of threads. Failures produce an
// empty draft list with a warning so the caller knows to regenerate.
func (s *Server) handleReplies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.RepliesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Threads) == 0 {
		respondError(w, http.StatusBadRequest, "threads are required")
		return
	}
	for _, t := range req.Threads {
		if t.ID == "" || strings.TrimSpace(t.Text) == "" {
			respondError(w, http.StatusBadRequest, "every thread needs an id and text")
			return
		}
	}

	drafts, err := s.drafter.Draft(r.Context(), req.Threads, req.Link)
	response := models.RepliesResponse{Drafts: drafts}
	switch {
	case err != nil:
		s.logger.Warn("reply drafting failed", "threads", len(req.Threads), "error", err)
		response.Drafts = []models.ReplyDraft{}
		response.Warning = WarningDraftsUnavailable
	case len(drafts) == 0:
		response.Warning = WarningDraftsMalformed
	}

	respondJSON(w, http.StatusOK, response)
}

// handleSnapshots serves or deletes an archived results page by key
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		respondError(w, http.StatusNotFound, "snapshot archive is disabled")
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		respondError(w, http.StatusBadRequest, "key is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		page, err := s.archive.ReadSnapshot(r.Context(), key)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				respondError(w, http.StatusNotFound, "snapshot not found")
				return
			}
			s.logger.Warn("failed to read snapshot", "key", key, "error", err)
			respondError(w, http.StatusInternalServerError, "failed to read snapshot")
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "private, max-age=3600")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(page))

	case http.MethodDelete:
		if err := s.archive.DeleteSnapshot(r.Context(), key); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to delete snapshot")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{
			"message": "snapshot deleted successfully",
			"key":     key,
		})

	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// respondServiceError maps analysis service errors to status codes
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysis.ErrEmptyKeyword):
		respondError(w, http.StatusBadRequest, "keyword is required")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send
		respondError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error("analysis request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
