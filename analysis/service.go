// Package analysis serves market-activity verdicts per keyword. Verdicts are
// read through a persistent cache; on a miss they are computed from a live
// search and a model classification and appended to the store.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/docutag/scout"
	"github.com/docutag/scout/metrics"
	"github.com/docutag/scout/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Warnings attached to degraded results
const (
	WarningLiveSearch     = "Live search unavailable, analysis is based on model knowledge"
	WarningClassification = "AI classification unavailable, showing a generic analysis"
	WarningMockThreads    = "Live search unavailable, showing example threads"
)

// Store persists analysis records. Records are append-only; LatestAnalysis
// returns nil, nil when the keyword has never been analysed.
type Store interface {
	LatestAnalysis(ctx context.Context, keyword string) (*models.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, keyword string, limit int) ([]*models.AnalysisRecord, error)
	SaveAnalysis(ctx context.Context, record *models.AnalysisRecord) error
	DeleteAnalyses(ctx context.Context, keyword string) (int64, error)
}

// Searcher finds live threads for a keyword
type Searcher interface {
	Search(ctx context.Context, keyword string) ([]models.Thread, error)
}

// Config contains analysis service configuration
type Config struct {
	SearchTimeout    time.Duration
	ClassifyTimeout  time.Duration
	PersistTimeout   time.Duration
	MaxStoredThreads int
}

// DefaultConfig returns default analysis configuration
func DefaultConfig() Config {
	return Config{
		SearchTimeout:    75 * time.Second,
		ClassifyTimeout:  45 * time.Second,
		PersistTimeout:   5 * time.Second,
		MaxStoredThreads: 25,
	}
}

// Service implements the cache-aside analysis pipeline
type Service struct {
	config     Config
	store      Store
	searcher   Searcher
	classifier *Classifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	intn       func(int) int
}

// NewService creates an analysis service. searcher may be nil, in which case
// every computation proceeds without live evidence.
func NewService(config Config, store Store, searcher Searcher, classifier *Classifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if config.MaxStoredThreads <= 0 {
		config.MaxStoredThreads = DefaultConfig().MaxStoredThreads
	}
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = NewClassifier(nil, m, logger)
	}

	return &Service{
		config:     config,
		store:      store,
		searcher:   searcher,
		classifier: classifier,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("github.com/docutag/scout/analysis"),
		intn:       rand.IntN,
	}
}

// GetOrCompute returns the newest stored analysis for keyword, or computes,
// stores and returns a fresh one. Keywords are matched exactly.
// Only an empty keyword or a cancelled context produce an error.
func (s *Service) GetOrCompute(ctx context.Context, keyword string) (*models.AnalysisRecord, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, ErrEmptyKeyword
	}

	ctx, span := s.tracer.Start(ctx, "analysis.GetOrCompute", trace.WithAttributes(
		attribute.String("scout.keyword", keyword),
	))
	defer span.End()

	record, err := s.store.LatestAnalysis(ctx, keyword)
	switch {
	case err != nil:
		s.metrics.CacheLookup("error")
		s.logger.Warn("analysis cache lookup failed, computing live", "keyword", keyword, "error", err)
	case record != nil:
		s.metrics.CacheLookup("hit")
		span.SetAttributes(attribute.Bool("scout.cached", true))
		backfill(record, s.intn)
		record.Cached = true
		return record, nil
	default:
		s.metrics.CacheLookup("miss")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record = s.compute(ctx, keyword)
	span.SetAttributes(
		attribute.Bool("scout.cached", false),
		attribute.Bool("scout.live_data", record.LiveData),
		attribute.Int("scout.confidence", record.ConfidenceValue()),
	)
	return record, nil
}

func (s *Service) compute(ctx context.Context, keyword string) *models.AnalysisRecord {
	var warnings []string

	threads, err := s.liveSearch(ctx, keyword)
	if err != nil {
		s.logger.Warn("live search failed, classifying without samples", "keyword", keyword, "error", err)
		s.metrics.Fallback("search")
		warnings = append(warnings, WarningLiveSearch)
		threads = nil
	}

	classifyCtx, cancel := withTimeout(ctx, s.config.ClassifyTimeout)
	verdict := s.classifier.Classify(classifyCtx, keyword, sampleTexts(threads, MaxSamples))
	cancel()
	if verdict.Fallback {
		warnings = append(warnings, WarningClassification)
	}

	count := len(threads)
	if count == 0 {
		count = verdict.Count
	}
	confidence := Confidence(len(threads), verdict.Classification, s.intn(maxJitter+1))

	stored := make([]models.Thread, 0, min(len(threads), s.config.MaxStoredThreads))
	stored = append(stored, threads[:min(len(threads), s.config.MaxStoredThreads)]...)

	record := &models.AnalysisRecord{
		ID:             uuid.NewString(),
		Keyword:        keyword,
		Level:          verdict.Level,
		Count:          count,
		Classification: verdict.Classification,
		Confidence:     &confidence,
		Sources:        len(threads),
		LiveData:       len(threads) > 0,
		AIUsed:         !verdict.Fallback,
		Threads:        stored,
		CreatedAt:      time.Now().UTC(),
		Warning:        strings.Join(warnings, "; "),
	}

	if err := s.persist(ctx, record); err != nil {
		s.metrics.PersistenceFailure()
		s.logger.Error("analysis computed but not stored", "keyword", keyword, "error", err)
	}

	s.logger.Info("analysis computed",
		"keyword", keyword,
		"level", record.Level,
		"count", record.Count,
		"confidence", confidence,
		"live_data", record.LiveData,
		"ai_used", record.AIUsed,
	)
	return record
}

func (s *Service) liveSearch(ctx context.Context, keyword string) ([]models.Thread, error) {
	if s.searcher == nil {
		return nil, scout.ErrNoResultsFound
	}
	searchCtx, cancel := withTimeout(ctx, s.config.SearchTimeout)
	defer cancel()
	return s.searcher.Search(searchCtx, keyword)
}

// persist writes record even when the request context has been cancelled
// after the record was computed
func (s *Service) persist(ctx context.Context, record *models.AnalysisRecord) error {
	persistCtx, cancel := withTimeout(context.WithoutCancel(ctx), s.config.PersistTimeout)
	defer cancel()

	if err := s.store.SaveAnalysis(persistCtx, record); err != nil {
		return &PersistenceError{Keyword: record.Keyword, Err: err}
	}
	return nil
}

// FindThreads returns threads to reply to for keyword: the threads stored
// with the newest analysis, else a live search, else example threads.
func (s *Service) FindThreads(ctx context.Context, keyword string) (*models.ThreadsResponse, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, ErrEmptyKeyword
	}

	record, err := s.store.LatestAnalysis(ctx, keyword)
	if err != nil {
		s.logger.Warn("stored thread lookup failed", "keyword", keyword, "error", err)
	} else if record != nil && len(record.Threads) > 0 {
		return &models.ThreadsResponse{
			Keyword: keyword,
			Results: record.Threads,
			Source:  models.SourceStored,
		}, nil
	}

	threads, err := s.liveSearch(ctx, keyword)
	if err == nil && len(threads) > 0 {
		return &models.ThreadsResponse{
			Keyword: keyword,
			Results: threads,
			Source:  models.SourceLive,
		}, nil
	}
	// A caller deadline still gets example threads; a cancelled caller does not
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}

	s.logger.Warn("no stored or live threads, serving examples", "keyword", keyword, "error", err)
	s.metrics.Fallback("threads")
	return &models.ThreadsResponse{
		Keyword: keyword,
		Results: scout.MockThreads(keyword),
		Source:  models.SourceMock,
		Warning: WarningMockThreads,
	}, nil
}

// History returns up to limit stored analyses for keyword, newest first
func (s *Service) History(ctx context.Context, keyword string, limit int) ([]*models.AnalysisRecord, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, ErrEmptyKeyword
	}

	records, err := s.store.ListAnalyses(ctx, keyword, limit)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		backfill(record, s.intn)
		record.Cached = true
	}
	return records, nil
}

// Forget deletes every stored analysis for keyword so the next request recomputes it
func (s *Service) Forget(ctx context.Context, keyword string) (int64, error) {
	if strings.TrimSpace(keyword) == "" {
		return 0, ErrEmptyKeyword
	}
	return s.store.DeleteAnalyses(ctx, keyword)
}

// sampleTexts returns the non-empty texts of the first n threads
func sampleTexts(threads []models.Thread, n int) []string {
	samples := make([]string, 0, min(len(threads), n))
	for _, t := range threads {
		if len(samples) == n {
			break
		}
		if text := strings.TrimSpace(t.Text); text != "" {
			samples = append(samples, text)
		}
	}
	return samples
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
