// Package scout finds recent social discussion threads for a keyword by
// rendering a site-scoped search results page and extracting the organic
// results that point at Reddit or YouTube.
package scout

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/docutag/scout/metrics"
	"github.com/docutag/scout/models"
	"github.com/docutag/scout/slug"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultSearchURL is the results page rendered for every search
	DefaultSearchURL = "https://www.google.com/search"
	// DefaultRecencyAfter limits results to recent discussions
	DefaultRecencyAfter = "2024-01-01"

	recencyLayout = "2006-01-02"
)

// Config contains search configuration
type Config struct {
	SearchURL    string
	RecencyAfter string // Date in YYYY-MM-DD form
	MinResults   int    // Accepted results below which further strategies run
	Proxy        ProxyConfig
	Logger       *slog.Logger
}

// DefaultConfig returns default search configuration
func DefaultConfig() Config {
	return Config{
		SearchURL:    DefaultSearchURL,
		RecencyAfter: DefaultRecencyAfter,
		MinResults:   DefaultMinResults,
		Proxy:        DefaultProxyConfig(),
	}
}

// Validate checks the settings that do not depend on which renderer is used
func (c Config) Validate() error {
	u, err := url.Parse(c.SearchURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigurationError{Field: "search url", Reason: "must be an absolute URL"}
	}
	if _, err := time.Parse(recencyLayout, c.RecencyAfter); err != nil {
		return &ConfigurationError{Field: "recency date", Reason: "must use YYYY-MM-DD"}
	}
	return nil
}

// SnapshotArchive stores rendered pages that produced no results
type SnapshotArchive interface {
	SaveSnapshot(ctx context.Context, content, slug string) (string, error)
}

// Scout performs live social searches
type Scout struct {
	config    Config
	renderer  Renderer
	extractor *Extractor
	archive   SnapshotArchive
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates a Scout. When renderer is nil the rendering proxy is used and
// its API key must be set. archive and m may be nil.
func New(config Config, renderer Renderer, archive SnapshotArchive, m *metrics.Metrics) (*Scout, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if renderer == nil {
		if strings.TrimSpace(config.Proxy.APIKey) == "" {
			return nil, &ConfigurationError{Field: "proxy api key", Reason: "is not set"}
		}
		renderer = NewProxyRenderer(config.Proxy)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scout{
		config:    config,
		renderer:  renderer,
		extractor: NewExtractor(DefaultStrategies(), config.MinResults),
		archive:   archive,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("github.com/docutag/scout"),
	}, nil
}

// SearchURL builds the site-scoped, recency-filtered results page URL for keyword
func (s *Scout) SearchURL(keyword string) string {
	query := fmt.Sprintf("site:reddit.com OR site:youtube.com %s after:%s", keyword, s.config.RecencyAfter)
	return s.config.SearchURL + "?" + url.Values{"q": {query}}.Encode()
}

// Search renders the results page for keyword and returns the sanitized
// threads ordered by engagement, highest first. Every call is a fresh fetch.
func (s *Scout) Search(ctx context.Context, keyword string) ([]models.Thread, error) {
	ctx, span := s.tracer.Start(ctx, "scout.Search", trace.WithAttributes(
		attribute.String("scout.keyword", keyword),
	))
	defer span.End()

	threads, err := s.search(ctx, keyword)
	s.metrics.ObserveSearch(searchOutcome(err), len(threads))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("scout.results", len(threads)))
	return threads, nil
}

func (s *Scout) search(ctx context.Context, keyword string) ([]models.Thread, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, ErrEmptyKeyword
	}

	start := time.Now()
	page, err := s.renderer.Render(ctx, s.SearchURL(keyword))
	if err != nil {
		s.logger.Warn("search render failed", "keyword", keyword, "error", err)
		return nil, fmt.Errorf("failed to render search page: %w", err)
	}

	threads, err := s.extractor.Extract(page)
	if err != nil {
		if errors.Is(err, ErrNoResultsFound) {
			s.archiveSnapshot(ctx, keyword, page)
		}
		return nil, err
	}

	threads = Sanitize(threads)
	if len(threads) == 0 {
		s.archiveSnapshot(ctx, keyword, page)
		return nil, ErrNoResultsFound
	}

	sortByEngagement(threads)

	s.logger.Info("search complete",
		"keyword", keyword,
		"results", len(threads),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return threads, nil
}

// archiveSnapshot keeps the page that produced nothing so selector drift can be diagnosed
func (s *Scout) archiveSnapshot(ctx context.Context, keyword, page string) {
	if s.archive == nil {
		return
	}
	name := slug.Snapshot(keyword, time.Now())
	path, err := s.archive.SaveSnapshot(ctx, page, name)
	if err != nil {
		s.logger.Warn("failed to archive search snapshot", "keyword", keyword, "error", err)
		return
	}
	s.metrics.SnapshotArchived()
	s.logger.Warn("search returned no results, snapshot archived", "keyword", keyword, "path", path)
}

// sortByEngagement orders threads by engagement, highest first, keeping ties stable
func sortByEngagement(threads []models.Thread) {
	slices.SortStableFunc(threads, func(a, b models.Thread) int {
		return cmp.Compare(b.Engagement, a.Engagement)
	})
}

func searchOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrNoResultsFound):
		return metrics.OutcomeNoResults
	case errors.Is(err, ErrUpstream):
		return metrics.OutcomeUpstream
	case errors.Is(err, ErrConfiguration):
		return metrics.OutcomeConfig
	default:
		return metrics.OutcomeError
	}
}
