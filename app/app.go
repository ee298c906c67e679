// Package app assembles the scout services from a loaded configuration. It is
// shared by the API server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/docutag/scout"
	"github.com/docutag/scout/analysis"
	"github.com/docutag/scout/api"
	"github.com/docutag/scout/config"
	"github.com/docutag/scout/db"
	"github.com/docutag/scout/drafting"
	"github.com/docutag/scout/metrics"
	"github.com/docutag/scout/storage"
)

// App holds every long-lived dependency
type App struct {
	Config   *config.Config
	DB       *db.DB
	Scout    *scout.Scout
	Analysis *analysis.Service
	Expander *drafting.Expander
	Drafter  *drafting.Drafter
	Archive  storage.Archive
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Logger   *slog.Logger

	closers []func() error
}

// New opens the database and archive, and builds the search, analysis and
// drafting services. The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	a := &App{
		Config:   cfg,
		Metrics:  m,
		Registry: registry,
		Logger:   logger,
	}

	database, err := db.New(cfg.DBConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = database
	a.closers = append(a.closers, database.Close)

	if err := metrics.RegisterDBStats(registry, database.DB(), "scout"); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register database metrics: %w", err)
	}

	archive, err := cfg.OpenArchive(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize snapshot archive: %w", err)
	}
	a.Archive = archive

	var renderer scout.Renderer
	if cfg.Search.Renderer == config.RendererBrowser {
		browser, err := scout.NewBrowserRenderer(cfg.BrowserConfig())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
		renderer = browser
		a.closers = append(a.closers, browser.Close)
	}

	searchConfig := cfg.ScoutConfig()
	searchConfig.Logger = logger
	var snapshots scout.SnapshotArchive
	if archive != nil {
		snapshots = archive
	}
	search, err := scout.New(searchConfig, renderer, snapshots, m)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize search: %w", err)
	}
	a.Scout = search

	completer := cfg.Completer()
	if completer == nil {
		logger.Warn("no LLM API key configured, classification and drafting will use fallbacks")
	}

	a.Analysis = analysis.NewService(
		cfg.AnalysisConfig(),
		database,
		search,
		analysis.NewClassifier(completer, m, logger),
		m,
		logger,
	)
	a.Expander = drafting.NewExpander(completer, m, logger)
	a.Drafter = drafting.NewDrafter(completer, m, logger)

	return a, nil
}

// Server builds the HTTP API on top of the app's services
func (a *App) Server() (*api.Server, error) {
	return api.NewServer(api.Config{
		Addr:           a.Config.Server.Addr,
		CORSEnabled:    a.Config.Server.CORSEnabled,
		RequestTimeout: a.Config.Server.RequestTimeout,
	}, api.Dependencies{
		Analysis: a.Analysis,
		Searcher: a.Scout,
		Expander: a.Expander,
		Drafter:  a.Drafter,
		Archive:  a.Archive,
		Store:    a.DB,
		Metrics:  a.Metrics,
		Gatherer: a.Registry,
		Logger:   a.Logger,
	})
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
