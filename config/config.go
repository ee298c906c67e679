// Package config loads scout settings from an optional YAML file and the
// environment, and converts them into per-package configurations.
package config

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docutag/scout"
	"github.com/docutag/scout/analysis"
	"github.com/docutag/scout/db"
	"github.com/docutag/scout/llm"
	"github.com/docutag/scout/storage"
)

// Renderers
const (
	RendererProxy   = "proxy"
	RendererBrowser = "browser"
)

// LLM providers
const (
	ProviderRapidAPI  = "rapidapi"
	ProviderAnthropic = "anthropic"
)

// Storage backends
const (
	StorageNone  = "none"
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds all scout configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Search   SearchConfig   `yaml:"search"`
	LLM      LLMConfig      `yaml:"llm"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	CORSEnabled    bool          `yaml:"cors_enabled"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SearchConfig configures live search and page rendering
type SearchConfig struct {
	URL               string        `yaml:"url"`
	RecencyAfter      string        `yaml:"recency_after"`
	MinResults        int           `yaml:"min_results"`
	Renderer          string        `yaml:"renderer"` // proxy or browser
	ProxyURL          string        `yaml:"proxy_url"`
	ProxyAPIKey       string        `yaml:"proxy_api_key"`
	ProxyTimeout      time.Duration `yaml:"proxy_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	BrowserTimeout    time.Duration `yaml:"browser_timeout"`
}

// LLMConfig configures the language model client
type LLMConfig struct {
	Provider      string        `yaml:"provider"` // rapidapi or anthropic
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Host          string        `yaml:"host"`
	Path          string        `yaml:"path"`
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// DatabaseConfig configures the analysis store
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres or sqlite
	DSN    string `yaml:"dsn"`
}

// StorageConfig configures the snapshot archive
type StorageConfig struct {
	Backend  string           `yaml:"backend"` // none, local or s3
	BasePath string           `yaml:"base_path"`
	S3       storage.S3Config `yaml:"s3"`
}

// AnalysisConfig configures per-stage analysis timeouts
type AnalysisConfig struct {
	SearchTimeout   time.Duration `yaml:"search_timeout"`
	ClassifyTimeout time.Duration `yaml:"classify_timeout"`
	PersistTimeout  time.Duration `yaml:"persist_timeout"`
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	search := scout.DefaultConfig()
	browser := scout.DefaultBrowserConfig()
	chat := llm.DefaultConfig()
	database := db.DefaultConfig()
	stages := analysis.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			CORSEnabled:    true,
			RequestTimeout: 120 * time.Second,
		},
		Search: SearchConfig{
			URL:               search.SearchURL,
			RecencyAfter:      search.RecencyAfter,
			MinResults:        search.MinResults,
			Renderer:          RendererProxy,
			ProxyURL:          search.Proxy.BaseURL,
			ProxyTimeout:      search.Proxy.Timeout,
			RequestsPerSecond: search.Proxy.RequestsPerSecond,
			Burst:             search.Proxy.Burst,
			BrowserTimeout:    browser.PageTimeout,
		},
		LLM: LLMConfig{
			Provider:      ProviderRapidAPI,
			Host:          chat.Host,
			Path:          chat.Path,
			Timeout:       chat.Timeout,
			MaxConcurrent: chat.MaxConcurrent,
		},
		Database: DatabaseConfig{
			Driver: database.Driver,
			DSN:    database.DSN,
		},
		Storage: StorageConfig{
			Backend:  StorageLocal,
			BasePath: storage.DefaultConfig().BasePath,
		},
		Analysis: AnalysisConfig{
			SearchTimeout:   stages.SearchTimeout,
			ClassifyTimeout: stages.ClassifyTimeout,
			PersistTimeout:  stages.PersistTimeout,
		},
		Tracing: TracingConfig{
			Enabled:     true,
			ServiceName: "scout",
		},
	}
}

// Load reads the file at path (if any), applies environment overrides and
// validates the result
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for commands that only need part of the
// configuration. A missing file yields the defaults.
func Read(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}

	// Search and rendering
	c.Search.Renderer = getEnv("SEARCH_RENDERER", c.Search.Renderer)
	c.Search.RecencyAfter = getEnv("SEARCH_RECENCY_AFTER", c.Search.RecencyAfter)
	c.Search.ProxyAPIKey = getEnv("SCRAPERAPI_KEY", c.Search.ProxyAPIKey)

	// LLM credentials follow the selected provider
	c.LLM.Provider = getEnv("LLM_PROVIDER", c.LLM.Provider)
	switch c.LLM.Provider {
	case ProviderAnthropic:
		c.LLM.APIKey = getEnv("ANTHROPIC_API_KEY", c.LLM.APIKey)
		c.LLM.Model = getEnv("ANTHROPIC_MODEL", c.LLM.Model)
	default:
		c.LLM.APIKey = getEnv("RAPIDAPI_KEY", c.LLM.APIKey)
		c.LLM.Host = getEnv("RAPIDAPI_HOST_CHATGPT", c.LLM.Host)
	}

	// Database
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_DSN", c.Database.DSN)
	if host := os.Getenv("DB_HOST"); host != "" {
		c.Database.Driver = db.DriverPostgres
		c.Database.DSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host,
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "scout"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "scout"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	// Snapshot archive
	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.BasePath = getEnv("STORAGE_BASE_PATH", c.Storage.BasePath)
	c.Storage.S3.Endpoint = getEnv("S3_ENDPOINT", c.Storage.S3.Endpoint)
	c.Storage.S3.Region = getEnv("S3_REGION", c.Storage.S3.Region)
	c.Storage.S3.Bucket = getEnv("S3_BUCKET", c.Storage.S3.Bucket)
	c.Storage.S3.AccessKeyID = getEnv("S3_ACCESS_KEY_ID", c.Storage.S3.AccessKeyID)
	c.Storage.S3.SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", c.Storage.S3.SecretAccessKey)
	if v, err := strconv.ParseBool(os.Getenv("S3_USE_PATH_STYLE")); err == nil {
		c.Storage.S3.UsePathStyle = v
	}

	if v, err := strconv.ParseBool(os.Getenv("TRACING_ENABLED")); err == nil {
		c.Tracing.Enabled = v
	}
}

// Validate checks the configuration a server needs to start. A missing proxy
// key with the proxy renderer is a *scout.ConfigurationError.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return &scout.ConfigurationError{Field: "server addr", Reason: "is not set"}
	}

	if !slices.Contains([]string{RendererProxy, RendererBrowser}, c.Search.Renderer) {
		return &scout.ConfigurationError{Field: "search renderer", Reason: fmt.Sprintf("%q is not one of proxy, browser", c.Search.Renderer)}
	}
	if c.Search.Renderer == RendererProxy && strings.TrimSpace(c.Search.ProxyAPIKey) == "" {
		return &scout.ConfigurationError{Field: "proxy api key", Reason: "is not set"}
	}
	if err := c.ScoutConfig().Validate(); err != nil {
		return err
	}

	if !slices.Contains([]string{ProviderRapidAPI, ProviderAnthropic}, c.LLM.Provider) {
		return &scout.ConfigurationError{Field: "llm provider", Reason: fmt.Sprintf("%q is not one of rapidapi, anthropic", c.LLM.Provider)}
	}

	if !slices.Contains([]string{db.DriverPostgres, db.DriverSQLite}, c.Database.Driver) {
		return &scout.ConfigurationError{Field: "database driver", Reason: fmt.Sprintf("%q is not one of postgres, sqlite", c.Database.Driver)}
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return &scout.ConfigurationError{Field: "database dsn", Reason: "is not set"}
	}

	switch c.Storage.Backend {
	case StorageNone:
	case StorageLocal:
		if strings.TrimSpace(c.Storage.BasePath) == "" {
			return &scout.ConfigurationError{Field: "storage base path", Reason: "is not set"}
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" || c.Storage.S3.Region == "" {
			return &scout.ConfigurationError{Field: "s3 storage", Reason: "needs a bucket and region"}
		}
	default:
		return &scout.ConfigurationError{Field: "storage backend", Reason: fmt.Sprintf("%q is not one of none, local, s3", c.Storage.Backend)}
	}

	return nil
}

// ScoutConfig returns the search configuration
func (c *Config) ScoutConfig() scout.Config {
	config := scout.DefaultConfig()
	config.SearchURL = c.Search.URL
	config.RecencyAfter = c.Search.RecencyAfter
	config.MinResults = c.Search.MinResults
	config.Proxy.APIKey = c.Search.ProxyAPIKey
	if c.Search.ProxyURL != "" {
		config.Proxy.BaseURL = c.Search.ProxyURL
	}
	if c.Search.ProxyTimeout > 0 {
		config.Proxy.Timeout = c.Search.ProxyTimeout
	}
	config.Proxy.RequestsPerSecond = c.Search.RequestsPerSecond
	config.Proxy.Burst = c.Search.Burst
	return config
}

// BrowserConfig returns the headless browser configuration
func (c *Config) BrowserConfig() scout.BrowserConfig {
	config := scout.DefaultBrowserConfig()
	if c.Search.BrowserTimeout > 0 {
		config.PageTimeout = c.Search.BrowserTimeout
	}
	return config
}

// Completer builds the configured model client, or returns nil when no API
// key is set so callers degrade to their fallbacks
func (c *Config) Completer() llm.Completer {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return nil
	}

	if c.LLM.Provider == ProviderAnthropic {
		return llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:        c.LLM.APIKey,
			Model:         c.LLM.Model,
			BaseURL:       c.LLM.BaseURL,
			Timeout:       c.LLM.Timeout,
			MaxConcurrent: c.LLM.MaxConcurrent,
		})
	}

	return llm.NewClient(llm.Config{
		BaseURL:       c.LLM.BaseURL,
		Host:          c.LLM.Host,
		Path:          c.LLM.Path,
		APIKey:        c.LLM.APIKey,
		Timeout:       c.LLM.Timeout,
		MaxConcurrent: c.LLM.MaxConcurrent,
	})
}

// DBConfig returns the database configuration
func (c *Config) DBConfig() db.Config {
	return db.Config{
		Driver: c.Database.Driver,
		DSN:    c.Database.DSN,
	}
}

// AnalysisConfig returns the analysis service configuration
func (c *Config) AnalysisConfig() analysis.Config {
	config := analysis.DefaultConfig()
	if c.Analysis.SearchTimeout > 0 {
		config.SearchTimeout = c.Analysis.SearchTimeout
	}
	if c.Analysis.ClassifyTimeout > 0 {
		config.ClassifyTimeout = c.Analysis.ClassifyTimeout
	}
	if c.Analysis.PersistTimeout > 0 {
		config.PersistTimeout = c.Analysis.PersistTimeout
	}
	return config
}

// OpenArchive creates the configured snapshot archive, or nil for "none"
func (c *Config) OpenArchive(ctx context.Context) (storage.Archive, error) {
	switch c.Storage.Backend {
	case StorageLocal:
		local, err := storage.New(storage.Config{BasePath: c.Storage.BasePath})
		if err != nil {
			return nil, err
		}
		return local, nil
	case StorageS3:
		remote, err := storage.NewS3Storage(ctx, c.Storage.S3)
		if err != nil {
			return nil, err
		}
		return remote, nil
	default:
		return nil, nil
	}
}
