package scout

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Renderer returns the fully rendered HTML of a page
type Renderer interface {
	Render(ctx context.Context, targetURL string) (string, error)
}

// DefaultProxyURL is the ScraperAPI rendering endpoint
const DefaultProxyURL = "https://api.scraperapi.com/"

// ProxyConfig contains rendering proxy configuration
type ProxyConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64 // Outbound request rate; 0 disables limiting
	Burst             int
	MaxBodyBytes      int64
}

// DefaultProxyConfig returns default proxy configuration
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		BaseURL:           DefaultProxyURL,
		Timeout:           70 * time.Second, // Premium rendering can take a minute
		RequestsPerSecond: 2,
		Burst:             2,
		MaxBodyBytes:      8 * 1024 * 1024,
	}
}

// ProxyRenderer fetches pages through an external rendering proxy.
// Responses are never cached: a failed render must not be replayed.
type ProxyRenderer struct {
	config     ProxyConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewProxyRenderer creates a proxy renderer with an instrumented HTTP client
func NewProxyRenderer(config ProxyConfig) *ProxyRenderer {
	if config.BaseURL == "" {
		config.BaseURL = DefaultProxyURL
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultProxyConfig().MaxBodyBytes
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return &ProxyRenderer{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: limiter,
	}
}

// Render requests a rendered snapshot of targetURL
func (r *ProxyRenderer) Render(ctx context.Context, targetURL string) (string, error) {
	apiKey := strings.TrimSpace(r.config.APIKey)
	if apiKey == "" {
		return "", &ConfigurationError{Field: "proxy api key", Reason: "is not set"}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to wait for proxy rate limit: %w", err)
	}

	endpoint, err := url.Parse(r.config.BaseURL)
	if err != nil {
		return "", &ConfigurationError{Field: "proxy base url", Reason: err.Error()}
	}
	q := endpoint.Query()
	q.Set("api_key", apiKey)
	q.Set("url", targetURL)
	q.Set("render", "true")
	q.Set("premium", "true")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch rendered page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	// One byte past the limit tells a full page from a truncated one
	body, err := io.ReadAll(io.LimitReader(resp.Body, r.config.MaxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read rendered page: %w", err)
	}
	if int64(len(body)) > r.config.MaxBodyBytes {
		return "", fmt.Errorf("%w: %w: over %d bytes", ErrUpstream, ErrPageTooLarge, r.config.MaxBodyBytes)
	}
	return string(body), nil
}
