package scout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserConfig holds configuration for the headless browser renderer
type BrowserConfig struct {
	PageTimeout   time.Duration
	StableTimeout time.Duration
	UserAgent     string
}

// DefaultBrowserConfig returns default browser configuration
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		PageTimeout:   45 * time.Second,
		StableTimeout: 10 * time.Second,
		UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	}
}

// BrowserRenderer renders pages with a local headless Chrome instead of the
// proxy. It needs no credential but is subject to the search page's bot checks.
type BrowserRenderer struct {
	config  BrowserConfig
	browser *rod.Browser
}

// NewBrowserRenderer launches Chrome and connects to it
func NewBrowserRenderer(config BrowserConfig) (*BrowserRenderer, error) {
	u, err := launcher.New().
		Headless(true).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	if config.PageTimeout == 0 {
		config.PageTimeout = DefaultBrowserConfig().PageTimeout
	}
	if config.StableTimeout == 0 {
		config.StableTimeout = DefaultBrowserConfig().StableTimeout
	}

	return &BrowserRenderer{config: config, browser: browser}, nil
}

// Render navigates to targetURL and returns the DOM once the page settles
func (b *BrowserRenderer) Render(ctx context.Context, targetURL string) (string, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(b.config.PageTimeout)

	if b.config.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.config.UserAgent}); err != nil {
			return "", fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	if err := page.Navigate(targetURL); err != nil {
		return "", fmt.Errorf("failed to navigate: %w", err)
	}

	// A page that never settles still usually has its results in the DOM
	_ = page.WaitStable(b.config.StableTimeout)

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read rendered HTML: %w", err)
	}
	return html, nil
}

// Close shuts the browser down
func (b *BrowserRenderer) Close() error {
	if b.browser != nil {
		return b.browser.Close()
	}
	return nil
}
