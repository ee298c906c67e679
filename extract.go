package scout

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/docutag/scout/models"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// Search result page selectors.
// These are isolated here because the results page markup changes often.
const (
	OrganicResultSelector = ".tF2Cxc"
	SearchBlockSelector   = "#search div.g"
	ResultBlockSelector   = "div.MjjYud"

	// Sub-elements that carry injected code rather than result content
	noiseSelector = "script, style, meta, link, noscript"
)

// snippetSelectors are tried in order; the first with text wins
var snippetSelectors = []string{"div[data-sncf]", ".VwiC3b", ".y4550c"}

const (
	DefaultMinResults  = 5
	minSnippetLength   = 20
	maxFallbackSnippet = 200
	redditEngagement   = 200
	youtubeEngagement  = 500
	engagementFloor    = 10
)

// Candidate is a raw (title, url, snippet) triple read from one result container
type Candidate struct {
	Title   string
	URL     string
	Snippet string
}

// Strategy reads candidates out of a parsed results page without modifying it
type Strategy struct {
	Name    string
	Extract func(doc *goquery.Document) []Candidate
}

// SelectorStrategy builds a strategy that treats every element matching
// containerSelector as one organic result
func SelectorStrategy(name, containerSelector string) Strategy {
	return Strategy{
		Name: name,
		Extract: func(doc *goquery.Document) []Candidate {
			var candidates []Candidate
			doc.Find(containerSelector).Each(func(_ int, sel *goquery.Selection) {
				candidates = append(candidates, readCandidate(sel))
			})
			return candidates
		},
	}
}

// DefaultStrategies returns the strategies in priority order
func DefaultStrategies() []Strategy {
	return []Strategy{
		SelectorStrategy("organic", OrganicResultSelector),
		SelectorStrategy("search-block", SearchBlockSelector),
		SelectorStrategy("result-block", ResultBlockSelector),
	}
}

// Extractor turns a rendered results page into threads
type Extractor struct {
	strategies []Strategy
	minResults int
	intn       func(n int) int
	newID      func() string
}

// NewExtractor creates an extractor. Later strategies only run while fewer
// than minResults candidates have been accepted.
func NewExtractor(strategies []Strategy, minResults int) *Extractor {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	if minResults <= 0 {
		minResults = DefaultMinResults
	}
	return &Extractor{
		strategies: strategies,
		minResults: minResults,
		intn:       rand.IntN,
		newID:      uuid.NewString,
	}
}

// Extract returns the accepted, deduplicated threads found in rawHTML.
// It returns ErrNoResultsFound when no strategy yields an acceptable result.
func (e *Extractor) Extract(rawHTML string) ([]models.Thread, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	seen := make(map[string]bool)
	var threads []models.Thread

	for _, strategy := range e.strategies {
		if len(threads) >= e.minResults {
			break
		}
		for _, c := range strategy.Extract(doc) {
			link := normalizeResultURL(c.URL)
			if link == "" || c.Title == "" || seen[link] {
				continue
			}
			platform, ok := platformFor(link)
			if !ok {
				continue
			}
			seen[link] = true
			threads = append(threads, models.Thread{
				ID:         e.newID(),
				Platform:   platform,
				Title:      c.Title,
				Text:       c.Snippet,
				URL:        link,
				Engagement: e.engagement(platform),
			})
		}
	}

	if len(threads) == 0 {
		return nil, ErrNoResultsFound
	}
	return threads, nil
}

// engagement is a bounded placeholder used only to rank results
func (e *Extractor) engagement(platform models.Platform) int {
	if platform == models.PlatformReddit {
		return e.intn(redditEngagement) + engagementFloor
	}
	return e.intn(youtubeEngagement) + engagementFloor
}

// readCandidate works on a detached copy so the shared document is left intact
func readCandidate(sel *goquery.Selection) Candidate {
	container := sel.Clone()
	container.Find(noiseSelector).Remove()

	href, _ := container.Find("a[href]").First().Attr("href")

	title := collapseSpaces(container.Find("h3").First().Text())
	if title == "" {
		title = collapseSpaces(container.Find("h1, h2, h4, h5, h6").First().Text())
	}

	var snippet string
	for _, selector := range snippetSelectors {
		if text := collapseSpaces(container.Find(selector).Text()); text != "" {
			snippet = text
			break
		}
	}
	if len([]rune(snippet)) < minSnippetLength && len(container.Nodes) > 0 {
		snippet = truncate(extractTextFromNode(container.Nodes[0]), maxFallbackSnippet)
	}

	return Candidate{
		Title:   title,
		URL:     strings.TrimSpace(href),
		Snippet: snippet,
	}
}

// normalizeResultURL unwraps search redirect links and rejects anything
// that is not an absolute http(s) URL
func normalizeResultURL(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.Host == "" && u.Path == "/url" {
		target := u.Query().Get("q")
		if target == "" {
			target = u.Query().Get("url")
		}
		if u, err = url.Parse(target); err != nil {
			return ""
		}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

// platformFor accepts only the discussion-forum and video-platform domains
func platformFor(link string) (models.Platform, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case hostMatches(host, "reddit.com"):
		return models.PlatformReddit, true
	case hostMatches(host, "youtube.com"):
		return models.PlatformYouTube, true
	}
	return "", false
}

func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// extractTextFromNode joins all text below n with single spaces
func extractTextFromNode(n *html.Node) string {
	var parts []string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.Join(parts, " ")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}
