package scout

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/docutag/scout/models"
)

// organicResult renders one search result container in the current markup
func organicResult(class, href, title, snippet string) string {
	return fmt.Sprintf(`<div class="%s"><a href="%s"><h3>%s</h3></a><div class="VwiC3b">%s</div></div>`,
		class, href, title, snippet)
}

func resultsPage(blocks ...string) string {
	return `<!DOCTYPE html><html><head><title>Results</title></head><body><div id="search">` +
		strings.Join(blocks, "\n") + `</div></body></html>`
}

func TestExtractFiltersNonPermittedDomains(t *testing.T) {
	page := resultsPage(
		organicResult("tF2Cxc", "https://www.reddit.com/r/espresso/comments/a1", "Best espresso machine under $500?", "Looking for something that pulls decent shots without a separate grinder."),
		organicResult("tF2Cxc", "https://www.reddit.com/r/Coffee/comments/b2", "Breville vs Gaggia", "I have owned both for a year and here is what I learned about temperature."),
		organicResult("tF2Cxc", "https://old.reddit.com/r/espresso/comments/c3", "Descaling schedule question", "How often should I descale if my tap water is fairly hard in this area?"),
		organicResult("tF2Cxc", "https://www.amazon.com/espresso-machine", "Espresso Machine - Amazon", "Shop espresso machines with free shipping on eligible orders today."),
		organicResult("tF2Cxc", "https://coffeegeek.com/reviews/espresso", "Espresso machine reviews", "Our editors test every machine for at least two weeks before rating."),
	)

	threads, err := NewExtractor(nil, 0).Extract(page)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(threads) != 3 {
		t.Fatalf("Expected 3 threads, got %d", len(threads))
	}
	for _, thread := range threads {
		if thread.Platform != models.PlatformReddit {
			t.Errorf("Expected Reddit platform, got %q for %s", thread.Platform, thread.URL)
		}
		if thread.ID == "" {
			t.Errorf("Expected generated ID for %s", thread.URL)
		}
	}
}

func TestExtractNoResults(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"empty page", "<html><body></body></html>"},
		{"unknown markup", `<html><body><div class="result"><a href="https://reddit.com/r/x"><h3>Title</h3></a></div></body></html>`},
		{"only other domains", resultsPage(
			organicResult("tF2Cxc", "https://example.com/a", "Example", "Nothing to see here, this is not a forum at all."),
		)},
		{"missing title", resultsPage(
			`<div class="tF2Cxc"><a href="https://www.reddit.com/r/x/comments/1">link</a><div class="VwiC3b">A snippet that is long enough to keep.</div></div>`,
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractor(nil, 0).Extract(tt.html)
			if !errors.Is(err, ErrNoResultsFound) {
				t.Errorf("Expected ErrNoResultsFound, got %v", err)
			}
		})
	}
}

func TestExtractDeduplicatesAcrossStrategies(t *testing.T) {
	page := resultsPage(
		organicResult("tF2Cxc", "https://www.reddit.com/r/yoga/comments/m1", "Which yoga mat grips best?", "My hands slide on my current mat during downward dog every time."),
		organicResult("g", "https://www.reddit.com/r/yoga/comments/m1", "Which yoga mat grips best?", "My hands slide on my current mat during downward dog every time."),
		organicResult("MjjYud", "https://www.youtube.com/watch?v=abc123", "Yoga mat comparison 2024", "We tested eight mats for grip, cushioning and smell over a month."),
		organicResult("MjjYud", "https://www.youtube.com/watch?v=abc123", "Yoga mat comparison 2024", "We tested eight mats for grip, cushioning and smell over a month."),
	)

	threads, err := NewExtractor(nil, 0).Extract(page)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	seen := make(map[string]bool)
	for _, thread := range threads {
		if seen[thread.URL] {
			t.Errorf("Duplicate URL returned: %s", thread.URL)
		}
		seen[thread.URL] = true
	}
	if len(threads) != 2 {
		t.Errorf("Expected 2 unique threads, got %d", len(threads))
	}
}

func TestExtractStopsAtThreshold(t *testing.T) {
	var blocks []string
	for i := 0; i < 5; i++ {
		blocks = append(blocks, organicResult("tF2Cxc",
			fmt.Sprintf("https://www.reddit.com/r/running/comments/%d", i),
			fmt.Sprintf("Running shoes thread %d", i),
			"Which running shoes last longest on asphalt for daily training?"))
	}
	blocks = append(blocks, organicResult("MjjYud",
		"https://www.youtube.com/watch?v=late", "Late result", "This one should only be read by the last fallback strategy."))

	threads, err := NewExtractor(nil, 5).Extract(resultsPage(blocks...))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(threads) != 5 {
		t.Errorf("Expected 5 threads from the first strategy, got %d", len(threads))
	}
	for _, thread := range threads {
		if thread.URL == "https://www.youtube.com/watch?v=late" {
			t.Error("Fallback strategy ran although the threshold was already met")
		}
	}
}

func TestExtractAppliesFallbackStrategies(t *testing.T) {
	page := resultsPage(
		organicResult("tF2Cxc", "https://www.reddit.com/r/a/comments/1", "First strategy hit", "Found by the primary organic result selector on this page."),
		organicResult("MjjYud", "https://www.youtube.com/watch?v=xyz", "Third strategy hit", "Found only by the last fallback selector in the chain."),
	)

	threads, err := NewExtractor(nil, 5).Extract(page)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("Expected results from both strategies, got %d", len(threads))
	}
	if threads[0].Title != "First strategy hit" {
		t.Errorf("Expected primary strategy result first, got %q", threads[0].Title)
	}
	if threads[1].Platform != models.PlatformYouTube {
		t.Errorf("Expected YouTube platform, got %q", threads[1].Platform)
	}
}

func TestExtractStripsEmbeddedScripts(t *testing.T) {
	page := resultsPage(`<div class="tF2Cxc">
		<script>(function(){var id='x';document.getElementById(id).setAttribute('a','b');})();</script>
		<style>.x{color:red}</style>
		<a href="https://www.reddit.com/r/dropship/comments/z9"><h3>Is dropshipping still worth it?</h3></a>
		<div class="VwiC3b">Margins are thin but <noscript>enable js</noscript>some niches still work well.</div>
	</div>`)

	threads, err := NewExtractor(nil, 0).Extract(page)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("Expected 1 thread, got %d", len(threads))
	}

	text := threads[0].Text
	for _, fragment := range []string{"function", "getElementById", "color:red", "enable js"} {
		if strings.Contains(text, fragment) {
			t.Errorf("Snippet contains stripped content %q: %q", fragment, text)
		}
	}
	if text != "Margins are thin but some niches still work well." {
		t.Errorf("Unexpected snippet: %q", text)
	}
}

func TestExtractSnippetFallsBackToContainerText(t *testing.T) {
	long := strings.Repeat("people keep asking about standing desks ", 10)
	page := resultsPage(
		`<div class="tF2Cxc"><a href="https://www.reddit.com/r/desks/comments/q1"><h3>Standing desk advice</h3></a><div class="VwiC3b">Too short</div><span>` + long + `</span></div>`,
	)

	threads, err := NewExtractor(nil, 0).Extract(page)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	text := threads[0].Text
	if !strings.HasPrefix(text, "Standing desk advice") {
		t.Errorf("Expected fallback snippet to start with container text, got %q", text)
	}
	if n := utf8.RuneCountInString(text); n > maxFallbackSnippet {
		t.Errorf("Fallback snippet has %d runes, want at most %d", n, maxFallbackSnippet)
	}
}

func TestExtractUnwrapsRedirectLinks(t *testing.T) {
	page := resultsPage(organicResult("tF2Cxc",
		"/url?q=https://www.youtube.com/watch%3Fv%3Dqq11&amp;sa=U&amp;ved=abc",
		"Home espresso setup tour", "A walkthrough of a budget espresso corner with all the gear listed."))

	threads, err := NewExtractor(nil, 0).Extract(page)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if threads[0].URL != "https://www.youtube.com/watch?v=qq11" {
		t.Errorf("Expected unwrapped URL, got %q", threads[0].URL)
	}
}

func TestExtractEngagementBounds(t *testing.T) {
	page := resultsPage(
		organicResult("tF2Cxc", "https://www.reddit.com/r/a/comments/1", "Reddit thread", "A discussion thread with enough text in the snippet."),
		organicResult("tF2Cxc", "https://www.youtube.com/watch?v=1", "YouTube video", "A video description with enough text in the snippet."),
	)

	tests := []struct {
		name       string
		intn       func(int) int
		wantReddit int
		wantVideo  int
	}{
		{"lowest", func(int) int { return 0 }, 10, 10},
		{"highest", func(n int) int { return n - 1 }, 209, 509},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(nil, 0)
			e.intn = tt.intn

			threads, err := e.Extract(page)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			for _, thread := range threads {
				want := tt.wantReddit
				if thread.Platform == models.PlatformYouTube {
					want = tt.wantVideo
				}
				if thread.Engagement != want {
					t.Errorf("%s engagement = %d, want %d", thread.Platform, thread.Engagement, want)
				}
			}
		})
	}
}

func TestPlatformFor(t *testing.T) {
	tests := []struct {
		url      string
		want     models.Platform
		accepted bool
	}{
		{"https://reddit.com/r/x", models.PlatformReddit, true},
		{"https://www.reddit.com/r/x", models.PlatformReddit, true},
		{"https://old.reddit.com/r/x", models.PlatformReddit, true},
		{"https://m.youtube.com/watch?v=1", models.PlatformYouTube, true},
		{"https://YOUTUBE.com/watch?v=1", models.PlatformYouTube, true},
		{"https://notreddit.com/r/x", "", false},
		{"https://reddit.com.example.io/r/x", "", false},
		{"https://youtu.be/abc", "", false},
		{"https://example.com/?u=reddit.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, ok := platformFor(tt.url)
			if ok != tt.accepted || got != tt.want {
				t.Errorf("platformFor(%q) = (%q, %v), want (%q, %v)", tt.url, got, ok, tt.want, tt.accepted)
			}
		})
	}
}
