package scout

import (
	"fmt"

	"github.com/docutag/scout/models"
)

type mockThread struct {
	platform   models.Platform
	title      string
	text       string
	url        string
	engagement int
}

var mockThreadTemplates = []mockThread{
	{
		platform:   models.PlatformReddit,
		title:      "Best %s recommendations?",
		text:       "Anyone have recommendations for the best %s? I've been struggling to find a reliable solution that actually works at scale.",
		url:        "https://reddit.com/r/SaaS/comments/mock1",
		engagement: 42,
	},
	{
		platform:   models.PlatformReddit,
		title:      "Is %s getting harder?",
		text:       "Is it just me or is %s industry getting harder to navigate? Looking for advice on how to optimize my workflow.",
		url:        "https://reddit.com/r/Marketing/comments/mock2",
		engagement: 18,
	},
	{
		platform:   models.PlatformYouTube,
		title:      "Top 5 Strategies for %s Growth",
		text:       "Top 5 Strategies for %s Growth in 2024 (Full Guide)",
		url:        "https://youtube.com/watch?v=mock3",
		engagement: 1200,
	},
	{
		platform:   models.PlatformReddit,
		title:      "Honest review of %s market leaders",
		text:       "Honest review of the current %s market leaders. Here is what I found after testing 10 different options.",
		url:        "https://reddit.com/r/Entrepreneur/comments/mock4",
		engagement: 156,
	},
	{
		platform:   models.PlatformReddit,
		title:      "Need help with %s scaling",
		text:       "Need help with %s scaling. My current setup is breaking down and I need a fix ASAP.",
		url:        "https://reddit.com/r/Startups/comments/mock5",
		engagement: 8,
	},
}

// MockThreads returns canned threads for keyword, used when neither stored
// nor live results are available. They are ordered by engagement.
func MockThreads(keyword string) []models.Thread {
	threads := make([]models.Thread, 0, len(mockThreadTemplates))
	for i, m := range mockThreadTemplates {
		threads = append(threads, models.Thread{
			ID:         fmt.Sprintf("mock-%d", i+1),
			Platform:   m.platform,
			Title:      fmt.Sprintf(m.title, keyword),
			Text:       fmt.Sprintf(m.text, keyword),
			URL:        m.url,
			Engagement: m.engagement,
		})
	}
	sortByEngagement(threads)
	return threads
}
