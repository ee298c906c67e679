package models

import "time"

// Platform identifies where a discovered thread lives
type Platform string

const (
	PlatformReddit  Platform = "Reddit"
	PlatformYouTube Platform = "YouTube"
)

// ActivityLevel is the coarse market-activity verdict for a keyword
type ActivityLevel string

const (
	LevelStable       ActivityLevel = "Stable"
	LevelActive       ActivityLevel = "Active"
	LevelHighActivity ActivityLevel = "High Activity"
)

// ActivityLevels lists every valid level in ascending order of activity
var ActivityLevels = []ActivityLevel{LevelStable, LevelActive, LevelHighActivity}

// Valid reports whether l is one of the known activity levels
func (l ActivityLevel) Valid() bool {
	for _, level := range ActivityLevels {
		if l == level {
			return true
		}
	}
	return false
}

// Thread is a single discussion or video discovered for a keyword
type Thread struct {
	ID         string   `json:"id"` // Generated per search, not stable across searches
	Platform   Platform `json:"platform"`
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	URL        string   `json:"url"`
	Engagement int      `json:"engagement"` // Ranking heuristic, not observed telemetry
}

// AnalysisRecord is the cached market-activity verdict for a keyword
type AnalysisRecord struct {
	ID             string        `json:"id,omitempty"`
	Keyword        string        `json:"keyword"`
	Level          ActivityLevel `json:"level"`
	Count          int           `json:"count"`
	Classification string        `json:"classification"`
	Confidence     *int          `json:"confidence,omitempty"` // Absent on records written before confidence existed
	Sources        int           `json:"sources"`
	LiveData       bool          `json:"liveData"`
	AIUsed         bool          `json:"aiUsed"`
	Threads        []Thread      `json:"threads"`
	CreatedAt      time.Time     `json:"createdAt"`
	Cached         bool          `json:"cached"`
	Warning        string        `json:"warning,omitempty"` // Set when part of the pipeline degraded to a fallback
}

// ConfidenceValue returns the confidence or 0 if it was never computed
func (r *AnalysisRecord) ConfidenceValue() int {
	if r.Confidence == nil {
		return 0
	}
	return *r.Confidence
}

// ThreadInput is a thread selected by the user for reply drafting
type ThreadInput struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ReplyDraft holds three stylistically distinct replies for one thread
type ReplyDraft struct {
	ThreadID     string   `json:"threadId"`
	OriginalText string   `json:"originalText"`
	Replies      []string `json:"replies"`
}

// KeywordRequest is the body accepted by keyword-scoped endpoints
type KeywordRequest struct {
	Keyword string `json:"keyword"`
}

// ThreadSource reports where a thread listing came from
type ThreadSource string

const (
	SourceStored ThreadSource = "stored"
	SourceLive   ThreadSource = "live"
	SourceMock   ThreadSource = "mock"
)

// ThreadsResponse is returned by the thread discovery endpoint
type ThreadsResponse struct {
	Keyword string       `json:"keyword"`
	Results []Thread     `json:"results"`
	Source  ThreadSource `json:"source"`
	Warning string       `json:"warning,omitempty"`
}

// SearchResponse is returned by the raw live search endpoint
type SearchResponse struct {
	Keyword string   `json:"keyword"`
	Results []Thread `json:"results"`
	Count   int      `json:"count"`
}

// KeywordsResponse is returned by the keyword expansion endpoint
type KeywordsResponse struct {
	Keyword    string   `json:"keyword"`
	Variations []string `json:"variations"`
}

// RepliesRequest asks for reply drafts for the selected threads
type RepliesRequest struct {
	Threads []ThreadInput `json:"threads"`
	Link    string        `json:"link"`
}

// RepliesResponse carries generated drafts; an empty list means "try again"
type RepliesResponse struct {
	Drafts  []ReplyDraft `json:"drafts"`
	Warning string       `json:"warning,omitempty"`
}

// HistoryResponse lists stored analysis records for a keyword, newest first
type HistoryResponse struct {
	Keyword string            `json:"keyword"`
	Records []*AnalysisRecord `json:"records"`
}
