package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/docutag/scout/llm"
	"github.com/docutag/scout/metrics"
	"github.com/docutag/scout/models"
)

// MaxSamples is the number of thread texts sent to the classifier
const MaxSamples = 10

const (
	fallbackCountMin  = 15
	fallbackCountSpan = 40
)

// Classification is the activity verdict for a keyword
type Classification struct {
	Level          models.ActivityLevel
	Count          int
	Classification string
	Fallback       bool // Produced without a usable model answer
}

// fallbackAngles are generic but keyword-specific audience summaries
var fallbackAngles = []string{
	`Users searching for "%s" are primarily looking for comparisons, honest reviews, and step-by-step guides. Common frustrations include outdated information and conflicting advice from different sources.`,
	`The "%s" community is actively debating best practices and sharing personal experiences. Most questions revolve around cost-effectiveness, reliability, and getting started without prior expertise.`,
	`Discussion around "%s" centers on troubleshooting common issues and discovering lesser-known tips. Users frequently express frustration with mainstream solutions that don't address their specific needs.`,
	`People interested in "%s" are seeking actionable advice backed by real-world results. The conversation is dominated by requests for recommendations, budget-friendly alternatives, and performance benchmarks.`,
	`The "%s" niche shows engaged communities sharing workarounds and personal setups. Key themes include maximizing value, avoiding common pitfalls, and finding trustworthy expert opinions.`,
}

// Classifier asks the model for an activity verdict and falls back to a
// plausible generic one when the model cannot be used
type Classifier struct {
	completer llm.Completer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	intn      func(int) int
}

// NewClassifier creates a classifier. A nil completer always yields the fallback.
func NewClassifier(completer llm.Completer, m *metrics.Metrics, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		completer: completer,
		metrics:   m,
		logger:    logger,
		intn:      rand.IntN,
	}
}

// Classify returns a verdict for keyword from up to MaxSamples thread texts.
// It never fails: any model problem produces a fallback classification.
func (c *Classifier) Classify(ctx context.Context, keyword string, samples []string) Classification {
	if len(samples) > MaxSamples {
		samples = samples[:MaxSamples]
	}

	if c.completer == nil {
		c.metrics.Fallback("classify")
		return c.fallback(keyword)
	}

	start := time.Now()
	answer, err := c.completer.Complete(ctx, llm.UserMessage(classifyPrompt(keyword, samples)))
	c.metrics.ObserveLLM("classify", err, time.Since(start))
	if err != nil {
		c.logger.Warn("classification request failed, using fallback", "keyword", keyword, "error", err)
		c.metrics.Fallback("classify")
		return c.fallback(keyword)
	}

	result, err := c.parse(answer)
	if err != nil {
		c.logger.Warn("classification response unusable, using fallback", "keyword", keyword, "error", err)
		c.metrics.Fallback("classify")
		return c.fallback(keyword)
	}
	return result
}

type classificationAnswer struct {
	Level          string  `json:"level"`
	Count          flexInt `json:"count"`
	Classification string  `json:"classification"`
}

// parse validates a model answer. An unknown level alone is repaired with a
// random level; a missing classification rejects the answer.
func (c *Classifier) parse(answer string) (Classification, error) {
	var parsed classificationAnswer
	if err := json.Unmarshal([]byte(llm.ExtractJSON(answer)), &parsed); err != nil {
		return Classification{}, fmt.Errorf("%w: %v", llm.ErrUnexpectedResponseShape, err)
	}

	text := strings.TrimSpace(parsed.Classification)
	if text == "" {
		return Classification{}, errors.New("classification text is empty")
	}

	level, ok := normalizeLevel(parsed.Level)
	if !ok {
		c.logger.Debug("unknown activity level from model", "level", parsed.Level)
		level = c.randomLevel()
	}

	count := int(parsed.Count)
	if count < 0 {
		count = 0
	}

	return Classification{
		Level:          level,
		Count:          count,
		Classification: text,
	}, nil
}

func (c *Classifier) fallback(keyword string) Classification {
	return Classification{
		Level:          c.randomLevel(),
		Count:          fallbackCountMin + c.intn(fallbackCountSpan),
		Classification: fmt.Sprintf(fallbackAngles[c.intn(len(fallbackAngles))], keyword),
		Fallback:       true,
	}
}

func (c *Classifier) randomLevel() models.ActivityLevel {
	return models.ActivityLevels[c.intn(len(models.ActivityLevels))]
}

// normalizeLevel maps the model's wording onto the known activity levels
func normalizeLevel(s string) (models.ActivityLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stable", "low", "low activity", "quiet":
		return models.LevelStable, true
	case "active", "medium", "moderate", "moderate activity":
		return models.LevelActive, true
	case "high", "high activity", "very high", "very active":
		return models.LevelHighActivity, true
	}
	return "", false
}

func classifyPrompt(keyword string, samples []string) string {
	if len(samples) > 0 {
		return fmt.Sprintf(`Analyze this social media data for "%[1]s":
%[2]s

Tasks:
1. Determine the Activity Level (Stable, Active, High Activity).
2. Count the posts and comments represented.
3. Write a specific 2-sentence analysis of what this audience is asking about, complaining about, or recommending. Mention real pain points, desires or common questions people in the "%[1]s" niche have.

Return ONLY a JSON object: {"level": "...", "count": 12, "classification": "..."}`, keyword, strings.Join(samples, "\n"))
	}

	return fmt.Sprintf(`You are a market research expert. Analyze the niche "%[1]s" based on your knowledge of online communities (Reddit, YouTube, forums).

Tasks:
1. Estimate the Activity Level for this niche (Stable, Active, High Activity).
2. Estimate a realistic post and discussion count for a 7-day window.
3. Write a specific 2-sentence analysis of the audience pain points, common questions, and what people in the "%[1]s" space are seeking or frustrated about. Do not write generic marketing language.

Return ONLY a JSON object: {"level": "...", "count": 12, "classification": "..."}`, keyword)
}

// flexInt accepts a JSON number or a numeric string clamped to
// [0, math.MaxInt32]; anything else reads as 0
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) {
		*f = 0
		return nil
	}
	*f = flexInt(min(max(n, 0), math.MaxInt32))
	return nil
}
