package analysis

import (
	"unicode/utf8"

	"github.com/docutag/scout/models"
)

// Confidence score terms
const (
	liveBase          = 40
	offlineBase       = 10
	detailedBonus     = 30
	briefBonus        = 5
	detailedMinLength = 20
	richnessMax       = 25
	richnessCap       = 20
	maxJitter         = 5
	maxConfidence     = 99

	// Range synthesized for records stored before confidence existed
	backfillMin  = 88
	backfillSpan = 7
)

// Confidence scores how much to trust an analysis. liveResults is the number
// of live threads behind it and jitter (0..5) adds presentation variance.
// The result is always within [0, 99].
func Confidence(liveResults int, classification string, jitter int) int {
	score := offlineBase
	if liveResults > 0 {
		score = liveBase
	}

	if utf8.RuneCountInString(classification) > detailedMinLength {
		score += detailedBonus
	} else {
		score += briefBonus
	}

	n := min(max(liveResults, 0), richnessCap)
	score += richnessMax * n / richnessCap

	score += min(max(jitter, 0), maxJitter)

	return min(max(score, 0), maxConfidence)
}

// backfill repairs a stored record read back from the cache in place
func backfill(record *models.AnalysisRecord, intn func(int) int) {
	if record.Confidence == nil {
		c := backfillMin + intn(backfillSpan)
		record.Confidence = &c
		record.LiveData = false
	}
	if record.Threads == nil {
		record.Threads = []models.Thread{}
	}
}
