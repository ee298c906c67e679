package analysis

import (
	"strings"
	"testing"

	"github.com/docutag/scout/models"
)

func TestConfidence(t *testing.T) {
	detailed := "Buyers compare grip and thickness and complain about mats that smell."

	tests := []struct {
		name           string
		liveResults    int
		classification string
		jitter         int
		want           int
	}{
		{"no data, brief", 0, "Active", 0, 15},
		{"no data, detailed", 0, detailed, 0, 40},
		{"one result", 1, detailed, 0, 40 + 30 + 1},
		{"ten results", 10, detailed, 2, 40 + 30 + 12 + 2},
		{"capped richness", 500, detailed, 0, 40 + 30 + 25},
		{"clamped at 99", 20, detailed, 5, 99},
		{"jitter clamped", 0, "", 50, 10 + 5 + 5},
		{"negative inputs", -3, "", -1, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Confidence(tt.liveResults, tt.classification, tt.jitter); got != tt.want {
				t.Errorf("Confidence(%d, %q, %d) = %d, want %d", tt.liveResults, tt.classification, tt.jitter, got, tt.want)
			}
		})
	}
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	texts := []string{"", "short", strings.Repeat("x", 21), strings.Repeat("long text ", 100)}
	for n := 0; n <= 60; n++ {
		for _, text := range texts {
			for jitter := 0; jitter <= maxJitter; jitter++ {
				got := Confidence(n, text, jitter)
				if got < 0 || got > 99 {
					t.Fatalf("Confidence(%d, len %d, %d) = %d, outside [0,99]", n, len(text), jitter, got)
				}
			}
		}
	}
}

func TestBackfill(t *testing.T) {
	for _, roll := range []int{0, backfillSpan - 1} {
		record := &models.AnalysisRecord{Keyword: "espresso machines", LiveData: true}
		backfill(record, func(int) int { return roll })

		if record.Confidence == nil {
			t.Fatal("Expected confidence to be backfilled")
		}
		if c := *record.Confidence; c < 88 || c > 94 {
			t.Errorf("Backfilled confidence = %d, want 88..94", c)
		}
		if record.LiveData {
			t.Error("Expected liveData=false on backfilled record")
		}
		if record.Threads == nil {
			t.Error("Expected threads to be non-nil after backfill")
		}
	}
}

func TestBackfillKeepsExistingConfidence(t *testing.T) {
	confidence := 61
	record := &models.AnalysisRecord{Confidence: &confidence, LiveData: true}

	backfill(record, func(int) int { return 0 })

	if *record.Confidence != 61 || !record.LiveData {
		t.Errorf("Backfill modified a complete record: confidence=%d liveData=%v", *record.Confidence, record.LiveData)
	}
}
