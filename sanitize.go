package scout

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/docutag/scout/models"
	"golang.org/x/text/unicode/norm"
)

// MinTextLength is the shortest thread text considered meaningful
const MinTextLength = 15

// scriptFingerprints mark text that came from injected tracking code
var scriptFingerprints = []string{
	"(function()",
	"var id=",
	"document.getelementbyid",
	"setattribute",
}

var (
	readMorePrefix = regexp.MustCompile(`(?i)^.*?read more`)
	platformNoise  = regexp.MustCompile(`YouTube \w+`)
)

// Sanitize drops script artifacts and too-short fragments and normalizes the
// text of what remains. Sanitize(Sanitize(t)) equals Sanitize(t).
func Sanitize(threads []models.Thread) []models.Thread {
	out := make([]models.Thread, 0, len(threads))
	for _, t := range threads {
		raw := t.Text
		if strings.TrimSpace(raw) == "" {
			raw = t.Title
		}
		if isNoise(raw) {
			continue
		}
		cleaned := cleanText(raw)
		if isNoise(cleaned) {
			continue
		}
		t.Text = cleaned
		out = append(out, t)
	}
	return out
}

// isNoise reports whether text looks like code or is too short to carry signal
func isNoise(text string) bool {
	lower := strings.ToLower(text)
	for _, fp := range scriptFingerprints {
		if strings.Contains(lower, fp) {
			return true
		}
	}
	if strings.Contains(lower, ".js") && strings.Contains(lower, "script") {
		return true
	}
	return utf8.RuneCountInString(strings.TrimSpace(text)) < MinTextLength
}

// cleanText applies cleanOnce until the text stops changing. Every pass
// after the first either removes characters or leaves the text unchanged.
func cleanText(text string) string {
	for {
		next := cleanOnce(text)
		if next == text {
			return text
		}
		text = next
	}
}

func cleanOnce(text string) string {
	text = collapseSpaces(text)
	text = readMorePrefix.ReplaceAllString(text, "")
	text = platformNoise.ReplaceAllString(text, "")
	text = norm.NFC.String(text)
	return collapseSpaces(text)
}
