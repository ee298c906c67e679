package drafting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docutag/scout/llm"
	"github.com/docutag/scout/metrics"
)

// MaxVariations caps the number of keyword variations returned
const MaxVariations = 12

// ErrEmptyRoot is returned when Expand is called without a keyword
var ErrEmptyRoot = errors.New("root keyword is required")

// Expander turns a root keyword into high-intent search variations
type Expander struct {
	completer llm.Completer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewExpander creates a keyword expander
func NewExpander(completer llm.Completer, m *metrics.Metrics, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{
		completer: completer,
		metrics:   m,
		logger:    logger,
	}
}

// Expand returns up to MaxVariations distinct variations of root. Every call
// asks the model again; results are not cached.
func (e *Expander) Expand(ctx context.Context, root string) ([]string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, ErrEmptyRoot
	}
	if e.completer == nil {
		return nil, fmt.Errorf("failed to expand keyword: %w", llm.ErrMissingAPIKey)
	}

	start := time.Now()
	answer, err := e.completer.Complete(ctx, llm.UserMessage(expandPrompt(root)))
	e.metrics.ObserveLLM("expand", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to expand keyword: %w", err)
	}

	var raw []string
	if err := json.Unmarshal([]byte(llm.ExtractJSON(answer)), &raw); err != nil {
		e.logger.Warn("keyword variations unparseable", "keyword", root, "error", err)
		return nil, fmt.Errorf("failed to parse keyword variations: %w: %v", llm.ErrUnexpectedResponseShape, err)
	}

	variations := cleanVariations(raw)
	e.logger.Info("keyword expanded", "keyword", root, "variations", len(variations))
	return variations, nil
}

// cleanVariations trims, drops empties and case-insensitive duplicates, and
// caps the list at MaxVariations keeping the model's order
func cleanVariations(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, min(len(raw), MaxVariations))
	for _, v := range raw {
		v = strings.Join(strings.Fields(v), " ")
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
		if len(out) == MaxVariations {
			break
		}
	}
	return out
}

func expandPrompt(root string) string {
	return fmt.Sprintf(`Act as a marketing expert. Expand the keyword "%s" into 10-12 specific, high-intent social media search variations. Return ONLY a JSON array of strings. No conversational text. Example: ["Keyword 1", "Keyword 2"]`, root)
}
