// Package drafting turns selected threads into reply drafts and root keywords
// into search variations, both through a single model call per request.
package drafting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docutag/scout/llm"
	"github.com/docutag/scout/metrics"
	"github.com/docutag/scout/models"
)

// RepliesPerThread is the number of reply styles drafted for every thread
const RepliesPerThread = 3

// Drafter writes reply drafts for a batch of threads
type Drafter struct {
	completer llm.Completer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewDrafter creates a reply drafter
func NewDrafter(completer llm.Completer, m *metrics.Metrics, logger *slog.Logger) *Drafter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Drafter{
		completer: completer,
		metrics:   m,
		logger:    logger,
	}
}

type draftAnswer struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Replies []string `json:"replies"`
}

// Draft asks for three replies per thread in one batched call: a short direct
// one, a detailed value-first one and a curiosity hook. link is woven in only
// where it reads naturally.
//
// A model answer that fails validation yields an empty slice and a nil error.
// Only a failed model call returns an error.
func (d *Drafter) Draft(ctx context.Context, threads []models.ThreadInput, link string) ([]models.ReplyDraft, error) {
	if len(threads) == 0 {
		return []models.ReplyDraft{}, nil
	}
	if d.completer == nil {
		return nil, fmt.Errorf("failed to draft replies: %w", llm.ErrMissingAPIKey)
	}

	prompt, err := draftPrompt(threads, link)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	answer, err := d.completer.Complete(ctx, llm.UserMessage(prompt))
	d.metrics.ObserveLLM("draft", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to draft replies: %w", err)
	}

	drafts, err := validateDrafts(answer, threads)
	if err != nil {
		d.logger.Warn("reply drafts rejected", "threads", len(threads), "error", err)
		d.metrics.Fallback("draft")
		return []models.ReplyDraft{}, nil
	}

	d.logger.Info("reply drafts generated", "threads", len(threads), "drafts", len(drafts))
	return drafts, nil
}

// validateDrafts parses answer and checks every entry against the requested threads
func validateDrafts(answer string, threads []models.ThreadInput) ([]models.ReplyDraft, error) {
	var parsed []draftAnswer
	if err := json.Unmarshal([]byte(llm.ExtractJSON(answer)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrUnexpectedResponseShape, err)
	}

	requested := make(map[string]string, len(threads))
	for _, t := range threads {
		requested[t.ID] = t.Text
	}

	seen := make(map[string]bool, len(parsed))
	drafts := make([]models.ReplyDraft, 0, len(parsed))
	for _, entry := range parsed {
		original, ok := requested[entry.ID]
		if !ok {
			return nil, fmt.Errorf("draft for unknown thread %q", entry.ID)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("duplicate draft for thread %q", entry.ID)
		}
		seen[entry.ID] = true

		if len(entry.Replies) != RepliesPerThread {
			return nil, fmt.Errorf("thread %q has %d replies, want %d", entry.ID, len(entry.Replies), RepliesPerThread)
		}
		replies := make([]string, RepliesPerThread)
		for i, reply := range entry.Replies {
			replies[i] = strings.TrimSpace(reply)
			if replies[i] == "" {
				return nil, fmt.Errorf("thread %q has an empty reply", entry.ID)
			}
		}

		drafts = append(drafts, models.ReplyDraft{
			ThreadID:     entry.ID,
			OriginalText: original,
			Replies:      replies,
		})
	}
	return drafts, nil
}

func draftPrompt(threads []models.ThreadInput, link string) (string, error) {
	payload, err := json.Marshal(threads)
	if err != nil {
		return "", fmt.Errorf("failed to encode threads: %w", err)
	}

	linkLine := "No link provided."
	if l := strings.TrimSpace(link); l != "" {
		linkLine = "Target link: " + l
	}

	return fmt.Sprintf(`For each of these posts, write %d distinct, natural, human-sounding replies that a real user would type.
%s

Rules:
- Return only the reply text.
- Do not include prefixes like "Short:", "Medium:", "Curiosity:" or "Variant:".
- Replies must be conversational and specific to the original post.
- If a link is provided, weave it in only where it adds value.

Styles:
1. A casual, short, direct acknowledgement.
2. A helpful, detailed insight or personal-sounding story.
3. A curiosity-based question or hook that starts a conversation.

Posts:
%s

Return ONLY a JSON array: [{"id": "post_id", "text": "original_text", "replies": ["direct reply", "detailed reply", "hook reply"]}]`,
		RepliesPerThread, linkLine, payload), nil
}
