// Package llm talks to the external language model used for classification,
// keyword expansion and reply drafting. The model is treated as an opaque
// collaborator: callers send chat messages and get back the answer text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrUnexpectedResponseShape means the response carried none of the known answer fields
	ErrUnexpectedResponseShape = errors.New("unexpected LLM response shape")
	// ErrMissingAPIKey means a client was used without a credential
	ErrMissingAPIKey = errors.New("LLM API key is not set")
)

// Message is a single chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage wraps prompt as the only turn of a conversation
func UserMessage(prompt string) []Message {
	return []Message{{Role: RoleUser, Content: prompt}}
}

// Completer returns the model's answer to a conversation
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// CompleterFunc adapts a function to the Completer interface
type CompleterFunc func(ctx context.Context, messages []Message) (string, error)

// Complete calls f
func (f CompleterFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// StatusError reports a non-success HTTP status from the model endpoint
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("LLM API returned status %d: %s", e.StatusCode, e.Body)
}

// ExtractJSON strips markdown code fences and any prose around the first
// JSON object or array in s
func ExtractJSON(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	if s == "" || s[0] == '{' || s[0] == '[' {
		return s
	}

	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s
	}
	return s[start : end+1]
}

// slots bounds the number of in-flight model requests
type slots chan struct{}

func newSlots(n int) slots {
	if n < 1 {
		n = 1
	}
	return make(slots, n)
}

// acquire takes a slot or returns an error if ctx is cancelled first
func (s slots) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s slots) release() {
	<-s
}
