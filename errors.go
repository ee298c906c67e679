package scout

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches any ConfigurationError
	ErrConfiguration = errors.New("configuration error")
	// ErrUpstream matches any UpstreamError
	ErrUpstream = errors.New("upstream error")
	// ErrNoResultsFound means every extraction strategy came back empty,
	// which usually indicates the results page markup changed
	ErrNoResultsFound = errors.New("no results found")
	// ErrPageTooLarge means the rendered page exceeded the configured body limit
	ErrPageTooLarge = errors.New("rendered page too large")
)

// ConfigurationError reports a required setting that is missing or invalid.
// It is fatal and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrConfiguration) match
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// UpstreamError reports a non-success status from the rendering proxy
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rendering proxy returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("rendering proxy returned status %d: %s", e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrUpstream) match
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// ErrEmptyKeyword is returned when a search is requested without a keyword
var ErrEmptyKeyword = errors.New("keyword is required")
