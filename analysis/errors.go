package analysis

import (
	"errors"
	"fmt"
)

// ErrEmptyKeyword is returned when an analysis is requested without a keyword
var ErrEmptyKeyword = errors.New("keyword is required")

// PersistenceError reports a failed write of a computed analysis. It is
// logged and counted but never returned to callers of GetOrCompute.
type PersistenceError struct {
	Keyword string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist analysis for %q: %v", e.Keyword, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
