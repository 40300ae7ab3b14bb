package engine

import (
	"errors"
	"fmt"
)

// Terminal error kinds for a single request. The transport layer maps these
// to status codes; the engine never does.
var (
	ErrSessionNotFound        = errors.New("session not found")
	ErrSurveyNotFound         = errors.New("survey not found")
	ErrSurveyNotPublished     = errors.New("survey is not published")
	ErrSectionNotFound        = errors.New("section not found")
	ErrSectionNotVisible      = errors.New("section is not visible for this response")
	ErrSectionOwnership       = errors.New("field does not belong to the submitted section")
	ErrAlreadyCompleted       = errors.New("response already completed")
	ErrConcurrentModification = errors.New("response was modified concurrently")
)

// ValidationError aggregates per-field messages for one section submission.
// Nothing is persisted when it is returned.
type ValidationError struct {
	Fields map[string]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %d field(s)", len(e.Fields))
}
