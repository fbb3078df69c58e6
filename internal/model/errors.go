package model

import "errors"

var (
	// ErrNotFound reports a missing partition, exercise, file or document.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable reports that the assessment service did not respond.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError reports malformed input: an invalid archive, identifier or document.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Invalid returns a *ValidationError with the given message.
func Invalid(msg string) error {
	return &ValidationError{Msg: msg}
}
