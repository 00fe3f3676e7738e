package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("action not allowed in current session state")
	ErrUnknownQuestion   = errors.New("question is not part of this attempt")
	ErrIndexOutOfRange   = errors.New("question index out of range")
	ErrTimeExpired       = errors.New("time limit reached, answers are locked")
	ErrClosed            = errors.New("session machine is closed")
)

// ConfigError reports a malformed exam configuration or attempt. No
// session is created when Start returns one.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid exam config: %s %s", e.Field, e.Reason)
}

// SubmissionError wraps a failed submit. The attempt is back in progress
// with all answers intact, so the caller may retry.
type SubmissionError struct {
	AttemptID string
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit attempt %s: %v", e.AttemptID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
