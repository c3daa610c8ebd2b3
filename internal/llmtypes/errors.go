package llmtypes

import (
	"errors"
	"fmt"
)

// RateLimitError marks a provider failure caused by throttling or quota
// exhaustion. Adapters wrap provider errors in it; callers classify with
// IsRateLimit instead of inspecting messages.
type RateLimitError struct {
	Provider   string
	StatusCode int
	err        error
}

// NewRateLimitError wraps err as a rate-limit-class failure.
func NewRateLimitError(provider string, statusCode int, err error) error {
	return &RateLimitError{Provider: provider, StatusCode: statusCode, err: err}
}

func (e *RateLimitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: rate limited (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: rate limited (status %d): %v", e.Provider, e.StatusCode, e.err)
}

func (e *RateLimitError) Unwrap() error {
	return e.err
}

// IsRateLimit reports whether err is, or wraps, a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// ClassifyStatus wraps err as a RateLimitError when statusCode is 429.
// Other errors pass through unchanged.
func ClassifyStatus(provider string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	if statusCode == 429 {
		return NewRateLimitError(provider, statusCode, err)
	}
	return err
}
