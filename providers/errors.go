package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrAPIKeyRequired   = errors.New("API key is required")
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrUnsupportedMedia = errors.New("media type not supported by provider")
	ErrModelNotFound    = errors.New("model not supported by provider")
	ErrUnsupportedInput = errors.New("input not supported by model")
	ErrPollTimeout      = errors.New("polling timed out")
)

// APIError is a non-2xx response from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Unauthorized reports whether the provider rejected the API key.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// JobFailedError is an asynchronous job that reached a terminal failure state.
type JobFailedError struct {
	Provider string
	JobID    string
	Reason   string
}

func (e *JobFailedError) Error() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = "no reason given"
	}
	return fmt.Sprintf("%s: job %s failed: %s", e.Provider, e.JobID, reason)
}
