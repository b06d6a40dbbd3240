package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"mediastudio/generation"
	"mediastudio/providers"
	"mediastudio/store"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// statusFor maps orchestration errors to HTTP status codes.
func statusFor(err error) int {
	var (
		apiErr *providers.APIError
		jobErr *providers.JobFailedError
	)
	switch {
	case errors.Is(err, generation.ErrInvalidRequest),
		errors.Is(err, providers.ErrUnknownProvider),
		errors.Is(err, providers.ErrUnsupportedMedia),
		errors.Is(err, providers.ErrModelNotFound),
		errors.Is(err, providers.ErrUnsupportedInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generation.ErrNoProvider), errors.Is(err, generation.ErrProviderUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, providers.ErrPollTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr), errors.As(err, &jobErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
