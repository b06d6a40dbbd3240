package generation

import (
	"context"
	"errors"
	"fmt"

	"mediastudio/providers"
	"mediastudio/store"
)

// UserMessage turns an orchestration error into text fit for a notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		apiErr *providers.APIError
		jobErr *providers.JobFailedError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return "Generation was cancelled."
	case errors.Is(err, ErrNoProvider):
		return "No API key is configured for this kind of generation. Add a provider key in settings and try again."
	case errors.Is(err, ErrProviderUnavailable):
		return "The selected provider cannot handle this request. Check its API key in settings or pick another provider."
	case errors.Is(err, providers.ErrUnknownProvider):
		return "Unknown provider. Pick one of openai, stability, replicate or runway."
	case errors.As(err, &apiErr) && apiErr.Unauthorized():
		return fmt.Sprintf("%s rejected the API key (status %d). Please re-check your API key in settings.", displayName(apiErr.Provider), apiErr.StatusCode)
	case errors.As(err, &apiErr):
		return fmt.Sprintf("%s returned an error (status %d): %s", displayName(apiErr.Provider), apiErr.StatusCode, apiErr.Message)
	case errors.As(err, &jobErr):
		reason := jobErr.Reason
		if reason == "" {
			reason = "no reason given"
		}
		return fmt.Sprintf("%s could not finish the job: %s", displayName(jobErr.Provider), reason)
	case errors.Is(err, providers.ErrPollTimeout), errors.Is(err, context.DeadlineExceeded):
		return "The generation took too long to finish. Please try again later."
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, providers.ErrModelNotFound), errors.Is(err, providers.ErrUnsupportedMedia):
		return err.Error()
	case errors.Is(err, providers.ErrUnsupportedInput):
		return "The chosen model cannot use this input: " + err.Error()
	case errors.Is(err, store.ErrNotFound):
		return "That item no longer exists."
	}
	return "Generation failed: " + err.Error()
}

func displayName(provider string) string {
	if info, ok := providers.Lookup(providers.ProviderID(provider)); ok {
		return info.DisplayName
	}
	return provider
}
