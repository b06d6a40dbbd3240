package generation

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mediastudio/providers"
)

var (
	ErrNoProvider          = errors.New("no provider available")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Factory builds a provider client for an API key.
type Factory func(id providers.ProviderID, apiKey string) (providers.Provider, error)

// Dispatcher picks the provider that serves a request.
type Dispatcher struct {
	factory   Factory
	canUpload bool
}

// NewDispatcher returns a dispatcher building clients with factory.
// canUploadImages tells it whether reference images can be turned into
// public URLs for providers that only accept URLs.
func NewDispatcher(factory Factory, canUploadImages bool) *Dispatcher {
	return &Dispatcher{factory: factory, canUpload: canUploadImages}
}

// Select returns a client for the requested provider, or the first usable
// provider in priority order when requested is empty.
func (d *Dispatcher) Select(keys providers.Keys, t providers.MediaType, requested providers.ProviderID, hasImage bool) (providers.Provider, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", providers.ErrUnsupportedMedia, t)
	}
	if requested != "" {
		return d.explicit(keys, t, requested, hasImage)
	}

	candidates := providers.Available(keys, t)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no API key configured for %s generation", ErrNoProvider, t)
	}
	for _, info := range candidates {
		if hasImage && !info.AcceptsImage(t) {
			zap.S().Debugf("Skipping %s: no %s model takes a reference image", info.DisplayName, t)
			continue
		}
		p, err := d.factory(info.ID, keys.Get(info.ID))
		if err != nil {
			return nil, err
		}
		if hasImage && p.RequiresImageURL() && !d.canUpload {
			zap.S().Debugf("Skipping %s: reference images need an image host", info.DisplayName)
			continue
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: no configured provider accepts a reference image for %s generation", ErrNoProvider, t)
}

func (d *Dispatcher) explicit(keys providers.Keys, t providers.MediaType, id providers.ProviderID, hasImage bool) (providers.Provider, error) {
	info, ok := providers.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", providers.ErrUnknownProvider, id)
	}
	if !info.Supports(t) {
		return nil, fmt.Errorf("%w: %s does not support %s generation", ErrProviderUnavailable, info.DisplayName, t)
	}
	if !keys.Has(id) {
		return nil, fmt.Errorf("%w: no API key configured for %s", ErrProviderUnavailable, info.DisplayName)
	}
	if hasImage && !info.AcceptsImage(t) {
		return nil, fmt.Errorf("%w: %s does not accept reference images for %s generation", ErrProviderUnavailable, info.DisplayName, t)
	}
	p, err := d.factory(id, keys.Get(id))
	if err != nil {
		return nil, err
	}
	if hasImage && p.RequiresImageURL() && !d.canUpload {
		return nil, fmt.Errorf("%w: %s needs an image host for reference images", ErrProviderUnavailable, info.DisplayName)
	}
	return p, nil
}
