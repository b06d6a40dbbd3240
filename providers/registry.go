package providers

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ProviderID identifies a provider in configuration, dispatch and storage.
type ProviderID string

const (
	OpenAI    ProviderID = "openai"
	Stability ProviderID = "stability"
	Replicate ProviderID = "replicate"
	Runway    ProviderID = "runway"
)

// ProviderInfo is the static description of a provider.
type ProviderInfo struct {
	ID           ProviderID          `json:"id"`
	DisplayName  string              `json:"display_name"`
	KeyName      string              `json:"key_name"`
	Capabilities []MediaType         `json:"capabilities"`
	Models       []ModelCapabilities `json:"models"`
}

// Supports reports whether the provider can produce the media type.
func (p ProviderInfo) Supports(t MediaType) bool {
	for _, c := range p.Capabilities {
		if c == t {
			return true
		}
	}
	return false
}

// AcceptsImage reports whether any model of the media type takes a reference image.
func (p ProviderInfo) AcceptsImage(t MediaType) bool {
	for _, m := range p.Models {
		if m.MediaType == t && m.Supports("image") {
			return true
		}
	}
	return false
}

// registry lists every provider; listing order is not dispatch order.
var registry = []ProviderInfo{
	{ID: OpenAI, DisplayName: "OpenAI", KeyName: "OPENAI_API_KEY", Capabilities: []MediaType{MediaImage}, Models: openAIModels},
	{ID: Stability, DisplayName: "Stability AI", KeyName: "STABILITY_API_KEY", Capabilities: []MediaType{MediaImage}, Models: stabilityModels},
	{ID: Replicate, DisplayName: "Replicate", KeyName: "REPLICATE_API_TOKEN", Capabilities: []MediaType{MediaImage, MediaVideo}, Models: replicateModels},
	{ID: Runway, DisplayName: "RunwayML", KeyName: "RUNWAY_API_KEY", Capabilities: []MediaType{MediaVideo}, Models: runwayModels},
}

// dispatchOrder is the automatic selection order per media type.
var dispatchOrder = map[MediaType][]ProviderID{
	MediaImage: {OpenAI, Stability, Replicate},
	MediaVideo: {Runway, Replicate},
}

// Priority returns the automatic selection order for a media type.
func Priority(t MediaType) []ProviderID {
	return append([]ProviderID(nil), dispatchOrder[t]...)
}

// Registry returns all providers.
func Registry() []ProviderInfo {
	out := make([]ProviderInfo, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a provider by id.
func Lookup(id ProviderID) (ProviderInfo, bool) {
	for _, p := range registry {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderInfo{}, false
}

// ParseProviderID normalizes a user supplied provider name.
func ParseProviderID(name string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := Lookup(id); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return id, nil
}

// Keys holds one API key per provider.
type Keys struct {
	OpenAI    string
	Stability string
	Replicate string
	Runway    string
}

// Get returns the key for a provider.
func (k Keys) Get(id ProviderID) string {
	switch id {
	case OpenAI:
		return k.OpenAI
	case Stability:
		return k.Stability
	case Replicate:
		return k.Replicate
	case Runway:
		return k.Runway
	}
	return ""
}

// Set returns a copy of k with the key for id replaced.
func (k Keys) Set(id ProviderID, key string) Keys {
	key = strings.TrimSpace(key)
	switch id {
	case OpenAI:
		k.OpenAI = key
	case Stability:
		k.Stability = key
	case Replicate:
		k.Replicate = key
	case Runway:
		k.Runway = key
	}
	return k
}

// Has reports whether a key is configured for the provider.
func (k Keys) Has(id ProviderID) bool {
	return strings.TrimSpace(k.Get(id)) != ""
}

// Merge returns k with every non-empty key of override applied.
func (k Keys) Merge(override Keys) Keys {
	for _, p := range registry {
		if override.Has(p.ID) {
			k = k.Set(p.ID, override.Get(p.ID))
		}
	}
	return k
}

// Available lists, in priority order, the providers that have a key and
// support the media type.
func Available(keys Keys, t MediaType) []ProviderInfo {
	var out []ProviderInfo
	for _, id := range dispatchOrder[t] {
		p, ok := Lookup(id)
		if ok && keys.Has(id) && p.Supports(t) {
			out = append(out, p)
		}
	}
	return out
}

// Options customizes a provider client.
type Options struct {
	HTTPClient *http.Client
	BaseURL    string
	Poller     Poller
}

// Option customizes the client.
type Option func(*Options)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		if client != nil {
			o.HTTPClient = client
		}
	}
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(baseURL string) Option {
	return func(o *Options) {
		o.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithPoller overrides the poll interval and attempt budget; zero fields keep the provider default.
func WithPoller(p Poller) Option {
	return func(o *Options) {
		o.Poller = p
	}
}

func buildOptions(defaultBaseURL string, defaultPoller Poller, opts []Option) Options {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	o.Poller = o.Poller.withDefaults(defaultPoller)
	return o
}

// New constructs the client for a provider.
func New(id ProviderID, apiKey string, opts ...Option) (Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%s: %w", id, ErrAPIKeyRequired)
	}
	switch id {
	case OpenAI:
		return NewOpenAIProvider(apiKey, opts...), nil
	case Stability:
		return NewStabilityProvider(apiKey, opts...), nil
	case Replicate:
		return NewReplicateProvider(apiKey, opts...), nil
	case Runway:
		return NewRunwayProvider(apiKey, opts...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
}
