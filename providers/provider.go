package providers

import "context"

// MediaType is the kind of media a generation produces.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Valid reports whether t names a known media type.
func (t MediaType) Valid() bool {
	return t == MediaImage || t == MediaVideo
}

// ModelCapabilities defines the specific capabilities of an AI model.
type ModelCapabilities struct {
	Name            string    `json:"name"`
	MediaType       MediaType `json:"media_type"`
	SupportedParams []string  `json:"supported_params"`
	MaxWidth        int       `json:"max_width,omitempty"`
	MaxHeight       int       `json:"max_height,omitempty"`
	// ImageParam is the provider-side input field carrying the reference image.
	ImageParam string `json:"-"`
}

// Supports reports whether the model accepts the named parameter.
func (m ModelCapabilities) Supports(param string) bool {
	for _, p := range m.SupportedParams {
		if p == param {
			return true
		}
	}
	return false
}

// GenerationInput defines the standardized input for all AI providers.
type GenerationInput struct {
	Type           MediaType
	Prompt         string
	NegativePrompt string
	ImageBytes     []byte // User-provided reference image
	ImageURL       string // Public URL of the reference image, for providers that need one
	Width          int
	Height         int
	AspectRatio    string
	Model          string
	Seed           int64
	Steps          int
	Duration       int // Video length in seconds
}

// HasImage reports whether the input carries a reference image in any form.
func (in GenerationInput) HasImage() bool {
	return len(in.ImageBytes) > 0 || in.ImageURL != ""
}

// GenerationOutput defines the standardized output from all AI providers.
type GenerationOutput struct {
	Bytes         []byte // Inline media, when the provider returns it directly
	URL           string // Remote media URL, when the provider hosts the result
	Format        string // png, jpeg, webp, mp4
	Model         string
	JobID         string
	RevisedPrompt string
}

// Stage names a step of a generation job.
type Stage string

const (
	StageSubmitted   Stage = "submitted"
	StagePolling     Stage = "polling"
	StageDownloading Stage = "downloading"
	StageSaving      Stage = "saving"
	StageDone        Stage = "done"
)

// Progress is reported while a job runs. Percent is in [0, 100].
type Progress struct {
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

func (f ProgressFunc) report(stage Stage, percent int, message string) {
	if f == nil {
		return
	}
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	f(Progress{Stage: stage, Percent: percent, Message: message})
}

// Provider is the interface that all generation providers implement.
type Provider interface {
	// ID returns the stable identifier used in configuration and dispatch.
	ID() ProviderID
	// GetName returns the display name of the provider.
	GetName() string
	// GetModels returns the models supported by the provider and their capabilities.
	GetModels() []ModelCapabilities
	// RequiresImageURL returns true if the provider needs a public image URL
	// instead of image bytes for reference images.
	RequiresImageURL() bool
	// Generate submits a job and blocks until it succeeds, fails or times out.
	Generate(ctx context.Context, input GenerationInput, progress ProgressFunc) (*GenerationOutput, error)
}

// findModel looks up a model by name; an empty name selects the first model of the media type.
func findModel(models []ModelCapabilities, name string, mediaType MediaType) (ModelCapabilities, bool) {
	for _, m := range models {
		if name == "" && m.MediaType == mediaType {
			return m, true
		}
		if name != "" && m.Name == name {
			return m, true
		}
	}
	return ModelCapabilities{}, false
}

// findImageModel returns the first model of the media type that takes a reference image.
func findImageModel(models []ModelCapabilities, mediaType MediaType) (ModelCapabilities, bool) {
	for _, m := range models {
		if m.MediaType == mediaType && m.Supports("image") {
			return m, true
		}
	}
	return ModelCapabilities{}, false
}
