package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const stabilityBaseURL = "https://api.stability.ai"

var stabilityModels = []ModelCapabilities{
	{Name: "stable-image-core", MediaType: MediaImage, SupportedParams: []string{"seed", "negative_prompt", "aspect_ratio"}, MaxWidth: 1536, MaxHeight: 1536},
	{Name: "stable-image-ultra", MediaType: MediaImage, SupportedParams: []string{"seed", "negative_prompt", "aspect_ratio", "image"}, MaxWidth: 1536, MaxHeight: 1536},
	{Name: "sd3.5-large", MediaType: MediaImage, SupportedParams: []string{"seed", "negative_prompt", "aspect_ratio", "image"}, MaxWidth: 1536, MaxHeight: 1536},
}

var stabilityAspectRatios = []string{"21:9", "16:9", "3:2", "5:4", "1:1", "4:5", "2:3", "9:16", "9:21"}

// StabilityProvider implements Provider for the Stability AI stable-image API.
type StabilityProvider struct {
	APIKey string
	opts   Options
}

// NewStabilityProvider creates a new Stability AI client.
func NewStabilityProvider(apiKey string, opts ...Option) *StabilityProvider {
	return &StabilityProvider{
		APIKey: apiKey,
		opts:   buildOptions(stabilityBaseURL, Poller{}, opts),
	}
}

func (p *StabilityProvider) ID() ProviderID { return Stability }

// GetName returns the name of the provider.
func (p *StabilityProvider) GetName() string {
	return "Stability AI"
}

// RequiresImageURL returns false as the image is uploaded in the form body.
func (p *StabilityProvider) RequiresImageURL() bool {
	return false
}

// GetModels returns the list of models and their capabilities for Stability AI.
func (p *StabilityProvider) GetModels() []ModelCapabilities {
	return stabilityModels
}

type stabilityImageResponse struct {
	Image        string `json:"image"`
	FinishReason string `json:"finish_reason"`
	Seed         int64  `json:"seed"`
}

// Generate posts a multipart form to the stable-image endpoint for the model.
func (p *StabilityProvider) Generate(ctx context.Context, input GenerationInput, progress ProgressFunc) (*GenerationOutput, error) {
	if input.Type != "" && input.Type != MediaImage {
		return nil, fmt.Errorf("stability: %w: %s", ErrUnsupportedMedia, input.Type)
	}
	modelName := input.Model
	if modelName == "" && len(input.ImageBytes) > 0 {
		modelName = "sd3.5-large"
	}
	model, ok := findModel(stabilityModels, modelName, MediaImage)
	if !ok {
		return nil, fmt.Errorf("stability: %w: %s", ErrModelNotFound, input.Model)
	}
	if len(input.ImageBytes) > 0 && !model.Supports("image") {
		return nil, fmt.Errorf("stability: %w: model %s does not accept an input image", ErrUnsupportedInput, model.Name)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := map[string]string{
		"prompt":        input.Prompt,
		"output_format": "png",
	}
	if input.NegativePrompt != "" {
		fields["negative_prompt"] = input.NegativePrompt
	}
	if input.Seed != 0 {
		fields["seed"] = strconv.FormatInt(input.Seed, 10)
	}
	if len(input.ImageBytes) > 0 {
		fields["strength"] = "0.7"
		if model.Name == "sd3.5-large" {
			fields["mode"] = "image-to-image"
		}
	} else {
		// aspect_ratio is rejected in image-to-image mode.
		fields["aspect_ratio"] = stabilityAspectRatio(input.AspectRatio, input.Width, input.Height)
	}
	if strings.HasPrefix(model.Name, "sd3") {
		fields["model"] = model.Name
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("stability: failed to write form field %s: %w", k, err)
		}
	}
	if len(input.ImageBytes) > 0 {
		part, err := writer.CreateFormFile("image", "reference.png")
		if err != nil {
			return nil, fmt.Errorf("stability: failed to create form file: %w", err)
		}
		if _, err := part.Write(input.ImageBytes); err != nil {
			return nil, fmt.Errorf("stability: failed to copy image bytes to form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("stability: failed to finish form: %w", err)
	}

	zap.S().Infof("Calling provider '%s' with model '%s'", p.GetName(), model.Name)
	zap.S().Debugf("Request fields: %v (image attached: %t)", fields, len(input.ImageBytes) > 0)

	url := p.opts.BaseURL + "/v2beta/stable-image/generate/" + stabilityEndpoint(model.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("stability: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Accept", "application/json")

	progress.report(StageSubmitted, 0, "request sent")

	resp, err := p.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stability: failed to call external API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError("stability", resp)
	}

	var imageResp stabilityImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&imageResp); err != nil {
		return nil, fmt.Errorf("stability: failed to decode json response body: %w", err)
	}
	if imageResp.FinishReason == "CONTENT_FILTERED" {
		return nil, &JobFailedError{Provider: "stability", Reason: "the result was blocked by the content filter"}
	}

	imageData, err := base64.StdEncoding.DecodeString(imageResp.Image)
	if err != nil {
		return nil, fmt.Errorf("stability: failed to decode base64 image data: %w", err)
	}
	if len(imageData) == 0 {
		return nil, fmt.Errorf("stability: response carried no image data")
	}

	progress.report(StagePolling, 100, "image ready")
	return &GenerationOutput{
		Bytes:  imageData,
		Format: "png",
		Model:  model.Name,
	}, nil
}

func stabilityEndpoint(model string) string {
	switch model {
	case "stable-image-ultra":
		return "ultra"
	case "stable-image-core":
		return "core"
	default:
		return "sd3"
	}
}

// stabilityAspectRatio returns the requested ratio if valid, otherwise the
// supported ratio closest to width:height.
func stabilityAspectRatio(requested string, width, height int) string {
	for _, r := range stabilityAspectRatios {
		if r == requested {
			return r
		}
	}
	if width <= 0 || height <= 0 {
		return "1:1"
	}
	target := float64(width) / float64(height)
	best, bestDiff := "1:1", math.MaxFloat64
	for _, r := range stabilityAspectRatios {
		var w, h float64
		fmt.Sscanf(r, "%g:%g", &w, &h)
		if diff := math.Abs(w/h - target); diff < bestDiff {
			best, bestDiff = r, diff
		}
	}
	return best
}
