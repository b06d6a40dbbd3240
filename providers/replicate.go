package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const replicateBaseURL = "https://api.replicate.com"

var replicateModels = []ModelCapabilities{
	{Name: "black-forest-labs/flux-schnell", MediaType: MediaImage, SupportedParams: []string{"seed", "aspect_ratio"}},
	{Name: "black-forest-labs/flux-kontext-pro", MediaType: MediaImage, SupportedParams: []string{"seed", "aspect_ratio", "image"}, ImageParam: "input_image"},
	{Name: "minimax/video-01", MediaType: MediaVideo, SupportedParams: []string{"image"}, ImageParam: "first_frame_image"},
	{Name: "wan-video/wan-2.2-i2v-fast", MediaType: MediaVideo, SupportedParams: []string{"seed", "image"}, ImageParam: "image"},
}

var replicateDefaultPoller = Poller{Interval: 2 * time.Second, MaxAttempts: 90}

// The last percentage printed into the prediction logs is the progress.
var replicatePercentRe = regexp.MustCompile(`(\d{1,3})%`)

// ReplicateProvider implements Provider for Replicate predictions.
type ReplicateProvider struct {
	APIKey string
	opts   Options
}

// NewReplicateProvider creates a new Replicate client.
func NewReplicateProvider(apiKey string, opts ...Option) *ReplicateProvider {
	return &ReplicateProvider{
		APIKey: apiKey,
		opts:   buildOptions(replicateBaseURL, replicateDefaultPoller, opts),
	}
}

func (p *ReplicateProvider) ID() ProviderID { return Replicate }

// GetName returns the name of the provider.
func (p *ReplicateProvider) GetName() string {
	return "Replicate"
}

// RequiresImageURL returns true as predictions take reference images by URL.
func (p *ReplicateProvider) RequiresImageURL() bool {
	return true
}

// GetModels returns the list of models and their capabilities for Replicate.
func (p *ReplicateProvider) GetModels() []ModelCapabilities {
	return replicateModels
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	Logs   string          `json:"logs"`
}

// Generate creates a prediction and polls it until it finishes.
func (p *ReplicateProvider) Generate(ctx context.Context, input GenerationInput, progress ProgressFunc) (*GenerationOutput, error) {
	mediaType := input.Type
	if mediaType == "" {
		mediaType = MediaImage
	}
	model, ok := findModel(replicateModels, input.Model, mediaType)
	if input.Model == "" && input.HasImage() {
		model, ok = findImageModel(replicateModels, mediaType)
	}
	if !ok {
		// Arbitrary models may still be run; they get the generic input shape.
		if input.Model == "" {
			return nil, fmt.Errorf("replicate: %w: %s", ErrUnsupportedMedia, mediaType)
		}
		model = ModelCapabilities{Name: input.Model, MediaType: mediaType, SupportedParams: []string{"seed", "image"}, ImageParam: "image"}
	}
	owner, name, version, err := ParseModelName(model.Name)
	if err != nil {
		return nil, fmt.Errorf("replicate: %w", err)
	}
	if len(input.ImageBytes) > 0 && input.ImageURL == "" {
		return nil, fmt.Errorf("replicate: %w: reference images must be uploaded to a public URL first", ErrUnsupportedInput)
	}

	modelInput := map[string]any{"prompt": input.Prompt}
	if input.Seed != 0 && model.Supports("seed") {
		modelInput["seed"] = input.Seed
	}
	if model.Supports("aspect_ratio") {
		ratio := input.AspectRatio
		if ratio == "" {
			ratio = simpleAspectRatio(input.Width, input.Height)
		}
		modelInput["aspect_ratio"] = ratio
	}
	if mediaType == MediaImage {
		modelInput["output_format"] = "png"
	}
	if input.ImageURL != "" {
		if !model.Supports("image") {
			return nil, fmt.Errorf("replicate: %w: model %s does not accept an input image", ErrUnsupportedInput, model.Name)
		}
		modelInput[model.ImageParam] = input.ImageURL
	}

	var (
		url     string
		payload = map[string]any{"input": modelInput}
	)
	if version != "" {
		url = p.opts.BaseURL + "/v1/predictions"
		payload["version"] = version
	} else {
		url = fmt.Sprintf("%s/v1/models/%s/%s/predictions", p.opts.BaseURL, owner, name)
	}

	logPayloadBytes, _ := json.MarshalIndent(payload, "", "  ")
	zap.S().Infof("Calling provider '%s' with model '%s'", p.GetName(), model.Name)
	zap.S().Debugf("Request payload: \n%s", string(logPayloadBytes))

	resp, err := postJSON(ctx, p.opts.HTTPClient, url, payload, bearer(p.APIKey))
	if err != nil {
		return nil, fmt.Errorf("replicate: failed to call prediction API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, newAPIError("replicate", resp)
	}

	var prediction replicatePrediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("replicate: failed to decode prediction: %w", err)
	}
	if prediction.ID == "" {
		return nil, fmt.Errorf("replicate: did not receive a prediction ID")
	}

	zap.S().Infof("Replicate: prediction submitted successfully, id: %s", prediction.ID)
	progress.report(StageSubmitted, 0, "prediction "+prediction.ID)

	final := prediction
	pollURL := p.opts.BaseURL + "/v1/predictions/" + prediction.ID
	check := func(ctx context.Context, attempt int) (JobStatus, error) {
		var current replicatePrediction
		if _, err := getJSON(ctx, p.opts.HTTPClient, pollURL, bearer(p.APIKey), &current); err != nil {
			return JobStatus{}, err
		}
		switch current.Status {
		case "succeeded":
			final = current
			return JobStatus{Done: true, Percent: 100}, nil
		case "failed", "canceled":
			return JobStatus{}, &JobFailedError{Provider: "replicate", JobID: prediction.ID, Reason: replicateErrorText(current)}
		case "starting":
			return JobStatus{Percent: 5, Message: "starting"}, nil
		default:
			if pct, ok := replicateLogPercent(current.Logs); ok {
				return JobStatus{Percent: pct, Message: current.Status}, nil
			}
			return JobStatus{Percent: estimatePercent(attempt, p.opts.Poller.MaxAttempts), Message: current.Status}, nil
		}
	}

	if prediction.Status != "succeeded" {
		if err := p.opts.Poller.Run(ctx, "replicate", prediction.ID, progress, check); err != nil {
			return nil, err
		}
	}

	outputURL, err := replicateOutputURL(final.Output)
	if err != nil {
		return nil, fmt.Errorf("replicate: %w", err)
	}

	fallback := "png"
	if mediaType == MediaVideo {
		fallback = "mp4"
	}
	progress.report(StagePolling, 100, "prediction succeeded")
	return &GenerationOutput{
		URL:    outputURL,
		Format: FormatFromURL(outputURL, fallback),
		Model:  model.Name,
		JobID:  prediction.ID,
	}, nil
}

// replicateOutputURL accepts both output shapes: a single URL or a list of URLs.
func replicateOutputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("prediction succeeded but no output was returned")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, u := range list {
			if u != "" {
				return u, nil
			}
		}
	}
	return "", fmt.Errorf("prediction output has no media URL: %s", string(raw))
}

func replicateLogPercent(logs string) (int, bool) {
	matches := replicatePercentRe.FindAllStringSubmatch(logs, -1)
	if len(matches) == 0 {
		return 0, false
	}
	pct, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil || pct > 100 {
		return 0, false
	}
	return pct, true
}

func replicateErrorText(p replicatePrediction) string {
	switch e := p.Error.(type) {
	case nil:
		if p.Status == "canceled" {
			return "prediction was canceled"
		}
		return ""
	case string:
		return e
	default:
		b, _ := json.Marshal(e)
		return strings.TrimSpace(string(b))
	}
}

// simpleAspectRatio reduces width:height to one of the common ratios.
func simpleAspectRatio(width, height int) string {
	if width <= 0 || height <= 0 || width == height {
		return "1:1"
	}
	ratio := float64(width) / float64(height)
	switch {
	case ratio >= 2.1:
		return "21:9"
	case ratio >= 1.6:
		return "16:9"
	case ratio >= 1.4:
		return "3:2"
	case ratio > 1:
		return "4:3"
	case ratio <= 0.48:
		return "9:21"
	case ratio <= 0.63:
		return "9:16"
	case ratio <= 0.72:
		return "2:3"
	default:
		return "3:4"
	}
}
