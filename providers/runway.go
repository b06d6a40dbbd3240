package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	runwayBaseURL    = "https://api.dev.runwayml.com"
	runwayAPIVersion = "2024-11-06"
)

var runwayModels = []ModelCapabilities{
	{Name: "gen4_turbo", MediaType: MediaVideo, SupportedParams: []string{"seed", "duration", "image"}, MaxWidth: 1584, MaxHeight: 1104},
	{Name: "veo3.1_fast", MediaType: MediaVideo, SupportedParams: []string{"seed", "duration", "image"}, MaxWidth: 1280, MaxHeight: 1280},
}

var runwayDefaultPoller = Poller{Interval: 5 * time.Second, MaxAttempts: 60}

// RunwayProvider implements Provider for the RunwayML video API.
type RunwayProvider struct {
	APIKey string
	opts   Options
}

// NewRunwayProvider creates a new RunwayML client.
func NewRunwayProvider(apiKey string, opts ...Option) *RunwayProvider {
	return &RunwayProvider{
		APIKey: apiKey,
		opts:   buildOptions(runwayBaseURL, runwayDefaultPoller, opts),
	}
}

func (p *RunwayProvider) ID() ProviderID { return Runway }

// GetName returns the name of the provider.
func (p *RunwayProvider) GetName() string {
	return "RunwayML"
}

// RequiresImageURL returns false; images are sent inline as data URIs.
func (p *RunwayProvider) RequiresImageURL() bool {
	return false
}

// GetModels returns the list of models and their capabilities for RunwayML.
func (p *RunwayProvider) GetModels() []ModelCapabilities {
	return runwayModels
}

type runwayAPIPayload struct {
	Model       string `json:"model"`
	PromptText  string `json:"promptText,omitempty"`
	PromptImage string `json:"promptImage,omitempty"`
	Ratio       string `json:"ratio"`
	Duration    int    `json:"duration"`
	Seed        int64  `json:"seed,omitempty"`
}

type runwayTask struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Progress    float64  `json:"progress"`
	Output      []string `json:"output"`
	Failure     string   `json:"failure"`
	FailureCode string   `json:"failureCode"`
}

func (p *RunwayProvider) header() http.Header {
	h := bearer(p.APIKey)
	h.Set("X-Runway-Version", runwayAPIVersion)
	return h
}

// Generate starts an image-to-video task when a reference image is given,
// text-to-video otherwise, and polls the task until it finishes.
func (p *RunwayProvider) Generate(ctx context.Context, input GenerationInput, progress ProgressFunc) (*GenerationOutput, error) {
	if input.Type != "" && input.Type != MediaVideo {
		return nil, fmt.Errorf("runway: %w: %s", ErrUnsupportedMedia, input.Type)
	}
	modelName := input.Model
	if modelName == "" {
		modelName = "veo3.1_fast"
		if input.HasImage() {
			modelName = "gen4_turbo"
		}
	}
	model, ok := findModel(runwayModels, modelName, MediaVideo)
	if !ok {
		return nil, fmt.Errorf("runway: %w: %s", ErrModelNotFound, input.Model)
	}

	payload := runwayAPIPayload{
		Model:      model.Name,
		PromptText: input.Prompt,
		Ratio:      runwayRatio(model.Name, input.Width, input.Height),
		Duration:   runwayDuration(model.Name, input.Duration),
		Seed:       input.Seed,
	}
	endpoint := "/v1/text_to_video"
	if input.HasImage() {
		endpoint = "/v1/image_to_video"
		payload.PromptImage = input.ImageURL
		if payload.PromptImage == "" {
			payload.PromptImage = EncodeDataURL(input.ImageBytes)
		}
	} else if model.Name == "gen4_turbo" {
		return nil, fmt.Errorf("runway: %w: model %s requires a prompt image", ErrUnsupportedInput, model.Name)
	}

	logPayload := payload
	if strings.HasPrefix(logPayload.PromptImage, "data:") {
		logPayload.PromptImage = "<image data omitted>"
	}
	logPayloadBytes, _ := json.MarshalIndent(logPayload, "", "  ")
	zap.S().Infof("Calling provider '%s' with model '%s'", p.GetName(), model.Name)
	zap.S().Debugf("Request payload: \n%s", string(logPayloadBytes))

	resp, err := postJSON(ctx, p.opts.HTTPClient, p.opts.BaseURL+endpoint, payload, p.header())
	if err != nil {
		return nil, fmt.Errorf("runway: failed to call generation API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, newAPIError("runway", resp)
	}

	var created runwayTask
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("runway: failed to decode task response: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("runway: did not receive a task ID")
	}

	zap.S().Infof("Runway: task submitted successfully, task_id: %s", created.ID)
	progress.report(StageSubmitted, 0, "task "+created.ID)

	var final runwayTask
	taskURL := p.opts.BaseURL + "/v1/tasks/" + created.ID
	check := func(ctx context.Context, attempt int) (JobStatus, error) {
		var task runwayTask
		if _, err := getJSON(ctx, p.opts.HTTPClient, taskURL, p.header(), &task); err != nil {
			return JobStatus{}, err
		}
		switch task.Status {
		case "SUCCEEDED":
			final = task
			return JobStatus{Done: true, Percent: 100}, nil
		case "FAILED", "CANCELLED":
			reason := task.Failure
			if task.FailureCode != "" {
				reason = fmt.Sprintf("%s (%s)", reason, task.FailureCode)
			}
			if task.Status == "CANCELLED" && reason == "" {
				reason = "task was cancelled"
			}
			return JobStatus{}, &JobFailedError{Provider: "runway", JobID: created.ID, Reason: reason}
		case "PENDING", "THROTTLED":
			return JobStatus{Percent: 5, Message: strings.ToLower(task.Status)}, nil
		default:
			return JobStatus{Percent: int(task.Progress * 100), Message: strings.ToLower(task.Status)}, nil
		}
	}

	if err := p.opts.Poller.Run(ctx, "runway", created.ID, progress, check); err != nil {
		return nil, err
	}
	if len(final.Output) == 0 {
		return nil, fmt.Errorf("runway: task succeeded but no video URL was returned")
	}

	progress.report(StagePolling, 100, "task succeeded")
	return &GenerationOutput{
		URL:    final.Output[0],
		Format: FormatFromURL(final.Output[0], "mp4"),
		Model:  model.Name,
		JobID:  created.ID,
	}, nil
}

func runwayRatio(model string, width, height int) string {
	switch {
	case width > height:
		return "1280:720"
	case height > width:
		return "720:1280"
	case model == "gen4_turbo":
		return "960:960"
	}
	return "1280:720"
}

// runwayDuration picks the nearest clip length the model accepts.
func runwayDuration(model string, seconds int) int {
	allowed := []int{5, 10}
	if strings.HasPrefix(model, "veo") {
		allowed = []int{4, 6, 8}
	}
	if seconds <= 0 {
		return allowed[0]
	}
	best := allowed[0]
	for _, a := range allowed {
		if abs(a-seconds) < abs(best-seconds) {
			best = a
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
