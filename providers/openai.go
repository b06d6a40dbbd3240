package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const openAIBaseURL = "https://api.openai.com"

var openAIModels = []ModelCapabilities{
	{Name: "dall-e-3", MediaType: MediaImage, SupportedParams: []string{"size"}, MaxWidth: 1792, MaxHeight: 1792},
	{Name: "gpt-image-1", MediaType: MediaImage, SupportedParams: []string{"size"}, MaxWidth: 1536, MaxHeight: 1536},
	{Name: "dall-e-2", MediaType: MediaImage, SupportedParams: []string{"size"}, MaxWidth: 1024, MaxHeight: 1024},
}

// OpenAIProvider implements Provider for the OpenAI Images API.
type OpenAIProvider struct {
	APIKey string
	opts   Options
}

// NewOpenAIProvider creates a new OpenAI Images client.
func NewOpenAIProvider(apiKey string, opts ...Option) *OpenAIProvider {
	return &OpenAIProvider{
		APIKey: apiKey,
		opts:   buildOptions(openAIBaseURL, Poller{}, opts),
	}
}

func (p *OpenAIProvider) ID() ProviderID { return OpenAI }

// GetName returns the name of the provider.
func (p *OpenAIProvider) GetName() string {
	return "OpenAI"
}

// RequiresImageURL returns false; reference images are not used.
func (p *OpenAIProvider) RequiresImageURL() bool {
	return false
}

// GetModels returns the list of models and their capabilities for OpenAI.
func (p *OpenAIProvider) GetModels() []ModelCapabilities {
	return openAIModels
}

type openAIAPIPayload struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type openAIAPIResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// Generate sends a synchronous request to the OpenAI Images API.
func (p *OpenAIProvider) Generate(ctx context.Context, input GenerationInput, progress ProgressFunc) (*GenerationOutput, error) {
	if input.Type != "" && input.Type != MediaImage {
		return nil, fmt.Errorf("openai: %w: %s", ErrUnsupportedMedia, input.Type)
	}
	model, ok := findModel(openAIModels, input.Model, MediaImage)
	if !ok {
		return nil, fmt.Errorf("openai: %w: %s", ErrModelNotFound, input.Model)
	}

	payload := openAIAPIPayload{
		Model:  model.Name,
		Prompt: input.Prompt,
		N:      1,
		Size:   openAISize(model.Name, input.Width, input.Height),
	}
	// gpt-image-1 always answers with base64 and rejects response_format.
	if strings.HasPrefix(model.Name, "dall-e") {
		payload.ResponseFormat = "b64_json"
	}

	logPayloadBytes, _ := json.MarshalIndent(payload, "", "  ")
	zap.S().Infof("Calling provider '%s' with model '%s'", p.GetName(), model.Name)
	zap.S().Debugf("Request payload: \n%s", string(logPayloadBytes))

	progress.report(StageSubmitted, 0, "request sent")

	resp, err := postJSON(ctx, p.opts.HTTPClient, p.opts.BaseURL+"/v1/images/generations", payload, bearer(p.APIKey))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to call external API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError("openai", resp)
	}

	var apiResp openAIAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("openai: failed to decode response: %w", err)
	}
	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("openai: no images returned in response")
	}

	first := apiResp.Data[0]
	out := &GenerationOutput{
		URL:           first.URL,
		Format:        "png",
		Model:         model.Name,
		RevisedPrompt: first.RevisedPrompt,
	}
	if first.B64JSON != "" {
		out.Bytes, err = base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("openai: failed to decode base64 image data: %w", err)
		}
	} else if first.URL == "" {
		return nil, fmt.Errorf("openai: response carried neither image data nor URL")
	}

	progress.report(StagePolling, 100, "image ready")
	return out, nil
}

// openAISize snaps the requested dimensions to a size the model accepts.
func openAISize(model string, width, height int) string {
	switch model {
	case "dall-e-2":
		return "1024x1024"
	case "gpt-image-1":
		switch {
		case width > height:
			return "1536x1024"
		case height > width:
			return "1024x1536"
		}
		return "1024x1024"
	default:
		switch {
		case width > height:
			return "1792x1024"
		case height > width:
			return "1024x1792"
		}
		return "1024x1024"
	}
}
