package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunwayImageToVideo(t *testing.T) {
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, runwayAPIVersion, r.Header.Get("X-Runway-Version"))
		switch r.URL.Path {
		case "/v1/image_to_video":
			var payload runwayAPIPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "gen4_turbo", payload.Model)
			assert.True(t, strings.HasPrefix(payload.PromptImage, "data:image/png;base64,"))
			assert.Equal(t, "1280:720", payload.Ratio)
			assert.Equal(t, 10, payload.Duration)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "task-1"})
		case "/v1/tasks/task-1":
			switch atomic.AddInt32(&polls, 1) {
			case 1:
				_ = json.NewEncoder(w).Encode(map[string]any{"id": "task-1", "status": "PENDING"})
			case 2:
				_ = json.NewEncoder(w).Encode(map[string]any{"id": "task-1", "status": "RUNNING", "progress": 0.42})
			default:
				_ = json.NewEncoder(w).Encode(map[string]any{"id": "task-1", "status": "SUCCEEDED", "output": []string{"https://cdn.runway.test/v.mp4"}})
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	p := NewRunwayProvider("rw", WithBaseURL(server.URL), WithPoller(fastPoller))
	var percents []int
	out, err := p.Generate(context.Background(), GenerationInput{
		Type:       MediaVideo,
		Prompt:     "camera pans",
		ImageBytes: []byte("\x89PNG\r\n\x1a\nrest"),
		Width:      1920,
		Height:     1080,
		Duration:   9,
	}, func(pr Progress) { percents = append(percents, pr.Percent) })
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.runway.test/v.mp4", out.URL)
	assert.Equal(t, "mp4", out.Format)
	assert.Equal(t, []int{0, 5, 42, 100}, percents)
}

func TestRunwayTextToVideoFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/text_to_video":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "task-2"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "task-2", "status": "FAILED", "failure": "Prompt rejected", "failureCode": "SAFETY.INPUT.TEXT"})
		}
	}))
	defer server.Close()

	p := NewRunwayProvider("rw", WithBaseURL(server.URL), WithPoller(fastPoller))
	_, err := p.Generate(context.Background(), GenerationInput{Type: MediaVideo, Prompt: "x"}, nil)
	var failed *JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "Prompt rejected (SAFETY.INPUT.TEXT)", failed.Reason)
}

func TestRunwayGen4NeedsImage(t *testing.T) {
	p := NewRunwayProvider("rw")
	_, err := p.Generate(context.Background(), GenerationInput{Type: MediaVideo, Prompt: "x", Model: "gen4_turbo"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}

func TestRunwayDuration(t *testing.T) {
	assert.Equal(t, 5, runwayDuration("gen4_turbo", 0))
	assert.Equal(t, 10, runwayDuration("gen4_turbo", 12))
	assert.Equal(t, 8, runwayDuration("veo3.1_fast", 8))
	assert.Equal(t, 4, runwayDuration("veo3.1_fast", 1))
}
