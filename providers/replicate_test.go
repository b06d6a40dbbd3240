package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReplicateServer(t *testing.T, statuses []map[string]any) (*httptest.Server, *int32) {
	t.Helper()
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer r8_test", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/models/black-forest-labs/flux-schnell/predictions":
			var payload map[string]map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "a lighthouse", payload["input"]["prompt"])
			assert.Equal(t, "16:9", payload["input"]["aspect_ratio"])
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "pred-1", "status": "starting"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/predictions/pred-1":
			n := atomic.AddInt32(&polls, 1)
			idx := int(n) - 1
			if idx >= len(statuses) {
				idx = len(statuses) - 1
			}
			_ = json.NewEncoder(w).Encode(statuses[idx])
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	return server, &polls
}

func TestReplicateGeneratePollsUntilSucceeded(t *testing.T) {
	server, polls := newReplicateServer(t, []map[string]any{
		{"id": "pred-1", "status": "starting"},
		{"id": "pred-1", "status": "processing", "logs": "  10%|#   \n  60%|######   "},
		{"id": "pred-1", "status": "succeeded", "output": []string{"https://replicate.delivery/out-0.webp"}},
	})
	defer server.Close()

	p := NewReplicateProvider("r8_test", WithBaseURL(server.URL), WithPoller(fastPoller))
	var percents []int
	out, err := p.Generate(context.Background(), GenerationInput{Prompt: "a lighthouse", Width: 1920, Height: 1080},
		func(pr Progress) { percents = append(percents, pr.Percent) })
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(polls))
	assert.Equal(t, "https://replicate.delivery/out-0.webp", out.URL)
	assert.Equal(t, "webp", out.Format)
	assert.Equal(t, "pred-1", out.JobID)
	assert.Equal(t, []int{0, 5, 60, 100}, percents)
}

func TestReplicateGenerateFailed(t *testing.T) {
	server, _ := newReplicateServer(t, []map[string]any{
		{"id": "pred-1", "status": "failed", "error": "CUDA out of memory"},
	})
	defer server.Close()

	p := NewReplicateProvider("r8_test", WithBaseURL(server.URL), WithPoller(fastPoller))
	_, err := p.Generate(context.Background(), GenerationInput{Prompt: "a lighthouse", Width: 1920, Height: 1080}, nil)
	var failed *JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "CUDA out of memory", failed.Reason)
	assert.Equal(t, "pred-1", failed.JobID)
}

func TestReplicateGenerateTimeout(t *testing.T) {
	server, polls := newReplicateServer(t, []map[string]any{
		{"id": "pred-1", "status": "processing"},
	})
	defer server.Close()

	p := NewReplicateProvider("r8_test", WithBaseURL(server.URL), WithPoller(fastPoller))
	_, err := p.Generate(context.Background(), GenerationInput{Prompt: "a lighthouse", Width: 1920, Height: 1080}, nil)
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, int32(fastPoller.MaxAttempts), atomic.LoadInt32(polls))
}

func TestReplicateRequiresImageURL(t *testing.T) {
	p := NewReplicateProvider("r8_test")
	assert.True(t, p.RequiresImageURL())
	_, err := p.Generate(context.Background(), GenerationInput{Prompt: "x", Model: "black-forest-labs/flux-kontext-pro", ImageBytes: []byte("ref")}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedInput)

	_, err = p.Generate(context.Background(), GenerationInput{Prompt: "x", Model: "black-forest-labs/flux-schnell", ImageURL: "https://cdn.test/ref.png"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}

func TestReplicateDefaultsToImageModelForReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models/black-forest-labs/flux-kontext-pro/predictions", r.URL.Path)
		var payload map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "https://cdn.test/ref.png", payload["input"]["input_image"])
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "pred-3", "status": "succeeded", "output": "https://replicate.delivery/edit.png"})
	}))
	defer server.Close()

	p := NewReplicateProvider("r8_test", WithBaseURL(server.URL), WithPoller(fastPoller))
	out, err := p.Generate(context.Background(), GenerationInput{Prompt: "make it night", ImageURL: "https://cdn.test/ref.png"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "black-forest-labs/flux-kontext-pro", out.Model)
}

func TestReplicateProgressWithoutLogPercent(t *testing.T) {
	server, _ := newReplicateServer(t, []map[string]any{
		{"id": "pred-1", "status": "processing", "logs": "loading weights"},
		{"id": "pred-1", "status": "processing", "logs": "sampling progress 45%"},
		{"id": "pred-1", "status": "succeeded", "output": "https://replicate.delivery/out.png"},
	})
	defer server.Close()

	p := NewReplicateProvider("r8_test", WithBaseURL(server.URL), WithPoller(fastPoller))
	var percents []int
	_, err := p.Generate(context.Background(), GenerationInput{Prompt: "a lighthouse", Width: 1920, Height: 1080},
		func(pr Progress) { percents = append(percents, pr.Percent) })
	require.NoError(t, err)
	assert.Equal(t, []int{0, estimatePercent(1, fastPoller.MaxAttempts), 45, 100}, percents)
}

func TestReplicateUndecodablePollEndsPolling(t *testing.T) {
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "pred-1", "status": "starting"})
			return
		}
		atomic.AddInt32(&polls, 1)
		_, _ = w.Write([]byte("<html>gateway</html>"))
	}))
	defer server.Close()

	p := NewReplicateProvider("r8_test", WithBaseURL(server.URL), WithPoller(fastPoller))
	_, err := p.Generate(context.Background(), GenerationInput{Prompt: "a lighthouse"}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, int32(1), atomic.LoadInt32(&polls))
}

func TestReplicateVersionedModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/predictions", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "abc123", payload["version"])
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "pred-2", "status": "succeeded", "output": "https://replicate.delivery/v.mp4"})
	}))
	defer server.Close()

	p := NewReplicateProvider("r8_test", WithBaseURL(server.URL), WithPoller(fastPoller))
	out, err := p.Generate(context.Background(), GenerationInput{Type: MediaVideo, Prompt: "waves", Model: "someone/video-model:abc123"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mp4", out.Format)
}

func TestReplicateOutputURL(t *testing.T) {
	u, err := replicateOutputURL(json.RawMessage(`"https://x.test/a.png"`))
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/a.png", u)

	u, err = replicateOutputURL(json.RawMessage(`["", "https://x.test/b.png"]`))
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/b.png", u)

	_, err = replicateOutputURL(json.RawMessage(`null`))
	assert.Error(t, err)
}
