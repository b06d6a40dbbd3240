package generation

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"mediastudio/config"
	"mediastudio/imagehost"
	"mediastudio/providers"
	"mediastudio/store"
)

type fakeProvider struct {
	id       providers.ProviderID
	apiKey   string
	needsURL bool
	out      providers.GenerationOutput
	err      error
	failOn   int // 1-based call that fails; zero never fails

	mu    sync.Mutex
	calls []providers.GenerationInput
}

func (f *fakeProvider) ID() providers.ProviderID { return f.id }
func (f *fakeProvider) GetName() string          { return string(f.id) }
func (f *fakeProvider) RequiresImageURL() bool   { return f.needsURL }
func (f *fakeProvider) GetModels() []providers.ModelCapabilities {
	info, _ := providers.Lookup(f.id)
	return info.Models
}

func (f *fakeProvider) Generate(ctx context.Context, input providers.GenerationInput, progress providers.ProgressFunc) (*providers.GenerationOutput, error) {
	f.mu.Lock()
	f.calls = append(f.calls, input)
	n := len(f.calls)
	f.mu.Unlock()

	if progress != nil {
		progress(providers.Progress{Stage: providers.StageSubmitted, Percent: 0})
		progress(providers.Progress{Stage: providers.StagePolling, Percent: 50})
	}
	if f.err != nil && (f.failOn == 0 || f.failOn == n) {
		return nil, f.err
	}
	out := f.out
	return &out, nil
}

// fakeFactory hands out one fakeProvider per id, created on first use.
type fakeFactory struct {
	mu        sync.Mutex
	providers map[providers.ProviderID]*fakeProvider
	template  func(id providers.ProviderID) *fakeProvider
}

func newFakeFactory(template func(id providers.ProviderID) *fakeProvider) *fakeFactory {
	if template == nil {
		template = func(id providers.ProviderID) *fakeProvider {
			return &fakeProvider{id: id, needsURL: id == providers.Replicate}
		}
	}
	return &fakeFactory{providers: map[providers.ProviderID]*fakeProvider{}, template: template}
}

func (f *fakeFactory) New(id providers.ProviderID, apiKey string) (providers.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.providers[id]
	if !ok {
		p = f.template(id)
		f.providers[id] = p
	}
	p.apiKey = apiKey
	return p, nil
}

func (f *fakeFactory) get(id providers.ProviderID) *fakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providers[id]
}

type fakeUploader struct {
	uploads int
	deleted []string
}

func (u *fakeUploader) UploadImage(ctx context.Context, imageBytes []byte, filename string) (*imagehost.UploadResponse, error) {
	u.uploads++
	resp := &imagehost.UploadResponse{Success: true, ImageID: "img-1"}
	resp.Links.Direct = "https://cdn.test/" + filename
	return resp, nil
}

func (u *fakeUploader) DeleteImage(ctx context.Context, imageID string) error {
	u.deleted = append(u.deleted, imageID)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Settings.DataDir = t.TempDir()
	cfg.Settings.UploadToImageHost = false
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config, opts ...Option) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(cfg.DatabasePath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewService(cfg, st, opts...), st
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
