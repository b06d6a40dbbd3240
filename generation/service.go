// Package generation turns a generation request into gallery items: it picks
// a provider, prepares and uploads reference images, runs the provider job,
// fetches the result and records it.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediastudio/config"
	"mediastudio/imagehost"
	"mediastudio/imageproc"
	"mediastudio/metrics"
	"mediastudio/providers"
	"mediastudio/store"
)

// KeyPrefix namespaces runtime API key overrides in the key/value store.
const KeyPrefix = "apikey."

// ErrInvalidRequest marks requests rejected before any provider is called.
var ErrInvalidRequest = errors.New("invalid request")

// Request is one generation request as submitted by the API or the CLI.
type Request struct {
	Type           providers.MediaType `json:"type"`
	Prompt         string              `json:"prompt"`
	NegativePrompt string              `json:"negative_prompt,omitempty"`
	Provider       string              `json:"provider,omitempty"`
	Model          string              `json:"model,omitempty"`
	Width          int                 `json:"width,omitempty"`
	Height         int                 `json:"height,omitempty"`
	AspectRatio    string              `json:"aspect_ratio,omitempty"`
	Seed           int64               `json:"seed,omitempty"`
	Steps          int                 `json:"steps,omitempty"`
	Duration       int                 `json:"duration,omitempty"`
	Count          int                 `json:"count,omitempty"`

	Image     []byte `json:"-"`
	ImageName string `json:"-"`
}

func (r *Request) normalize() error {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Type == "" {
		r.Type = providers.MediaImage
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown media type %q", ErrInvalidRequest, r.Type)
	}
	if r.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if r.Width < 0 || r.Height < 0 || r.Steps < 0 || r.Duration < 0 {
		return fmt.Errorf("%w: size, steps and duration must not be negative", ErrInvalidRequest)
	}
	return nil
}

// Uploader publishes a reference image and returns its public URL. Uploads
// are deleted again once the request has finished.
type Uploader interface {
	UploadImage(ctx context.Context, imageBytes []byte, filename string) (*imagehost.UploadResponse, error)
	DeleteImage(ctx context.Context, imageID string) error
}

// Service orchestrates generation jobs against the gallery.
type Service struct {
	store      *store.Store
	keys       providers.Keys
	factory    Factory
	uploader   Uploader
	httpClient *http.Client
	mediaDir   string
	saveLocal  bool
	maxBatch   int
}

// Option customizes a Service.
type Option func(*Service)

// WithFactory replaces the provider constructor.
func WithFactory(f Factory) Option {
	return func(s *Service) {
		if f != nil {
			s.factory = f
		}
	}
}

// WithUploader replaces the image host client. A nil uploader disables uploads.
func WithUploader(u Uploader) Option {
	return func(s *Service) { s.uploader = u }
}

// WithHTTPClient sets the client used to download provider results.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// NewService wires a Service from the application configuration.
func NewService(cfg *config.Config, st *store.Store, opts ...Option) *Service {
	poller := providers.Poller{
		Interval:    time.Duration(cfg.Settings.PollIntervalSeconds) * time.Second,
		MaxAttempts: cfg.Settings.MaxPollAttempts,
	}
	s := &Service{
		store: st,
		keys: providers.Keys{
			OpenAI:    cfg.APIKeys.OpenAI,
			Stability: cfg.APIKeys.Stability,
			Replicate: cfg.APIKeys.Replicate,
			Runway:    cfg.APIKeys.Runway,
		},
		factory: func(id providers.ProviderID, apiKey string) (providers.Provider, error) {
			return providers.New(id, apiKey, providers.WithPoller(poller))
		},
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		mediaDir:   cfg.MediaDir(),
		saveLocal:  cfg.Settings.SaveLocalCopy,
		maxBatch:   cfg.Settings.MaxBatchSize,
	}
	if cfg.Settings.UploadToImageHost && cfg.ImageHost.APIKey != "" {
		s.uploader = imagehost.NewNodeImageClient(cfg.ImageHost.APIKey, cfg.ImageHost.BaseURL)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MediaDir is the directory local copies are written to.
func (s *Service) MediaDir() string {
	return s.mediaDir
}

// Keys returns the configured API keys with runtime overrides applied.
func (s *Service) Keys(ctx context.Context) (providers.Keys, error) {
	stored, err := s.store.Prefixed(ctx, KeyPrefix)
	if err != nil {
		return providers.Keys{}, err
	}
	var override providers.Keys
	for k, v := range stored {
		override = override.Set(providers.ProviderID(strings.TrimPrefix(k, KeyPrefix)), v)
	}
	return s.keys.Merge(override), nil
}

// SetKey stores a runtime API key for a provider.
func (s *Service) SetKey(ctx context.Context, id providers.ProviderID, key string) error {
	if _, ok := providers.Lookup(id); !ok {
		return fmt.Errorf("%w: %q", providers.ErrUnknownProvider, id)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s: %w", id, providers.ErrAPIKeyRequired)
	}
	return s.store.Set(ctx, KeyPrefix+string(id), key)
}

// ClearKey removes a runtime API key; the configured key, if any, applies again.
func (s *Service) ClearKey(ctx context.Context, id providers.ProviderID) error {
	if _, ok := providers.Lookup(id); !ok {
		return fmt.Errorf("%w: %q", providers.ErrUnknownProvider, id)
	}
	return s.store.Delete(ctx, KeyPrefix+string(id))
}

// Generate runs a request and returns the items it added to the gallery.
// Image requests with Count > 1 run as a sequential batch.
func (s *Service) Generate(ctx context.Context, req Request, progress providers.ProgressFunc) ([]*store.MediaItem, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("load API keys: %w", err)
	}

	var requested providers.ProviderID
	if req.Provider != "" {
		if requested, err = providers.ParseProviderID(req.Provider); err != nil {
			return nil, err
		}
	}
	dispatcher := NewDispatcher(s.factory, s.uploader != nil)
	p, err := dispatcher.Select(keys, req.Type, requested, len(req.Image) > 0)
	if err != nil {
		return nil, err
	}

	input, uploadID, err := s.buildInput(ctx, p, req)
	if err != nil {
		return nil, err
	}
	if uploadID != "" {
		defer s.removeUpload(ctx, uploadID)
	}

	n := ClampBatch(req.Count, s.maxBatch)
	if req.Type == providers.MediaVideo {
		n = 1
	}
	zap.S().Infof("Generating %d %s item(s) with %s", n, req.Type, p.GetName())

	return RunBatch(ctx, n, progress, func(ctx context.Context, index int, progress providers.ProgressFunc) (*store.MediaItem, error) {
		in := input
		if in.Seed != 0 {
			in.Seed += int64(index)
		}
		return s.runOne(ctx, p, in, progress)
	})
}

// buildInput maps the request onto provider input. The returned id names the
// image host upload, if one was made.
func (s *Service) buildInput(ctx context.Context, p providers.Provider, req Request) (providers.GenerationInput, string, error) {
	input := providers.GenerationInput{
		Type:           req.Type,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		AspectRatio:    req.AspectRatio,
		Model:          req.Model,
		Seed:           req.Seed,
		Steps:          req.Steps,
		Duration:       req.Duration,
	}
	if len(req.Image) == 0 {
		return input, "", nil
	}

	prepared, err := imageproc.PrepareReference(req.Image)
	if err != nil {
		return input, "", fmt.Errorf("%w: reference image: %v", ErrInvalidRequest, err)
	}
	if !p.RequiresImageURL() {
		input.ImageBytes = prepared
		return input, "", nil
	}
	if s.uploader == nil {
		return input, "", fmt.Errorf("%w: %s needs an image host for reference images", ErrProviderUnavailable, p.GetName())
	}

	name := req.ImageName
	if name == "" {
		name = "reference.jpg"
	}
	uploaded, err := s.uploader.UploadImage(ctx, prepared, name)
	if err != nil {
		return input, "", fmt.Errorf("upload reference image: %w", err)
	}
	zap.S().Infof("Reference image uploaded to %s", uploaded.Links.Direct)
	input.ImageURL = uploaded.Links.Direct
	return input, uploaded.ImageID, nil
}

func (s *Service) removeUpload(ctx context.Context, imageID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.uploader.DeleteImage(ctx, imageID); err != nil {
		zap.S().Warnf("Failed to delete reference image %s from the image host: %v", imageID, err)
		return
	}
	zap.S().Debugf("Deleted reference image %s from the image host", imageID)
}

// runOne runs a single provider job and records the result. Provider progress
// is scaled into 0..90; download and save fill the rest.
func (s *Service) runOne(ctx context.Context, p providers.Provider, input providers.GenerationInput, progress providers.ProgressFunc) (item *store.MediaItem, err error) {
	started := time.Now()
	defer func() {
		metrics.ObserveJob(string(p.ID()), string(input.Type), started, err)
	}()

	out, err := p.Generate(ctx, input, scaled(progress, 0, 90))
	if err != nil {
		return nil, err
	}

	data := out.Bytes
	format := out.Format
	if len(data) == 0 && s.saveLocal {
		emit(progress, providers.StageDownloading, 92, "fetching result")
		var contentType string
		data, contentType, err = providers.DownloadFile(ctx, s.httpClient, out.URL)
		if err != nil {
			return nil, fmt.Errorf("%s: download result: %w", p.ID(), err)
		}
		if format == "" {
			format = providers.FormatFromContentType(contentType)
		}
	}

	item = &store.MediaItem{
		ID:       uuid.NewString(),
		Type:     string(input.Type),
		Prompt:   input.Prompt,
		Provider: string(p.ID()),
		Model:    out.Model,
		URL:      out.URL,
		Format:   format,
		JobID:    out.JobID,
	}
	if out.RevisedPrompt != "" {
		zap.S().Debugf("Provider revised prompt to %q", out.RevisedPrompt)
	}
	if input.Type == providers.MediaImage && len(data) > 0 {
		if w, h, dimErr := imageproc.Dimensions(data); dimErr == nil {
			item.Width, item.Height = w, h
		}
	}

	// Inline results have nowhere else to live, so they are always written.
	if len(data) > 0 && (s.saveLocal || out.URL == "") {
		emit(progress, providers.StageSaving, 96, "saving local copy")
		if item.LocalPath, err = s.writeMedia(item.ID, data, format); err != nil {
			return nil, err
		}
	}

	if err = s.store.AddItem(ctx, item); err != nil {
		return nil, err
	}
	emit(progress, providers.StageDone, 100, item.ID)
	zap.S().Infof("Saved %s %s from %s", item.Type, item.ID, p.GetName())
	return item, nil
}

// writeMedia saves data under the media directory and returns the file name
// relative to it.
func (s *Service) writeMedia(id string, data []byte, format string) (string, error) {
	if err := os.MkdirAll(s.mediaDir, 0o755); err != nil {
		return "", fmt.Errorf("create media directory: %w", err)
	}
	if format == "" {
		format = "png"
	}
	name := id + "." + format
	if err := os.WriteFile(filepath.Join(s.mediaDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("save media file: %w", err)
	}
	zap.S().Infof("Media saved to %s", filepath.Join(s.mediaDir, name))
	return name, nil
}

func emit(progress providers.ProgressFunc, stage providers.Stage, percent int, message string) {
	if progress != nil {
		progress(providers.Progress{Stage: stage, Percent: percent, Message: message})
	}
}

// scaled maps provider progress from 0..100 into lo..hi.
func scaled(progress providers.ProgressFunc, lo, hi int) providers.ProgressFunc {
	if progress == nil {
		return nil
	}
	return func(p providers.Progress) {
		p.Percent = lo + p.Percent*(hi-lo)/100
		progress(p)
	}
}
