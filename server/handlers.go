package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mediastudio/generation"
	"mediastudio/imageproc"
	"mediastudio/providers"
	"mediastudio/store"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		body.Password = r.FormValue("password")
	}

	ok, err := s.auth.Login(w, r, body.Password)
	if err != nil {
		zap.S().Errorf("Could not save session: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not save session")
		return
	}
	if !ok {
		zap.S().Warnf("Failed login attempt from %s", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Invalid password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(w, r); err != nil {
		zap.S().Errorf("Could not clear session: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

type providerView struct {
	providers.ProviderInfo
	Configured bool `json:"configured"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	keys, err := s.svc.Keys(r.Context())
	if err != nil {
		zap.S().Errorf("Could not load API keys: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not load API keys")
		return
	}
	registry := providers.Registry()
	out := make([]providerView, 0, len(registry))
	for _, info := range registry {
		out = append(out, providerView{ProviderInfo: info, Configured: keys.Has(info.ID)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleKeySet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.providerParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.svc.SetKey(r.Context(), id, body.Key); err != nil {
		if errors.Is(err, providers.ErrAPIKeyRequired) {
			writeError(w, http.StatusBadRequest, "API key must not be empty")
			return
		}
		zap.S().Errorf("Could not store API key for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Could not store API key")
		return
	}
	zap.S().Infof("API key for %s updated", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleKeyClear(w http.ResponseWriter, r *http.Request) {
	id, ok := s.providerParam(w, r)
	if !ok {
		return
	}
	if err := s.svc.ClearKey(r.Context(), id); err != nil {
		zap.S().Errorf("Could not clear API key for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Could not clear API key")
		return
	}
	zap.S().Infof("API key override for %s cleared", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) providerParam(w http.ResponseWriter, r *http.Request) (providers.ProviderID, bool) {
	id, err := providers.ParseProviderID(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, generation.UserMessage(err))
		return "", false
	}
	return id, true
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	req, err := parseGenerateRequest(r)
	if err != nil {
		zap.S().Warnf("Rejected generation request: %v", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d MB", maxUploadSize>>20))
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	zap.S().Infof("Received generation request. Type: %s, Provider: '%s', Model: '%s', Count: %d, Image: %d bytes",
		req.Type, req.Provider, req.Model, req.Count, len(req.Image))

	items, err := s.svc.Generate(r.Context(), req, func(p providers.Progress) {
		zap.S().Debugf("Generation progress: %s %d%% %s", p.Stage, p.Percent, p.Message)
	})
	if err != nil {
		zap.S().Errorf("Generation failed: %v", err)
		body := map[string]any{"error": generation.UserMessage(err)}
		if len(items) > 0 {
			body["items"] = items
		}
		writeJSON(w, statusFor(err), body)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"items": items})
}

// formInt reads an optional integer form field; an empty field is zero.
func formInt(r *http.Request, name string, bitSize int) (int64, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%s must be a whole number, got %q", name, v)
	}
	return n, nil
}

// parseGenerateRequest accepts JSON, with an optional data URL image, or a
// multipart form with an optional "image" file.
func parseGenerateRequest(r *http.Request) (generation.Request, error) {
	var req generation.Request
	if isJSON(r) {
		var body struct {
			generation.Request
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return req, fmt.Errorf("invalid request body: %w", err)
		}
		req = body.Request
		if body.Image != "" {
			data, _, err := providers.DecodeDataURL(body.Image)
			if err != nil {
				return req, fmt.Errorf("invalid image: %w", err)
			}
			req.Image = data
		}
		return req, nil
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return req, fmt.Errorf("could not parse multipart form: %w", err)
	}
	req.Type = providers.MediaType(r.FormValue("type"))
	req.Prompt = r.FormValue("prompt")
	req.NegativePrompt = r.FormValue("negative_prompt")
	req.Provider = r.FormValue("provider")
	req.Model = r.FormValue("model")
	req.AspectRatio = r.FormValue("aspect_ratio")
	for name, dst := range map[string]*int{
		"width":    &req.Width,
		"height":   &req.Height,
		"steps":    &req.Steps,
		"duration": &req.Duration,
		"count":    &req.Count,
	} {
		n, err := formInt(r, name, strconv.IntSize)
		if err != nil {
			return req, err
		}
		*dst = int(n)
	}
	seed, err := formInt(r, "seed", 64)
	if err != nil {
		return req, err
	}
	req.Seed = seed

	// The image is optional.
	file, header, err := r.FormFile("image")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		return req, fmt.Errorf("could not retrieve image from form: %w", err)
	}
	if err == nil {
		defer file.Close()
		if req.Image, err = io.ReadAll(file); err != nil {
			return req, fmt.Errorf("could not read image file: %w", err)
		}
		req.ImageName = header.Filename
	}
	return req, nil
}

func (s *Server) handleGalleryList(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{Type: r.URL.Query().Get("type")}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	items, err := s.store.ListItems(r.Context(), filter)
	if err != nil {
		zap.S().Errorf("Could not list gallery: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not list gallery")
		return
	}
	if items == nil {
		items = []*store.MediaItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGalleryGet(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), generation.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleGalleryDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), generation.UserMessage(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGalleryThumbnail(w http.ResponseWriter, r *http.Request) {
	size := uint(256)
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil || n == 0 || n > 1024 {
			writeError(w, http.StatusBadRequest, "size must be between 1 and 1024")
			return
		}
		size = uint(n)
	}
	thumb, err := s.svc.Thumbnail(r.Context(), chi.URLParam(r, "id"), size)
	if err != nil {
		writeError(w, statusFor(err), generation.UserMessage(err))
		return
	}
	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(thumb)
}

func (s *Server) handleGalleryEdit(w http.ResponseWriter, r *http.Request) {
	var adj imageproc.Adjustments
	if err := json.NewDecoder(r.Body).Decode(&adj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	item, err := s.svc.Edit(r.Context(), chi.URLParam(r, "id"), adj)
	if err != nil {
		zap.S().Warnf("Edit of %s failed: %v", chi.URLParam(r, "id"), err)
		writeError(w, statusFor(err), generation.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.EqualFold(mediaType, "application/json")
}
