// Package server exposes the studio over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mediastudio/config"
	"mediastudio/generation"
	"mediastudio/metrics"
	"mediastudio/middleware"
	"mediastudio/store"
)

// maxUploadSize caps the body of a generation request, reference image included.
const maxUploadSize = 10 << 20 // 10 MB

type Server struct {
	cfg     *config.Config
	store   *store.Store
	svc     *generation.Service
	auth    *middleware.Auth
	limiter *middleware.RateLimiter
}

func NewServer(cfg *config.Config, st *store.Store, svc *generation.Service) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		svc:     svc,
		auth:    middleware.NewAuth(cfg),
		limiter: middleware.NewRateLimiter(cfg.Settings.RateLimitPerMinute),
	}
}

// StartCleanup drops idle rate limiter buckets until stop is closed.
func (s *Server) StartCleanup(stop <-chan struct{}) {
	s.limiter.StartCleanup(10*time.Minute, stop)
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Require)

			r.Get("/providers", s.handleProviders)
			r.Put("/keys/{provider}", s.handleKeySet)
			r.Delete("/keys/{provider}", s.handleKeyClear)

			r.With(s.limiter.Handler).Post("/generate", s.handleGenerate)

			r.Get("/gallery", s.handleGalleryList)
			r.Get("/gallery/{id}", s.handleGalleryGet)
			r.Delete("/gallery/{id}", s.handleGalleryDelete)
			r.Get("/gallery/{id}/thumbnail", s.handleGalleryThumbnail)
			r.Post("/gallery/{id}/edit", s.handleGalleryEdit)
		})
	})

	media := http.StripPrefix("/media/", http.FileServer(http.Dir(s.svc.MediaDir())))
	r.With(s.auth.Require).Handle("/media/*", media)

	return r
}
