package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediastudio/config"
	"mediastudio/generation"
	"mediastudio/server"
	"mediastudio/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(cfg *config.Config, st *store.Store, svc *generation.Service) error {
				if addr != "" {
					cfg.Settings.ListenAddr = addr
				}
				return serve(cmd.Context(), cfg, st, svc)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides LISTEN_ADDR)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, st *store.Store, svc *generation.Service) error {
	if parent == nil {
		parent = context.Background()
	}
	log := zap.S()

	if err := os.MkdirAll(cfg.Settings.DataDir, 0o755); err != nil {
		return fmt.Errorf("ensure data directory: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another mediastudio server is already using %s", cfg.Settings.DataDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warnf("Failed to release lock: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(cfg, st, svc)
	srv.StartCleanup(ctx.Done())

	httpServer := &http.Server{
		Addr:              cfg.Settings.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Settings.WebPassword == "" {
		log.Warn("WEB_PASSWORD is not set; the API is open to anyone who can reach it.")
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s...", cfg.Settings.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("could not start server: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
