package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/tendant/assetstore/pkg/assetstore/api"
	"github.com/tendant/assetstore/pkg/assetstore/config"
)

// NewServeCommand creates the serve command
func NewServeCommand(flags *globalFlags) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve assets over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			rt, err := cfg.BuildService(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			slog.SetDefault(rt.Logger)

			httpServer := &http.Server{
				Addr:              fmt.Sprintf(":%s", cfg.Port),
				Handler:           newRouter(rt, cfg),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return runServer(cmd.Context(), httpServer, rt.Logger)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (default: $ASSETSTORE_PORT or 8080)")

	return cmd
}

func newRouter(rt *config.Runtime, cfg *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	stack := []api.Middleware{
		api.RequestIDMiddleware,
		api.LoggingMiddleware(rt.Logger),
		api.RecoveryMiddleware,
		middleware.RealIP,
		api.RequestSizeLimitMiddleware(cfg.MaxUploadBytes),
	}
	r.Use(func(next http.Handler) http.Handler {
		return api.Chain(next, stack...)
	})

	// CORS for development
	if cfg.Environment == "development" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, If-None-Match")

				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		})
	}

	r.Mount("/", api.NewAssetHandler(rt.Service, rt.Logger).Routes())
	return r
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Asset server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exiting")
	return nil
}
