// Package web serves the admin HTTP API: pipeline status, manual resets and
// Prometheus metrics.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/trove/internal/config"
	"github.com/hpungsan/trove/internal/logger"
	"github.com/hpungsan/trove/internal/ops"
)

// NewServer creates the admin HTTP server. scraper may be nil, which disables
// the fetch-metadata route.
func NewServer(deps *ops.Deps, cfg *config.Config, scraper ops.Scraper, version string) *http.Server {
	h := &Handlers{
		deps:    deps,
		cfg:     cfg,
		scraper: scraper,
		version: version,
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Admin.Bind, cfg.Admin.Port),
		Handler:           h.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (h *Handlers) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("GET /admin/status", h.HandleStatus)
	mux.HandleFunc("GET /admin/cards/{id}", h.HandleCard)
	mux.HandleFunc("POST /admin/cards/{id}/reset", h.HandleReset)
	mux.HandleFunc("POST /admin/cards/{id}/refresh", h.HandleRefresh)
	mux.HandleFunc("POST /admin/cards/{id}/fetch-metadata", h.HandleFetchMetadata)
	mux.HandleFunc("POST /admin/backfill", h.HandleBackfill)
	mux.Handle("GET /metrics", h.deps.Metrics.Handler())

	return securityHeaders(mux)
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and shuts it down gracefully on SIGINT/SIGTERM
// or when ctx is cancelled.
func Run(ctx context.Context, srv *http.Server, log logger.Logger) error {
	if log == nil {
		log = logger.NewNopLogger()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("admin API listening", logger.String("addr", srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("admin API is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Info("shutting down admin API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
