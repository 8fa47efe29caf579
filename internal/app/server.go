package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/specialistvlad/ovipipe/internal/ctxlog"
)

const shutdownTimeout = 5 * time.Second

// Handler returns the HTTP handler serving the health and metrics endpoints.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(a.promRegistry, promhttp.HandlerOpts{}))
	return mux
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// startServer runs the metrics server in the background until closeServer.
func (a *App) startServer(ctx context.Context, port int) {
	logger := ctxlog.FromContext(ctx)
	addr := fmt.Sprintf(":%d", port)
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		logger.Info("Metrics server starting", "address", fmt.Sprintf("http://localhost%s/metrics", addr))
		// Shutdown makes ListenAndServe return http.ErrServerClosed.
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed unexpectedly", "error", err)
		}
	}()
}

func (a *App) closeServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if a.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger.Info("Shutting down metrics server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", "error", err)
		return err
	}
	a.httpServer = nil
	logger.Debug("Metrics server shut down gracefully.")
	return nil
}
