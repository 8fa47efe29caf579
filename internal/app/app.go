package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/specialistvlad/ovipipe/internal/config"
	"github.com/specialistvlad/ovipipe/internal/ctxlog"
	"github.com/specialistvlad/ovipipe/internal/metrics"
	"github.com/specialistvlad/ovipipe/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	model    *config.Model

	promRegistry *prometheus.Registry
	metrics      *metrics.Metrics
	httpServer   *http.Server
}

// NewApp is the constructor for the main application. Reports are written to
// outW and logs to logW. It loads and validates the pipeline definitions, so
// a returned App is ready to run.
func NewApp(outW, logW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	// A registry without factories is a programmer error, not a user error.
	if err := reg.Validate(ctx); err != nil {
		panic(err)
	}

	model, err := config.Load(ctx, cfg.PipelinePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline definitions: %w", err)
	}
	if len(model.Pipelines) == 0 {
		return nil, fmt.Errorf("no pipelines defined in %s", cfg.PipelinePath)
	}
	if err := config.Validate(model, reg); err != nil {
		return nil, fmt.Errorf("invalid pipeline definitions: %w", err)
	}
	logger.Debug("Pipeline definitions loaded and validated.", "pipelines", len(model.Pipelines))

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())

	return &App{
		outW:         outW,
		logger:       logger,
		config:       cfg,
		registry:     reg,
		model:        model,
		promRegistry: promRegistry,
		metrics:      metrics.New(promRegistry),
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the loaded pipeline definitions.
func (a *App) Model() *config.Model {
	return a.model
}

// Gatherer exposes the application's metrics.
func (a *App) Gatherer() prometheus.Gatherer {
	return a.promRegistry
}
