package app

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/specialistvlad/ovipipe/internal/objpath"
)

// Accepted values of the enumerated settings.
var (
	LogFormats    = []string{"text", "json"}
	LogLevels     = []string{"debug", "info", "warn", "error"}
	OutputFormats = []string{"text", "yaml"}
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // hcl file or directory

	LogFormat   string
	LogLevel    string
	MetricsPort int
	WorkerCount int

	// Pipelines limits evaluation to the named pipelines. Empty means all.
	Pipelines []string
	// Frames lists the source frames to evaluate. Empty means all.
	Frames []int
	// Output is the report format.
	Output string
	// BreakOnError stops at the first failing stage instead of letting later
	// stages work on the data that passed through.
	BreakOnError bool
	// Rendering evaluates the rendering cache instead of the interactive one.
	Rendering bool
	// TrajectoryCaching switches precomputation of all frames on for every
	// pipeline, in addition to those that enable it themselves.
	TrajectoryCaching bool
	// Disable lists addresses of modifiers, groups or applications to switch
	// off before evaluating, e.g. "modifier.small" or "pipeline.main.apply[1]".
	Disable []string
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	var result *multierror.Error
	if cfg.PipelinePath == "" {
		result = multierror.Append(result, errors.New("PipelinePath is a required configuration field and cannot be empty"))
	}
	if !slices.Contains(LogFormats, cfg.LogFormat) {
		result = multierror.Append(result, fmt.Errorf("invalid log format '%s': must be one of %v", cfg.LogFormat, LogFormats))
	}
	if !slices.Contains(LogLevels, cfg.LogLevel) {
		result = multierror.Append(result, fmt.Errorf("invalid log level '%s': must be one of %v", cfg.LogLevel, LogLevels))
	}
	if !slices.Contains(OutputFormats, cfg.Output) {
		result = multierror.Append(result, fmt.Errorf("invalid output format '%s': must be one of %v", cfg.Output, OutputFormats))
	}
	if cfg.WorkerCount < 1 {
		result = multierror.Append(result, fmt.Errorf("worker count must be at least 1, got %d", cfg.WorkerCount))
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid metrics port %d", cfg.MetricsPort))
	}
	for _, f := range cfg.Frames {
		if f < 0 {
			result = multierror.Append(result, fmt.Errorf("frame numbers must not be negative, got %d", f))
		}
	}
	for _, raw := range cfg.Disable {
		if _, err := objpath.Parse(raw); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
