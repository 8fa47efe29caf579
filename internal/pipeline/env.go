package pipeline

import (
	"github.com/specialistvlad/ovipipe/internal/metrics"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// Env bundles what pipeline objects of one document share.
type Env struct {
	Graph *refgraph.Graph
	// Executor runs continuations and cache bookkeeping.
	Executor tasks.Executor
	// Workers runs the heavy computations of modifiers and sources.
	Workers tasks.Executor
	Metrics *metrics.Metrics
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithExecutor sets the executor for continuations.
func WithExecutor(e tasks.Executor) EnvOption { return func(env *Env) { env.Executor = e } }

// WithWorkers sets the executor for heavy computations.
func WithWorkers(e tasks.Executor) EnvOption { return func(env *Env) { env.Workers = e } }

// WithMetrics enables metrics recording.
func WithMetrics(m *metrics.Metrics) EnvOption { return func(env *Env) { env.Metrics = m } }

// NewEnv creates an environment on top of g. Both executors default to
// running functions inline.
func NewEnv(g *refgraph.Graph, opts ...EnvOption) *Env {
	env := &Env{Graph: g, Executor: tasks.Inline, Workers: tasks.Inline}
	for _, opt := range opts {
		opt(env)
	}
	return env
}
