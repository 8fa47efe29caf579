package testutil

import (
	"testing"

	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// Goroutine runs every function on a new goroutine.
var Goroutine tasks.Executor = tasks.ExecutorFunc(func(fn func()) { go fn() })

// NewEnv returns an environment on a fresh graph with inline executors.
func NewEnv(t *testing.T, opts ...pipeline.EnvOption) *pipeline.Env {
	t.Helper()
	logger, _ := Logger(t)
	return pipeline.NewEnv(refgraph.NewGraph(refgraph.WithLogger(logger)), opts...)
}
