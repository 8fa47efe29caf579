package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/source"
)

// EvalTimeout bounds every evaluation started by Evaluate.
const EvalTimeout = 5 * time.Second

// Evaluate evaluates n at time tm and fails the test on error.
func Evaluate(t *testing.T, n pipeline.Node, tm interval.Time) pipeline.FlowState {
	t.Helper()
	ctx, _ := Context(t)
	ctx, cancel := context.WithTimeout(ctx, EvalTimeout)
	defer cancel()
	st, err := n.Evaluate(ctx, pipeline.NewRequest(tm)).Wait(ctx)
	require.NoError(t, err)
	return st
}

// Generator creates a generator source. mutate may adjust the default
// parameters.
func Generator(t *testing.T, env *pipeline.Env, mutate func(*source.GeneratorParams)) *source.Generator {
	t.Helper()
	params := source.DefaultGeneratorParams()
	if mutate != nil {
		mutate(&params)
	}
	g, err := source.NewGenerator(env, params)
	require.NoError(t, err)
	return g
}

// Apply applies mod on top of input.
func Apply(t *testing.T, env *pipeline.Env, mod pipeline.Modifier, input pipeline.Node) *pipeline.ModifierApplication {
	t.Helper()
	app, err := pipeline.NewModifierApplication(env, mod, input)
	require.NoError(t, err)
	return app
}

// Column returns a column of the generator table held by st.
func Column(t *testing.T, st pipeline.FlowState, name string) []float64 {
	t.Helper()
	table, ok := st.Table(source.TableID)
	require.True(t, ok, "state holds no table %q", source.TableID)
	values, ok := table.Column(name)
	require.True(t, ok, "table has no column %q", name)
	return values
}
