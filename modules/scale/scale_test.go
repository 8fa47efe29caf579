package scale_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/registry"
	"github.com/specialistvlad/ovipipe/internal/source"
	"github.com/specialistvlad/ovipipe/internal/tasks"
	"github.com/specialistvlad/ovipipe/internal/testutil"
	"github.com/specialistvlad/ovipipe/modules/scale"
)

func fourRows(p *source.GeneratorParams) {
	p.Rows = 4
	p.Frames = 3
}

func newScale(env *pipeline.Env, factor float64) *scale.Modifier {
	params := scale.DefaultParams()
	params.Factor = factor
	return scale.New(env, "double", params)
}

func TestScale_MultipliesColumn(t *testing.T) {
	pool := tasks.NewPool(2)
	env := testutil.NewEnv(t, pipeline.WithWorkers(pool))
	app := testutil.Apply(t, env, newScale(env, 2), testutil.Generator(t, env, fourRows))

	st := testutil.Evaluate(t, app, 1)
	require.False(t, st.Status.IsError(), st.Status.String())
	if diff := cmp.Diff([]float64{2, 4, 6, 8}, testutil.Column(t, st, "value")); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	factor, ok := st.Attributes.Float("double.factor")
	require.True(t, ok)
	assert.Equal(t, 2.0, factor)
	pool.Wait()
}

func TestScale_ReportsProgress(t *testing.T) {
	env := testutil.NewEnv(t)
	gen := testutil.Generator(t, env, fourRows)
	mod := newScale(env, 3)
	app := testutil.Apply(t, env, mod, gen)
	in := testutil.Evaluate(t, gen, 0)

	ctx, _ := testutil.Context(t)
	f := mod.Evaluate(ctx, pipeline.NewRequest(0), app, in)
	st, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3, 6, 9}, testutil.Column(t, st, "value"))

	progress := f.Progress()
	assert.Equal(t, "Scaling column 'value'", progress.Text)
	assert.EqualValues(t, 4, progress.Maximum)
}

func TestScale_FactorChangeAnnouncesPreview(t *testing.T) {
	env := testutil.NewEnv(t)
	mod := newScale(env, 2)
	app := testutil.Apply(t, env, mod, testutil.Generator(t, env, fourRows))
	ctx, _ := testutil.Context(t)

	var mu sync.Mutex
	var seen []refgraph.EventType
	l, err := refgraph.NewListener(app, func(_ refgraph.Object, ev refgraph.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Type)
	})
	require.NoError(t, err)
	defer l.Close()

	st := app.EvaluateSynchronous(ctx, pipeline.NewRequest(0))
	assert.Equal(t, []float64{0, 2, 4, 6}, testutil.Column(t, st, "value"))

	mod.SetFactor(10)
	mu.Lock()
	assert.Contains(t, seen, refgraph.PreliminaryStateAvailable)
	assert.Contains(t, seen, refgraph.TargetChanged)
	mu.Unlock()

	st = app.EvaluateSynchronous(ctx, pipeline.NewRequest(0))
	assert.Equal(t, []float64{0, 10, 20, 30}, testutil.Column(t, st, "value"))
	assert.Equal(t, []float64{0, 10, 20, 30}, testutil.Column(t, testutil.Evaluate(t, app, 0), "value"))
}

func TestModule_DecodesParameters(t *testing.T) {
	reg := registry.New()
	(&scale.Module{}).Register(reg)
	env := testutil.NewEnv(t)

	tests := []struct {
		name string
		body string
		want float64
	}{
		{name: "default factor", body: "", want: 1},
		{name: "explicit factor", body: "factor = 0.5\n", want: 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mod, err := reg.NewModifier(env, scale.TypeName, "s", testutil.ParseBody(t, tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, mod.(*scale.Modifier).Factor())
		})
	}

	_, err := reg.NewModifier(env, scale.TypeName, "s", testutil.ParseBody(t, "factor = \"big\"\n"))
	assert.Error(t, err)
}
