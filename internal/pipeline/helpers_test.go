package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/ovipipe/internal/data"
	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/source"
	"github.com/specialistvlad/ovipipe/internal/tasks"
	"github.com/specialistvlad/ovipipe/internal/testutil"
)

const (
	timeout = 5 * time.Second
	tick    = 5 * time.Millisecond
)

func tableState(t *testing.T, validity interval.Interval, values ...float64) pipeline.FlowState {
	t.Helper()
	table, err := data.NewTable(source.TableID, len(values)).WithColumn("value", values)
	require.NoError(t, err)
	return pipeline.NewFlowState(data.NewCollection(table), validity)
}

func wait(t *testing.T, f tasks.Future[pipeline.FlowState]) pipeline.FlowState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	st, err := f.Wait(ctx)
	require.NoError(t, err)
	return st
}

func calls(t *testing.T, st pipeline.FlowState, title string) float64 {
	t.Helper()
	n, ok := st.Attributes.Float(title + ".calls")
	require.True(t, ok, "attribute %s.calls is missing", title)
	return n
}

// staticPipeline builds static -> app(m).
func staticPipeline(t *testing.T, validity interval.Interval, opts ...testutil.CountingOption) (*source.Static, *testutil.CountingModifier, *pipeline.ModifierApplication) {
	t.Helper()
	env := testutil.NewEnv(t)
	static := source.NewStatic(env, tableState(t, validity, 1, 2, 3, 4, 5))
	mod := testutil.NewCountingModifier(env, "m", opts...)
	app, err := pipeline.NewModifierApplication(env, mod, static)
	require.NoError(t, err)
	return static, mod, app
}
