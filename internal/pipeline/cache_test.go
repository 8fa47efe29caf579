package pipeline_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/metrics"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/source"
	"github.com/specialistvlad/ovipipe/internal/testutil"
)

func TestCache_RepeatedEvaluationIsServedFromCache(t *testing.T) {
	ctx, _ := testutil.Context(t)
	static, mod, app := staticPipeline(t, interval.Infinite())

	first := wait(t, app.Evaluate(ctx, pipeline.NewRequest(0)))
	second := wait(t, app.Evaluate(ctx, pipeline.NewRequest(7)))

	assert.EqualValues(t, 1, mod.Calls())
	assert.EqualValues(t, 1, static.Calls())
	assert.Equal(t, 1.0, calls(t, first, "m"))
	assert.Equal(t, 1.0, calls(t, second, "m"))
	assert.True(t, second.Validity.IsInfinite())
}

func TestCache_InvalidationKeepsUnchangedInterval(t *testing.T) {
	ctx, _ := testutil.Context(t)
	static, mod, app := staticPipeline(t, interval.New(0, 30))

	wait(t, app.Evaluate(ctx, pipeline.NewRequest(0)))
	require.EqualValues(t, 1, mod.Calls())

	static.NotifyTargetChangedOutsideInterval(interval.New(10, 20))
	if diff := cmp.Diff([]interval.Interval{interval.New(10, 20)}, app.Cache().Validity()); diff != "" {
		t.Errorf("cache validity mismatch (-want +got):\n%s", diff)
	}

	wait(t, app.Evaluate(ctx, pipeline.NewRequest(15)))
	assert.EqualValues(t, 1, mod.Calls(), "t=15 lies in the unchanged interval")

	wait(t, app.Evaluate(ctx, pipeline.NewRequest(25)))
	assert.EqualValues(t, 2, mod.Calls(), "t=25 must be recomputed")
}

func TestCache_FullInvalidationDropsEverything(t *testing.T) {
	ctx, _ := testutil.Context(t)
	static, mod, app := staticPipeline(t, interval.Infinite())

	wait(t, app.Evaluate(ctx, pipeline.NewRequest(3)))
	static.NotifyTargetChanged(nil)

	assert.Empty(t, app.Cache().Validity())
	wait(t, app.Evaluate(ctx, pipeline.NewRequest(3)))
	assert.EqualValues(t, 2, mod.Calls())
}

func TestCache_RestrictedInputInvalidation(t *testing.T) {
	ctx, _ := testutil.Context(t)
	static, _, app := staticPipeline(t, interval.New(0, 30), testutil.RestrictInputTo(interval.Instant(4)))

	wait(t, app.Evaluate(ctx, pipeline.NewRequest(10)))
	static.NotifyTargetChangedOutsideInterval(interval.New(0, 30))

	if diff := cmp.Diff([]interval.Interval{interval.Instant(4)}, app.Cache().Validity()); diff != "" {
		t.Errorf("cache validity mismatch (-want +got):\n%s", diff)
	}
}

func TestCache_InvalidateRegionSplitsEntries(t *testing.T) {
	ctx, _ := testutil.Context(t)
	_, mod, app := staticPipeline(t, interval.New(0, 30))

	wait(t, app.Evaluate(ctx, pipeline.NewRequest(5)))
	app.Cache().InvalidateRegion(interval.New(10, 20))

	want := []interval.Interval{interval.New(0, 9), interval.New(21, 30)}
	if diff := cmp.Diff(want, app.Cache().Validity()); diff != "" {
		t.Errorf("cache validity mismatch (-want +got):\n%s", diff)
	}

	wait(t, app.Evaluate(ctx, pipeline.NewRequest(25)))
	assert.EqualValues(t, 1, mod.Calls())
	wait(t, app.Evaluate(ctx, pipeline.NewRequest(15)))
	assert.EqualValues(t, 2, mod.Calls())
}

func TestCache_ConcurrentRequestsShareOneEvaluation(t *testing.T) {
	ctx, _ := testutil.Context(t)
	gate := make(chan struct{})
	_, mod, app := staticPipeline(t, interval.Infinite(), testutil.WithGate(gate))

	f1 := app.Evaluate(ctx, pipeline.NewRequest(0))
	f2 := app.Evaluate(ctx, pipeline.NewRequest(0))
	assert.EqualValues(t, 1, mod.Calls())
	assert.Equal(t, 1, app.Cache().InFlight())

	close(gate)
	st1, st2 := wait(t, f1), wait(t, f2)
	assert.Equal(t, calls(t, st1, "m"), calls(t, st2, "m"))
	assert.EqualValues(t, 1, mod.Calls())
	assert.Zero(t, app.Cache().InFlight())
}

func TestCache_BreakOnErrorModesAreCachedSeparately(t *testing.T) {
	ctx, _ := testutil.Context(t)
	_, mod, app := staticPipeline(t, interval.Infinite())

	req := pipeline.NewRequest(0)
	wait(t, app.Evaluate(ctx, req))
	req.BreakOnError = false
	wait(t, app.Evaluate(ctx, req))

	assert.EqualValues(t, 2, mod.Calls())
	_, ok := app.Cache().Lookup(0, false)
	assert.True(t, ok)
}

func TestCache_ResultOfInvalidatedEvaluationIsNotStored(t *testing.T) {
	ctx, _ := testutil.Context(t)
	gate := make(chan struct{})
	static, mod, app := staticPipeline(t, interval.Infinite(), testutil.WithGate(gate))

	stale := app.Evaluate(ctx, pipeline.NewRequest(0))
	static.NotifyTargetChanged(nil)
	assert.Zero(t, app.Cache().InFlight())

	fresh := app.Evaluate(ctx, pipeline.NewRequest(0))
	assert.EqualValues(t, 2, mod.Calls(), "an invalidated evaluation cannot be joined")

	close(gate)
	assert.Equal(t, 1.0, calls(t, wait(t, stale), "m"), "waiters still receive the stale result")
	assert.Equal(t, 2.0, calls(t, wait(t, fresh), "m"))

	st, ok := app.Cache().Lookup(0, true)
	require.True(t, ok)
	assert.Equal(t, 2.0, calls(t, st, "m"))
}

func TestCache_CancelingOneWaiterKeepsEvaluationRunning(t *testing.T) {
	ctx, _ := testutil.Context(t)
	gate := make(chan struct{})
	_, mod, app := staticPipeline(t, interval.Infinite(), testutil.WithGate(gate))

	f1 := app.Evaluate(ctx, pipeline.NewRequest(0))
	f2 := app.Evaluate(ctx, pipeline.NewRequest(0))
	f1.Cancel()
	assert.Equal(t, 1, app.Cache().InFlight())

	close(gate)
	st := wait(t, f2)
	assert.Equal(t, 1.0, calls(t, st, "m"))
	assert.True(t, f1.IsCanceled())
	assert.EqualValues(t, 1, mod.Calls())
}

func TestCache_CancelingSoleWaiterReturns(t *testing.T) {
	ctx, _ := testutil.Context(t)
	gate := make(chan struct{})
	defer close(gate)
	_, _, app := staticPipeline(t, interval.Infinite(), testutil.WithGate(gate))

	f := app.Evaluate(ctx, pipeline.NewRequest(0))
	done := make(chan struct{})
	go func() {
		f.Cancel()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("canceling the only waiter did not return")
	}
	assert.True(t, f.IsCanceled())
	assert.Eventually(t, func() bool { return app.Cache().InFlight() == 0 }, timeout, tick)
}

func TestCache_CancelingAllWaitersCancelsEvaluation(t *testing.T) {
	ctx, _ := testutil.Context(t)
	gate := make(chan struct{})
	_, mod, app := staticPipeline(t, interval.Infinite(), testutil.WithGate(gate))

	f1 := app.Evaluate(ctx, pipeline.NewRequest(0))
	f2 := app.Evaluate(ctx, pipeline.NewRequest(0))
	f1.Cancel()
	f2.Cancel()
	assert.Eventually(t, func() bool { return app.Cache().InFlight() == 0 }, timeout, tick)

	close(gate)
	_, ok := app.Cache().Lookup(0, true)
	assert.False(t, ok)

	wait(t, app.Evaluate(ctx, pipeline.NewRequest(0)))
	assert.EqualValues(t, 2, mod.Calls())
}

func TestCache_PruningKeepsRequestedIntervals(t *testing.T) {
	ctx, _ := testutil.Context(t)
	env := testutil.NewEnv(t)
	params := source.DefaultGeneratorParams()
	params.Frames = 10
	gen, err := source.NewGenerator(env, params)
	require.NoError(t, err)
	mod := testutil.NewCountingModifier(env, "m", testutil.WithInputHints(interval.Instant(5)))
	app, err := pipeline.NewModifierApplication(env, mod, gen)
	require.NoError(t, err)

	wait(t, gen.Evaluate(ctx, pipeline.NewRequest(5)))
	wait(t, app.Evaluate(ctx, pipeline.NewRequest(2)))
	want := []interval.Interval{interval.Instant(5), interval.Instant(2)}
	if diff := cmp.Diff(want, gen.Cache().Validity()); diff != "" {
		t.Errorf("hinted frame was not kept (-want +got):\n%s", diff)
	}

	wait(t, gen.Evaluate(ctx, pipeline.NewRequest(7)))
	if diff := cmp.Diff([]interval.Interval{interval.Instant(7)}, gen.Cache().Validity()); diff != "" {
		t.Errorf("unrequested frames were kept (-want +got):\n%s", diff)
	}
}

func TestCache_PrecomputeAllFramesKeepsEverything(t *testing.T) {
	ctx, _ := testutil.Context(t)
	env := testutil.NewEnv(t)
	params := source.DefaultGeneratorParams()
	params.Frames = 10
	gen, err := source.NewGenerator(env, params)
	require.NoError(t, err)

	gen.Cache().SetPrecomputeAllFrames(true)
	for _, tm := range []interval.Time{1, 2, 3} {
		wait(t, gen.Evaluate(ctx, pipeline.NewRequest(tm)))
	}
	assert.Len(t, gen.Cache().Validity(), 3)

	gen.Cache().SetPrecomputeAllFrames(false)
	if diff := cmp.Diff([]interval.Interval{interval.Instant(3)}, gen.Cache().Validity()); diff != "" {
		t.Errorf("cache validity mismatch (-want +got):\n%s", diff)
	}
	assert.EqualValues(t, 3, gen.Evaluations())
}

func TestCache_SynchronousPreview(t *testing.T) {
	ctx, _ := testutil.Context(t)
	static, mod, app := staticPipeline(t, interval.Infinite())

	st := app.EvaluateSynchronous(ctx, pipeline.NewRequest(0))
	v, ok := st.Attributes.Get("m.preview")
	require.True(t, ok)
	assert.True(t, v.True())

	app.EvaluateSynchronous(ctx, pipeline.NewRequest(1))
	assert.EqualValues(t, 1, mod.SyncCalls(), "a valid preview is reused")
	assert.Zero(t, mod.Calls())

	static.NotifyDependents(refgraph.Event{Type: refgraph.PreliminaryStateAvailable})
	app.EvaluateSynchronous(ctx, pipeline.NewRequest(0))
	assert.EqualValues(t, 2, mod.SyncCalls())

	wait(t, app.Evaluate(ctx, pipeline.NewRequest(0)))
	st = app.EvaluateSynchronous(ctx, pipeline.NewRequest(0))
	assert.Equal(t, 1.0, calls(t, st, "m"), "a stored state takes precedence over the preview")
}

func TestCache_RecordsMetrics(t *testing.T) {
	ctx, _ := testutil.Context(t)
	reg := prometheus.NewRegistry()
	env := testutil.NewEnv(t, pipeline.WithMetrics(metrics.New(reg)))
	static := source.NewStatic(env, tableState(t, interval.Infinite(), 1))
	mod := testutil.NewCountingModifier(env, "m")
	app, err := pipeline.NewModifierApplication(env, mod, static)
	require.NoError(t, err)

	wait(t, app.Evaluate(ctx, pipeline.NewRequest(0)))
	wait(t, app.Evaluate(ctx, pipeline.NewRequest(0)))

	want := `
# HELP ovipipe_cache_hits_total Evaluation requests answered from a cache entry.
# TYPE ovipipe_cache_hits_total counter
ovipipe_cache_hits_total{cache="modifier"} 1
# HELP ovipipe_cache_misses_total Evaluation requests that started a computation.
# TYPE ovipipe_cache_misses_total counter
ovipipe_cache_misses_total{cache="modifier"} 1
`
	err = promtest.GatherAndCompare(reg, strings.NewReader(want), "ovipipe_cache_hits_total", "ovipipe_cache_misses_total")
	assert.NoError(t, err)
}
