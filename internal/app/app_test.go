package app_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/hcl/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/ovipipe/internal/app"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/registry"
	"github.com/specialistvlad/ovipipe/internal/source"
	tu "github.com/specialistvlad/ovipipe/internal/testutil"
)

const modifiers = `
group "filters" {}

modifier "cutoff" "small" {
  cutoff = 3
}

modifier "scale" "double" {
  factor = 2
}
`

const mainPipeline = `
pipeline "main" {
  source "generator" {
    rows            = 4
    frames          = 3
    ticks_per_frame = 10
  }

  apply "small" {
    group = "filters"
  }
}
`

func run(t *testing.T, h *tu.AppHarness) *app.Report {
	t.Helper()
	require.NoError(t, h.App.Run(context.Background()))
	var r app.Report
	require.NoError(t, yaml.Unmarshal([]byte(h.Out.String()), &r), h.Out.String())
	return &r
}

func rows(p app.PipelineReport) []int {
	var out []int
	for _, f := range p.Frames {
		n := 0
		for _, o := range f.Objects {
			n += o.Rows
		}
		out = append(out, n)
	}
	return out
}

func TestNewConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg, err := app.NewConfig(tu.AppConfig("defs"))
		require.NoError(t, err)
		assert.Equal(t, "defs", cfg.PipelinePath)
	})

	t.Run("reports every problem", func(t *testing.T) {
		_, err := app.NewConfig(app.Config{
			LogFormat:   "xml",
			LogLevel:    "loud",
			Output:      "csv",
			MetricsPort: 70000,
			Frames:      []int{1, -1},
			Disable:     []string{"widget.x"},
		})
		require.Error(t, err)
		msg := err.Error()
		for _, want := range []string{
			"PipelinePath is a required configuration field",
			"invalid log format 'xml'",
			"invalid log level 'loud'",
			"invalid output format 'csv'",
			"worker count must be at least 1",
			"invalid metrics port 70000",
			"frame numbers must not be negative, got -1",
		} {
			assert.Contains(t, msg, want)
		}
	})
}

func TestNewApp_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "no pipelines",
			files:   map[string]string{"mods.hcl": modifiers},
			wantErr: "no pipelines defined",
		},
		{
			name:    "syntax error",
			files:   map[string]string{"main.hcl": `pipeline "p" {`},
			wantErr: "failed to load pipeline definitions",
		},
		{
			name: "undefined modifier",
			files: map[string]string{"main.hcl": `
pipeline "p" {
  source "generator" {}
  apply "ghost" {}
}`},
			wantErr: "undefined modifier 'ghost'",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tu.TrySetupApp(t, tc.files, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRun_WritesYAMLReport(t *testing.T) {
	h := tu.SetupApp(t, map[string]string{"mods.hcl": modifiers, "pipelines/main.hcl": mainPipeline}, nil)
	r := run(t, h)

	require.Len(t, r.Pipelines, 1)
	p := r.Pipelines[0]
	assert.Equal(t, "main", p.Name)
	assert.False(t, p.TrajectoryCaching)
	assert.Equal(t, []int{4, 3, 2}, rows(p))

	require.Len(t, p.Stages, 2)
	assert.Equal(t, "source", p.Stages[0].Type)
	assert.Equal(t, "small", p.Stages[1].Title)
	assert.Equal(t, "cutoff", p.Stages[1].Type)
	assert.True(t, p.Stages[1].Enabled)

	f := p.Frames[1]
	assert.Equal(t, 1, f.Frame)
	assert.EqualValues(t, 10, f.Time)
	assert.Equal(t, "[10, 19]", f.Validity)
	assert.Equal(t, "success: 1 of 4 rows removed", f.Status)
	assert.EqualValues(t, 1, f.Attributes["small.removed"])
	if diff := cmp.Diff([]app.ObjectReport{{ID: "particles", Rows: 3, Columns: []string{"id", "value"}}}, f.Objects); diff != "" {
		t.Errorf("objects mismatch (-want +got):\n%s", diff)
	}
	assert.NotEmpty(t, p.CachedIntervals)
}

func TestRun_TextReport(t *testing.T) {
	h := tu.SetupApp(t, map[string]string{"main.hcl": modifiers + mainPipeline}, func(c *app.Config) {
		c.Output = "text"
		c.Frames = []int{2}
	})
	require.NoError(t, h.App.Run(context.Background()))

	out := h.Out.String()
	assert.Contains(t, out, "pipeline main")
	assert.Contains(t, out, "frame 2")
	assert.Contains(t, out, "particles(2 rows)")
	assert.NotContains(t, out, "frame 0")
}

func TestRun_Disable(t *testing.T) {
	testCases := []struct {
		name    string
		address string
	}{
		{name: "modifier", address: "modifier.small"},
		{name: "group", address: "group.filters"},
		{name: "application", address: "pipeline.main.apply[0]"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := tu.SetupApp(t, map[string]string{"main.hcl": modifiers + mainPipeline}, func(c *app.Config) {
				c.Disable = []string{tc.address}
			})
			r := run(t, h)
			p := r.Pipelines[0]
			assert.Equal(t, []int{4, 4, 4}, rows(p))
			assert.False(t, p.Stages[1].Enabled)
		})
	}

	t.Run("unknown object", func(t *testing.T) {
		h := tu.SetupApp(t, map[string]string{"main.hcl": modifiers + mainPipeline}, func(c *app.Config) {
			c.Disable = []string{"modifier.ghost"}
		})
		err := h.App.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "modifier.ghost: no such modifier")
	})
}

func TestRun_SharedModifier(t *testing.T) {
	h := tu.SetupApp(t, map[string]string{"main.hcl": modifiers + mainPipeline + `
pipeline "other" {
  source "generator" {
    rows  = 6
    speed = 0
  }

  apply "double" {}
  apply "small" {}
}
`}, func(c *app.Config) {
		c.Pipelines = []string{"other", "main"}
		c.Frames = []int{0}
	})
	r := run(t, h)

	require.Len(t, r.Pipelines, 2)
	assert.Equal(t, "other", r.Pipelines[0].Name)
	// Values 0..5 doubled leave 0, 2 below the cutoff.
	assert.Equal(t, []int{2}, rows(r.Pipelines[0]))
	assert.Equal(t, []int{4}, rows(r.Pipelines[1]))
	assert.EqualValues(t, 2, r.Pipelines[0].Frames[0].Attributes["double.factor"])
}

func TestRun_SelectionErrors(t *testing.T) {
	files := map[string]string{"main.hcl": modifiers + mainPipeline}

	h := tu.SetupApp(t, files, func(c *app.Config) { c.Pipelines = []string{"ghost"} })
	err := h.App.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pipeline named 'ghost'")

	h = tu.SetupApp(t, files, func(c *app.Config) { c.Frames = []int{0, 3} })
	err = h.App.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 3 out of range, the pipeline has 3 frames")
}

func TestRun_BreakOnError(t *testing.T) {
	files := map[string]string{"main.hcl": `
modifier "compute" "broken" {
  expression = "missing + 1"
}

pipeline "main" {
  source "generator" {}
  apply "broken" {}
}
`}
	h := tu.SetupApp(t, files, nil)
	err := h.App.Run(context.Background())
	require.ErrorIs(t, err, app.ErrEvaluationFailed)

	var r app.Report
	require.NoError(t, yaml.Unmarshal([]byte(h.Out.String()), &r))
	require.Len(t, r.Pipelines, 1)
	assert.True(t, strings.HasPrefix(r.Pipelines[0].Frames[0].Status, "error"), r.Pipelines[0].Frames[0].Status)
	assert.True(t, strings.HasPrefix(r.Pipelines[0].Status, "error"))
}

// holdModule registers a modifier that runs until its evaluation is canceled.
type holdModule struct{ started chan struct{} }

func (m *holdModule) Register(r *registry.Registry) {
	r.RegisterModifier("hold", &registry.RegisteredModifier{
		Description: "Blocks until canceled.",
		New: func(env *pipeline.Env, title string, _ hcl.Body) (pipeline.Modifier, hcl.Diagnostics) {
			return tu.NewCountingModifier(env, title, tu.WithGate(make(chan struct{})), tu.WithStarted(m.started)), nil
		},
	})
}

func TestRun_ReturnsWhenCanceled(t *testing.T) {
	hold := &holdModule{started: make(chan struct{}, 1)}
	h := tu.SetupApp(t, map[string]string{"main.hcl": `
modifier "hold" "wait" {}

pipeline "main" {
  source "generator" {
    frames = 1
  }

  apply "wait" {}
}
`}, nil, &source.Module{}, hold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- h.App.Run(ctx) }()

	select {
	case <-hold.started:
	case <-time.After(5 * time.Second):
		t.Fatal("the modifier never started")
	}
	cancel()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after its context was canceled")
	}
	assert.Empty(t, h.Out.String(), "no report is written for a canceled run")
}

func TestRun_RenderingWithTrajectoryCaching(t *testing.T) {
	h := tu.SetupApp(t, map[string]string{"main.hcl": modifiers + mainPipeline}, func(c *app.Config) {
		c.Rendering = true
		c.TrajectoryCaching = true
		c.Frames = []int{2, 0, 2}
	})
	r := run(t, h)

	p := r.Pipelines[0]
	assert.True(t, p.TrajectoryCaching)
	require.Len(t, p.Frames, 2, "frames are sorted and deduplicated")
	assert.Equal(t, 0, p.Frames[0].Frame)
	assert.Equal(t, []int{4, 2}, rows(p))
	assert.NotEmpty(t, p.CachedIntervals)
	assert.Contains(t, h.Log.String(), "Precomputing trajectory frames.")
}

func TestValidate(t *testing.T) {
	h := tu.SetupApp(t, map[string]string{"main.hcl": modifiers + mainPipeline}, nil)
	require.NoError(t, h.App.Validate(context.Background()))
	assert.Empty(t, h.Out.String())
	assert.Contains(t, h.Log.String(), "Pipeline definitions are valid.")
}

func TestHandler(t *testing.T) {
	h := tu.SetupApp(t, map[string]string{"main.hcl": modifiers + mainPipeline}, nil)
	run(t, h)

	srv := httptest.NewServer(h.App.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK\n", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "ovipipe_cache_misses_total")

	count, err := testutil.GatherAndCount(h.App.Gatherer(), "ovipipe_cache_misses_total")
	require.NoError(t, err)
	assert.Positive(t, count)
}
