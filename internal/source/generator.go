package source

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/ovipipe/internal/ctxlog"
	"github.com/specialistvlad/ovipipe/internal/data"
	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// TableID is the identifier of the table a Generator produces.
const TableID = "particles"

var (
	rowsField  = refgraph.FieldDescriptor{Name: "rows"}
	speedField = refgraph.FieldDescriptor{Name: "speed"}
)

// GeneratorParams configures a Generator.
type GeneratorParams struct {
	Rows          int     `hcl:"rows,optional"`
	Frames        int     `hcl:"frames,optional"`
	TicksPerFrame int64   `hcl:"ticks_per_frame,optional"`
	Speed         float64 `hcl:"speed,optional"`
}

// DefaultGeneratorParams returns the parameters used for omitted settings.
func DefaultGeneratorParams() GeneratorParams {
	return GeneratorParams{Rows: 8, Frames: 1, TicksPerFrame: 1, Speed: 1}
}

// Validate checks the parameters.
func (p GeneratorParams) Validate() error {
	var errs []error
	if p.Rows < 0 {
		errs = append(errs, fmt.Errorf("rows must not be negative, got %d", p.Rows))
	}
	if p.Frames < 1 {
		errs = append(errs, fmt.Errorf("frames must be at least 1, got %d", p.Frames))
	}
	if p.TicksPerFrame < 1 {
		errs = append(errs, fmt.Errorf("ticks_per_frame must be at least 1, got %d", p.TicksPerFrame))
	}
	return errors.Join(errs...)
}

// Generator produces a table with the columns "id" and "value". Row i of
// frame f has the value i + speed*f.
type Generator struct {
	pipeline.CachingNode
	frames        int
	ticksPerFrame int64
	rows          refgraph.Property[int]
	speed         refgraph.Property[float64]

	evaluations atomic.Int64
}

// NewGenerator creates a generator node.
func NewGenerator(env *pipeline.Env, params GeneratorParams) (*Generator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{frames: params.Frames, ticksPerFrame: params.TicksPerFrame}
	g.rows.Init(&rowsField, params.Rows)
	g.speed.Init(&speedField, params.Speed)
	env.Graph.Add(g)
	g.InitCaching(env, g, "source")
	return g, nil
}

// TypeName names the type in logs.
func (g *Generator) TypeName() string { return "Generator" }

// Title returns the display title.
func (g *Generator) Title() string { return "Generator" }

// Rows returns the number of rows per frame.
func (g *Generator) Rows() int { return g.rows.Get() }

// SetRows changes the number of rows, which invalidates every frame.
func (g *Generator) SetRows(n int) { g.rows.Set(g, n) }

// Speed returns the per-frame increment of the values.
func (g *Generator) Speed() float64 { return g.speed.Get() }

// SetSpeed changes the per-frame increment, which invalidates every frame.
func (g *Generator) SetSpeed(v float64) { g.speed.Set(g, v) }

// Evaluations returns how many frames were generated so far.
func (g *Generator) Evaluations() int64 { return g.evaluations.Load() }

// Evaluate returns the frame at req.Time.
func (g *Generator) Evaluate(ctx context.Context, req pipeline.Request) tasks.Future[pipeline.FlowState] {
	return g.Cache().EvaluatePipeline(ctx, req)
}

// EvaluateSynchronous returns the cached frame or generates it right away.
func (g *Generator) EvaluateSynchronous(ctx context.Context, req pipeline.Request) pipeline.FlowState {
	return g.Cache().EvaluatePipelineSynchronous(ctx, req)
}

// EvaluateInternal generates a frame on the worker executor.
func (g *Generator) EvaluateInternal(ctx context.Context, req pipeline.Request) tasks.Future[pipeline.FlowState] {
	return tasks.RunTask(g.Env().Workers, func(p tasks.Promise[pipeline.FlowState]) (pipeline.FlowState, error) {
		p.SetProgressText("Generating frame")
		return g.generate(ctx, req.Time)
	})
}

// EvaluateInternalSynchronous generates a frame on the calling goroutine.
func (g *Generator) EvaluateInternalSynchronous(ctx context.Context, req pipeline.Request) pipeline.FlowState {
	st, err := g.generate(ctx, req.Time)
	if err != nil {
		return pipeline.FlowState{Status: pipeline.Error(err.Error()), Validity: interval.Empty()}
	}
	return st
}

func (g *Generator) generate(ctx context.Context, t interval.Time) (pipeline.FlowState, error) {
	frame := g.clampFrame(g.AnimationTimeToSourceFrame(t))
	rows := g.Rows()
	speed := g.Speed()
	g.evaluations.Add(1)
	ctxlog.FromContext(ctx).Debug("Generating frame.", "frame", frame, "rows", rows)

	ids := make([]float64, rows)
	values := make([]float64, rows)
	for i := range rows {
		ids[i] = float64(i)
		values[i] = float64(i) + speed*float64(frame)
	}
	table := data.NewTable(TableID, rows)
	table, err := table.WithColumn("id", ids)
	if err != nil {
		return pipeline.FlowState{}, err
	}
	table, err = table.WithColumn("value", values)
	if err != nil {
		return pipeline.FlowState{}, err
	}

	st := pipeline.NewFlowState(data.NewCollection(table), g.frameInterval(frame))
	if err := st.SetAttribute("source.frame", cty.NumberIntVal(int64(frame))); err != nil {
		return pipeline.FlowState{}, err
	}
	if err := st.SetAttribute("source.rows", cty.NumberIntVal(int64(rows))); err != nil {
		return pipeline.FlowState{}, err
	}
	return st, nil
}

func (g *Generator) clampFrame(frame int) int {
	return min(max(frame, 0), g.frames-1)
}

// frameInterval is the time span showing frame. The first and the last
// frame extend to infinity.
func (g *Generator) frameInterval(frame int) interval.Interval {
	start := interval.Time(int64(frame) * g.ticksPerFrame)
	end := start + interval.Time(g.ticksPerFrame) - 1
	if frame == 0 {
		start = interval.NegativeInfinity
	}
	if frame == g.frames-1 {
		end = interval.PositiveInfinity
	}
	return interval.New(start, end)
}

// ValidityInterval returns the time span of the frame shown at req.Time.
func (g *Generator) ValidityInterval(req pipeline.Request) interval.Interval {
	return g.frameInterval(g.clampFrame(g.AnimationTimeToSourceFrame(req.Time)))
}

// NumberOfSourceFrames returns the number of frames.
func (g *Generator) NumberOfSourceFrames() int { return g.frames }

// AnimationTimeToSourceFrame maps a time to a frame number.
func (g *Generator) AnimationTimeToSourceFrame(t interval.Time) int {
	tpf := interval.Time(g.ticksPerFrame)
	frame := t / tpf
	if t < 0 && t%tpf != 0 {
		frame--
	}
	return int(frame)
}

// SourceFrameToAnimationTime returns the first time showing frame.
func (g *Generator) SourceFrameToAnimationTime(frame int) interval.Time {
	return interval.Time(int64(frame) * g.ticksPerFrame)
}
