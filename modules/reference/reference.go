package reference

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/ovipipe/internal/ctxlog"
	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/source"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// TypeName is the registered type of the modifier.
const TypeName = "reference"

var referenceFrameField = refgraph.FieldDescriptor{Name: "reference_frame"}

// Params configures a Modifier.
type Params struct {
	ReferenceFrame int    `hcl:"reference_frame,optional"`
	Column         string `hcl:"column,optional"`
	Output         string `hcl:"output,optional"`
	Table          string `hcl:"table,optional"`
}

// DefaultParams returns the parameters used for omitted settings.
func DefaultParams() Params {
	return Params{Column: "value", Output: "displacement", Table: source.TableID}
}

// Modifier compares every frame against a fixed reference frame of its
// input: the output column holds the row-wise difference of the current and
// the reference value. Upstream caches are asked to keep the reference frame.
type Modifier struct {
	pipeline.ModifierBase
	table          string
	column         string
	output         string
	referenceFrame refgraph.Property[int]
}

// New creates a reference modifier.
func New(env *pipeline.Env, title string, params Params) (*Modifier, error) {
	if params.ReferenceFrame < 0 {
		return nil, fmt.Errorf("reference_frame must not be negative, got %d", params.ReferenceFrame)
	}
	m := &Modifier{table: params.Table, column: params.Column, output: params.Output}
	m.InitModifier(TypeName, title)
	m.referenceFrame.Init(&referenceFrameField, params.ReferenceFrame)
	env.Graph.Add(m)
	return m, nil
}

// ReferenceFrame returns the source frame compared against.
func (m *Modifier) ReferenceFrame() int { return m.referenceFrame.Get() }

// SetReferenceFrame changes the reference frame.
func (m *Modifier) SetReferenceFrame(frame int) error {
	if frame < 0 {
		return fmt.Errorf("reference_frame must not be negative, got %d", frame)
	}
	m.referenceFrame.Set(m, frame)
	return nil
}

func (m *Modifier) referenceTime(app *pipeline.ModifierApplication) interval.Time {
	return app.SourceFrameToAnimationTime(m.ReferenceFrame())
}

// InputCachingHints adds the reference time to the requested intervals.
func (m *Modifier) InputCachingHints(intervals []interval.Interval, app *pipeline.ModifierApplication) []interval.Interval {
	return append(intervals, interval.Instant(m.referenceTime(app)))
}

// RestrictInputValidityInterval reports every time as changed when an
// upstream change affects the reference frame.
func (m *Modifier) RestrictInputValidityInterval(iv interval.Interval) interval.Interval {
	for _, app := range m.Applications() {
		if !iv.Contains(m.referenceTime(app)) {
			return interval.Empty()
		}
	}
	return iv
}

// Evaluate fetches the reference frame from the input and computes the
// differences.
func (m *Modifier) Evaluate(ctx context.Context, req pipeline.Request, app *pipeline.ModifierApplication, input pipeline.FlowState) tasks.Future[pipeline.FlowState] {
	frame := m.ReferenceFrame()
	refTime := app.SourceFrameToAnimationTime(frame)
	if input.Validity.Contains(refTime) {
		return tasks.Run(tasks.Inline, func() (pipeline.FlowState, error) {
			return m.apply(input, input, frame)
		})
	}

	ctxlog.FromContext(ctx).Debug("Fetching reference frame.", "frame", frame, "time", refTime, "eval_id", req.EvalID)
	ref := app.EvaluateInput(ctx, req.AtTime(refTime))
	return tasks.Then(ref, app.Env().Executor, func(refState pipeline.FlowState) (pipeline.FlowState, error) {
		if refState.Status.IsError() {
			return pipeline.FlowState{}, fmt.Errorf("reference frame %d is not available: %s", frame, refState.Status.Text)
		}
		return m.apply(input, refState, frame)
	})
}

func (m *Modifier) apply(cur, ref pipeline.FlowState, frame int) (pipeline.FlowState, error) {
	curValues, err := m.values(cur, "current")
	if err != nil {
		return pipeline.FlowState{}, err
	}
	refValues, err := m.values(ref, "reference")
	if err != nil {
		return pipeline.FlowState{}, err
	}
	if len(curValues) != len(refValues) {
		return pipeline.FlowState{}, fmt.Errorf("reference frame %d has %d rows, current frame has %d", frame, len(refValues), len(curValues))
	}

	diff := make([]float64, len(curValues))
	for i := range diff {
		diff[i] = curValues[i] - refValues[i]
	}
	table, _ := cur.Table(m.table)
	table, err = table.WithColumn(m.output, diff)
	if err != nil {
		return pipeline.FlowState{}, err
	}
	out := cur.WithObject(table)
	if err := out.SetAttribute(m.Title()+".reference_frame", cty.NumberIntVal(int64(frame))); err != nil {
		return pipeline.FlowState{}, err
	}
	return out, nil
}

func (m *Modifier) values(st pipeline.FlowState, which string) ([]float64, error) {
	table, ok := st.Table(m.table)
	if !ok {
		return nil, fmt.Errorf("%s frame contains no table '%s'", which, m.table)
	}
	values, ok := table.Column(m.column)
	if !ok {
		return nil, fmt.Errorf("%s frame has no column '%s'", which, m.column)
	}
	return values, nil
}
