package scale

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/ovipipe/internal/ctxlog"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/source"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// TypeName is the registered type of the modifier.
const TypeName = "scale"

// progressStep is the number of rows scaled between progress reports.
const progressStep = 1024

var factorField = refgraph.FieldDescriptor{Name: "factor"}

// Params configures a Modifier.
type Params struct {
	Factor float64 `hcl:"factor,optional"`
	Column string  `hcl:"column,optional"`
	Table  string  `hcl:"table,optional"`
}

// DefaultParams returns the parameters used for omitted settings.
func DefaultParams() Params {
	return Params{Factor: 1, Column: "value", Table: source.TableID}
}

// Modifier multiplies one column by a factor. The work runs on the worker
// executor. Changing the factor announces a preliminary state so that
// interactive consumers can show the synchronous preview right away.
type Modifier struct {
	pipeline.ModifierBase
	table  string
	column string
	factor refgraph.Property[float64]
}

// New creates a scale modifier.
func New(env *pipeline.Env, title string, params Params) *Modifier {
	m := &Modifier{table: params.Table, column: params.Column}
	m.InitModifier(TypeName, title)
	m.factor.Init(&factorField, params.Factor)
	env.Graph.Add(m)
	return m
}

// Factor returns the scaling factor.
func (m *Modifier) Factor() float64 { return m.factor.Get() }

// SetFactor changes the scaling factor.
func (m *Modifier) SetFactor(f float64) { m.factor.Set(m, f) }

// Evaluate scales the column on the worker executor.
func (m *Modifier) Evaluate(ctx context.Context, req pipeline.Request, app *pipeline.ModifierApplication, input pipeline.FlowState) tasks.Future[pipeline.FlowState] {
	factor := m.Factor()
	return tasks.RunTask(app.Env().Workers, func(p tasks.Promise[pipeline.FlowState]) (pipeline.FlowState, error) {
		ctxlog.FromContext(ctx).Debug("Scaling column.", "column", m.column, "factor", factor, "eval_id", req.EvalID)
		p.SetProgressText(fmt.Sprintf("Scaling column '%s'", m.column))
		return m.apply(input, factor, func(done, total int) bool {
			p.SetProgressMaximum(int64(total))
			return p.SetProgressValue(int64(done))
		})
	})
}

// EvaluateSynchronous scales the preview state.
func (m *Modifier) EvaluateSynchronous(_ context.Context, _ pipeline.Request, _ *pipeline.ModifierApplication, st *pipeline.FlowState) {
	out, err := m.apply(*st, m.Factor(), nil)
	if err != nil {
		st.Status = pipeline.Error(err.Error())
		return
	}
	*st = out
}

// PerformPreliminaryUpdateAfterChange implements pipeline.Modifier.
func (m *Modifier) PerformPreliminaryUpdateAfterChange() bool { return true }

func (m *Modifier) apply(st pipeline.FlowState, factor float64, progress func(done, total int) bool) (pipeline.FlowState, error) {
	table, ok := st.Table(m.table)
	if !ok {
		return pipeline.FlowState{}, fmt.Errorf("input contains no table '%s'", m.table)
	}
	values, ok := table.Column(m.column)
	if !ok {
		return pipeline.FlowState{}, fmt.Errorf("table '%s' has no column '%s'", m.table, m.column)
	}
	for i := range values {
		if progress != nil && i%progressStep == 0 && !progress(i, len(values)) {
			return pipeline.FlowState{}, tasks.ErrCanceled
		}
		values[i] *= factor
	}
	scaled, err := table.WithColumn(m.column, values)
	if err != nil {
		return pipeline.FlowState{}, err
	}
	out := st.WithObject(scaled)
	if err := out.SetAttribute(m.Title()+".factor", cty.NumberFloatVal(factor)); err != nil {
		return pipeline.FlowState{}, err
	}
	return out, nil
}
